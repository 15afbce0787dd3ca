// Package sample holds the representation of one application data sample as
// it leaves the wire protocol and enters the instance cache.
//
// A DATA submessage (or a reassembled set of DATAFRAGs) carries one of three
// things for a keyed instance:
//
// - `Data` - a new value for the instance, as a serialized payload.
// - `DisposeByKey` - the instance was disposed or unregistered, and the
//                    writer sent the serialized key.
// - `DisposeByKeyHash` - the instance was disposed or unregistered, and the
//                        writer only sent the 16 byte key hash.
//
// Sample collapses these into a single value. The variant is chosen by the
// decoder, a Sample never changes after it is built and it is safe to share
// between goroutines.
package sample
