package sample

import (
	"bytes"
	"fmt"
	"io"
)

// RepresentationIdentifier names the encoding of a serialized payload. It is
// always carried big endian on the wire.
type RepresentationIdentifier uint16

const (
	CDR_BE     RepresentationIdentifier = 0x0000
	CDR_LE     RepresentationIdentifier = 0x0001
	PL_CDR_BE  RepresentationIdentifier = 0x0002
	PL_CDR_LE  RepresentationIdentifier = 0x0003
	CDR2_BE    RepresentationIdentifier = 0x0010
	CDR2_LE    RepresentationIdentifier = 0x0011
	PL_CDR2_BE RepresentationIdentifier = 0x0012
	PL_CDR2_LE RepresentationIdentifier = 0x0013
	D_CDR2_BE  RepresentationIdentifier = 0x0014
	D_CDR2_LE  RepresentationIdentifier = 0x0015
	XML        RepresentationIdentifier = 0x0004
)

// EncapsulationHeaderSize is the representation identifier plus the
// representation options that prefix every serialized payload.
const EncapsulationHeaderSize = 4

var representationNames = map[RepresentationIdentifier]string{
	CDR_BE:     "CDR_BE",
	CDR_LE:     "CDR_LE",
	PL_CDR_BE:  "PL_CDR_BE",
	PL_CDR_LE:  "PL_CDR_LE",
	CDR2_BE:    "CDR2_BE",
	CDR2_LE:    "CDR2_LE",
	PL_CDR2_BE: "PL_CDR2_BE",
	PL_CDR2_LE: "PL_CDR2_LE",
	D_CDR2_BE:  "D_CDR2_BE",
	D_CDR2_LE:  "D_CDR2_LE",
	XML:        "XML",
}

// Known reports whether r is one of the representations defined by the
// protocol.
func (r RepresentationIdentifier) Known() bool {
	_, ok := representationNames[r]
	return ok
}

// BigEndian reports whether r encodes values as big endian CDR. Only keys in
// these representations can be hashed without a key hash from the writer.
func (r RepresentationIdentifier) BigEndian() bool {
	switch r {
	case CDR_BE, PL_CDR_BE, CDR2_BE, PL_CDR2_BE, D_CDR2_BE:
		return true
	default:
		return false
	}
}

func (r RepresentationIdentifier) String() string {
	if name, ok := representationNames[r]; ok {
		return name
	}

	return fmt.Sprintf("0x%04x", uint16(r))
}

// SerializedPayload is an encoded data value or key, as carried by a DATA
// submessage.
//
// The value bytes are owned by the payload and never handed out mutably, so
// copies of a SerializedPayload share the same backing array safely.
type SerializedPayload struct {
	representation RepresentationIdentifier
	options        [2]byte
	value          []byte
}

// NewSerializedPayload copies value into a new payload.
func NewSerializedPayload(rep RepresentationIdentifier, options [2]byte, value []byte) SerializedPayload {
	owned := make([]byte, len(value))
	copy(owned, value)

	return SerializedPayload{
		representation: rep,
		options:        options,
		value:          owned,
	}
}

func (p SerializedPayload) Representation() RepresentationIdentifier {
	return p.representation
}

func (p SerializedPayload) Options() [2]byte {
	return p.options
}

// Len is the length of the value bytes, without the encapsulation header.
func (p SerializedPayload) Len() int {
	return len(p.value)
}

// LenSerialized is the length of the payload as written on the wire.
func (p SerializedPayload) LenSerialized() int {
	return EncapsulationHeaderSize + len(p.value)
}

// Bytes returns a copy of the value bytes.
func (p SerializedPayload) Bytes() []byte {
	out := make([]byte, len(p.value))
	copy(out, p.value)
	return out
}

// WriteTo writes the value bytes to w without copying them.
func (p SerializedPayload) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.value)
	return int64(n), err
}

// AppendSerialized appends the encapsulation header and the value to dst.
func (p SerializedPayload) AppendSerialized(dst []byte) []byte {
	dst = append(dst, byte(p.representation>>8), byte(p.representation))
	dst = append(dst, p.options[:]...)
	return append(dst, p.value...)
}

func (p SerializedPayload) Equal(other SerializedPayload) bool {
	return p.representation == other.representation &&
		p.options == other.options &&
		bytes.Equal(p.value, other.value)
}
