package sample

import "fmt"

// Kind is the variant held by a Sample.
type Kind uint8

const (
	KindData Kind = iota
	KindDisposeByKey
	KindDisposeByKeyHash
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindDisposeByKey:
		return "DisposeByKey"
	case KindDisposeByKeyHash:
		return "DisposeByKeyHash"
	default:
		return "Unknown"
	}
}

// Sample is a data sample or a disposal of an instance, in serialized form.
//
// Only the fields of the active variant are set. The zero value is a Data
// sample with an empty payload.
type Sample struct {
	kind Kind

	// Data payload, or the serialized key for KindDisposeByKey
	payload SerializedPayload

	// Only used by the dispose variants
	changeKind ChangeKind
	keyHash    KeyHash
}

// New builds a Data sample.
func New(payload SerializedPayload) Sample {
	return Sample{kind: KindData, payload: payload}
}

// NewDisposedByKey builds a sample disposing or unregistering the instance
// identified by a serialized key.
func NewDisposedByKey(changeKind ChangeKind, key SerializedPayload) Sample {
	return Sample{
		kind:       KindDisposeByKey,
		changeKind: changeKind,
		payload:    key,
	}
}

// NewDisposedByKeyHash builds a sample disposing or unregistering the
// instance identified by its key hash.
func NewDisposedByKeyHash(changeKind ChangeKind, keyHash KeyHash) Sample {
	return Sample{
		kind:       KindDisposeByKeyHash,
		changeKind: changeKind,
		keyHash:    keyHash,
	}
}

func (s Sample) Kind() Kind {
	return s.kind
}

// ChangeKind is Alive for Data samples, otherwise the change kind the sample
// was built with.
func (s Sample) ChangeKind() ChangeKind {
	switch s.kind {
	case KindDisposeByKey, KindDisposeByKeyHash:
		return s.changeKind
	default:
		return Alive
	}
}

// PayloadSize is the number of bytes the sample's payload occupies on the
// wire. Key hashes are always KeyHashSize.
func (s Sample) PayloadSize() int {
	switch s.kind {
	case KindDisposeByKeyHash:
		return KeyHashSize
	default:
		return s.payload.Len()
	}
}

// SerializedPayload returns the data payload of a Data sample or the
// serialized key of a DisposeByKey sample.
func (s Sample) SerializedPayload() (SerializedPayload, bool) {
	if s.kind == KindDisposeByKeyHash {
		return SerializedPayload{}, false
	}

	return s.payload, true
}

// KeyHash returns the key hash of a DisposeByKeyHash sample.
func (s Sample) KeyHash() (KeyHash, bool) {
	if s.kind != KindDisposeByKeyHash {
		return KeyHash{}, false
	}

	return s.keyHash, true
}

func (s Sample) Equal(other Sample) bool {
	if s.kind != other.kind {
		return false
	}

	switch s.kind {
	case KindData:
		return s.payload.Equal(other.payload)
	case KindDisposeByKey:
		return s.changeKind == other.changeKind && s.payload.Equal(other.payload)
	default:
		return s.changeKind == other.changeKind && s.keyHash == other.keyHash
	}
}

// Clone returns a sample equal to s. The payload bytes are shared, not
// copied.
func (s Sample) Clone() Sample {
	return s
}

func (s Sample) String() string {
	switch s.kind {
	case KindData:
		return fmt.Sprintf("Data{%s, %d bytes}", s.payload.Representation(), s.payload.Len())
	case KindDisposeByKey:
		return fmt.Sprintf("DisposeByKey{%s, %s, %d bytes}",
			s.changeKind, s.payload.Representation(), s.payload.Len())
	default:
		return fmt.Sprintf("DisposeByKeyHash{%s, %s}", s.changeKind, s.keyHash)
	}
}
