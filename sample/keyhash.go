package sample

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
)

// KeyHashSize is the width of the KeyHash parameter (PID_KEY_HASH) fixed by
// RTPS v2.5 section 9.6.4.8.
const KeyHashSize = 16

var ErrBadKeyHash = errors.New("Key hash must be exactly 16 bytes")

// KeyHash is a compact digest identifying an instance.
type KeyHash [KeyHashSize]byte

// ParseKeyHash decodes the hex form produced by KeyHash.String.
func ParseKeyHash(s string) (KeyHash, error) {
	var h KeyHash

	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("Failed to parse key hash '%s': %w", s, err)
	}

	if len(raw) != KeyHashSize {
		return h, fmt.Errorf("Failed to parse key hash '%s': %w", s, ErrBadKeyHash)
	}

	copy(h[:], raw)
	return h, nil
}

func (h KeyHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h KeyHash) IsZero() bool {
	return h == KeyHash{}
}

// ComputeKeyHash derives the key hash of an instance from its key serialized
// as big endian CDR. Keys that fit in KeyHashSize bytes are zero padded unless
// forceMD5 is set, in which case (and for all longer keys) the MD5 digest is
// used.
func ComputeKeyHash(serializedKeyBE []byte, forceMD5 bool) KeyHash {
	if !forceMD5 && len(serializedKeyBE) <= KeyHashSize {
		var h KeyHash
		copy(h[:], serializedKeyBE)
		return h
	}

	return KeyHash(md5.Sum(serializedKeyBE))
}
