package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ID is a 32-byte array.
type ID [32]byte

// Empty is the zero-value ID (all zeros)
var Empty ID

// NewID generates a new ID by hashing input bytes
func NewID(data []byte) ID {
	hash := sha256.Sum256(data)
	return ID(hash)
}

// FromString parses a hex string (optionally 0x-prefixed) into an ID.
// The input must decode to exactly 32 bytes.
func FromString(s string) (ID, error) {
	var id ID
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(bytes) != len(id) {
		return id, errors.New("id must be 32 bytes")
	}
	copy(id[:], bytes)
	return id, nil
}

// String converts an ID back to a hex string
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Hex returns the 0x-prefixed form used on the wire.
func (id ID) Hex() string {
	return "0x" + id.String()
}

// IsEmpty reports whether id is the zero ID.
func (id ID) IsEmpty() bool {
	return id == Empty
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DerivePatientID computes keccak256(mrn || salt). The vault only ever sees
// the result; the medical record number never leaves the caller.
func DerivePatientID(mrn, salt string) ID {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(mrn))
	h.Write([]byte(salt))
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}
