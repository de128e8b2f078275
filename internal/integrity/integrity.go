// Package integrity provides tamper-evident hashing for archived debate
// transcripts. All functions are pure and deterministic.
package integrity

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// hashPrefix versions the encoding. Hashes without it are rejected.
const hashPrefix = "b2:"

// Hasher accumulates length-prefixed fields into a BLAKE2b-256 digest.
// Each field is a 4-byte big-endian length followed by its bytes, so free
// text containing separators cannot collide with a different field split.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	h, _ := blake2b.New256(nil) // only errors for keys longer than 64 bytes
	return &Hasher{h: h}
}

// Field writes one string field.
func (h *Hasher) Field(s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // bounded by request body limits
	h.h.Write(lenBuf[:])
	h.h.Write([]byte(s))
}

// OptionalField writes a nil marker or the field. A nil pointer and an empty
// string hash differently.
func (h *Hasher) OptionalField(s *string) {
	if s == nil {
		h.h.Write([]byte{0})
		return
	}
	h.h.Write([]byte{1})
	h.Field(*s)
}

// Int writes an integer field.
func (h *Hasher) Int(n int) {
	h.Field(strconv.Itoa(n))
}

// List writes the element count followed by each element.
func (h *Hasher) List(items []string) {
	h.Int(len(items))
	for _, it := range items {
		h.Field(it)
	}
}

// Sum returns the versioned hex digest.
func (h *Hasher) Sum() string {
	return hashPrefix + hex.EncodeToString(h.h.Sum(nil))
}

// Equal compares two hashes in constant time. Both must carry the version
// prefix.
func Equal(a, b string) bool {
	if !strings.HasPrefix(a, hashPrefix) || !strings.HasPrefix(b, hashPrefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// hashPair produces BLAKE2b(0x01 || a || b). The 0x01 prefix separates
// internal Merkle nodes from leaf hashes.
func hashPair(a, b string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{0x01})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot folds leaf hashes into a single root. The caller fixes the
// leaf order. An empty slice yields "", a single leaf is its own root, and an
// odd node at any level is paired with itself.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}
