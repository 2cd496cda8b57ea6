package util

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/spaolacci/murmur3"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashString hashes s with murmur3, mixing in the given seed.
// Both halves of the seed are used so that two databases with different
// seeds distribute the same key set differently.
func HashString(s string, seed uint64) uint64 {
	h := murmur3.Sum64WithSeed([]byte(s), uint32(seed))
	return h ^ (seed >> 32)
}

// --------------------------------------------------------------------------
// Counter Encoding
// --------------------------------------------------------------------------

// EncodeCounter renders a counter value the way it is stored.
func EncodeCounter(v uint64) []byte {
	return strconv.AppendUint(nil, v, 10)
}

// DecodeCounter parses a stored counter. A nil or empty value is zero.
func DecodeCounter(b []byte) (uint64, bool) {
	if len(b) == 0 {
		return 0, true
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
