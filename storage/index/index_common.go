package index

import (
	"bytes"
	"encoding/binary"

	"mizuchi/common"
	"mizuchi/storage/page"
)

// supported fixed key widths in bytes
var supportedKeySizes = []int32{4, 8, 16, 32, 64}

// ValidKeySize reports whether size is one of the supported fixed key
// widths
func ValidKeySize(size int32) bool {
	for _, s := range supportedKeySizes {
		if s == size {
			return true
		}
	}
	return false
}

// NewGenericKeyComparator returns the default comparator for opaque
// fixed-width keys: unsigned bytewise comparison over the configured
// width
func NewGenericKeyComparator(keySize int32) page.KeyComparator {
	return func(a, b []byte) int {
		common.Assert(int32(len(a)) == keySize && int32(len(b)) == keySize, "key width mismatch")
		return bytes.Compare(a, b)
	}
}

// Uint64ToKey packs an integer into a big-endian key of the given
// width, so the generic comparator orders keys numerically. Handy for
// tests and integer-keyed indexes.
func Uint64ToKey(v uint64, keySize int32) []byte {
	key := make([]byte, keySize)
	if keySize >= 8 {
		binary.BigEndian.PutUint64(key[keySize-8:], v)
	} else {
		binary.BigEndian.PutUint32(key[keySize-4:], uint32(v))
	}
	return key
}

// KeyToUint64 is the inverse of Uint64ToKey
func KeyToUint64(key []byte) uint64 {
	if len(key) >= 8 {
		return binary.BigEndian.Uint64(key[len(key)-8:])
	}
	return uint64(binary.BigEndian.Uint32(key[len(key)-4:]))
}
