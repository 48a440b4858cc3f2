package hash

import (
	pair "github.com/notEpsilon/go-pair"
	"github.com/sasha-s/go-deadlock"
)

/*
 * In-memory hash table using extendible hashing. The buffer pool
 * manager uses it as the page table mapping a PageID to the frame
 * currently holding that page; the LRU replacer uses it to locate
 * entries by frame.
 *
 * Entries are stored keyed by the hashed key, so two keys colliding on
 * the full 32 bit hash are treated as equal. With PageID and FrameID
 * keys the hash input is the key's own bytes, which keeps that safe.
 */
type ExtendibleHash[K comparable, V any] struct {
	directory   []*hashBucket[V]
	globalDepth uint32
	numBucket   int
	bucketSize  int
	hashKey     func(K) uint32
	latch       deadlock.Mutex
}

type hashBucket[V any] struct {
	localDepth uint32
	elements   []pair.Pair[uint32, V]
}

// NewExtendibleHash creates a table whose buckets overflow past
// bucketSize entries. hashKey maps a key to its 32 bit hash.
func NewExtendibleHash[K comparable, V any](bucketSize int, hashKey func(K) uint32) *ExtendibleHash[K, V] {
	ret := new(ExtendibleHash[K, V])
	ret.directory = []*hashBucket[V]{{}}
	ret.globalDepth = 0
	ret.numBucket = 1
	ret.bucketSize = bucketSize
	ret.hashKey = hashKey
	return ret
}

func lowBits(value uint32, n uint32) uint32 {
	return value & ((1 << n) - 1)
}

// GetGlobalDepth returns the global depth of the directory
func (ht *ExtendibleHash[K, V]) GetGlobalDepth() uint32 {
	ht.latch.Lock()
	defer ht.latch.Unlock()
	return ht.globalDepth
}

// GetLocalDepth returns the local depth of the bucket at directory
// index idx
func (ht *ExtendibleHash[K, V]) GetLocalDepth(idx int) uint32 {
	ht.latch.Lock()
	defer ht.latch.Unlock()
	return ht.directory[idx].localDepth
}

// GetNumBuckets returns the current number of distinct buckets
func (ht *ExtendibleHash[K, V]) GetNumBuckets() int {
	ht.latch.Lock()
	defer ht.latch.Unlock()
	return ht.numBucket
}

// Find looks up the value associated with key
func (ht *ExtendibleHash[K, V]) Find(key K) (value V, ok bool) {
	ht.latch.Lock()
	defer ht.latch.Unlock()

	hashed := ht.hashKey(key)
	bucket := ht.directory[lowBits(hashed, ht.globalDepth)]

	for _, element := range bucket.elements {
		if element.First == hashed {
			return element.Second, true
		}
	}
	return value, false
}

// Remove deletes the entry for key, reporting whether one existed.
// Buckets are never merged and the directory never shrinks.
func (ht *ExtendibleHash[K, V]) Remove(key K) bool {
	ht.latch.Lock()
	defer ht.latch.Unlock()

	hashed := ht.hashKey(key)
	bucket := ht.directory[lowBits(hashed, ht.globalDepth)]

	for i, element := range bucket.elements {
		if element.First == hashed {
			bucket.elements = append(bucket.elements[:i], bucket.elements[i+1:]...)
			return true
		}
	}
	return false
}

// Insert puts (key, value) into the table, splitting the target bucket
// as long as it overflows. An existing entry for key is overwritten.
func (ht *ExtendibleHash[K, V]) Insert(key K, value V) {
	ht.latch.Lock()
	defer ht.latch.Unlock()

	hashed := ht.hashKey(key)
	idx := lowBits(hashed, ht.globalDepth)
	bucket := ht.directory[idx]

	for i, element := range bucket.elements {
		if element.First == hashed {
			bucket.elements[i].Second = value
			return
		}
	}

	bucket.elements = append(bucket.elements, pair.Pair[uint32, V]{First: hashed, Second: value})
	if len(bucket.elements) > ht.bucketSize {
		ht.split(idx)
	}
}

// split divides the bucket at directory index idx in two, doubling the
// directory first when the bucket is already at global depth
func (ht *ExtendibleHash[K, V]) split(idx uint32) {
	bucket := ht.directory[idx]
	depth := bucket.localDepth

	if depth == ht.globalDepth {
		// each new slot mirrors its low-bit twin
		oldLen := len(ht.directory)
		ht.directory = append(ht.directory, ht.directory[:oldLen]...)
		ht.globalDepth++
	}

	newBucket := &hashBucket[V]{localDepth: depth + 1}
	bucket.localDepth = depth + 1
	ht.numBucket++

	// every directory slot whose low depth+1 bits select the new
	// bucket is redirected to it
	newPattern := lowBits(idx, depth) | (1 << depth)
	for i := range ht.directory {
		if lowBits(uint32(i), depth+1) == newPattern {
			ht.directory[i] = newBucket
		}
	}

	total := bucket.elements
	bucket.elements = nil
	for _, element := range total {
		if lowBits(element.First, depth+1) == newPattern {
			newBucket.elements = append(newBucket.elements, element)
		} else {
			bucket.elements = append(bucket.elements, element)
		}
	}

	if len(bucket.elements) > ht.bucketSize {
		ht.split(lowBits(idx, depth))
	}
	if len(newBucket.elements) > ht.bucketSize {
		ht.split(newPattern)
	}
}
