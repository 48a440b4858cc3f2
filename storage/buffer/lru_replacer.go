package buffer

import (
	"sort"

	pair "github.com/notEpsilon/go-pair"
	"github.com/sasha-s/go-deadlock"

	"mizuchi/container/hash"
)

// FrameID is the type for buffer pool frame indexes
type FrameID uint32

/**
 * LRUReplacer picks the least recently unpinned frame as the eviction
 * victim. A monotonic counter stamps every Insert; entries stay sorted
 * by timestamp (a fresh stamp is always the largest, so insertion is an
 * append), and a companion extendible hash finds a frame's current
 * stamp so Insert and Erase can drop the stale entry.
 */
type LRUReplacer struct {
	lru        []pair.Pair[uint64, FrameID]
	frameTable *hash.ExtendibleHash[FrameID, uint64]
	timeCount  uint64
	latch      deadlock.Mutex
}

func NewLRUReplacer() *LRUReplacer {
	ret := new(LRUReplacer)
	ret.lru = make([]pair.Pair[uint64, FrameID], 0)
	ret.frameTable = hash.NewExtendibleHash[FrameID, uint64](5, func(id FrameID) uint32 {
		return hash.GenHashMurMurUint32(uint32(id))
	})
	return ret
}

// locate returns the index of the entry carrying timestamp, assuming it
// exists
func (l *LRUReplacer) locate(timestamp uint64) int {
	return sort.Search(len(l.lru), func(i int) bool {
		return l.lru[i].First >= timestamp
	})
}

func (l *LRUReplacer) removeEntry(timestamp uint64) {
	idx := l.locate(timestamp)
	l.lru = append(l.lru[:idx], l.lru[idx+1:]...)
}

// Insert records value as the most recently used frame
func (l *LRUReplacer) Insert(value FrameID) {
	l.latch.Lock()
	defer l.latch.Unlock()

	l.timeCount++

	if prev, ok := l.frameTable.Find(value); ok {
		l.removeEntry(prev)
		l.frameTable.Remove(value)
	}

	l.lru = append(l.lru, pair.Pair[uint64, FrameID]{First: l.timeCount, Second: value})
	l.frameTable.Insert(value, l.timeCount)
}

// Victim removes and returns the least recently used frame, reporting
// false when the replacer is empty
func (l *LRUReplacer) Victim() (FrameID, bool) {
	l.latch.Lock()
	defer l.latch.Unlock()

	if len(l.lru) == 0 {
		return 0, false
	}

	victim := l.lru[0]
	l.lru = l.lru[1:]
	l.frameTable.Remove(victim.Second)

	return victim.Second, true
}

// Erase removes value from the replacer, reporting whether it was
// present
func (l *LRUReplacer) Erase(value FrameID) bool {
	l.latch.Lock()
	defer l.latch.Unlock()

	if prev, ok := l.frameTable.Find(value); ok {
		l.removeEntry(prev)
		l.frameTable.Remove(value)
		return true
	}
	return false
}

// Size returns the number of frames eligible for eviction
func (l *LRUReplacer) Size() int {
	l.latch.Lock()
	defer l.latch.Unlock()

	return len(l.lru)
}
