package index

import (
	"mizuchi/common"
	"mizuchi/storage/buffer"
	"mizuchi/storage/page"
	"mizuchi/types"
)

/**
 * IndexIterator walks the leaf chain in ascending key order. It keeps
 * exactly one leaf pinned and read latched; stepping across a leaf
 * boundary latches the next leaf before the current one is released.
 * The latch and pin are dropped automatically when the scan runs off
 * the last entry; Close releases them when a scan is abandoned early.
 */
type IndexIterator struct {
	bpm      *buffer.BufferPoolManager
	leafPage *page.Page
	leaf     *page.BPlusTreeLeafPage
	offset   int32
	keySize  int32
	released bool
}

func newIndexIterator(bpm *buffer.BufferPoolManager, leafPage *page.Page, offset int32, keySize int32) *IndexIterator {
	it := &IndexIterator{
		bpm:      bpm,
		leafPage: leafPage,
		leaf:     page.CastBPlusTreeLeafPage(leafPage, keySize),
		offset:   offset,
		keySize:  keySize,
	}
	// an empty starting position releases immediately
	if it.IsEnd() {
		it.Close()
	}
	return it
}

// newEndIterator is the iterator of an empty tree
func newEndIterator(bpm *buffer.BufferPoolManager) *IndexIterator {
	return &IndexIterator{bpm: bpm, released: true}
}

// IsEnd reports whether the scan is exhausted
func (it *IndexIterator) IsEnd() bool {
	if it.released {
		return true
	}
	return it.leaf.GetNextPageId() == types.InvalidPageID && it.offset >= it.leaf.GetSize()
}

// Current returns the entry under the cursor
func (it *IndexIterator) Current() ([]byte, page.RID) {
	return it.leaf.GetItem(it.offset)
}

// Next advances the cursor, hopping to the right sibling leaf at a
// page boundary. Resources are released when the end is reached.
func (it *IndexIterator) Next() {
	if it.released {
		return
	}

	it.offset++
	if it.IsEnd() {
		it.Close()
		return
	}

	if it.offset >= it.leaf.GetSize() {
		nextPage := it.bpm.FetchPage(it.leaf.GetNextPageId())
		common.Assert(nextPage != nil, "could not fetch the next leaf")
		nextPage.RLatch()

		it.leafPage.RUnlatch()
		it.bpm.UnpinPage(it.leafPage.GetPageId(), false)

		it.leafPage = nextPage
		it.leaf = page.CastBPlusTreeLeafPage(nextPage, it.keySize)
		it.offset = 0
	}
}

// Close drops the latch and pin of the current leaf. Safe to call more
// than once.
func (it *IndexIterator) Close() {
	if it.released {
		return
	}
	it.leafPage.RUnlatch()
	it.bpm.UnpinPage(it.leafPage.GetPageId(), false)
	it.released = true
	it.leafPage = nil
	it.leaf = nil
}
