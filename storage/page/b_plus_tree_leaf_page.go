package page

import (
	"encoding/binary"

	"mizuchi/common"
	"mizuchi/types"
)

// KeyComparator compares two fixed-width keys, returning a value less
// than, equal to, or greater than zero
type KeyComparator func(a, b []byte) int

/**
 * BPlusTreeLeafPage is the typed view of a leaf node. After the 24 byte
 * header the page holds size entries of key ∥ RID, keys strictly
 * ascending. Leaves of one index form a singly linked list through
 * nextPageId in ascending key order.
 *
 * Leaf page format (keys are stored in order):
 *  -----------------------------------------------------------------------
 * | HEADER (24) | KEY(1) + RID(1) | KEY(2) + RID(2) | ... | KEY(n) + RID(n)
 *  -----------------------------------------------------------------------
 */
type BPlusTreeLeafPage struct {
	BPlusTreePage
	keySize int32
}

// CastBPlusTreeLeafPage interprets a pinned page as a leaf node view.
// Using the leaf view on a non-leaf page is a programmer error.
func CastBPlusTreeLeafPage(page *Page, keySize int32) *BPlusTreeLeafPage {
	ret := &BPlusTreeLeafPage{*CastBPlusTreePage(page), keySize}
	if common.EnableDebug {
		common.Assert(ret.hdr.pageType == LeafPage, "cast of non-leaf page to leaf view")
	}
	return ret
}

// InitBPlusTreeLeafPage formats a freshly allocated page as an empty
// leaf
func InitBPlusTreeLeafPage(page *Page, pageId types.PageID, parentId types.PageID, keySize int32) *BPlusTreeLeafPage {
	ret := &BPlusTreeLeafPage{*CastBPlusTreePage(page), keySize}
	ret.hdr.pageType = LeafPage
	ret.hdr.pageId = pageId
	ret.hdr.parentPageId = parentId
	ret.hdr.size = 0
	ret.hdr.maxSize = leafMaxSize(keySize)
	ret.leafHdr().nextPageId = types.InvalidPageID
	return ret
}

func (p *BPlusTreeLeafPage) leafHdr() *bPlusTreeLeafPageHeader {
	return leafPageHeader(p.page)
}

func (p *BPlusTreeLeafPage) entrySize() int32 {
	return p.keySize + SizeOfLeafValue
}

func (p *BPlusTreeLeafPage) entryOffset(index int32) int32 {
	return SizeOfBPlusTreeLeafPageHeader + index*p.entrySize()
}

// GetNextPageId returns the id of the right sibling leaf
func (p *BPlusTreeLeafPage) GetNextPageId() types.PageID {
	return p.leafHdr().nextPageId
}

func (p *BPlusTreeLeafPage) SetNextPageId(nextPageId types.PageID) {
	p.leafHdr().nextPageId = nextPageId
}

// KeyAt copies out the key stored at index
func (p *BPlusTreeLeafPage) KeyAt(index int32) []byte {
	off := p.entryOffset(index)
	key := make([]byte, p.keySize)
	copy(key, p.page.Data()[off:off+p.keySize])
	return key
}

func (p *BPlusTreeLeafPage) setKeyAt(index int32, key []byte) {
	off := p.entryOffset(index)
	copy(p.page.Data()[off:off+p.keySize], key)
}

// ValueAt returns the record id stored at index
func (p *BPlusTreeLeafPage) ValueAt(index int32) RID {
	off := p.entryOffset(index) + p.keySize
	data := p.page.Data()
	pageId := types.PageID(int32(binary.LittleEndian.Uint32(data[off : off+4])))
	slot := binary.LittleEndian.Uint32(data[off+4 : off+8])
	return NewRID(pageId, slot)
}

func (p *BPlusTreeLeafPage) setValueAt(index int32, rid RID) {
	off := p.entryOffset(index) + p.keySize
	data := p.page.Data()
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(rid.GetPageId()))
	binary.LittleEndian.PutUint32(data[off+4:off+8], rid.GetSlot())
}

// GetItem returns the entry at index
func (p *BPlusTreeLeafPage) GetItem(index int32) ([]byte, RID) {
	common.Assert(index >= 0 && index < p.GetSize(), "leaf entry index out of range")
	return p.KeyAt(index), p.ValueAt(index)
}

// shiftEntries moves entries [from..size) by delta positions
func (p *BPlusTreeLeafPage) shiftEntries(from int32, delta int32) {
	data := p.page.Data()
	start := p.entryOffset(from)
	end := p.entryOffset(p.GetSize())
	if start >= end {
		return
	}
	copy(data[start+delta*p.entrySize():], data[start:end])
}

// KeyIndex returns the smallest index whose key is >= key, zero when
// every key is smaller. Used to position the range scan iterator.
func (p *BPlusTreeLeafPage) KeyIndex(key []byte, comparator KeyComparator) int32 {
	for i := int32(0); i < p.GetSize(); i++ {
		if comparator(p.KeyAt(i), key) >= 0 {
			return i
		}
	}
	return 0
}

// Lookup finds the record id stored under key
func (p *BPlusTreeLeafPage) Lookup(key []byte, comparator KeyComparator) (RID, bool) {
	for i := int32(0); i < p.GetSize(); i++ {
		if comparator(p.KeyAt(i), key) == 0 {
			return p.ValueAt(i), true
		}
	}
	return RID{}, false
}

// Insert puts (key, rid) at its ordered position and returns the new
// size. Rejecting duplicates is the caller's job.
func (p *BPlusTreeLeafPage) Insert(key []byte, rid RID, comparator KeyComparator) int32 {
	insertAt := p.GetSize()
	for i := int32(0); i < p.GetSize(); i++ {
		if comparator(key, p.KeyAt(i)) < 0 {
			insertAt = i
			break
		}
	}
	p.shiftEntries(insertAt, 1)
	p.IncreaseSize(1)
	p.setKeyAt(insertAt, key)
	p.setValueAt(insertAt, rid)
	return p.GetSize()
}

// RemoveAndDeleteRecord deletes the entry for key when present and
// returns the resulting size
func (p *BPlusTreeLeafPage) RemoveAndDeleteRecord(key []byte, comparator KeyComparator) int32 {
	for i := int32(0); i < p.GetSize(); i++ {
		if comparator(p.KeyAt(i), key) == 0 {
			p.shiftEntries(i+1, -1)
			p.IncreaseSize(-1)
			break
		}
	}
	return p.GetSize()
}

// MoveHalfTo moves the upper half of the entries to an empty recipient
// created during a split, and splices the recipient into the sibling
// list right after this leaf
func (p *BPlusTreeLeafPage) MoveHalfTo(recipient *BPlusTreeLeafPage) {
	splitAt := (p.GetMaxSize() + 1) / 2
	moved := p.GetSize() - splitAt

	src := p.page.Data()
	dst := recipient.page.Data()
	copy(dst[recipient.entryOffset(0):], src[p.entryOffset(splitAt):p.entryOffset(p.GetSize())])

	recipient.SetSize(moved)
	p.SetSize(splitAt)

	recipient.SetNextPageId(p.GetNextPageId())
	p.SetNextPageId(recipient.GetPageId())
}

// MoveAllTo appends every entry to recipient (the left sibling) during
// a coalesce, unlinks this leaf from the sibling list and deletes the
// separator at indexInParent. The caller already holds the parent
// write-latched; it is fetched here only to pin it.
func (p *BPlusTreeLeafPage) MoveAllTo(recipient *BPlusTreeLeafPage, indexInParent int32, pool PagePool) {
	src := p.page.Data()
	dst := recipient.page.Data()
	copy(dst[recipient.entryOffset(recipient.GetSize()):], src[p.entryOffset(0):p.entryOffset(p.GetSize())])
	recipient.IncreaseSize(p.GetSize())
	p.SetSize(0)
	recipient.SetNextPageId(p.GetNextPageId())

	parentPage := pool.FetchPage(p.GetParentPageId())
	parent := CastBPlusTreeInternalPage(parentPage, p.keySize)
	parent.Remove(indexInParent)
	pool.UnpinPage(parentPage.GetPageId(), true)
}

// MoveFirstToEndOf shifts this leaf's first entry to the end of the
// left sibling and refreshes the separator for this leaf in the parent
func (p *BPlusTreeLeafPage) MoveFirstToEndOf(recipient *BPlusTreeLeafPage, pool PagePool) {
	key, rid := p.GetItem(0)
	recipient.IncreaseSize(1)
	recipient.setKeyAt(recipient.GetSize()-1, key)
	recipient.setValueAt(recipient.GetSize()-1, rid)

	p.shiftEntries(1, -1)
	p.IncreaseSize(-1)

	parentPage := pool.FetchPage(p.GetParentPageId())
	parent := CastBPlusTreeInternalPage(parentPage, p.keySize)
	parent.SetKeyAt(parent.ValueIndex(p.GetPageId()), p.KeyAt(0))
	pool.UnpinPage(parentPage.GetPageId(), true)
}

// MoveLastToFrontOf shifts this leaf's last entry to the front of the
// right sibling and refreshes the sibling's separator in the parent
func (p *BPlusTreeLeafPage) MoveLastToFrontOf(recipient *BPlusTreeLeafPage, parentIndex int32, pool PagePool) {
	key, rid := p.GetItem(p.GetSize() - 1)
	p.IncreaseSize(-1)

	recipient.shiftEntries(0, 1)
	recipient.IncreaseSize(1)
	recipient.setKeyAt(0, key)
	recipient.setValueAt(0, rid)

	parentPage := pool.FetchPage(recipient.GetParentPageId())
	parent := CastBPlusTreeInternalPage(parentPage, p.keySize)
	parent.SetKeyAt(parentIndex, recipient.KeyAt(0))
	pool.UnpinPage(parentPage.GetPageId(), true)
}
