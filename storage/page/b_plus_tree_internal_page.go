package page

import (
	"encoding/binary"

	"mizuchi/common"
	"mizuchi/types"
)

/**
 * BPlusTreeInternalPage is the typed view of an internal node. After
 * the 20 byte header the page holds size entries of key ∥ child page
 * id. The key of entry 0 is unused: array[0].value is the child for
 * every key below array[1].key.
 *
 * Internal page format (keys are stored in increasing order):
 *  ----------------------------------------------------------------------------------
 * | HEADER (20) | INVALID_KEY + PAGE_ID(1) | KEY(2) + PAGE_ID(2) | ... | KEY(n) + PAGE_ID(n)
 *  ----------------------------------------------------------------------------------
 */
type BPlusTreeInternalPage struct {
	BPlusTreePage
	keySize int32
}

// CastBPlusTreeInternalPage interprets a pinned page as an internal
// node view. Using the internal view on a leaf page is a programmer
// error.
func CastBPlusTreeInternalPage(page *Page, keySize int32) *BPlusTreeInternalPage {
	ret := &BPlusTreeInternalPage{*CastBPlusTreePage(page), keySize}
	if common.EnableDebug {
		common.Assert(ret.hdr.pageType == InternalPage, "cast of non-internal page to internal view")
	}
	return ret
}

// InitBPlusTreeInternalPage formats a freshly allocated page as an
// empty internal node
func InitBPlusTreeInternalPage(page *Page, pageId types.PageID, parentId types.PageID, keySize int32) *BPlusTreeInternalPage {
	ret := &BPlusTreeInternalPage{*CastBPlusTreePage(page), keySize}
	ret.hdr.pageType = InternalPage
	ret.hdr.pageId = pageId
	ret.hdr.parentPageId = parentId
	ret.hdr.size = 0
	ret.hdr.maxSize = internalMaxSize(keySize)
	return ret
}

func (p *BPlusTreeInternalPage) entrySize() int32 {
	return p.keySize + SizeOfInternalValue
}

func (p *BPlusTreeInternalPage) entryOffset(index int32) int32 {
	return SizeOfBPlusTreePageHeader + index*p.entrySize()
}

// KeyAt copies out the separator key at index. Index 0 holds no
// meaningful key.
func (p *BPlusTreeInternalPage) KeyAt(index int32) []byte {
	off := p.entryOffset(index)
	key := make([]byte, p.keySize)
	copy(key, p.page.Data()[off:off+p.keySize])
	return key
}

// SetKeyAt overwrites the separator key at index
func (p *BPlusTreeInternalPage) SetKeyAt(index int32, key []byte) {
	off := p.entryOffset(index)
	copy(p.page.Data()[off:off+p.keySize], key)
}

// ValueAt returns the child page id at index
func (p *BPlusTreeInternalPage) ValueAt(index int32) types.PageID {
	off := p.entryOffset(index) + p.keySize
	return types.PageID(int32(binary.LittleEndian.Uint32(p.page.Data()[off : off+4])))
}

func (p *BPlusTreeInternalPage) setValueAt(index int32, value types.PageID) {
	off := p.entryOffset(index) + p.keySize
	binary.LittleEndian.PutUint32(p.page.Data()[off:off+4], uint32(value))
}

// ValueIndex returns the position whose child id equals value, -1 when
// absent
func (p *BPlusTreeInternalPage) ValueIndex(value types.PageID) int32 {
	for i := int32(0); i < p.GetSize(); i++ {
		if p.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

func (p *BPlusTreeInternalPage) shiftEntries(from int32, delta int32) {
	data := p.page.Data()
	start := p.entryOffset(from)
	end := p.entryOffset(p.GetSize())
	if start >= end {
		return
	}
	copy(data[start+delta*p.entrySize():], data[start:end])
}

// Lookup returns the child which covers key: the child of the greatest
// separator not exceeding key
func (p *BPlusTreeInternalPage) Lookup(key []byte, comparator KeyComparator) types.PageID {
	for i := int32(1); i < p.GetSize(); i++ {
		if comparator(key, p.KeyAt(i)) < 0 {
			return p.ValueAt(i - 1)
		}
	}
	return p.ValueAt(p.GetSize() - 1)
}

// PopulateNewRoot fills a fresh root after the old root split:
// (⊥, oldChild), (key, newChild)
func (p *BPlusTreeInternalPage) PopulateNewRoot(oldChild types.PageID, key []byte, newChild types.PageID) {
	p.SetSize(2)
	p.setValueAt(0, oldChild)
	p.SetKeyAt(1, key)
	p.setValueAt(1, newChild)
}

// InsertNodeAfter inserts (key, newValue) right after the entry whose
// child id is oldValue and returns the new size
func (p *BPlusTreeInternalPage) InsertNodeAfter(oldValue types.PageID, key []byte, newValue types.PageID) int32 {
	idx := p.ValueIndex(oldValue)
	common.Assert(idx >= 0, "split sibling's left neighbor not found in parent")

	p.shiftEntries(idx+1, 1)
	p.IncreaseSize(1)
	p.SetKeyAt(idx+1, key)
	p.setValueAt(idx+1, newValue)
	return p.GetSize()
}

// Remove deletes the entry at index
func (p *BPlusTreeInternalPage) Remove(index int32) {
	common.Assert(index >= 0 && index < p.GetSize(), "internal entry index out of range")
	p.shiftEntries(index+1, -1)
	p.IncreaseSize(-1)
}

// RemoveAndReturnOnlyChild empties a root of size one and returns its
// single child.
func (p *BPlusTreeInternalPage) RemoveAndReturnOnlyChild() types.PageID {
	common.Assert(p.GetSize() == 1, "node still has more than one child")
	p.IncreaseSize(-1)
	return p.ValueAt(0)
}

// adoptChild rewrites the parent pointer of the child at index. The
// child is not latched: every path to it goes through ancestors the
// caller holds write latched, and the caller itself may be holding the
// child's latch from the descent.
func (p *BPlusTreeInternalPage) adoptChild(index int32, pool PagePool) {
	childId := p.ValueAt(index)
	childPage := pool.FetchPage(childId)
	child := CastBPlusTreePage(childPage)

	child.SetParentPageId(p.GetPageId())
	pool.UnpinPage(childId, true)
}

// MoveHalfTo moves the upper half of the entries to an empty recipient
// created during a split and re-parents every moved child. The key
// moved into recipient's slot 0 becomes the recipient's unused key; the
// tree pushes it up as the separator.
func (p *BPlusTreeInternalPage) MoveHalfTo(recipient *BPlusTreeInternalPage, pool PagePool) {
	splitAt := (p.GetMaxSize() + 1) / 2
	moved := p.GetSize() - splitAt

	src := p.page.Data()
	dst := recipient.page.Data()
	copy(dst[recipient.entryOffset(0):], src[p.entryOffset(splitAt):p.entryOffset(p.GetSize())])

	recipient.SetSize(moved)
	p.SetSize(splitAt)

	for i := int32(0); i < moved; i++ {
		recipient.adoptChild(i, pool)
	}
}

// MoveAllTo appends every entry to recipient (the left sibling) during
// a coalesce. The separator between the two nodes comes down from the
// parent as the key of this node's slot 0 entry, then the separator is
// removed. Moved children are re-parented.
func (p *BPlusTreeInternalPage) MoveAllTo(recipient *BPlusTreeInternalPage, indexInParent int32, pool PagePool) {
	parentPage := pool.FetchPage(p.GetParentPageId())
	parent := CastBPlusTreeInternalPage(parentPage, p.keySize)
	p.SetKeyAt(0, parent.KeyAt(indexInParent))

	oldSize := recipient.GetSize()
	src := p.page.Data()
	dst := recipient.page.Data()
	copy(dst[recipient.entryOffset(oldSize):], src[p.entryOffset(0):p.entryOffset(p.GetSize())])
	recipient.IncreaseSize(p.GetSize())
	p.SetSize(0)

	for i := oldSize; i < recipient.GetSize(); i++ {
		recipient.adoptChild(i, pool)
	}

	parent.Remove(indexInParent)
	pool.UnpinPage(parentPage.GetPageId(), true)
}

// MoveFirstToEndOf rotates this node's first child to the end of the
// left sibling: the parent separator comes down as the new last key of
// the recipient and this node's old second key replaces it in the
// parent
func (p *BPlusTreeInternalPage) MoveFirstToEndOf(recipient *BPlusTreeInternalPage, pool PagePool) {
	parentPage := pool.FetchPage(p.GetParentPageId())
	parent := CastBPlusTreeInternalPage(parentPage, p.keySize)
	sepIdx := parent.ValueIndex(p.GetPageId())

	recipient.IncreaseSize(1)
	recipient.SetKeyAt(recipient.GetSize()-1, parent.KeyAt(sepIdx))
	recipient.setValueAt(recipient.GetSize()-1, p.ValueAt(0))
	recipient.adoptChild(recipient.GetSize()-1, pool)

	parent.SetKeyAt(sepIdx, p.KeyAt(1))
	p.Remove(0)

	pool.UnpinPage(parentPage.GetPageId(), true)
}

// MoveLastToFrontOf rotates this node's last child to the front of the
// right sibling: the parent separator comes down as the key of the
// sibling's old first child and this node's last key replaces it in
// the parent
func (p *BPlusTreeInternalPage) MoveLastToFrontOf(recipient *BPlusTreeInternalPage, parentIndex int32, pool PagePool) {
	parentPage := pool.FetchPage(recipient.GetParentPageId())
	parent := CastBPlusTreeInternalPage(parentPage, p.keySize)

	lastKey := p.KeyAt(p.GetSize() - 1)
	lastChild := p.ValueAt(p.GetSize() - 1)

	recipient.shiftEntries(0, 1)
	recipient.IncreaseSize(1)
	recipient.SetKeyAt(1, parent.KeyAt(parentIndex))
	recipient.setValueAt(0, lastChild)
	recipient.adoptChild(0, pool)

	parent.SetKeyAt(parentIndex, lastKey)
	p.IncreaseSize(-1)

	pool.UnpinPage(parentPage.GetPageId(), true)
}
