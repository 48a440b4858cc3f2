package page

import (
	"unsafe"

	"mizuchi/common"
	"mizuchi/types"
)

// IndexPageType discriminates the typed views of a tree node page
type IndexPageType int32

const (
	InvalidIndexPage IndexPageType = iota
	LeafPage
	InternalPage
)

const (
	// common node header: type(4) size(4) maxSize(4) parent(4) id(4)
	SizeOfBPlusTreePageHeader = 20
	// leaf header adds nextPageId(4)
	SizeOfBPlusTreeLeafPageHeader = 24
	// leaf values are RIDs: pageId(4) + slot(4)
	SizeOfLeafValue = 8
	// internal values are child page ids
	SizeOfInternalValue = 4
)

// PagePool is the slice of the buffer pool the node operations need
// when they have to touch a related page (a parent during separator
// maintenance, a child during re-parenting). Satisfied by
// buffer.BufferPoolManager.
type PagePool interface {
	FetchPage(pageID types.PageID) *Page
	UnpinPage(pageID types.PageID, isDirty bool) error
}

type bPlusTreePageHeader struct {
	pageType     IndexPageType
	size         int32
	maxSize      int32
	parentPageId types.PageID
	pageId       types.PageID
}

type bPlusTreeLeafPageHeader struct {
	bPlusTreePageHeader
	nextPageId types.PageID
}

/**
 * BPlusTreePage is the header view shared by leaf and internal nodes.
 * It does not own the bytes: it aliases the data of a pinned frame, so
 * it is valid only while the caller holds the pin.
 */
type BPlusTreePage struct {
	page *Page
	hdr  *bPlusTreePageHeader
}

// CastBPlusTreePage interprets the bytes of a pinned page as a tree
// node header
func CastBPlusTreePage(page *Page) *BPlusTreePage {
	return &BPlusTreePage{page, (*bPlusTreePageHeader)(unsafe.Pointer(page.Data()))}
}

// GetPage returns the underlying frame
func (p *BPlusTreePage) GetPage() *Page {
	return p.page
}

func (p *BPlusTreePage) IsLeafPage() bool {
	return p.hdr.pageType == LeafPage
}

func (p *BPlusTreePage) IsRootPage() bool {
	return p.hdr.parentPageId == types.InvalidPageID
}

func (p *BPlusTreePage) SetPageType(pageType IndexPageType) {
	p.hdr.pageType = pageType
}

func (p *BPlusTreePage) GetPageType() IndexPageType {
	return p.hdr.pageType
}

// GetSize returns the number of key/value pairs stored in the node
func (p *BPlusTreePage) GetSize() int32 {
	return p.hdr.size
}

func (p *BPlusTreePage) SetSize(size int32) {
	p.hdr.size = size
}

func (p *BPlusTreePage) IncreaseSize(amount int32) {
	p.hdr.size += amount
}

// GetMaxSize returns the node capacity
func (p *BPlusTreePage) GetMaxSize() int32 {
	return p.hdr.maxSize
}

func (p *BPlusTreePage) SetMaxSize(size int32) {
	p.hdr.maxSize = size
}

// GetMinSize returns the occupancy floor. The root is exempt from the
// half-full rule; it only needs one entry (two children when internal).
func (p *BPlusTreePage) GetMinSize() int32 {
	if p.IsRootPage() {
		if p.IsLeafPage() {
			return 1
		}
		return 2
	}
	return (p.hdr.maxSize + 1) / 2
}

func (p *BPlusTreePage) GetParentPageId() types.PageID {
	return p.hdr.parentPageId
}

func (p *BPlusTreePage) SetParentPageId(parentPageId types.PageID) {
	p.hdr.parentPageId = parentPageId
}

func (p *BPlusTreePage) GetPageId() types.PageID {
	return p.hdr.pageId
}

func (p *BPlusTreePage) SetPageId(pageId types.PageID) {
	p.hdr.pageId = pageId
}

func leafPageHeader(page *Page) *bPlusTreeLeafPageHeader {
	return (*bPlusTreeLeafPageHeader)(unsafe.Pointer(page.Data()))
}

func leafMaxSize(keySize int32) int32 {
	return (common.PageSize-SizeOfBPlusTreeLeafPageHeader)/(keySize+SizeOfLeafValue) - 1
}

func internalMaxSize(keySize int32) int32 {
	return (common.PageSize-SizeOfBPlusTreePageHeader)/(keySize+SizeOfInternalValue) - 1
}
