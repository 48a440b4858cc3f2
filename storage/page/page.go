package page

import (
	"sync/atomic"

	"mizuchi/common"
	"mizuchi/types"
)

/**
 * Page is the basic unit of storage. It wraps the actual 4KB data block
 * held in a buffer pool frame together with the book-keeping used by
 * the buffer pool manager: pin count, dirty flag and page id. The
 * reader/writer latch protects the data bytes and is acquired by
 * callers, never by the buffer pool itself.
 */
type Page struct {
	id       types.PageID
	pinCount int32
	isDirty  bool
	data     *[common.PageSize]byte
	rwlatch  common.ReaderWriterLatch
}

// IncPinCount increments pin count
func (p *Page) IncPinCount() {
	atomic.AddInt32(&p.pinCount, 1)
}

// DecPinCount decrements pin count
func (p *Page) DecPinCount() {
	if atomic.LoadInt32(&p.pinCount) > 0 {
		atomic.AddInt32(&p.pinCount, -1)
	}
}

// PinCount returns the pin count
func (p *Page) PinCount() int32 {
	return atomic.LoadInt32(&p.pinCount)
}

// GetPageId returns the page id
func (p *Page) GetPageId() types.PageID {
	return p.id
}

// Data returns the bytes of the page
func (p *Page) Data() *[common.PageSize]byte {
	return p.data
}

// SetIsDirty sets the isDirty bit
func (p *Page) SetIsDirty(isDirty bool) {
	p.isDirty = isDirty
}

// IsDirty checks whether the page diverges from its on-disk image
func (p *Page) IsDirty() bool {
	return p.isDirty
}

// Copy copies data to the page's data area starting at offset
func (p *Page) Copy(offset uint32, data []byte) {
	copy(p.data[offset:], data)
}

// WLatch acquires the write latch on the page bytes
func (p *Page) WLatch() {
	p.rwlatch.WLock()
}

// WUnlatch releases the write latch
func (p *Page) WUnlatch() {
	p.rwlatch.WUnlock()
}

// RLatch acquires the read latch on the page bytes
func (p *Page) RLatch() {
	p.rwlatch.RLock()
}

// RUnlatch releases the read latch
func (p *Page) RUnlatch() {
	p.rwlatch.RUnlock()
}

// New creates a page with the supplied metadata
func New(id types.PageID, isDirty bool, data *[common.PageSize]byte) *Page {
	return &Page{id, 1, isDirty, data, common.NewRWLatch()}
}

// NewEmpty creates a zero filled page, pinned once
func NewEmpty(id types.PageID) *Page {
	return &Page{id, 1, false, &[common.PageSize]byte{}, common.NewRWLatch()}
}
