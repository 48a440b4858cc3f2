package buffer

import (
	"github.com/sasha-s/go-deadlock"

	"mizuchi/common"
	"mizuchi/container/hash"
	"mizuchi/errors"
	"mizuchi/storage/disk"
	"mizuchi/storage/page"
	"mizuchi/types"
)

const ErrPageNotFound = errors.Error("could not find page")
const ErrPagePinned = errors.Error("page is still pinned")

// BufferPoolManager manages the fixed set of frames caching disk pages.
// The pool latch serializes page table, free list and replacer
// mutations; disk I/O may happen while it is held.
type BufferPoolManager struct {
	diskManager disk.DiskManager
	pages       []*page.Page // index is FrameID
	replacer    *LRUReplacer
	freeList    []FrameID
	pageTable   *hash.ExtendibleHash[types.PageID, FrameID]
	mutex       deadlock.Mutex
}

// FetchPage pins the requested page, reading it from disk when it is
// not resident. Returns nil when every frame is pinned.
func (b *BufferPoolManager) FetchPage(pageID types.PageID) *page.Page {
	b.mutex.Lock()
	// if it is on buffer pool return it
	if frameID, ok := b.pageTable.Find(pageID); ok {
		pg := b.pages[frameID]
		pg.IncPinCount()
		b.replacer.Erase(frameID)
		b.mutex.Unlock()
		return pg
	}

	// get a frame from free list or from replacer
	frameID, ok := b.getFrameID()
	if !ok {
		b.mutex.Unlock()
		return nil
	}

	b.evictFrame(frameID)

	data := make([]byte, common.PageSize)
	err := b.diskManager.ReadPage(pageID, data)
	if err != nil {
		common.LogPrintf(common.ERROR, "read of page %d failed: %v\n", pageID, err)
		b.freeList = append(b.freeList, frameID)
		b.mutex.Unlock()
		return nil
	}
	var pageData [common.PageSize]byte
	copy(pageData[:], data)
	pg := page.New(pageID, false, &pageData)
	b.pageTable.Insert(pageID, frameID)
	b.pages[frameID] = pg

	b.mutex.Unlock()
	return pg
}

// UnpinPage releases one pin of the target page, handing the frame to
// the replacer when no pins remain. isDirty is ORed into the frame's
// dirty flag.
func (b *BufferPoolManager) UnpinPage(pageID types.PageID, isDirty bool) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if frameID, ok := b.pageTable.Find(pageID); ok {
		pg := b.pages[frameID]
		if pg.PinCount() <= 0 {
			return ErrPageNotFound
		}
		pg.DecPinCount()

		if pg.PinCount() == 0 {
			b.replacer.Insert(frameID)
		}

		if isDirty {
			pg.SetIsDirty(true)
		}

		return nil
	}

	return ErrPageNotFound
}

// FlushPage writes the target page to disk and clears its dirty flag
func (b *BufferPoolManager) FlushPage(pageID types.PageID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.flushPage(pageID)
}

func (b *BufferPoolManager) flushPage(pageID types.PageID) bool {
	if pageID == types.InvalidPageID {
		return false
	}

	if frameID, ok := b.pageTable.Find(pageID); ok {
		pg := b.pages[frameID]
		data := pg.Data()
		err := b.diskManager.WritePage(pageID, data[:])
		if err != nil {
			common.LogPrintf(common.ERROR, "flush of page %d failed: %v\n", pageID, err)
		}
		pg.SetIsDirty(false)

		return true
	}

	return false
}

// NewPage allocates a fresh disk page into a frame and pins it.
// Returns nil when every frame is pinned.
func (b *BufferPoolManager) NewPage() *page.Page {
	b.mutex.Lock()

	frameID, ok := b.getFrameID()
	if !ok {
		b.mutex.Unlock()
		return nil
	}

	b.evictFrame(frameID)

	pageID := b.diskManager.AllocatePage()
	pg := page.NewEmpty(pageID)

	b.pageTable.Insert(pageID, frameID)
	b.pages[frameID] = pg

	b.mutex.Unlock()
	return pg
}

// DeletePage drops the target page from the pool and hands its id back
// to the disk manager. A resident page must be unpinned first.
func (b *BufferPoolManager) DeletePage(pageID types.PageID) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if frameID, ok := b.pageTable.Find(pageID); ok {
		pg := b.pages[frameID]

		if pg.PinCount() > 0 {
			return ErrPagePinned
		}

		b.pageTable.Remove(pageID)
		b.replacer.Erase(frameID)
		b.pages[frameID] = nil
		b.freeList = append(b.freeList, frameID)
	}

	b.diskManager.DeallocatePage(pageID)
	return nil
}

// FlushAllPages flushes every resident page to disk
func (b *BufferPoolManager) FlushAllPages() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, pg := range b.pages {
		if pg != nil {
			b.flushPage(pg.GetPageId())
		}
	}
}

// GetPinnedFrameNum counts the frames currently pinned. The tree tests
// use it to prove that no operation leaks a pin.
func (b *BufferPoolManager) GetPinnedFrameNum() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ret := 0
	for _, pg := range b.pages {
		if pg != nil && pg.PinCount() > 0 {
			ret++
		}
	}
	return ret
}

// GetDirtyFrameNum counts the frames whose bytes diverge from disk
func (b *BufferPoolManager) GetDirtyFrameNum() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ret := 0
	for _, pg := range b.pages {
		if pg != nil && pg.IsDirty() {
			ret++
		}
	}
	return ret
}

// GetPoolSize returns the number of frames
func (b *BufferPoolManager) GetPoolSize() int {
	return len(b.pages)
}

// evictFrame writes back the frame's current page when dirty and drops
// it from the page table
func (b *BufferPoolManager) evictFrame(frameID FrameID) {
	currentPage := b.pages[frameID]
	if currentPage != nil {
		if currentPage.IsDirty() {
			data := currentPage.Data()
			err := b.diskManager.WritePage(currentPage.GetPageId(), data[:])
			if err != nil {
				common.LogPrintf(common.ERROR, "write back of page %d failed: %v\n", currentPage.GetPageId(), err)
			}
		}

		b.pageTable.Remove(currentPage.GetPageId())
		b.pages[frameID] = nil
	}
}

func (b *BufferPoolManager) getFrameID() (FrameID, bool) {
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, true
	}

	return b.replacer.Victim()
}

// NewBufferPoolManager returns an empty buffer pool manager of poolSize
// frames
func NewBufferPoolManager(poolSize uint32, diskManager disk.DiskManager) *BufferPoolManager {
	freeList := make([]FrameID, poolSize)
	pages := make([]*page.Page, poolSize)
	for i := uint32(0); i < poolSize; i++ {
		freeList[i] = FrameID(i)
		pages[i] = nil
	}

	replacer := NewLRUReplacer()
	pageTable := hash.NewExtendibleHash[types.PageID, FrameID](common.BucketSize, func(id types.PageID) uint32 {
		return hash.GenHashMurMur(id.Serialize())
	})
	return &BufferPoolManager{diskManager, pages, replacer, freeList, pageTable, deadlock.Mutex{}}
}
