package buffer

import (
	"crypto/rand"
	"testing"

	"mizuchi/common"
	"mizuchi/storage/disk"
	"mizuchi/storage/page"
	testingpkg "mizuchi/testing"
	"mizuchi/types"
)

func TestBinaryData(t *testing.T) {
	poolSize := uint32(10)

	dm := disk.NewDiskManagerTest()
	defer dm.ShutDown()
	bpm := NewBufferPoolManager(poolSize, dm)

	page0 := bpm.NewPage()

	// Scenario: The buffer pool is empty. We should be able to create a new page.
	// Page 0 is reserved for the header, so ids start at 1.
	testingpkg.Equals(t, types.PageID(1), page0.GetPageId())

	// Generate random binary data
	randomBinaryData := make([]byte, common.PageSize)
	rand.Read(randomBinaryData)

	// Insert terminal characters both in the middle and at end
	randomBinaryData[common.PageSize/2] = '0'
	randomBinaryData[common.PageSize-1] = '0'

	var fixedRandomBinaryData [common.PageSize]byte
	copy(fixedRandomBinaryData[:], randomBinaryData[:common.PageSize])

	// Scenario: Once we have a page, we should be able to read and write content.
	page0.Copy(0, randomBinaryData)
	testingpkg.Equals(t, fixedRandomBinaryData, *page0.Data())

	// Scenario: We should be able to create new pages until we fill up the buffer pool.
	for i := uint32(1); i < poolSize; i++ {
		p := bpm.NewPage()
		testingpkg.Equals(t, types.PageID(i+1), p.GetPageId())
	}

	// Scenario: Once the buffer pool is full, we should not be able to create any new pages.
	for i := poolSize; i < poolSize*2; i++ {
		testingpkg.Equals(t, (*page.Page)(nil), bpm.NewPage())
	}

	// Scenario: After unpinning pages {1, 2, 3, 4, 5} and pinning another 4 new pages,
	// there would still be one cache frame left for reading page 1.
	for i := 1; i <= 5; i++ {
		testingpkg.Ok(t, bpm.UnpinPage(types.PageID(i), true))
		bpm.FlushPage(types.PageID(i))
	}
	for i := 0; i < 4; i++ {
		p := bpm.NewPage()
		bpm.UnpinPage(p.GetPageId(), false)
	}

	// Scenario: We should be able to fetch the data we wrote a while ago.
	page0 = bpm.FetchPage(types.PageID(1))
	testingpkg.Equals(t, fixedRandomBinaryData, *page0.Data())
	testingpkg.Ok(t, bpm.UnpinPage(types.PageID(1), true))
}

func TestSample(t *testing.T) {
	poolSize := uint32(10)

	dm := disk.NewDiskManagerTest()
	defer dm.ShutDown()
	bpm := NewBufferPoolManager(poolSize, dm)

	page0 := bpm.NewPage()

	// Scenario: The buffer pool is empty. We should be able to create a new page.
	testingpkg.Equals(t, types.PageID(1), page0.GetPageId())

	// Scenario: Once we have a page, we should be able to read and write content.
	page0.Copy(0, []byte("Hello"))
	testingpkg.Equals(t, [common.PageSize]byte{'H', 'e', 'l', 'l', 'o'}, *page0.Data())

	// Scenario: We should be able to create new pages until we fill up the buffer pool.
	for i := uint32(1); i < poolSize; i++ {
		p := bpm.NewPage()
		testingpkg.Equals(t, types.PageID(i+1), p.GetPageId())
	}

	// Scenario: Once the buffer pool is full, we should not be able to create any new pages.
	for i := poolSize; i < poolSize*2; i++ {
		testingpkg.Equals(t, (*page.Page)(nil), bpm.NewPage())
	}

	// Scenario: After unpinning pages {1, 2, 3, 4, 5} and pinning another 4 new pages,
	// there would still be one cache frame left for reading page 1.
	for i := 1; i <= 5; i++ {
		testingpkg.Ok(t, bpm.UnpinPage(types.PageID(i), true))
		bpm.FlushPage(types.PageID(i))
	}
	for i := 0; i < 4; i++ {
		bpm.NewPage()
	}
	// Scenario: We should be able to fetch the data we wrote a while ago.
	page0 = bpm.FetchPage(types.PageID(1))
	testingpkg.Equals(t, [common.PageSize]byte{'H', 'e', 'l', 'l', 'o'}, *page0.Data())

	// Scenario: If we unpin page 1 and then make a new page, all the buffer pages should
	// now be pinned. Fetching page 1 should fail.
	testingpkg.Ok(t, bpm.UnpinPage(types.PageID(1), true))

	testingpkg.Equals(t, types.PageID(15), bpm.NewPage().GetPageId())
	testingpkg.Equals(t, (*page.Page)(nil), bpm.NewPage())
	testingpkg.Equals(t, (*page.Page)(nil), bpm.FetchPage(types.PageID(1)))
}

func TestUnpinMisuse(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	defer dm.ShutDown()
	bpm := NewBufferPoolManager(3, dm)

	p := bpm.NewPage()
	testingpkg.Ok(t, bpm.UnpinPage(p.GetPageId(), false))

	// double unpin and unpin of an unknown page are refused
	testingpkg.NotOk(t, bpm.UnpinPage(p.GetPageId(), false))
	testingpkg.NotOk(t, bpm.UnpinPage(types.PageID(4242), false))
}

func TestDeletePage(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	defer dm.ShutDown()
	bpm := NewBufferPoolManager(3, dm)

	p := bpm.NewPage()
	pageId := p.GetPageId()

	// a pinned page cannot be deleted
	testingpkg.NotOk(t, bpm.DeletePage(pageId))

	testingpkg.Ok(t, bpm.UnpinPage(pageId, true))
	testingpkg.Ok(t, bpm.DeletePage(pageId))

	// deleting a page which is not resident still succeeds
	testingpkg.Ok(t, bpm.DeletePage(types.PageID(4242)))
}

// LRU eviction order: with a pool of two frames and pages A and B
// touched in order, bringing in C evicts A, and B is still a cache hit
// afterwards.
func TestLRUEvictionOrder(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	defer dm.ShutDown()
	bpm := NewBufferPoolManager(2, dm)

	pageA := bpm.NewPage()
	idA := pageA.GetPageId()
	pageA.Copy(0, []byte("A"))
	testingpkg.Ok(t, bpm.UnpinPage(idA, true))

	pageB := bpm.NewPage()
	idB := pageB.GetPageId()
	pageB.Copy(0, []byte("B"))
	testingpkg.Ok(t, bpm.UnpinPage(idB, true))

	// touch C: evicts A (the least recently unpinned)
	pageC := bpm.NewPage()
	idC := pageC.GetPageId()
	testingpkg.Ok(t, bpm.UnpinPage(idC, false))

	// B must still be resident: fetching it is a cache hit and evicting
	// nothing dirty means no extra write
	writesBefore := dm.GetNumWrites()
	pageB2 := bpm.FetchPage(idB)
	testingpkg.Equals(t, idB, pageB2.GetPageId())
	testingpkg.Equals(t, byte('B'), pageB2.Data()[0])
	testingpkg.Equals(t, writesBefore, dm.GetNumWrites())
	testingpkg.Ok(t, bpm.UnpinPage(idB, false))

	// A went to disk and comes back with its bytes intact
	pageA2 := bpm.FetchPage(idA)
	testingpkg.Equals(t, byte('A'), pageA2.Data()[0])
	testingpkg.Ok(t, bpm.UnpinPage(idA, false))
}

func TestFlushAllPages(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	defer dm.ShutDown()
	bpm := NewBufferPoolManager(5, dm)

	ids := make([]types.PageID, 0)
	for i := 0; i < 5; i++ {
		p := bpm.NewPage()
		p.Copy(0, []byte{byte('a' + i)})
		ids = append(ids, p.GetPageId())
		testingpkg.Ok(t, bpm.UnpinPage(p.GetPageId(), true))
	}

	bpm.FlushAllPages()

	for _, id := range ids {
		p := bpm.FetchPage(id)
		testingpkg.Equals(t, false, p.IsDirty())
		testingpkg.Ok(t, bpm.UnpinPage(id, false))
	}
}
