package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mizuchi/storage/buffer"
	"mizuchi/storage/disk"
	"mizuchi/storage/page"
	"mizuchi/types"
)

const testKeySize = int32(8)

func newTestPool(poolSize uint32) *buffer.BufferPoolManager {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	return buffer.NewBufferPoolManager(poolSize, dm)
}

// a tree with tiny nodes so structural changes happen within a handful
// of keys: leaves overflow past three entries, internal nodes past
// three children
func newSmallTree(bpm *buffer.BufferPoolManager, name string) *BPlusTree {
	return NewBPlusTreeWithMaxSizes(name, bpm, nil, testKeySize, 3, 3)
}

func intKey(v uint64) []byte {
	return Uint64ToKey(v, testKeySize)
}

func intRID(v uint64) page.RID {
	return page.NewRID(types.PageID(int32(v)), uint32(v))
}

func insertMany(t *testing.T, tree *BPlusTree, keys []uint64) {
	for _, k := range keys {
		require.True(t, tree.Insert(intKey(k), intRID(k), nil), "insert of %d failed", k)
	}
}

// collectKeys drains an iterator into the integer keys it yields
func collectKeys(it *IndexIterator) []uint64 {
	ret := []uint64{}
	for !it.IsEnd() {
		key, _ := it.Current()
		ret = append(ret, KeyToUint64(key))
		it.Next()
	}
	return ret
}

func TestEmptyTreeGet(t *testing.T) {
	bpm := newTestPool(10)
	tree := newSmallTree(bpm, "empty_tree")

	assert.True(t, tree.IsEmpty())
	assert.Empty(t, tree.GetValue(intKey(42), nil))
	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}

func TestInsertMakesRootLeaf(t *testing.T) {
	bpm := newTestPool(10)
	tree := newSmallTree(bpm, "root_leaf")

	require.True(t, tree.Insert(intKey(10), page.NewRID(0, 0), nil))
	assert.False(t, tree.IsEmpty())

	values := tree.GetValue(intKey(10), nil)
	require.Len(t, values, 1)
	assert.Equal(t, types.PageID(0), values[0].GetPageId())
	assert.Equal(t, uint32(0), values[0].GetSlot())

	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}

func TestInsertSplitsRootLeaf(t *testing.T) {
	bpm := newTestPool(10)
	tree := newSmallTree(bpm, "leaf_split")

	insertMany(t, tree, []uint64{1, 2, 3})

	// three keys still fit in the root leaf
	rootPage := bpm.FetchPage(tree.GetRootPageId())
	root := page.CastBPlusTreePage(rootPage)
	assert.True(t, root.IsLeafPage())
	assert.Equal(t, int32(3), root.GetSize())
	require.NoError(t, bpm.UnpinPage(rootPage.GetPageId(), false))

	// the fourth key splits the root
	insertMany(t, tree, []uint64{4})

	rootPage = bpm.FetchPage(tree.GetRootPageId())
	require.NotNil(t, rootPage)
	rootInner := page.CastBPlusTreeInternalPage(rootPage, testKeySize)
	require.False(t, rootInner.IsLeafPage())
	require.Equal(t, int32(2), rootInner.GetSize())

	leftPage := bpm.FetchPage(rootInner.ValueAt(0))
	rightPage := bpm.FetchPage(rootInner.ValueAt(1))
	left := page.CastBPlusTreeLeafPage(leftPage, testKeySize)
	right := page.CastBPlusTreeLeafPage(rightPage, testKeySize)

	assert.Equal(t, int32(2), left.GetSize())
	assert.Equal(t, uint64(1), KeyToUint64(left.KeyAt(0)))
	assert.Equal(t, uint64(2), KeyToUint64(left.KeyAt(1)))
	assert.Equal(t, int32(2), right.GetSize())
	assert.Equal(t, uint64(3), KeyToUint64(right.KeyAt(0)))
	assert.Equal(t, uint64(4), KeyToUint64(right.KeyAt(1)))

	// sibling chain: left -> right -> nothing
	assert.Equal(t, right.GetPageId(), left.GetNextPageId())
	assert.Equal(t, types.InvalidPageID, right.GetNextPageId())

	require.NoError(t, bpm.UnpinPage(leftPage.GetPageId(), false))
	require.NoError(t, bpm.UnpinPage(rightPage.GetPageId(), false))
	require.NoError(t, bpm.UnpinPage(rootPage.GetPageId(), false))

	assert.Equal(t, []uint64{1, 2, 3, 4}, collectKeys(tree.Begin()))
	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}

func TestDuplicateInsertRejected(t *testing.T) {
	bpm := newTestPool(10)
	tree := newSmallTree(bpm, "duplicates")

	insertMany(t, tree, []uint64{1, 2, 3, 4})

	assert.False(t, tree.Insert(intKey(3), intRID(99), nil))

	// tree unchanged
	values := tree.GetValue(intKey(3), nil)
	require.Len(t, values, 1)
	assert.Equal(t, intRID(3), values[0])
	assert.Equal(t, []uint64{1, 2, 3, 4}, collectKeys(tree.Begin()))
	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}

func TestRemoveCoalescesIntoRootLeaf(t *testing.T) {
	bpm := newTestPool(10)
	tree := newSmallTree(bpm, "coalesce")

	// the split tree of the insert scenario: root with leaves {1,2} and {3,4}
	insertMany(t, tree, []uint64{1, 2, 3, 4})

	tree.Remove(intKey(1), nil)

	// 2 and {3,4} merge back into a single root leaf
	rootPage := bpm.FetchPage(tree.GetRootPageId())
	root := page.CastBPlusTreeLeafPage(rootPage, testKeySize)
	require.True(t, root.IsLeafPage())
	assert.Equal(t, int32(3), root.GetSize())
	assert.Equal(t, types.InvalidPageID, root.GetNextPageId())
	require.NoError(t, bpm.UnpinPage(rootPage.GetPageId(), false))

	assert.Equal(t, []uint64{2, 3, 4}, collectKeys(tree.Begin()))
	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}

func TestRemoveRedistributesFromRightSibling(t *testing.T) {
	bpm := newTestPool(10)
	tree := NewBPlusTreeWithMaxSizes("redistribute", bpm, nil, testKeySize, 4, 4)

	// leaves after the split of 1..5: {1,2} and {3,4,5}; 6 fills the right one
	insertMany(t, tree, []uint64{1, 2, 3, 4, 5, 6})

	// {2} underflows; the right sibling holds four entries, so one is
	// borrowed instead of merging
	tree.Remove(intKey(1), nil)

	assert.Equal(t, []uint64{2, 3, 4, 5, 6}, collectKeys(tree.Begin()))

	rootPage := bpm.FetchPage(tree.GetRootPageId())
	rootInner := page.CastBPlusTreeInternalPage(rootPage, testKeySize)
	require.False(t, rootInner.IsLeafPage())
	require.Equal(t, int32(2), rootInner.GetSize())
	// the separator moved up to the new boundary key
	assert.Equal(t, uint64(4), KeyToUint64(rootInner.KeyAt(1)))

	leftPage := bpm.FetchPage(rootInner.ValueAt(0))
	left := page.CastBPlusTreeLeafPage(leftPage, testKeySize)
	assert.Equal(t, int32(2), left.GetSize())
	assert.Equal(t, uint64(2), KeyToUint64(left.KeyAt(0)))
	assert.Equal(t, uint64(3), KeyToUint64(left.KeyAt(1)))

	require.NoError(t, bpm.UnpinPage(leftPage.GetPageId(), false))
	require.NoError(t, bpm.UnpinPage(rootPage.GetPageId(), false))
	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}

func TestRemoveUntilEmpty(t *testing.T) {
	bpm := newTestPool(10)
	tree := newSmallTree(bpm, "drain")

	insertMany(t, tree, []uint64{1, 2, 3, 4, 5})
	for _, k := range []uint64{3, 1, 5, 2, 4} {
		tree.Remove(intKey(k), nil)
		assert.Equal(t, 0, bpm.GetPinnedFrameNum())
	}

	assert.True(t, tree.IsEmpty())
	assert.Equal(t, types.InvalidPageID, tree.GetRootPageId())
	assert.Empty(t, tree.GetValue(intKey(3), nil))
}

func TestIterator(t *testing.T) {
	bpm := newTestPool(32)
	tree := newSmallTree(bpm, "iterator")

	keys := []uint64{}
	for v := uint64(10); v <= 300; v += 10 {
		keys = append(keys, v)
	}
	rand.New(rand.NewSource(7)).Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	insertMany(t, tree, keys)

	// full scan comes back sorted
	got := collectKeys(tree.Begin())
	require.Len(t, got, 30)
	for i, v := range got {
		assert.Equal(t, uint64((i+1)*10), v)
	}

	// a scan from a key between entries starts at the next larger key
	it := tree.BeginFrom(intKey(55))
	require.False(t, it.IsEnd())
	key, _ := it.Current()
	assert.Equal(t, uint64(60), KeyToUint64(key))
	it.Close()

	// a scan from an existing key starts on it
	it = tree.BeginFrom(intKey(150))
	key, rid := it.Current()
	assert.Equal(t, uint64(150), KeyToUint64(key))
	assert.Equal(t, intRID(150), rid)
	it.Close()

	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}

func TestRandomRoundTrip(t *testing.T) {
	bpm := newTestPool(64)
	tree := newSmallTree(bpm, "round_trip")

	r := rand.New(rand.NewSource(42))
	n := 500

	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i + 1)
	}
	r.Shuffle(n, func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	for _, k := range keys {
		require.True(t, tree.Insert(intKey(k), intRID(k), nil))
		require.Equal(t, 0, bpm.GetPinnedFrameNum(), "pin leaked after insert of %d", k)
	}

	// coverage: every inserted key is found, a missing key is not
	for _, k := range keys {
		values := tree.GetValue(intKey(k), nil)
		require.Len(t, values, 1, "key %d lost", k)
		require.Equal(t, intRID(k), values[0])
	}
	assert.Empty(t, tree.GetValue(intKey(uint64(n+1)), nil))

	// sorted leaves
	got := collectKeys(tree.Begin())
	require.Len(t, got, n)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i], "scan out of order at %d", i)
	}

	// remove everything in a different random order
	r.Shuffle(n, func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for _, k := range keys {
		tree.Remove(intKey(k), nil)
		require.Equal(t, 0, bpm.GetPinnedFrameNum(), "pin leaked after remove of %d", k)
	}

	assert.True(t, tree.IsEmpty())
	assert.Equal(t, types.InvalidPageID, tree.GetRootPageId())

	bpm.FlushAllPages()
	assert.Equal(t, 0, bpm.GetDirtyFrameNum())
}

// every root-to-leaf path has the same length and every non-root node
// respects the occupancy bounds
func TestBalanceAndOccupancy(t *testing.T) {
	bpm := newTestPool(64)
	tree := newSmallTree(bpm, "balance")

	r := rand.New(rand.NewSource(11))
	keys := make([]uint64, 300)
	for i := range keys {
		keys[i] = uint64(i + 1)
	}
	r.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	insertMany(t, tree, keys)

	depths := map[int]bool{}
	var walk func(pageId types.PageID, depth int, isRoot bool)
	walk = func(pageId types.PageID, depth int, isRoot bool) {
		pg := bpm.FetchPage(pageId)
		require.NotNil(t, pg)
		node := page.CastBPlusTreePage(pg)

		if !isRoot {
			require.GreaterOrEqual(t, node.GetSize(), node.GetMinSize())
			require.LessOrEqual(t, node.GetSize(), node.GetMaxSize())
		}

		if node.IsLeafPage() {
			depths[depth] = true
		} else {
			inner := page.CastBPlusTreeInternalPage(pg, testKeySize)
			for i := int32(0); i < inner.GetSize(); i++ {
				walk(inner.ValueAt(i), depth+1, false)
			}
		}
		require.NoError(t, bpm.UnpinPage(pageId, false))
	}
	walk(tree.GetRootPageId(), 0, true)

	assert.Len(t, depths, 1, "leaves found at differing depths")
	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}

func TestReopenByName(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("reopen.db")
	bpm := buffer.NewBufferPoolManager(32, dm)
	tree := newSmallTree(bpm, "reopened_index")

	insertMany(t, tree, []uint64{1, 2, 3, 4, 5, 6, 7, 8})
	bpm.FlushAllPages()

	// a handle opened over a cold buffer pool adopts the root persisted
	// in the header page and finds every entry back on disk
	bpm2 := buffer.NewBufferPoolManager(32, dm)
	tree2 := NewBPlusTreeWithMaxSizes("reopened_index", bpm2, nil, testKeySize, 3, 3)
	assert.Equal(t, tree.GetRootPageId(), tree2.GetRootPageId())

	values := tree2.GetValue(intKey(5), nil)
	require.Len(t, values, 1)
	assert.Equal(t, intRID(5), values[0])
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, collectKeys(tree2.Begin()))
}

// two indexes share the buffer pool and the header page without
// stepping on each other's root records
func TestTwoIndexesShareHeaderPage(t *testing.T) {
	bpm := newTestPool(32)
	treeA := newSmallTree(bpm, "index_a")
	treeB := newSmallTree(bpm, "index_b")

	insertMany(t, treeA, []uint64{1, 2, 3, 4})
	insertMany(t, treeB, []uint64{101, 102, 103, 104})

	assert.NotEqual(t, treeA.GetRootPageId(), treeB.GetRootPageId())
	assert.Equal(t, []uint64{1, 2, 3, 4}, collectKeys(treeA.Begin()))
	assert.Equal(t, []uint64{101, 102, 103, 104}, collectKeys(treeB.Begin()))
	assert.Equal(t, 0, bpm.GetPinnedFrameNum())
}
