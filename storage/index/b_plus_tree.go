package index

import (
	"mizuchi/common"
	"mizuchi/storage/access"
	"mizuchi/storage/buffer"
	"mizuchi/storage/page"
	"mizuchi/types"
)

type latchOp int

const (
	opGet latchOp = iota
	opInsert
	opDelete
)

/**
 * BPlusTree is a unique-key B+ tree whose nodes live in buffer pool
 * pages. Point lookups and scans descend under read latches, inserts
 * and deletes under write latches with latch crabbing: an ancestor's
 * latch is released as soon as the child is safe for the operation.
 * The root page id is persisted in the header page under the index
 * name, so an index can be reopened after a restart.
 */
type BPlusTree struct {
	indexName  string
	rootPageId types.PageID
	bpm        *buffer.BufferPoolManager
	comparator page.KeyComparator
	keySize    int32
	// node capacity overrides; zero derives capacity from the page size
	leafMaxSize     int32
	internalMaxSize int32
	// guards rootPageId; behaves as the latch of a virtual parent of
	// the root node during crabbing
	rootLatch common.ReaderWriterLatch
}

// NewBPlusTree opens the index named name, adopting the root recorded
// in the header page when the name is known and registering a fresh
// empty index otherwise. comparator may be nil, selecting bytewise
// order.
func NewBPlusTree(name string, bpm *buffer.BufferPoolManager, comparator page.KeyComparator, keySize int32) *BPlusTree {
	return NewBPlusTreeWithMaxSizes(name, bpm, comparator, keySize, 0, 0)
}

// NewBPlusTreeWithMaxSizes opens an index with explicit node
// capacities in place of the page-size derived ones. Small capacities
// make split and merge reachable with a handful of keys, which the
// tests rely on.
func NewBPlusTreeWithMaxSizes(name string, bpm *buffer.BufferPoolManager, comparator page.KeyComparator, keySize int32, leafMaxSize int32, internalMaxSize int32) *BPlusTree {
	common.Assert(ValidKeySize(keySize), "unsupported key width")

	if comparator == nil {
		comparator = NewGenericKeyComparator(keySize)
	}

	tree := &BPlusTree{
		indexName:       name,
		rootPageId:      types.InvalidPageID,
		bpm:             bpm,
		comparator:      comparator,
		keySize:         keySize,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootLatch:       common.NewRWLatch(),
	}

	headerPage := bpm.FetchPage(common.HeaderPageID)
	common.Assert(headerPage != nil, "could not fetch the header page")
	headerPage.WLatch()
	header := page.CastHeaderPage(headerPage)
	if rootId, ok := header.GetRootId(name); ok {
		tree.rootPageId = rootId
		headerPage.WUnlatch()
		bpm.UnpinPage(common.HeaderPageID, false)
	} else {
		header.InsertRecord(name, types.InvalidPageID)
		headerPage.WUnlatch()
		bpm.UnpinPage(common.HeaderPageID, true)
	}

	return tree
}

// IsEmpty reports whether the tree holds no entries
func (t *BPlusTree) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageId == types.InvalidPageID
}

// GetRootPageId returns the current root page id, InvalidPageID when
// the tree is empty
func (t *BPlusTree) GetRootPageId() types.PageID {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageId
}

// updateRootPageId persists the current root page id into the header
// page record of this index. Callers hold the root latch in write
// mode.
func (t *BPlusTree) updateRootPageId() {
	headerPage := t.bpm.FetchPage(common.HeaderPageID)
	common.Assert(headerPage != nil, "could not fetch the header page")
	headerPage.WLatch()
	header := page.CastHeaderPage(headerPage)
	header.UpdateRecord(t.indexName, t.rootPageId)
	headerPage.WUnlatch()
	t.bpm.UnpinPage(common.HeaderPageID, true)
}

func (t *BPlusTree) initLeaf(pg *page.Page, parent types.PageID) *page.BPlusTreeLeafPage {
	leaf := page.InitBPlusTreeLeafPage(pg, pg.GetPageId(), parent, t.keySize)
	if t.leafMaxSize > 0 {
		leaf.SetMaxSize(t.leafMaxSize)
	}
	return leaf
}

func (t *BPlusTree) initInternal(pg *page.Page, parent types.PageID) *page.BPlusTreeInternalPage {
	inner := page.InitBPlusTreeInternalPage(pg, pg.GetPageId(), parent, t.keySize)
	if t.internalMaxSize > 0 {
		inner.SetMaxSize(t.internalMaxSize)
	}
	return inner
}

/*****************************************************************************
 * SEARCH
 *****************************************************************************/

// GetValue returns the record ids stored under key; at most one, keys
// being unique. txn may be nil.
func (t *BPlusTree) GetValue(key []byte, txn *access.Transaction) []page.RID {
	t.rootLatch.RLock()
	if t.rootPageId == types.InvalidPageID {
		t.rootLatch.RUnlock()
		return []page.RID{}
	}

	leafPage := t.findLeafPageForRead(key, false)
	leaf := page.CastBPlusTreeLeafPage(leafPage, t.keySize)

	result := []page.RID{}
	if rid, ok := leaf.Lookup(key, t.comparator); ok {
		result = append(result, rid)
	}

	leafPage.RUnlatch()
	t.bpm.UnpinPage(leafPage.GetPageId(), false)

	return result
}

// findLeafPageForRead descends to the leaf covering key (the leftmost
// leaf when leftMost is set) under read-latch crabbing. The caller
// holds the root latch in read mode; it is released once the root page
// is latched. The returned leaf is pinned and read latched.
func (t *BPlusTree) findLeafPageForRead(key []byte, leftMost bool) *page.Page {
	currentPage := t.bpm.FetchPage(t.rootPageId)
	common.Assert(currentPage != nil, "could not fetch the root page")
	currentPage.RLatch()
	t.rootLatch.RUnlock()

	node := page.CastBPlusTreePage(currentPage)
	for !node.IsLeafPage() {
		inner := page.CastBPlusTreeInternalPage(currentPage, t.keySize)
		var nextId types.PageID
		if leftMost {
			nextId = inner.ValueAt(0)
		} else {
			nextId = inner.Lookup(key, t.comparator)
		}

		nextPage := t.bpm.FetchPage(nextId)
		common.Assert(nextPage != nil, "could not fetch a tree page")
		nextPage.RLatch()
		currentPage.RUnlatch()
		t.bpm.UnpinPage(currentPage.GetPageId(), false)

		currentPage = nextPage
		node = page.CastBPlusTreePage(currentPage)
	}

	return currentPage
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

// Insert puts (key, rid) into the tree. Returns false and leaves the
// tree untouched when key is already present.
func (t *BPlusTree) Insert(key []byte, rid page.RID, txn *access.Transaction) bool {
	if txn == nil {
		txn = access.NewTransaction(common.InvalidTxnID)
	}

	t.rootLatch.WLock()
	rootLocked := true

	if t.rootPageId == types.InvalidPageID {
		t.startNewTree(key, rid)
		t.rootLatch.WUnlock()
		return true
	}

	leafPage := t.findLeafPageForWrite(key, opInsert, txn, &rootLocked)
	leaf := page.CastBPlusTreeLeafPage(leafPage, t.keySize)

	// unique keys: re-check membership under the leaf write latch
	if _, exists := leaf.Lookup(key, t.comparator); exists {
		leafPage.WUnlatch()
		t.bpm.UnpinPage(leafPage.GetPageId(), false)
		t.releaseAncestors(txn, &rootLocked)
		return false
	}

	newSize := leaf.Insert(key, rid, t.comparator)
	if newSize > leaf.GetMaxSize() {
		newLeafPage := t.bpm.NewPage()
		common.Assert(newLeafPage != nil, "all frames are pinned while splitting a leaf")
		newLeaf := t.initLeaf(newLeafPage, leaf.GetParentPageId())
		leaf.MoveHalfTo(newLeaf)

		separator := newLeaf.KeyAt(0)
		t.insertIntoParent(&leaf.BPlusTreePage, separator, &newLeaf.BPlusTreePage, txn)

		t.bpm.UnpinPage(newLeafPage.GetPageId(), true)
	}

	leafPage.WUnlatch()
	t.bpm.UnpinPage(leafPage.GetPageId(), true)
	t.releaseAncestors(txn, &rootLocked)
	return true
}

// startNewTree allocates a leaf as the root of an empty tree and puts
// the first entry into it. The caller holds the root latch in write
// mode.
func (t *BPlusTree) startNewTree(key []byte, rid page.RID) {
	rootPage := t.bpm.NewPage()
	common.Assert(rootPage != nil, "all frames are pinned while starting a new tree")

	root := t.initLeaf(rootPage, types.InvalidPageID)
	root.Insert(key, rid, t.comparator)

	t.rootPageId = rootPage.GetPageId()
	t.updateRootPageId()

	t.bpm.UnpinPage(rootPage.GetPageId(), true)
}

// findLeafPageForWrite descends to the leaf covering key under
// write-latch crabbing. Latched ancestors are registered in the
// transaction page set and released as soon as a child is safe for op.
// The caller holds the root latch in write mode; *rootLocked is
// cleared when the descent releases it. The returned leaf is pinned
// and write latched and not part of the page set.
func (t *BPlusTree) findLeafPageForWrite(key []byte, op latchOp, txn *access.Transaction, rootLocked *bool) *page.Page {
	currentPage := t.bpm.FetchPage(t.rootPageId)
	common.Assert(currentPage != nil, "could not fetch the root page")
	currentPage.WLatch()

	node := page.CastBPlusTreePage(currentPage)
	if t.isSafeNode(node, op) {
		t.releaseAncestors(txn, rootLocked)
	}

	for !node.IsLeafPage() {
		inner := page.CastBPlusTreeInternalPage(currentPage, t.keySize)
		nextId := inner.Lookup(key, t.comparator)

		nextPage := t.bpm.FetchPage(nextId)
		common.Assert(nextPage != nil, "could not fetch a tree page")
		nextPage.WLatch()

		childNode := page.CastBPlusTreePage(nextPage)
		txn.AddIntoPageSet(currentPage)
		if t.isSafeNode(childNode, op) {
			t.releaseAncestors(txn, rootLocked)
		}

		currentPage = nextPage
		node = childNode
	}

	return currentPage
}

// isSafeNode reports whether a modification of node under op cannot
// propagate above it
func (t *BPlusTree) isSafeNode(node *page.BPlusTreePage, op latchOp) bool {
	switch op {
	case opInsert:
		return node.GetSize() < node.GetMaxSize()
	case opDelete:
		return node.GetSize() > node.GetMinSize()
	default:
		return true
	}
}

// releaseAncestors unlatches and unpins every page the descent
// retained, root latch included, in root-to-leaf order
func (t *BPlusTree) releaseAncestors(txn *access.Transaction, rootLocked *bool) {
	if *rootLocked {
		t.rootLatch.WUnlock()
		*rootLocked = false
	}
	for {
		ancestor := txn.PopFromPageSet()
		if ancestor == nil {
			break
		}
		ancestor.WUnlatch()
		t.bpm.UnpinPage(ancestor.GetPageId(), false)
	}
}

// insertIntoParent links a freshly split-off node into the parent of
// the node it came from, growing a new root when the split reached the
// top. Recursive splits walk up the latched ancestor chain.
func (t *BPlusTree) insertIntoParent(oldNode *page.BPlusTreePage, separator []byte, newNode *page.BPlusTreePage, txn *access.Transaction) {
	if oldNode.IsRootPage() {
		newRootPage := t.bpm.NewPage()
		common.Assert(newRootPage != nil, "all frames are pinned while growing a new root")

		newRoot := t.initInternal(newRootPage, types.InvalidPageID)
		newRoot.PopulateNewRoot(oldNode.GetPageId(), separator, newNode.GetPageId())
		oldNode.SetParentPageId(newRootPage.GetPageId())
		newNode.SetParentPageId(newRootPage.GetPageId())

		t.rootPageId = newRootPage.GetPageId()
		t.updateRootPageId()

		t.bpm.UnpinPage(newRootPage.GetPageId(), true)
		return
	}

	parentPage := t.bpm.FetchPage(oldNode.GetParentPageId())
	common.Assert(parentPage != nil, "could not fetch a parent page")
	// the descent retained the parent's write latch; only the pin is new
	parent := page.CastBPlusTreeInternalPage(parentPage, t.keySize)
	parent.InsertNodeAfter(oldNode.GetPageId(), separator, newNode.GetPageId())

	if parent.GetSize() > parent.GetMaxSize() {
		newParentPage := t.bpm.NewPage()
		common.Assert(newParentPage != nil, "all frames are pinned while splitting an internal node")
		newParent := t.initInternal(newParentPage, parent.GetParentPageId())
		parent.MoveHalfTo(newParent, t.bpm)

		t.insertIntoParent(&parent.BPlusTreePage, newParent.KeyAt(0), &newParent.BPlusTreePage, txn)

		t.bpm.UnpinPage(newParentPage.GetPageId(), true)
	}

	t.bpm.UnpinPage(parentPage.GetPageId(), true)
}

/*****************************************************************************
 * REMOVE
 *****************************************************************************/

// Remove deletes the entry stored under key, rebalancing the tree when
// a node falls below its occupancy floor. Removing an absent key is a
// no-op.
func (t *BPlusTree) Remove(key []byte, txn *access.Transaction) {
	if txn == nil {
		txn = access.NewTransaction(common.InvalidTxnID)
	}

	t.rootLatch.WLock()
	rootLocked := true

	if t.rootPageId == types.InvalidPageID {
		t.rootLatch.WUnlock()
		return
	}

	leafPage := t.findLeafPageForWrite(key, opDelete, txn, &rootLocked)
	leaf := page.CastBPlusTreeLeafPage(leafPage, t.keySize)

	newSize := leaf.RemoveAndDeleteRecord(key, t.comparator)
	if newSize < leaf.GetMinSize() {
		t.coalesceOrRedistribute(leafPage, txn)
	}

	leafPage.WUnlatch()
	t.bpm.UnpinPage(leafPage.GetPageId(), true)
	t.releaseAncestors(txn, &rootLocked)

	// physical deletion happens after every latch is dropped
	for _, pageId := range txn.GetDeletedPageSet().ToSlice() {
		t.bpm.DeletePage(pageId)
	}
	txn.ClearDeletedPageSet()
}

// coalesceOrRedistribute repairs a node which fell below its occupancy
// floor, either borrowing one entry from a sibling or merging the right
// node of the pair into the left. nodePage is write latched by the
// caller; the parent's latch is retained by the descent.
func (t *BPlusTree) coalesceOrRedistribute(nodePage *page.Page, txn *access.Transaction) {
	node := page.CastBPlusTreePage(nodePage)

	if node.IsRootPage() {
		t.adjustRoot(nodePage, txn)
		return
	}

	parentPage := t.bpm.FetchPage(node.GetParentPageId())
	common.Assert(parentPage != nil, "could not fetch a parent page")
	parent := page.CastBPlusTreeInternalPage(parentPage, t.keySize)

	nodeIdx := parent.ValueIndex(node.GetPageId())
	common.Assert(nodeIdx >= 0, "node not registered in its parent")

	// prefer the right sibling, fall back to the left at the boundary
	siblingIdx := nodeIdx + 1
	if siblingIdx >= parent.GetSize() {
		siblingIdx = nodeIdx - 1
	}

	siblingPage := t.bpm.FetchPage(parent.ValueAt(siblingIdx))
	common.Assert(siblingPage != nil, "could not fetch a sibling page")
	siblingPage.WLatch()
	sibling := page.CastBPlusTreePage(siblingPage)

	if sibling.GetSize()+node.GetSize() > node.GetMaxSize() {
		t.redistribute(siblingPage, nodePage, siblingIdx > nodeIdx, nodeIdx)
		siblingPage.WUnlatch()
		t.bpm.UnpinPage(siblingPage.GetPageId(), true)
		t.bpm.UnpinPage(parentPage.GetPageId(), true)
		return
	}

	// coalesce: the right node of the pair always merges into the left
	// so the leaf chain stays intact
	if siblingIdx < nodeIdx {
		t.coalesce(siblingPage, nodePage, nodeIdx, txn)
		txn.AddIntoDeletedPageSet(nodePage.GetPageId())
	} else {
		t.coalesce(nodePage, siblingPage, siblingIdx, txn)
		txn.AddIntoDeletedPageSet(siblingPage.GetPageId())
	}
	siblingPage.WUnlatch()
	t.bpm.UnpinPage(siblingPage.GetPageId(), true)

	if parent.GetSize() < parent.GetMinSize() {
		t.coalesceOrRedistribute(parentPage, txn)
	}
	t.bpm.UnpinPage(parentPage.GetPageId(), true)
}

// coalesce merges rightPage into leftPage and removes the separator at
// rightIdx from their parent
func (t *BPlusTree) coalesce(leftPage *page.Page, rightPage *page.Page, rightIdx int32, txn *access.Transaction) {
	right := page.CastBPlusTreePage(rightPage)
	if right.IsLeafPage() {
		rightLeaf := page.CastBPlusTreeLeafPage(rightPage, t.keySize)
		leftLeaf := page.CastBPlusTreeLeafPage(leftPage, t.keySize)
		rightLeaf.MoveAllTo(leftLeaf, rightIdx, t.bpm)
	} else {
		rightInner := page.CastBPlusTreeInternalPage(rightPage, t.keySize)
		leftInner := page.CastBPlusTreeInternalPage(leftPage, t.keySize)
		rightInner.MoveAllTo(leftInner, rightIdx, t.bpm)
	}
}

// redistribute moves one boundary entry from the sibling into the
// underflowed node. siblingOnRight picks the direction; the separator
// in the parent is refreshed by the node operation.
func (t *BPlusTree) redistribute(siblingPage *page.Page, nodePage *page.Page, siblingOnRight bool, nodeIdx int32) {
	sibling := page.CastBPlusTreePage(siblingPage)
	if sibling.IsLeafPage() {
		siblingLeaf := page.CastBPlusTreeLeafPage(siblingPage, t.keySize)
		nodeLeaf := page.CastBPlusTreeLeafPage(nodePage, t.keySize)
		if siblingOnRight {
			siblingLeaf.MoveFirstToEndOf(nodeLeaf, t.bpm)
		} else {
			siblingLeaf.MoveLastToFrontOf(nodeLeaf, nodeIdx, t.bpm)
		}
	} else {
		siblingInner := page.CastBPlusTreeInternalPage(siblingPage, t.keySize)
		nodeInner := page.CastBPlusTreeInternalPage(nodePage, t.keySize)
		if siblingOnRight {
			siblingInner.MoveFirstToEndOf(nodeInner, t.bpm)
		} else {
			siblingInner.MoveLastToFrontOf(nodeInner, nodeIdx, t.bpm)
		}
	}
}

// adjustRoot handles underflow at the root: an internal root left with a
// single child promotes that child, an emptied leaf root leaves the tree
// empty.
// The root latch is necessarily still held, the root having been
// unsafe for the delete.
func (t *BPlusTree) adjustRoot(rootPage *page.Page, txn *access.Transaction) {
	root := page.CastBPlusTreePage(rootPage)

	if !root.IsLeafPage() && root.GetSize() == 1 {
		rootInner := page.CastBPlusTreeInternalPage(rootPage, t.keySize)
		newRootId := rootInner.ValueAt(0)

		t.rootPageId = newRootId
		t.updateRootPageId()

		// the promoted child may still be write latched by this very
		// operation, and the root latch shuts out everyone else, so the
		// parent pointer is rewritten without latching it
		childPage := t.bpm.FetchPage(newRootId)
		common.Assert(childPage != nil, "could not fetch the promoted root")
		child := page.CastBPlusTreePage(childPage)
		child.SetParentPageId(types.InvalidPageID)
		t.bpm.UnpinPage(newRootId, true)

		txn.AddIntoDeletedPageSet(rootPage.GetPageId())
		return
	}

	if root.IsLeafPage() && root.GetSize() == 0 {
		t.rootPageId = types.InvalidPageID
		t.updateRootPageId()

		txn.AddIntoDeletedPageSet(rootPage.GetPageId())
	}
}

/*****************************************************************************
 * INDEX ITERATOR
 *****************************************************************************/

// Begin returns a forward iterator positioned at the first entry of
// the tree
func (t *BPlusTree) Begin() *IndexIterator {
	t.rootLatch.RLock()
	if t.rootPageId == types.InvalidPageID {
		t.rootLatch.RUnlock()
		return newEndIterator(t.bpm)
	}

	leafPage := t.findLeafPageForRead(nil, true)
	return newIndexIterator(t.bpm, leafPage, 0, t.keySize)
}

// BeginFrom returns a forward iterator positioned at the first entry
// whose key is >= key
func (t *BPlusTree) BeginFrom(key []byte) *IndexIterator {
	t.rootLatch.RLock()
	if t.rootPageId == types.InvalidPageID {
		t.rootLatch.RUnlock()
		return newEndIterator(t.bpm)
	}

	leafPage := t.findLeafPageForRead(key, false)
	leaf := page.CastBPlusTreeLeafPage(leafPage, t.keySize)
	offset := leaf.KeyIndex(key, t.comparator)
	if leaf.GetSize() == 0 || t.comparator(leaf.KeyAt(offset), key) >= 0 {
		return newIndexIterator(t.bpm, leafPage, offset, t.keySize)
	}

	// every key of this leaf is smaller: park on its last entry and step
	// past it, which moves on to the right sibling or ends the scan
	it := newIndexIterator(t.bpm, leafPage, leaf.GetSize()-1, t.keySize)
	it.Next()
	return it
}
