package access

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/golang-collections/collections/queue"

	"mizuchi/storage/page"
	"mizuchi/types"
)

/**
 * Transaction tracks the state a concurrent index operation carries:
 * the chain of pages latched on the way down (released front to back,
 * root first, once a safe node bounds the operation) and the pages the
 * operation decided to delete (actually deleted only after every latch
 * is dropped).
 */
type Transaction struct {
	txnId          types.TxnID
	pageSet        *queue.Queue
	deletedPageSet mapset.Set[types.PageID]
	dbgInfo        string
}

func NewTransaction(txnId types.TxnID) *Transaction {
	return &Transaction{
		txnId,
		queue.New(),
		mapset.NewSet[types.PageID](),
		"",
	}
}

// GetTransactionId returns the id of this transaction
func (txn *Transaction) GetTransactionId() types.TxnID { return txn.txnId }

// AddIntoPageSet records a page latched during the descent
func (txn *Transaction) AddIntoPageSet(p *page.Page) {
	txn.pageSet.Enqueue(p)
}

// PopFromPageSet removes and returns the earliest latched page, nil
// when none remain
func (txn *Transaction) PopFromPageSet() *page.Page {
	if txn.pageSet.Len() == 0 {
		return nil
	}
	return txn.pageSet.Dequeue().(*page.Page)
}

// PageSetLen returns the number of latched pages tracked
func (txn *Transaction) PageSetLen() int {
	return txn.pageSet.Len()
}

// AddIntoDeletedPageSet records a page scheduled for deletion
func (txn *Transaction) AddIntoDeletedPageSet(pageId types.PageID) {
	txn.deletedPageSet.Add(pageId)
}

// GetDeletedPageSet returns the pages scheduled for deletion
func (txn *Transaction) GetDeletedPageSet() mapset.Set[types.PageID] {
	return txn.deletedPageSet
}

// ClearDeletedPageSet empties the deletion schedule
func (txn *Transaction) ClearDeletedPageSet() {
	txn.deletedPageSet = mapset.NewSet[types.PageID]()
}

func (txn *Transaction) SetDebugInfo(info string) { txn.dbgInfo = info }
func (txn *Transaction) GetDebugInfo() string     { return txn.dbgInfo }
