package common

import (
	"github.com/sasha-s/go-deadlock"
)

type ReaderWriterLatch interface {
	WLock()
	WUnlock()
	RLock()
	RUnlock()
}

type readerWriterLatch struct {
	mutex *deadlock.RWMutex
}

func NewRWLatch() ReaderWriterLatch {
	latch := readerWriterLatch{}
	latch.mutex = new(deadlock.RWMutex)

	return &latch
}

func (l *readerWriterLatch) WLock() {
	l.mutex.Lock()
}

func (l *readerWriterLatch) WUnlock() {
	l.mutex.Unlock()
}

func (l *readerWriterLatch) RLock() {
	l.mutex.RLock()
}

func (l *readerWriterLatch) RUnlock() {
	l.mutex.RUnlock()
}

// latch for debug of concurrent code on single threaded execution
type readerWriterLatchDummy struct {
	readerCnt int32
	writerCnt int32
}

func NewRWLatchDummy() ReaderWriterLatch {
	latch := readerWriterLatchDummy{0, 0}

	return &latch
}

func (l *readerWriterLatchDummy) WLock() {
	l.writerCnt++
	Assert(l.writerCnt == 1, "double write lock!")
}

func (l *readerWriterLatchDummy) WUnlock() {
	l.writerCnt--
	Assert(l.writerCnt == 0, "double write unlock!")
}

func (l *readerWriterLatchDummy) RLock() {
	l.readerCnt++
	Assert(l.readerCnt == 1, "double read lock!")
}

func (l *readerWriterLatchDummy) RUnlock() {
	l.readerCnt--
	Assert(l.readerCnt == 0, "double read unlock!")
}
