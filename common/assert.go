package common

import (
	"runtime"
	"sync"

	"github.com/devlights/gomy/output"
)

func Assert(condition bool, msg string) {
	if !condition {
		panic(msg)
	}
}

// DbgMutex is a mutex which panics on double lock/unlock, for debugging
// code paths where a latch must never be re-entered.
type DbgMutex struct {
	mutex    *sync.Mutex
	isLocked bool
}

func NewDbgMutex() *DbgMutex {
	return &DbgMutex{new(sync.Mutex), false}
}

func (m *DbgMutex) Lock() {
	Assert(!m.isLocked, "mutex is already locked")
	m.mutex.Lock()
	m.isLocked = true
}

func (m *DbgMutex) Unlock() {
	Assert(m.isLocked, "mutex is not locked")
	m.mutex.Unlock()
	m.isLocked = false
}

// RuntimeStack dumps all goroutine stacks to stdout. Handy when a latch
// ordering bug wedges the tree tests.
//
// REFERENCES
//   - https://pkg.go.dev/runtime#Stack
func RuntimeStack() error {
	var (
		chAll = make(chan []byte, 1)
	)

	var (
		getStack = func(all bool) []byte {
			var (
				buf = make([]byte, 1024)
			)

			for {
				n := runtime.Stack(buf, all)
				if n < len(buf) {
					return buf[:n]
				}
				buf = make([]byte, 2*len(buf))
			}
		}
	)

	go func(ch chan<- []byte) {
		defer close(ch)
		ch <- getStack(true)
	}(chAll)

	for v := range chAll {
		output.Stdoutl("=== stack-all   ", string(v))
	}

	return nil
}
