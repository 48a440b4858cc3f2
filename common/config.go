package common

import (
	"github.com/sasha-s/go-deadlock"
)

// debug switches, flipped by tests only
var EnableLogging bool = false
var EnableDebug bool = false

const (
	// invalid transaction id
	InvalidTxnID = -1
	// the header page id
	HeaderPageID = 0
	// size of a data page in byte
	PageSize = 4096
	// size of an extendible hash bucket
	BucketSize = 50
	// default number of frames in the buffer pool
	DefaultPoolSize = 32
)

// EnableDeadlockDetection switches every latch in the system between
// go-deadlock checked mutexes and plain sync ones. Detection is costly,
// so it stays off unless a test turns it on.
func EnableDeadlockDetection(enable bool) {
	deadlock.Opts.Disable = !enable
}

func init() {
	deadlock.Opts.Disable = true
}
