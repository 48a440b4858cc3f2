package disk

import (
	"mizuchi/types"
)

// DiskManager is responsible for interacting with disk
type DiskManager interface {
	ReadPage(types.PageID, []byte) error
	WritePage(types.PageID, []byte) error
	AllocatePage() types.PageID
	DeallocatePage(types.PageID)
	WriteLog([]byte)
	ReadLog([]byte, int32) bool
	GetLogFileSize() int64
	GetNumWrites() uint64
	ShutDown()
	Size() int64
}
