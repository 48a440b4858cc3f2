package disk

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dsnet/golib/memfile"

	"mizuchi/common"
	"mizuchi/types"
)

// VirtualDiskManagerImpl keeps the "file" in memory. It exists for the
// test suites: same contract as DiskManagerImpl without touching the
// filesystem.
type VirtualDiskManagerImpl struct {
	db           *memfile.File
	fileName     string
	log          *memfile.File
	fileNameLog  string
	nextPageID   int32
	numWrites    uint64
	size         int64
	numFlushes   uint64
	dbFileMutex  *sync.Mutex
	logFileMutex *sync.Mutex
}

func NewVirtualDiskManagerImpl(dbFilename string) DiskManager {
	file := memfile.New(make([]byte, 0))

	periodIdx := strings.LastIndex(dbFilename, ".")
	logfnameBase := dbFilename
	if periodIdx != -1 {
		logfnameBase = dbFilename[:periodIdx]
	}
	logfname := logfnameBase + "." + "log"

	logFile := memfile.New(make([]byte, 0))

	// page 0 is the header page and is never handed out
	return &VirtualDiskManagerImpl{file, dbFilename, logFile, logfname, 1, 0, 0, 0, new(sync.Mutex), new(sync.Mutex)}
}

// ShutDown does nothing: there is no file to close
func (d *VirtualDiskManagerImpl) ShutDown() {
}

// WritePage writes a page to the in-memory file
func (d *VirtualDiskManagerImpl) WritePage(pageId types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageId) * common.PageSize
	d.db.WriteAt(pageData, offset)

	if offset >= d.size {
		d.size = offset + int64(len(pageData))
	}

	d.numWrites += 1
	return nil
}

// ReadPage reads a page from the in-memory file, zero filling reads of
// pages which were never written
func (d *VirtualDiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageID) * common.PageSize

	if offset >= d.size {
		for i := 0; i < common.PageSize; i++ {
			pageData[i] = 0
		}
		return nil
	}

	n, _ := d.db.ReadAt(pageData, offset)
	for i := n; i < len(pageData); i++ {
		pageData[i] = 0
	}
	return nil
}

// AllocatePage returns and post-increments the page id counter
func (d *VirtualDiskManagerImpl) AllocatePage() types.PageID {
	return types.PageID(atomic.AddInt32(&d.nextPageID, 1) - 1)
}

// DeallocatePage does nothing, matching DiskManagerImpl
func (d *VirtualDiskManagerImpl) DeallocatePage(pageID types.PageID) {
}

// GetNumWrites returns the number of disk writes
func (d *VirtualDiskManagerImpl) GetNumWrites() uint64 {
	return d.numWrites
}

// Size returns the size of the in-memory file
func (d *VirtualDiskManagerImpl) Size() int64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.size
}

func (d *VirtualDiskManagerImpl) RemoveDBFile() {
}

func (d *VirtualDiskManagerImpl) RemoveLogFile() {
}

// WriteLog appends to the in-memory log file
func (d *VirtualDiskManagerImpl) WriteLog(logData []byte) {
	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()

	d.numFlushes += 1
	d.log.Write(logData)
}

// ReadLog reads len(logData) bytes of the log at offset
func (d *VirtualDiskManagerImpl) ReadLog(logData []byte, offset int32) bool {
	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()

	if int64(offset) >= int64(len(d.log.Bytes())) {
		return false
	}

	n, _ := d.log.ReadAt(logData, int64(offset))
	for i := n; i < len(logData); i++ {
		logData[i] = 0
	}
	return true
}

func (d *VirtualDiskManagerImpl) GetLogFileSize() int64 {
	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()
	return int64(len(d.log.Bytes()))
}
