package disk

import (
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"mizuchi/common"
	"mizuchi/types"
)

// DiskManagerImpl is the disk implementation of DiskManager
type DiskManagerImpl struct {
	db          *os.File
	fileName    string
	log         *os.File
	fileNameLog string
	nextPageID  int32
	numWrites   uint64
	size        int64
	flushLog    bool
	numFlushes  uint64
}

// NewDiskManagerImpl returns a DiskManager instance backed by dbFilename
// and a sibling ".log" file
func NewDiskManagerImpl(dbFilename string) DiskManager {
	file, err := os.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		log.Fatalln("can't open db file")
		return nil
	}

	periodIdx := strings.LastIndex(dbFilename, ".")
	logfnameBase := dbFilename
	if periodIdx != -1 {
		logfnameBase = dbFilename[:periodIdx]
	}
	logfname := logfnameBase + "." + "log"
	logFile, err := os.OpenFile(logfname, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		log.Fatalln("can't open log file")
		return nil
	}

	fileInfo, err := file.Stat()
	if err != nil {
		log.Fatalln("file info error")
		return nil
	}

	logFileInfo, err := logFile.Stat()
	if err != nil {
		log.Fatalln("file info error (log file)")
		return nil
	}

	logFile.Seek(logFileInfo.Size(), io.SeekStart)

	fileSize := fileInfo.Size()
	nPages := fileSize / common.PageSize

	// page 0 is the header page and is never handed out
	nextPageID := int32(nPages)
	if nextPageID < 1 {
		nextPageID = 1
	}

	return &DiskManagerImpl{file, dbFilename, logFile, logfname, nextPageID, 0, fileSize, false, 0}
}

// ShutDown closes the database and log files
func (d *DiskManagerImpl) ShutDown() {
	d.db.Close()
	d.log.Close()
}

// WritePage writes a page to the database file
func (d *DiskManagerImpl) WritePage(pageId types.PageID, pageData []byte) error {
	offset := int64(pageId) * common.PageSize
	d.db.Seek(offset, io.SeekStart)
	bytesWritten, err := d.db.Write(pageData)
	if err != nil {
		common.LogPrintf(common.ERROR, "I/O error while writing page %d: %v\n", pageId, err)
		return err
	}

	if bytesWritten != common.PageSize {
		return errors.New("bytes written not equals page size")
	}

	if offset >= d.size {
		d.size = offset + int64(bytesWritten)
	}

	d.numWrites += 1
	d.db.Sync()
	return nil
}

// ReadPage reads a page from the database file. Reading a page which
// was allocated but never written is not an error: the page ids are
// handed out monotonically, so such a read yields a zero-filled page.
func (d *DiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	offset := int64(pageID) * common.PageSize

	fileInfo, err := d.db.Stat()
	if err != nil {
		return errors.New("file info error")
	}

	if offset >= fileInfo.Size() {
		common.LogPrintf(common.DEBUG_INFO, "read of page %d past end of file, zero filled\n", pageID)
		for i := 0; i < common.PageSize; i++ {
			pageData[i] = 0
		}
		return nil
	}

	d.db.Seek(offset, io.SeekStart)

	bytesRead, err := d.db.Read(pageData)
	if err != nil {
		return errors.New("I/O error while reading")
	}

	if bytesRead < common.PageSize {
		for i := bytesRead; i < common.PageSize; i++ {
			pageData[i] = 0
		}
	}
	return nil
}

// AllocatePage returns and post-increments the page id counter
func (d *DiskManagerImpl) AllocatePage() types.PageID {
	return types.PageID(atomic.AddInt32(&d.nextPageID, 1) - 1)
}

// DeallocatePage currently does nothing. Freed ids are not reused; a
// free-page bitmap in the header page would be needed for that.
func (d *DiskManagerImpl) DeallocatePage(pageID types.PageID) {
}

// GetNumWrites returns the number of disk writes
func (d *DiskManagerImpl) GetNumWrites() uint64 {
	return d.numWrites
}

// Size returns the size of the file in disk
func (d *DiskManagerImpl) Size() int64 {
	return d.size
}

// ATTENTION: this method can be called only after calling of ShutDown method
func (d *DiskManagerImpl) RemoveDBFile() {
	os.Remove(d.fileName)
}

// ATTENTION: this method can be called only after calling of ShutDown method
func (d *DiskManagerImpl) RemoveLogFile() {
	os.Remove(d.fileNameLog)
}

// WriteLog appends the contents of the log buffer to the log file.
// Returns when the write is synced, sequence write only.
func (d *DiskManagerImpl) WriteLog(logData []byte) {
	d.flushLog = true

	d.numFlushes += 1
	_, err := d.log.Write(logData)
	if err != nil {
		common.LogPrintf(common.ERROR, "I/O error while writing log\n")
		return
	}
	d.log.Sync()
	d.flushLog = false
}

// ReadLog reads len(logData) bytes of the log file at offset.
// Returns false when offset is at or past the end.
func (d *DiskManagerImpl) ReadLog(logData []byte, offset int32) bool {
	if int64(offset) >= d.GetLogFileSize() {
		return false
	}

	d.log.Seek(int64(offset), io.SeekStart)
	readBytes, err := d.log.Read(logData)
	if err != nil {
		common.LogPrintf(common.ERROR, "I/O error at log data reading\n")
		return false
	}
	if readBytes < len(logData) {
		for i := readBytes; i < len(logData); i++ {
			logData[i] = 0
		}
	}

	return true
}

func (d *DiskManagerImpl) GetLogFileSize() int64 {
	fileInfo, err := d.log.Stat()
	if err != nil {
		return -1
	}

	return fileInfo.Size()
}
