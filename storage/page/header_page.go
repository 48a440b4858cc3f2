package page

import (
	"unsafe"

	"mizuchi/types"
)

// number of (name, root) records the header page can hold
const MaxIndexRecords = 113

const maxIndexNameLen = 31

/**
 * HeaderPage is the typed view of page 0. It persists one record per
 * index mapping the index name to the page id of the index root, so an
 * index can be reopened by name after a restart.
 *
 * Header page format (size in byte):
 * -----------------------------------------------------------------
 * | RecordCount (4) | Record 1 (36) | Record 2 (36) | ...
 * -----------------------------------------------------------------
 * record format: | Name (32) | RootPageId (4) |
 */
type HeaderPage struct {
	recordCount int32
	records     [MaxIndexRecords]indexRecord
}

type indexRecord struct {
	name       [32]byte
	rootPageId types.PageID
}

// CastHeaderPage interprets the bytes of page as a HeaderPage. Legal
// only for page 0.
func CastHeaderPage(page *Page) *HeaderPage {
	return (*HeaderPage)(unsafe.Pointer(page.Data()))
}

func (hp *HeaderPage) find(name string) int {
	for i := int32(0); i < hp.recordCount; i++ {
		if hp.records[i].nameString() == name {
			return int(i)
		}
	}
	return -1
}

func (r *indexRecord) nameString() string {
	for i, b := range r.name {
		if b == 0 {
			return string(r.name[:i])
		}
	}
	return string(r.name[:])
}

// InsertRecord adds a (name, root) record. Returns false when the name
// is taken, empty, too long, or the page is full.
func (hp *HeaderPage) InsertRecord(name string, rootPageId types.PageID) bool {
	if len(name) == 0 || len(name) > maxIndexNameLen {
		return false
	}
	if hp.recordCount >= MaxIndexRecords {
		return false
	}
	if hp.find(name) != -1 {
		return false
	}

	record := &hp.records[hp.recordCount]
	*record = indexRecord{}
	copy(record.name[:], name)
	record.rootPageId = rootPageId
	hp.recordCount++
	return true
}

// UpdateRecord overwrites the root id of an existing record
func (hp *HeaderPage) UpdateRecord(name string, rootPageId types.PageID) bool {
	idx := hp.find(name)
	if idx == -1 {
		return false
	}
	hp.records[idx].rootPageId = rootPageId
	return true
}

// DeleteRecord removes the record for name
func (hp *HeaderPage) DeleteRecord(name string) bool {
	idx := hp.find(name)
	if idx == -1 {
		return false
	}
	for i := int32(idx); i < hp.recordCount-1; i++ {
		hp.records[i] = hp.records[i+1]
	}
	hp.recordCount--
	return true
}

// GetRootId looks up the root page id recorded for name
func (hp *HeaderPage) GetRootId(name string) (types.PageID, bool) {
	idx := hp.find(name)
	if idx == -1 {
		return types.InvalidPageID, false
	}
	return hp.records[idx].rootPageId, true
}

// GetRecordCount returns the number of records stored
func (hp *HeaderPage) GetRecordCount() int32 {
	return hp.recordCount
}
