package record

import "encoding/binary"

// The free-list is a singly-linked chain of pages, each storing an array
// of free RecordIDs available for reuse.
//
// Layout:
//
//	[0:32]   Common PageHeader (Type=FreeList)
//	[32:40]  NextFreeList  (uint64 LE) — next free-list page, 0 = end
//	[40:44]  EntryCount    (uint32 LE)
//	[44:44+8*EntryCount]   RecordID entries (uint64 LE each)
const (
	freeListNextOff  = PageHeaderSize       // 32
	freeListCountOff = freeListNextOff + 8  // 40
	freeListDataOff  = freeListCountOff + 4 // 44
	freeListEntryLen = 8
)

// FreeListCapacity returns how many RecordIDs fit in one free-list page.
func FreeListCapacity(pageSize int) int {
	return (pageSize - freeListDataOff) / freeListEntryLen
}

// FreeListPage wraps a page buffer as a free-list page.
type FreeListPage struct {
	buf      []byte
	pageSize int
}

// WrapFreeListPage wraps an existing free-list buffer.
func WrapFreeListPage(buf []byte) *FreeListPage {
	return &FreeListPage{buf: buf, pageSize: len(buf)}
}

// InitFreeListPage creates a new empty free-list page.
func InitFreeListPage(buf []byte, id RecordID) *FreeListPage {
	h := &PageHeader{Type: PageTypeFreeList, ID: id}
	MarshalHeader(h, buf)
	binary.LittleEndian.PutUint64(buf[freeListNextOff:], uint64(InvalidRecordID))
	binary.LittleEndian.PutUint32(buf[freeListCountOff:], 0)
	return &FreeListPage{buf: buf, pageSize: len(buf)}
}

// NextFreeList returns the next free-list page in the chain.
func (fl *FreeListPage) NextFreeList() RecordID {
	return RecordID(binary.LittleEndian.Uint64(fl.buf[freeListNextOff:]))
}

// SetNextFreeList sets the next page pointer.
func (fl *FreeListPage) SetNextFreeList(id RecordID) {
	binary.LittleEndian.PutUint64(fl.buf[freeListNextOff:], uint64(id))
}

// EntryCount returns the number of free RecordIDs stored.
func (fl *FreeListPage) EntryCount() int {
	return int(binary.LittleEndian.Uint32(fl.buf[freeListCountOff:]))
}

// GetEntry returns the i-th free RecordID.
func (fl *FreeListPage) GetEntry(i int) RecordID {
	off := freeListDataOff + i*freeListEntryLen
	return RecordID(binary.LittleEndian.Uint64(fl.buf[off:]))
}

// AddEntry appends a free RecordID. Returns false if the page is full.
func (fl *FreeListPage) AddEntry(id RecordID) bool {
	ec := fl.EntryCount()
	if ec >= FreeListCapacity(fl.pageSize) {
		return false
	}
	off := freeListDataOff + ec*freeListEntryLen
	binary.LittleEndian.PutUint64(fl.buf[off:], uint64(id))
	binary.LittleEndian.PutUint32(fl.buf[freeListCountOff:], uint32(ec+1))
	return true
}

// AllEntries returns all stored free RecordIDs.
func (fl *FreeListPage) AllEntries() []RecordID {
	ec := fl.EntryCount()
	ids := make([]RecordID, ec)
	for i := 0; i < ec; i++ {
		ids[i] = fl.GetEntry(i)
	}
	return ids
}

// Bytes returns the underlying page buffer.
func (fl *FreeListPage) Bytes() []byte { return fl.buf }

// FreeManager tracks free pages using an in-memory set backed by
// free-list pages on disk.
type FreeManager struct {
	free map[RecordID]struct{}
	head RecordID
}

// NewFreeManager creates a FreeManager. Call LoadFromDisk to populate.
func NewFreeManager() *FreeManager {
	return &FreeManager{free: map[RecordID]struct{}{}}
}

// LoadFromDisk walks the free-list chain starting at head and populates
// the in-memory set.
func (fm *FreeManager) LoadFromDisk(head RecordID, readPage func(RecordID) ([]byte, error)) error {
	fm.head = head
	id := head
	for id != InvalidRecordID {
		buf, err := readPage(id)
		if err != nil {
			return err
		}
		fl := WrapFreeListPage(buf)
		for _, freeID := range fl.AllEntries() {
			fm.free[freeID] = struct{}{}
		}
		id = fl.NextFreeList()
	}
	return nil
}

// Alloc returns a free RecordID (popped from the set) or InvalidRecordID.
func (fm *FreeManager) Alloc() RecordID {
	for id := range fm.free {
		delete(fm.free, id)
		return id
	}
	return InvalidRecordID
}

// Free marks a RecordID as available for reuse.
func (fm *FreeManager) Free(id RecordID) {
	fm.free[id] = struct{}{}
}

// Count returns the number of free pages.
func (fm *FreeManager) Count() int { return len(fm.free) }

// AllFree returns all free RecordIDs (unsorted).
func (fm *FreeManager) AllFree() []RecordID {
	ids := make([]RecordID, 0, len(fm.free))
	for id := range fm.free {
		ids = append(ids, id)
	}
	return ids
}

// FlushToDisk writes the in-memory free set into free-list pages. It
// returns the head RecordID of the new chain and the page buffers to
// write. allocPage returns a new, zeroed page buffer with a fresh ID.
func (fm *FreeManager) FlushToDisk(pageSize int, allocPage func() (RecordID, []byte)) (RecordID, [][]byte) {
	ids := fm.AllFree()
	if len(ids) == 0 {
		return InvalidRecordID, nil
	}

	capacity := FreeListCapacity(pageSize)
	var pages [][]byte
	var head RecordID
	var prev *FreeListPage

	for i := 0; i < len(ids); i += capacity {
		end := i + capacity
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		id, buf := allocPage()
		fl := InitFreeListPage(buf, id)
		for _, fid := range chunk {
			fl.AddEntry(fid)
		}
		SetPageCRC(buf)
		pages = append(pages, buf)

		if prev != nil {
			prev.SetNextFreeList(id)
			SetPageCRC(prev.Bytes())
		} else {
			head = id
		}
		prev = fl
	}

	fm.head = head
	return head, pages
}
