package record

import (
	"encoding/binary"
	"fmt"
)

// A Data page holds the head chunk of one opaque record. Records larger
// than a single page continue into a chain of Overflow pages (see
// overflow.go), so from the caller's point of view a record is simply
// "opaque bytes in, opaque bytes out" regardless of size — this is the
// record-manager seam spec §6 describes.
//
// Data page layout:
//
//	[0:32]   Common PageHeader (Type=Data)
//	[32:36]  TotalLen     (uint32 LE) — total record length across all pages
//	[36:44]  NextOverflow (uint64 LE) — 0 if the record fits entirely here
//	[44:...] Payload (head chunk)
const (
	dataTotalLenOff     = PageHeaderSize
	dataNextOverflowOff = dataTotalLenOff + 4
	dataPayloadOff      = dataNextOverflowOff + 8
)

func dataPageCapacity(pageSize int) int {
	return pageSize - dataPayloadOff
}

// Insert stores a new record and returns its RecordID. This logs a
// complete transaction (begin/page-images/commit) on its own; callers
// needing atomicity across multiple Insert/Update/Delete calls should use
// BeginTx/CommitTx/AbortTx directly and call the *Raw variants instead.
func (s *Store) Insert(data []byte) (RecordID, error) {
	tx, err := s.BeginTx()
	if err != nil {
		return InvalidRecordID, err
	}
	id, err := s.insertTx(tx, data)
	if err != nil {
		s.AbortTx(tx)
		return InvalidRecordID, err
	}
	if err := s.CommitTx(tx); err != nil {
		return InvalidRecordID, err
	}
	return id, nil
}

// ForceInsert stores data under a specific, caller-chosen RecordID,
// extending the free-list/next-id bookkeeping as needed. Used by defrag
// (spec §4.7) to preserve recids across a copy.
func (s *Store) ForceInsert(id RecordID, data []byte) error {
	tx, err := s.BeginTx()
	if err != nil {
		return err
	}
	if err := s.forceInsertTx(tx, id, data); err != nil {
		s.AbortTx(tx)
		return err
	}
	return s.CommitTx(tx)
}

func (s *Store) insertTx(tx TxID, data []byte) (RecordID, error) {
	id, head := s.AllocPage()
	defer s.UnpinPage(id)
	MarshalHeader(&PageHeader{Type: PageTypeData, ID: id}, head)
	if err := s.writeRecordChunks(tx, id, head, data); err != nil {
		return InvalidRecordID, err
	}
	return id, nil
}

func (s *Store) forceInsertTx(tx TxID, id RecordID, data []byte) error {
	buf := NewPage(s.pageSize, PageTypeData, id)
	if err := s.writeRecordChunks(tx, id, buf, data); err != nil {
		return err
	}
	s.mu.Lock()
	if id >= s.hdr.NextRecordID {
		s.hdr.NextRecordID = id + 1
	}
	s.mu.Unlock()
	return nil
}

// writeRecordChunks fills in head (already carrying the Data page header
// for id) with data, chaining into overflow pages as needed, and writes
// every touched page through the WAL under tx.
func (s *Store) writeRecordChunks(tx TxID, id RecordID, head []byte, data []byte) error {
	cap0 := dataPageCapacity(s.pageSize)
	binary.LittleEndian.PutUint32(head[dataTotalLenOff:], uint32(len(data)))

	first := data
	rest := []byte(nil)
	if len(first) > cap0 {
		rest = first[cap0:]
		first = first[:cap0]
	}
	copy(head[dataPayloadOff:], first)

	if rest == nil {
		binary.LittleEndian.PutUint64(head[dataNextOverflowOff:], uint64(InvalidRecordID))
		return s.WritePage(tx, id, head)
	}

	ovCap := OverflowCapacity(s.pageSize)
	var prevID RecordID
	var prevBuf []byte
	firstOverflow := InvalidRecordID
	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > ovCap {
			chunk = rest[:ovCap]
		}
		oid, obuf := s.AllocPage()
		op := InitOverflowPage(obuf, oid)
		if err := op.SetData(chunk); err != nil {
			s.UnpinPage(oid)
			return err
		}
		if firstOverflow == InvalidRecordID {
			firstOverflow = oid
		}
		if prevBuf != nil {
			WrapOverflowPage(prevBuf).SetNextOverflow(oid)
			if err := s.WritePage(tx, prevID, prevBuf); err != nil {
				s.UnpinPage(oid)
				return err
			}
		}
		prevID, prevBuf = oid, obuf
		rest = rest[len(chunk):]
		s.UnpinPage(oid)
	}
	if err := s.WritePage(tx, prevID, prevBuf); err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(head[dataNextOverflowOff:], uint64(firstOverflow))
	return s.WritePage(tx, id, head)
}

// Fetch returns the full record stored under id, following any overflow
// chain.
func (s *Store) Fetch(id RecordID) ([]byte, error) {
	buf, err := s.ReadPage(id)
	if err != nil {
		return nil, err
	}
	defer s.UnpinPage(id)
	return s.assembleRecord(buf)
}

// FetchRaw is Fetch with the record's head page read straight from disk
// instead of through the buffer pool; overflow pages are read the same
// way Fetch reads them. Used by defrag (spec §4.7) when copying a page
// graph between two stores.
func (s *Store) FetchRaw(id RecordID) ([]byte, error) {
	buf, err := s.readPageRaw(id)
	if err != nil {
		return nil, err
	}
	return s.assembleRecord(buf)
}

func (s *Store) assembleRecord(head []byte) ([]byte, error) {
	hdr := UnmarshalHeader(head)
	if hdr.Type != PageTypeData {
		return nil, fmt.Errorf("record %d: not a data page (type=%s)", hdr.ID, hdr.Type)
	}
	total := int(binary.LittleEndian.Uint32(head[dataTotalLenOff:]))
	out := make([]byte, 0, total)
	cap0 := dataPageCapacity(s.pageSize)
	n := total
	if n > cap0 {
		n = cap0
	}
	out = append(out, head[dataPayloadOff:dataPayloadOff+n]...)

	next := RecordID(binary.LittleEndian.Uint64(head[dataNextOverflowOff:]))
	for next != InvalidRecordID && len(out) < total {
		// Through the buffer pool: overflow pages written since the last
		// checkpoint exist only there.
		obuf, err := s.ReadPage(next)
		if err != nil {
			return nil, err
		}
		op := WrapOverflowPage(obuf)
		out = append(out, op.Data()...)
		s.UnpinPage(next)
		next = op.NextOverflow()
	}
	return out, nil
}

// Update replaces the record stored under id with data, freeing its old
// overflow chain (if any) first.
func (s *Store) Update(id RecordID, data []byte) error {
	tx, err := s.BeginTx()
	if err != nil {
		return err
	}
	if err := s.updateTx(tx, id, data); err != nil {
		s.AbortTx(tx)
		return err
	}
	return s.CommitTx(tx)
}

func (s *Store) updateTx(tx TxID, id RecordID, data []byte) error {
	old, err := s.ReadPage(id)
	if err != nil {
		return err
	}
	oldHdr := UnmarshalHeader(old)
	if oldHdr.Type != PageTypeData {
		s.UnpinPage(id)
		return fmt.Errorf("record %d: not a data page", id)
	}
	oldNext := RecordID(binary.LittleEndian.Uint64(old[dataNextOverflowOff:]))
	s.UnpinPage(id)
	s.freeOverflowChain(oldNext)

	head := NewPage(s.pageSize, PageTypeData, id)
	return s.writeRecordChunks(tx, id, head, data)
}

// Delete removes the record stored under id, freeing its page and any
// overflow chain.
func (s *Store) Delete(id RecordID) error {
	buf, err := s.ReadPage(id)
	if err != nil {
		return err
	}
	hdr := UnmarshalHeader(buf)
	if hdr.Type != PageTypeData {
		s.UnpinPage(id)
		return fmt.Errorf("record %d: not a data page", id)
	}
	next := RecordID(binary.LittleEndian.Uint64(buf[dataNextOverflowOff:]))
	s.UnpinPage(id)
	s.freeOverflowChain(next)
	s.FreePage(id)
	return nil
}

func (s *Store) freeOverflowChain(head RecordID) {
	id := head
	for id != InvalidRecordID {
		buf, err := s.ReadPage(id)
		if err != nil {
			return
		}
		next := WrapOverflowPage(buf).NextOverflow()
		s.UnpinPage(id)
		s.FreePage(id)
		id = next
	}
}
