package record

import "fmt"

// Recover reads the WAL from the beginning and replays only fully
// committed transactions whose page images have an LSN greater than the
// last checkpoint LSN. Uncommitted and aborted transactions are
// discarded.
func (s *Store) Recover() error {
	records, err := ReadAllRecords(s.walPath)
	if err != nil {
		return fmt.Errorf("recover read WAL: %w", err)
	}
	if len(records) == 0 {
		// Continue numbering after the last checkpoint so LSNs stay
		// monotonic across reopen.
		s.wal.SetNextLSN(s.hdr.CheckpointLSN + 1)
		return nil
	}

	type txRecords struct {
		pages     []*WALRecord
		committed bool
		aborted   bool
	}
	txMap := make(map[TxID]*txRecords)

	var maxLSN LSN
	var maxTxID TxID

	for _, rec := range records {
		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}
		if rec.TxID > maxTxID {
			maxTxID = rec.TxID
		}

		switch rec.Type {
		case WALRecordBegin:
			txMap[rec.TxID] = &txRecords{}
		case WALRecordPageImage:
			tr, ok := txMap[rec.TxID]
			if !ok {
				tr = &txRecords{}
				txMap[rec.TxID] = tr
			}
			tr.pages = append(tr.pages, rec)
		case WALRecordCommit:
			if tr, ok := txMap[rec.TxID]; ok {
				tr.committed = true
			}
		case WALRecordAbort:
			if tr, ok := txMap[rec.TxID]; ok {
				tr.aborted = true
			}
		case WALRecordCheckpoint:
			// marks that all prior transactions are already flushed.
		}
	}

	var applied int
	for _, tr := range txMap {
		if !tr.committed || tr.aborted {
			continue
		}
		for _, rec := range tr.pages {
			if rec.LSN <= LSN(s.hdr.CheckpointLSN) {
				continue
			}
			if err := s.writePageRaw(rec.ID, rec.Data); err != nil {
				return fmt.Errorf("recover apply page %d: %w", rec.ID, err)
			}
			applied++
		}
	}

	if applied > 0 {
		if err := s.file.Sync(); err != nil {
			return err
		}

		s.hdr.CheckpointLSN = maxLSN
		if TxID(maxTxID+1) > s.hdr.NextTxID {
			s.hdr.NextTxID = TxID(maxTxID + 1)
		}

		for _, tr := range txMap {
			if !tr.committed {
				continue
			}
			for _, rec := range tr.pages {
				if RecordID(rec.ID+1) > s.hdr.NextRecordID {
					s.hdr.NextRecordID = RecordID(rec.ID + 1)
					s.hdr.PageCount = uint64(s.hdr.NextRecordID)
				}
			}
		}

		hdrBuf := MarshalHeaderPage(s.hdr, s.pageSize)
		if err := s.writePageRaw(0, hdrBuf); err != nil {
			return fmt.Errorf("recover header page: %w", err)
		}
		if err := s.file.Sync(); err != nil {
			return err
		}
	}

	nextLSN := maxLSN + 1
	if nextLSN <= s.hdr.CheckpointLSN {
		nextLSN = s.hdr.CheckpointLSN + 1
	}
	s.wal.SetNextLSN(nextLSN)

	return s.wal.Truncate()
}
