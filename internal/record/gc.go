package record

import (
	"encoding/binary"
	"fmt"
)

// GCResult holds statistics about a garbage-collection run.
type GCResult struct {
	TotalPages     int
	ReachablePages int
	FreeBefore     int
	FreeAfter      int
	Reclaimed      int
	Errors         []string
}

// RootLister is supplied by the caller (the B+Tree in internal/bplus) and
// returns every RecordID the tree currently considers live: every page of
// the tree itself, plus every lazy-record RecordID referenced from a leaf
// value. The record manager doesn't know the shape of a B+Tree page — it
// only owns pages, WAL, free-list and overflow chains — so it can't walk
// that graph itself; this is the generalization of the teacher's
// SQL-catalog-rooted walk to "walk whatever roots the caller names"
// (see SPEC_FULL.md §12).
type RootLister func() ([]RecordID, error)

// GC performs a full reachability-based garbage collection: every
// RecordID returned by list, plus its overflow chain, is marked
// reachable; every other allocated, non-free page is an orphan and is
// added to the free-list. GC does not shrink the file. It must be called
// with no other writers active.
func (s *Store) GC(list RootLister) (*GCResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalPages := int(s.hdr.NextRecordID)
	if totalPages < 1 {
		return &GCResult{}, nil
	}

	result := &GCResult{
		TotalPages: totalPages,
		FreeBefore: s.freeMgr.Count(),
	}

	reachable := make(map[RecordID]struct{}, totalPages)
	reachable[0] = struct{}{} // header page

	roots, err := list()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("root list: %v", err))
	}
	for _, root := range roots {
		s.markReachable(root, reachable, result)
	}
	s.walkFreeListChainLocked(s.hdr.FreeListRoot, reachable)

	result.ReachablePages = len(reachable)

	freeSet := make(map[RecordID]struct{})
	for _, id := range s.freeMgr.AllFree() {
		freeSet[id] = struct{}{}
	}

	var reclaimed int
	for id := RecordID(0); id < RecordID(totalPages); id++ {
		if _, ok := reachable[id]; ok {
			continue
		}
		if _, ok := freeSet[id]; ok {
			continue
		}
		s.freeMgr.Free(id)
		reclaimed++
	}

	result.Reclaimed = reclaimed
	result.FreeAfter = s.freeMgr.Count()

	if reclaimed > 0 {
		s.mu.Unlock()
		err := s.Checkpoint()
		s.mu.Lock()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("checkpoint: %v", err))
		}
	}

	return result, nil
}

// markReachable marks id and, if it is a Data record, its overflow chain.
func (s *Store) markReachable(id RecordID, reachable map[RecordID]struct{}, result *GCResult) {
	if id == InvalidRecordID {
		return
	}
	if _, seen := reachable[id]; seen {
		return
	}
	reachable[id] = struct{}{}

	// Pages are read through the buffer pool (s.mu is already held, so
	// not via ReadPage): pages written since the last checkpoint exist
	// only there.
	buf, err := s.readPageCached(id)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("read page %d: %v", id, err))
		return
	}
	s.UnpinPage(id)
	hdr := UnmarshalHeader(buf)
	if hdr.Type != PageTypeData {
		return
	}
	next := RecordID(binary.LittleEndian.Uint64(buf[dataNextOverflowOff:]))
	for next != InvalidRecordID {
		if _, seen := reachable[next]; seen {
			break
		}
		reachable[next] = struct{}{}
		obuf, err := s.readPageCached(next)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("read overflow %d: %v", next, err))
			return
		}
		s.UnpinPage(next)
		next = WrapOverflowPage(obuf).NextOverflow()
	}
}

func (s *Store) walkFreeListChainLocked(head RecordID, reachable map[RecordID]struct{}) {
	id := head
	for id != InvalidRecordID {
		if _, seen := reachable[id]; seen {
			break
		}
		reachable[id] = struct{}{}
		buf, err := s.readPageRaw(id)
		if err != nil {
			break
		}
		fl := WrapFreeListPage(buf)
		id = fl.NextFreeList()
	}
}
