package record

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// PageFrame is an in-memory cached page. Instead of living on an intrusive
// LRU list it just remembers the tick of its last access; the pool's
// EvictionPolicy decides what that tick means.
type PageFrame struct {
	id     RecordID
	buf    []byte
	dirty  bool
	lsn    LSN
	pinned int
	ref    uint64
}

// BufferPoolConfig configures the page buffer pool.
type BufferPoolConfig struct {
	MaxPages int
}

// EvictionPolicy decides which unpinned page frame to reclaim when the
// pool is full (the Frame-eviction-policy seam pattern, generalized from a
// frame-slice to this pool's id-keyed map).
type EvictionPolicy interface {
	touch(f *PageFrame)
	victim(pages map[RecordID]*PageFrame) *PageFrame
}

// lruPolicy reclaims the unpinned frame with the oldest access tick.
type lruPolicy struct {
	tick uint64
}

func (p *lruPolicy) touch(f *PageFrame) {
	p.tick++
	f.ref = p.tick
}

func (p *lruPolicy) victim(pages map[RecordID]*PageFrame) *PageFrame {
	var oldest *PageFrame
	for _, f := range pages {
		if f.pinned != 0 {
			continue
		}
		if oldest == nil || f.ref < oldest.ref {
			oldest = f
		}
	}
	return oldest
}

// PageBufferPool is a page cache with dirty-page tracking and a pluggable
// eviction policy.
type PageBufferPool struct {
	mu       sync.Mutex
	maxPages int
	pages    map[RecordID]*PageFrame
	policy   EvictionPolicy
}

func newPageBufferPool(maxPages int) *PageBufferPool {
	if maxPages <= 0 {
		maxPages = 1024
	}
	return &PageBufferPool{
		maxPages: maxPages,
		pages:    make(map[RecordID]*PageFrame, maxPages),
		policy:   &lruPolicy{},
	}
}

func (bp *PageBufferPool) get(id RecordID) (*PageFrame, bool) {
	f, ok := bp.pages[id]
	if ok {
		bp.policy.touch(f)
	}
	return f, ok
}

func (bp *PageBufferPool) put(f *PageFrame) {
	if existing, exists := bp.pages[f.id]; exists {
		bp.policy.touch(existing)
		return
	}
	for len(bp.pages) >= bp.maxPages {
		if !bp.evictOne() {
			break
		}
	}
	bp.pages[f.id] = f
	bp.policy.touch(f)
}

func (bp *PageBufferPool) remove(id RecordID) {
	delete(bp.pages, id)
}

// evictOne reclaims one unpinned frame. Returns false if every cached
// frame is pinned.
func (bp *PageBufferPool) evictOne() bool {
	victim := bp.policy.victim(bp.pages)
	if victim == nil {
		return false
	}
	delete(bp.pages, victim.id)
	return true
}

func (bp *PageBufferPool) dirtyPages() []*PageFrame {
	var out []*PageFrame
	for _, f := range bp.pages {
		if f.dirty {
			out = append(out, f)
		}
	}
	return out
}

// StoreConfig configures a Store.
type StoreConfig struct {
	DBPath        string
	WALPath       string
	PageSize      int
	MaxCachePages int
}

// Store is the page-level record manager: the "external collaborator" of
// spec §6. It owns the database file, the WAL, the buffer pool, the
// free-list and the header page, and exposes Insert/Fetch/Update/Delete
// plus ForceInsert/FetchRaw for the page engine's defrag hook.
type Store struct {
	mu       sync.RWMutex
	file     *os.File
	wal      *WALFile
	pool     *PageBufferPool
	hdr      *StoreHeader
	freeMgr  *FreeManager
	pageSize int
	path     string
	walPath  string
	closed   bool
}

// Open opens or creates a page-based record store.
func Open(cfg StoreConfig) (*Store, error) {
	ps := cfg.PageSize
	if ps == 0 {
		ps = DefaultPageSize
	}
	if ps < MinPageSize || ps > MaxPageSize || ps&(ps-1) != 0 {
		return nil, fmt.Errorf("invalid page size %d", ps)
	}

	isNew := false
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		isNew = true
	}

	f, err := os.OpenFile(cfg.DBPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open store file: %w", err)
	}

	s := &Store{
		file:     f,
		pageSize: ps,
		path:     cfg.DBPath,
		walPath:  cfg.WALPath,
		pool:     newPageBufferPool(cfg.MaxCachePages),
		freeMgr:  NewFreeManager(),
	}

	if isNew {
		hdr := NewStoreHeader(uint32(ps))
		buf := MarshalHeaderPage(hdr, ps)
		if _, err := f.WriteAt(buf, 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header page: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, err
		}
		s.hdr = hdr
	} else {
		hdr, err := s.readHeaderPage()
		if err != nil {
			f.Close()
			return nil, err
		}
		s.hdr = hdr
		s.pageSize = int(hdr.PageSize)

		if hdr.FreeListRoot != InvalidRecordID {
			if err := s.freeMgr.LoadFromDisk(hdr.FreeListRoot, s.readPageRaw); err != nil {
				f.Close()
				return nil, fmt.Errorf("load freelist: %w", err)
			}
		}
	}

	walPath := cfg.WALPath
	if walPath == "" {
		walPath = cfg.DBPath + ".wal"
	}
	s.walPath = walPath
	wf, err := OpenWALFile(walPath, s.pageSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open WAL file: %w", err)
	}
	s.wal = wf

	if !isNew {
		if err := s.Recover(); err != nil {
			wf.Close()
			f.Close()
			return nil, fmt.Errorf("WAL recovery: %w", err)
		}
	}

	return s, nil
}

func (s *Store) readHeaderPage() (*StoreHeader, error) {
	buf := make([]byte, s.pageSize)
	if _, err := s.file.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header page: %w", err)
	}
	return UnmarshalHeaderPage(buf)
}

func (s *Store) readPageRaw(id RecordID) ([]byte, error) {
	buf := make([]byte, s.pageSize)
	off := int64(id) * int64(s.pageSize)
	if _, err := s.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read page %d: %w", id, err)
	}
	if err := VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Store) writePageRaw(id RecordID, buf []byte) error {
	SetPageCRC(buf)
	off := int64(id) * int64(s.pageSize)
	if _, err := s.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	return nil
}

// ReadPage returns a page by ID, using the buffer pool cache. The page is
// pinned; call UnpinPage when done.
func (s *Store) ReadPage(id RecordID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readPageCached(id)
}

func (s *Store) readPageCached(id RecordID) ([]byte, error) {
	s.pool.mu.Lock()
	if f, ok := s.pool.get(id); ok {
		f.pinned++
		s.pool.mu.Unlock()
		return f.buf, nil
	}
	s.pool.mu.Unlock()

	buf, err := s.readPageRaw(id)
	if err != nil {
		return nil, err
	}
	f := &PageFrame{id: id, buf: buf, pinned: 1}
	s.pool.mu.Lock()
	s.pool.put(f)
	s.pool.mu.Unlock()
	return buf, nil
}

// UnpinPage decrements the pin count.
func (s *Store) UnpinPage(id RecordID) {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	if f, ok := s.pool.get(id); ok && f.pinned > 0 {
		f.pinned--
	}
}

// WritePage writes (updates) a page through the WAL. The caller should
// have called BeginTx beforehand. The page's CRC is computed when it is
// written to the store file.
func (s *Store) WritePage(txID TxID, id RecordID, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &WALRecord{
		Type: WALRecordPageImage,
		TxID: txID,
		ID:   id,
		Data: append([]byte{}, buf...),
	}
	lsn, err := s.wal.AppendRecord(rec)
	if err != nil {
		return fmt.Errorf("WAL write page %d: %w", id, err)
	}

	s.pool.mu.Lock()
	f, ok := s.pool.get(id)
	if !ok {
		f = &PageFrame{id: id, buf: make([]byte, s.pageSize)}
		s.pool.put(f)
	}
	copy(f.buf, buf)
	f.dirty = true
	f.lsn = lsn
	s.pool.mu.Unlock()

	return nil
}

// BeginTx starts a new transaction and writes a BEGIN record to the WAL.
func (s *Store) BeginTx() (TxID, error) {
	s.mu.Lock()
	txID := s.hdr.NextTxID
	s.hdr.NextTxID++
	s.mu.Unlock()

	rec := &WALRecord{Type: WALRecordBegin, TxID: txID}
	if _, err := s.wal.AppendRecord(rec); err != nil {
		return 0, err
	}
	return txID, nil
}

// CommitTx writes a COMMIT record and fsyncs the WAL.
func (s *Store) CommitTx(txID TxID) error {
	rec := &WALRecord{Type: WALRecordCommit, TxID: txID}
	if _, err := s.wal.AppendRecord(rec); err != nil {
		return err
	}
	return s.wal.Sync()
}

// AbortTx writes an ABORT record; dirty pages for this tx are discarded
// on the next recovery or checkpoint.
func (s *Store) AbortTx(txID TxID) error {
	rec := &WALRecord{Type: WALRecordAbort, TxID: txID}
	_, err := s.wal.AppendRecord(rec)
	return err
}

// AllocPage allocates a new page (from the free-list or by extending the
// file). The page is pinned in the cache.
func (s *Store) AllocPage() (RecordID, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.freeMgr.Alloc()
	if id == InvalidRecordID {
		id = s.hdr.NextRecordID
		s.hdr.NextRecordID++
		s.hdr.PageCount++
	}
	buf := make([]byte, s.pageSize)
	f := &PageFrame{id: id, buf: buf, pinned: 1}
	s.pool.mu.Lock()
	s.pool.put(f)
	s.pool.mu.Unlock()
	return id, buf
}

// FreePage marks a page as free for reuse.
func (s *Store) FreePage(id RecordID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeMgr.Free(id)
	s.pool.mu.Lock()
	s.pool.remove(id)
	s.pool.mu.Unlock()
}

func (s *Store) freeOldFreeListChain(head RecordID) {
	id := head
	for id != InvalidRecordID {
		buf, err := s.readPageRaw(id)
		if err != nil {
			break
		}
		fl := WrapFreeListPage(buf)
		next := fl.NextFreeList()
		s.freeMgr.Free(id)
		id = next
	}
}

// Checkpoint flushes all dirty pages, writes an updated header page,
// fsyncs the file, then truncates the WAL.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &WALRecord{Type: WALRecordCheckpoint}
	lsn, err := s.wal.AppendRecord(rec)
	if err != nil {
		return err
	}
	if err := s.wal.Sync(); err != nil {
		return err
	}

	s.pool.mu.Lock()
	dirty := s.pool.dirtyPages()
	for _, f := range dirty {
		SetPageCRC(f.buf)
		if err := s.writePageRaw(f.id, f.buf); err != nil {
			s.pool.mu.Unlock()
			return fmt.Errorf("checkpoint flush page %d: %w", f.id, err)
		}
		f.dirty = false
	}
	s.pool.mu.Unlock()

	oldFLHead := s.hdr.FreeListRoot
	if oldFLHead != InvalidRecordID {
		s.freeOldFreeListChain(oldFLHead)
	}

	flHead, flPages := s.freeMgr.FlushToDisk(s.pageSize, func() (RecordID, []byte) {
		id := s.hdr.NextRecordID
		s.hdr.NextRecordID++
		s.hdr.PageCount++
		return id, make([]byte, s.pageSize)
	})
	for _, fb := range flPages {
		id := RecordID(binary.LittleEndian.Uint64(fb[4:12]))
		if err := s.writePageRaw(id, fb); err != nil {
			return fmt.Errorf("checkpoint freelist page: %w", err)
		}
	}

	s.hdr.FreeListRoot = flHead
	s.hdr.CheckpointLSN = lsn
	hdrBuf := MarshalHeaderPage(s.hdr, s.pageSize)
	if err := s.writePageRaw(0, hdrBuf); err != nil {
		return fmt.Errorf("checkpoint header page: %w", err)
	}

	if err := s.file.Sync(); err != nil {
		return err
	}

	return s.wal.Truncate()
}

// Header returns a copy of the current store header.
func (s *Store) Header() StoreHeader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.hdr
}

// UpdateHeader updates the in-memory header fields. It does NOT write to
// disk — use Checkpoint for that. A tree implementation uses this to
// persist its own root RecordID in the RootRef slot.
func (s *Store) UpdateHeader(fn func(h *StoreHeader)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.hdr)
}

// RootRef returns the caller-managed root RecordID slot (see header.go).
func (s *Store) RootRef() RecordID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hdr.RootRef
}

// SetRootRef updates the caller-managed root RecordID slot. Like
// UpdateHeader, this does not itself write to disk — Checkpoint persists
// it, same as any other header field.
func (s *Store) SetRootRef(id RecordID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hdr.RootRef = id
}

// PageSize returns the configured page size.
func (s *Store) PageSize() int { return s.pageSize }

// Close performs a final checkpoint and closes all files.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.Checkpoint(); err != nil {
		_ = s.wal.Close()
		_ = s.file.Close()
		return err
	}
	if err := s.wal.Close(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// WALPath returns the WAL file path.
func (s *Store) WALPath() string { return s.walPath }
