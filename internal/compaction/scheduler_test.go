package compaction

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tinykv/bplustree/internal/record"
)

func openTestStore(t *testing.T) *record.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := record.Open(record.StoreConfig{
		DBPath:   filepath.Join(dir, "test.db"),
		PageSize: record.DefaultPageSize,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScheduler_RunNow(t *testing.T) {
	s := openTestStore(t)
	id, err := s.Insert([]byte("hello"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	roots := func() ([]record.RecordID, error) {
		return []record.RecordID{id}, nil
	}
	sched := New(s, roots)
	if err := sched.RunNow(); err != nil {
		t.Fatalf("run now: %v", err)
	}

	got, err := s.Fetch(id)
	if err != nil || string(got) != "hello" {
		t.Fatalf("fetch after checkpoint+gc = %q, %v", got, err)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := openTestStore(t)
	roots := func() ([]record.RecordID, error) { return nil, nil }
	sched := New(s, roots)

	if err := sched.Start("@every 1h", "@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	sched.Stop()

	if _, _, res := sched.LastResult(); res != nil {
		t.Fatalf("expected no gc run yet within an hourly schedule, got %+v", res)
	}
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	s := openTestStore(t)
	sched := New(s, func() ([]record.RecordID, error) { return nil, nil })
	if err := sched.Start("not a cron expression", ""); err == nil {
		t.Fatalf("expected error for invalid checkpoint schedule")
	}
}
