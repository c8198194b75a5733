package bplus

import (
	"path/filepath"
	"testing"

	"github.com/tinykv/bplustree/internal/record"
)

func newTestContext(t *testing.T, cap int) *Context {
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
	return &Context{
		Cap:                 cap,
		MaxInlineRecordSize: DefaultMaxInlineRecordSize,
		LoadValues:          true,
		RecordManager:       s,
	}
}

func newTestTree(t *testing.T, cap int) *Tree {
	t.Helper()
	ctx := newTestContext(t, cap)
	tr, err := NewTree(ctx)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}
	return tr
}

func mustInsert(t *testing.T, tr *Tree, key, value any) {
	t.Helper()
	if _, err := tr.Insert(key, value, true); err != nil {
		t.Fatalf("insert(%v): %v", key, err)
	}
}

func mustFind(t *testing.T, tr *Tree, key any) any {
	t.Helper()
	v, err := tr.Find(key)
	if err != nil {
		t.Fatalf("find(%v): %v", key, err)
	}
	return v
}
