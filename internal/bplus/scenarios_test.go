package bplus

import "testing"

// These mirror the canonical walk-throughs: a CAP=4 tree taken through
// first-insert, leaf split, replace, remove+merge, a multi-removal
// cascade, and a large value spilled to a lazy record.

func TestScenario_S1_FirstInsert(t *testing.T) {
	tr := newTestTree(t, 4)
	mustInsert(t, tr, int32(10), int32(100))

	if tr.Height != 0 {
		t.Fatalf("height = %d, want 0 (single leaf root)", tr.Height)
	}
	if got := mustFind(t, tr, int32(10)); got != int32(100) {
		t.Fatalf("find(10) = %v, want 100", got)
	}
	if _, err := tr.Find(int32(7)); err != ErrNotFound {
		t.Fatalf("find(7) err = %v, want ErrNotFound", err)
	}
}

func TestScenario_S2_LeafSplit(t *testing.T) {
	tr := newTestTree(t, 4)
	mustInsert(t, tr, int32(10), int32(100))
	mustInsert(t, tr, int32(20), int32(200))
	mustInsert(t, tr, int32(30), int32(300))
	mustInsert(t, tr, int32(40), int32(400))

	if tr.Height != 1 {
		t.Fatalf("height after 4th insert = %d, want 1 (root grew)", tr.Height)
	}
	if got := mustFind(t, tr, int32(30)); got != int32(300) {
		t.Fatalf("find(30) = %v, want 300", got)
	}

	cur, err := tr.NewCursor(nil)
	if err != nil {
		t.Fatalf("new cursor: %v", err)
	}
	want := []int32{10, 20, 30, 40}
	for i, w := range want {
		if cur.Key().(int32) != w {
			t.Fatalf("cursor[%d] = %v, want %d", i, cur.Key(), w)
		}
		if i < len(want)-1 {
			if err := cur.Next(); err != nil {
				t.Fatalf("next: %v", err)
			}
		}
	}
	if err := cur.Next(); err != ErrNotFound {
		t.Fatalf("cursor past end err = %v, want ErrNotFound", err)
	}
}

func TestScenario_S3_ReplaceSemantics(t *testing.T) {
	tr := newTestTree(t, 4)
	for _, kv := range [][2]int32{{10, 100}, {20, 200}, {30, 300}, {40, 400}} {
		mustInsert(t, tr, kv[0], kv[1])
	}

	existing, err := tr.Insert(int32(20), int32(222), true)
	if err != nil {
		t.Fatalf("insert replace: %v", err)
	}
	if existing != int32(200) {
		t.Fatalf("existing = %v, want 200", existing)
	}
	if got := mustFind(t, tr, int32(20)); got != int32(222) {
		t.Fatalf("find(20) = %v, want 222", got)
	}
	if got := mustFind(t, tr, int32(10)); got != int32(100) {
		t.Fatalf("find(10) = %v, want unchanged 100", got)
	}
}

func TestScenario_S4_RemoveAndMergeCollapsesRoot(t *testing.T) {
	tr := newTestTree(t, 4)
	for _, kv := range [][2]int32{{10, 100}, {20, 200}, {30, 300}, {40, 400}} {
		mustInsert(t, tr, kv[0], kv[1])
	}

	got, err := tr.Remove(int32(40))
	if err != nil {
		t.Fatalf("remove(40): %v", err)
	}
	if got != int32(400) {
		t.Fatalf("removed value = %v, want 400", got)
	}

	if tr.Height != 0 {
		t.Fatalf("height after remove+merge = %d, want 0 (root collapsed)", tr.Height)
	}
	for _, kv := range [][2]int32{{10, 100}, {20, 200}, {30, 300}} {
		if got := mustFind(t, tr, kv[0]); got != kv[1] {
			t.Fatalf("find(%d) = %v, want %d", kv[0], got, kv[1])
		}
	}
	if _, err := tr.Find(int32(40)); err != ErrNotFound {
		t.Fatalf("find(40) after remove err = %v, want ErrNotFound", err)
	}
}

func TestScenario_S5_RemoveCascade(t *testing.T) {
	tr := newTestTree(t, 4)
	for i := int32(1); i <= 8; i++ {
		mustInsert(t, tr, i, i*100)
	}
	for _, k := range []int32{1, 2, 3, 4} {
		if _, err := tr.Remove(k); err != nil {
			t.Fatalf("remove(%d): %v", k, err)
		}
	}

	for _, k := range []int32{1, 2, 3, 4} {
		if _, err := tr.Find(k); err != ErrNotFound {
			t.Fatalf("find(%d) after cascade err = %v, want ErrNotFound", k, err)
		}
	}
	for _, k := range []int32{5, 6, 7, 8} {
		if got := mustFind(t, tr, k); got != k*100 {
			t.Fatalf("find(%d) = %v, want %d", k, got, k*100)
		}
	}

	cur, err := tr.NewCursor(nil)
	if err != nil {
		t.Fatalf("new cursor: %v", err)
	}
	want := []int32{5, 6, 7, 8}
	for i, w := range want {
		if cur.Key().(int32) != w {
			t.Fatalf("cursor[%d] = %v, want %d", i, cur.Key(), w)
		}
		if i < len(want)-1 {
			if err := cur.Next(); err != nil {
				t.Fatalf("next: %v", err)
			}
		}
	}
}

func TestScenario_S6_LargeValueGoesLazy(t *testing.T) {
	tr := newTestTree(t, 4)
	tr.ctx.MaxInlineRecordSize = 32

	big := make([]byte, 64)
	for i := range big {
		big[i] = byte(i + 1)
	}
	mustInsert(t, tr, int32(1), big)

	got := mustFind(t, tr, int32(1))
	gotBytes, ok := got.([]byte)
	if !ok || len(gotBytes) != 64 {
		t.Fatalf("find(1) = %v (%T), want 64-byte slice", got, got)
	}
	for i := range big {
		if gotBytes[i] != big[i] {
			t.Fatalf("byte %d = %d, want %d", i, gotBytes[i], big[i])
		}
	}

	if _, err := tr.Remove(int32(1)); err != nil {
		t.Fatalf("remove(1): %v", err)
	}
	if _, err := tr.Find(int32(1)); err != ErrNotFound {
		t.Fatalf("find(1) after remove err = %v, want ErrNotFound", err)
	}
}
