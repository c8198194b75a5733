package bplus

import "testing"

func TestTree_InsertFindBasic(t *testing.T) {
	tr := newTestTree(t, 4)
	mustInsert(t, tr, int32(1), "one")
	mustInsert(t, tr, int32(2), "two")
	mustInsert(t, tr, int32(3), "three")

	if got := mustFind(t, tr, int32(2)); got != "two" {
		t.Fatalf("find(2) = %v, want two", got)
	}
	if _, err := tr.Find(int32(99)); err != ErrNotFound {
		t.Fatalf("find(99) err = %v, want ErrNotFound", err)
	}
}

func TestTree_InsertReplace(t *testing.T) {
	tr := newTestTree(t, 4)
	mustInsert(t, tr, int32(1), "a")
	old, err := tr.Insert(int32(1), "b", true)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if old != "a" {
		t.Fatalf("replaced value = %v, want a", old)
	}
	if got := mustFind(t, tr, int32(1)); got != "b" {
		t.Fatalf("find(1) = %v, want b", got)
	}
}

func TestTree_InsertNoReplaceKeepsOld(t *testing.T) {
	tr := newTestTree(t, 4)
	mustInsert(t, tr, int32(1), "a")
	old, err := tr.Insert(int32(1), "b", false)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if old != "a" {
		t.Fatalf("existing value = %v, want a", old)
	}
	if got := mustFind(t, tr, int32(1)); got != "a" {
		t.Fatalf("find(1) = %v, want a (unchanged)", got)
	}
}

// TestTree_SplitsAndGrowsHeight drives enough insertions through a CAP=4
// tree to force leaf splits and a root overflow (spec §8 scenario S1/S2
// style coverage: small-capacity node forced through split/root-growth).
func TestTree_SplitsAndGrowsHeight(t *testing.T) {
	tr := newTestTree(t, 4)
	const n = 40
	for i := int32(0); i < n; i++ {
		mustInsert(t, tr, i, i*10)
	}
	if tr.Height == 0 {
		t.Fatalf("expected root to have grown past height 0 after %d inserts", n)
	}
	for i := int32(0); i < n; i++ {
		got := mustFind(t, tr, i)
		if got.(int32) != i*10 {
			t.Fatalf("find(%d) = %v, want %d", i, got, i*10)
		}
	}
}

// TestTree_CursorForwardOrder verifies the leaf-list cursor yields keys
// in ascending order across page boundaries (spec §4.6).
func TestTree_CursorForwardOrder(t *testing.T) {
	tr := newTestTree(t, 4)
	const n = 25
	for i := int32(0); i < n; i++ {
		mustInsert(t, tr, i, i)
	}
	cur, err := tr.NewCursor(nil)
	if err != nil {
		t.Fatalf("new cursor: %v", err)
	}
	var seen []int32
	seen = append(seen, cur.Key().(int32))
	for {
		if err := cur.Next(); err != nil {
			if err == ErrNotFound {
				break
			}
			t.Fatalf("next: %v", err)
		}
		seen = append(seen, cur.Key().(int32))
	}
	if len(seen) != n {
		t.Fatalf("cursor yielded %d entries, want %d", len(seen), n)
	}
	for i, v := range seen {
		if v != int32(i) {
			t.Fatalf("seen[%d] = %d, want %d", i, v, i)
		}
	}
}

// TestTree_CursorBackwardOrder mirrors the forward walk in reverse.
func TestTree_CursorBackwardOrder(t *testing.T) {
	tr := newTestTree(t, 4)
	const n = 25
	for i := int32(0); i < n; i++ {
		mustInsert(t, tr, i, i)
	}
	cur, err := tr.NewCursor(nil)
	if err != nil {
		t.Fatalf("new cursor: %v", err)
	}
	for i := 0; i < n-1; i++ {
		if err := cur.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	var seen []int32
	seen = append(seen, cur.Key().(int32))
	for {
		if err := cur.Previous(); err != nil {
			if err == ErrNotFound {
				break
			}
			t.Fatalf("previous: %v", err)
		}
		seen = append(seen, cur.Key().(int32))
	}
	if len(seen) != n {
		t.Fatalf("backward cursor yielded %d entries, want %d", len(seen), n)
	}
	for i, v := range seen {
		want := int32(n - 1 - i)
		if v != want {
			t.Fatalf("seen[%d] = %d, want %d", i, v, want)
		}
	}
}

// TestTree_RemoveTriggersMergeAndRootCollapse drives enough removals to
// force borrow/merge and a root-collapse (spec §8 S4/S5-style coverage).
func TestTree_RemoveTriggersMergeAndRootCollapse(t *testing.T) {
	tr := newTestTree(t, 4)
	const n = 40
	for i := int32(0); i < n; i++ {
		mustInsert(t, tr, i, i)
	}
	for i := int32(0); i < n; i++ {
		if _, err := tr.Remove(i); err != nil {
			t.Fatalf("remove(%d): %v", i, err)
		}
	}
	if tr.Height != 0 {
		t.Fatalf("height after draining tree = %d, want 0 (root collapsed to leaf)", tr.Height)
	}
	if _, _, err := tr.FindFirst(); err != ErrNotFound {
		t.Fatalf("findFirst on empty tree err = %v, want ErrNotFound", err)
	}
}

// TestTree_RemoveMissingKey exercises the not-found path.
func TestTree_RemoveMissingKey(t *testing.T) {
	tr := newTestTree(t, 4)
	mustInsert(t, tr, int32(1), "a")
	if _, err := tr.Remove(int32(2)); err != ErrNotFound {
		t.Fatalf("remove(2) err = %v, want ErrNotFound", err)
	}
}

// TestTree_MixedSequenceAgainstMap models spec §9's reference-oracle style
// property check: a fixed, unordered insert/remove sequence (with repeated
// keys) must agree with a plain Go map after the insert phase and after
// the remove phase.
func TestTree_MixedSequenceAgainstMap(t *testing.T) {
	tr := newTestTree(t, 4)
	model := make(map[int32]int32)

	seedSeq := []int32{
		7, 3, 19, 1, 42, 8, 15, 2, 99, 23,
		7, 3, 50, 11, 4, 6, 12, 19, 1, 33,
	}
	for i, k := range seedSeq {
		v := int32(i * 3)
		mustInsert(t, tr, k, v)
		model[k] = v
	}
	for k, want := range model {
		got := mustFind(t, tr, k)
		if got.(int32) != want {
			t.Fatalf("find(%d) = %v, want %d", k, got, want)
		}
	}

	removeOrder := []int32{3, 42, 99, 1, 23}
	for _, k := range removeOrder {
		want, inModel := model[k]
		got, err := tr.Remove(k)
		if !inModel {
			continue
		}
		if err != nil {
			t.Fatalf("remove(%d): %v", k, err)
		}
		if got.(int32) != want {
			t.Fatalf("remove(%d) = %v, want %d", k, got, want)
		}
		delete(model, k)
	}
	for k, want := range model {
		got := mustFind(t, tr, k)
		if got.(int32) != want {
			t.Fatalf("post-remove find(%d) = %v, want %d", k, got, want)
		}
	}
	for _, k := range removeOrder {
		if _, ok := model[k]; ok {
			continue
		}
		if _, err := tr.Find(k); err != ErrNotFound {
			t.Fatalf("find(%d) after remove err = %v, want ErrNotFound", k, err)
		}
	}
}

func TestTree_StringKeys(t *testing.T) {
	tr := newTestTree(t, 4)
	words := []string{"pear", "apple", "banana", "fig", "date", "cherry", "kiwi"}
	for i, w := range words {
		mustInsert(t, tr, w, int32(i))
	}
	for i, w := range words {
		got := mustFind(t, tr, w)
		if got.(int32) != int32(i) {
			t.Fatalf("find(%q) = %v, want %d", w, got, i)
		}
	}
}

func TestTree_NegativeIntegerKeys(t *testing.T) {
	tr := newTestTree(t, 4)
	keys := []int32{-50, -3, 0, 7, -200, 19}
	for _, k := range keys {
		mustInsert(t, tr, k, k)
	}
	for _, k := range keys {
		if got := mustFind(t, tr, k); got.(int32) != k {
			t.Fatalf("find(%d) = %v, want %d", k, got, k)
		}
	}
}

func TestTree_LazyValueRoundTrip(t *testing.T) {
	tr := newTestTree(t, 4)
	tr.ctx.MaxInlineRecordSize = 8 // force every value below into a lazy record
	big := make([]byte, 64)
	for i := range big {
		big[i] = byte(i)
	}
	mustInsert(t, tr, int32(1), big)
	got := mustFind(t, tr, int32(1))
	gotBytes, ok := got.([]byte)
	if !ok || len(gotBytes) != len(big) {
		t.Fatalf("find(1) = %v (%T), want %d-byte slice", got, got, len(big))
	}
	for i := range big {
		if gotBytes[i] != big[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, gotBytes[i], big[i])
		}
	}
}

func TestTree_DeleteDestroysWholeTree(t *testing.T) {
	tr := newTestTree(t, 4)
	for i := int32(0); i < 30; i++ {
		mustInsert(t, tr, i, i)
	}
	if err := tr.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
