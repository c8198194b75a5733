package bplus

import "testing"

func TestSaveAndOpenFromMeta_RoundTrip(t *testing.T) {
	tr := newTestTree(t, 4)
	for _, kv := range [][2]int32{{1, 10}, {2, 20}, {3, 30}, {4, 40}} {
		mustInsert(t, tr, kv[0], kv[1])
	}

	store := tr.ctx.RecordManager.(StoreMeta)
	if err := SaveMeta(store, tr); err != nil {
		t.Fatalf("save meta: %v", err)
	}

	reopened, err := OpenFromMeta(tr.ctx, store)
	if err != nil {
		t.Fatalf("open from meta: %v", err)
	}
	if reopened.RootID != tr.RootID || reopened.Height != tr.Height {
		t.Fatalf("reopened = (root=%v height=%d), want (root=%v height=%d)",
			reopened.RootID, reopened.Height, tr.RootID, tr.Height)
	}
	if got := mustFind(t, reopened, int32(3)); got != int32(30) {
		t.Fatalf("find(3) on reopened tree = %v, want 30", got)
	}
}

func TestSaveMeta_UpdatesExistingSlotOnSecondCall(t *testing.T) {
	tr := newTestTree(t, 4)
	mustInsert(t, tr, int32(1), int32(100))

	store := tr.ctx.RecordManager.(StoreMeta)
	if err := SaveMeta(store, tr); err != nil {
		t.Fatalf("save meta 1: %v", err)
	}
	firstSlot := store.RootRef()

	mustInsert(t, tr, int32(2), int32(200))
	mustInsert(t, tr, int32(3), int32(300))
	mustInsert(t, tr, int32(4), int32(400)) // forces a split, changes RootID/Height

	if err := SaveMeta(store, tr); err != nil {
		t.Fatalf("save meta 2: %v", err)
	}
	if store.RootRef() != firstSlot {
		t.Fatalf("RootRef slot changed across SaveMeta calls: %v -> %v", firstSlot, store.RootRef())
	}

	reopened, err := OpenFromMeta(tr.ctx, store)
	if err != nil {
		t.Fatalf("open from meta: %v", err)
	}
	if reopened.RootID != tr.RootID || reopened.Height != tr.Height {
		t.Fatalf("reopened = (root=%v height=%d), want (root=%v height=%d)",
			reopened.RootID, reopened.Height, tr.RootID, tr.Height)
	}
}

func TestOpenFromMeta_NoPriorSaveReturnsNotFound(t *testing.T) {
	ctx := newTestContext(t, 4)
	store := ctx.RecordManager.(StoreMeta)
	if _, err := OpenFromMeta(ctx, store); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
