package bplus

// LazyRef is the in-memory handle for a value that lives in its own
// record rather than inline in the leaf page (spec §1: "the lazy-record
// machinery beyond its contract: large values stored as separate
// records, fetched on demand, deleted when their owning entry is
// removed"). It appears as a leaf value slot's contents between
// deserialize and the first findValue/Cursor read that dereferences it.
type LazyRef struct {
	ID RecordID
}

// resolveValue dereferences a LazyRef through ctx's record manager,
// returning the underlying value. Non-LazyRef values are returned as-is
// (already resolved).
func resolveValue(ctx *Context, v any) (any, error) {
	ref, ok := v.(LazyRef)
	if !ok {
		return v, nil
	}
	data, err := ctx.RecordManager.Fetch(ref.ID)
	if err != nil {
		return nil, wrapIO("fetch lazy record", err)
	}
	return deserializeValue(ctx, data)
}

// deleteIfLazy frees the backing record of v, if v is a LazyRef.
func deleteIfLazy(rm RecordManager, v any) error {
	ref, ok := v.(LazyRef)
	if !ok {
		return nil
	}
	return wrapIO("delete lazy record", rm.Delete(ref.ID))
}
