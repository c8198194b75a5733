package bplus

// Defrag copies every page and lazy record reachable from src's root
// into dst, preserving record ids, and returns a Tree over the copy
// (spec §4.7). Pages are moved via FetchRaw/ForceInsert as opaque
// bytes. Each page is deserialized only to find its child and
// lazy-record ids and is never re-serialized, so the copy is
// byte-for-byte identical to the source regardless of key form or
// serializer in use.
func Defrag(src *Tree, dst RecordManager) (*Tree, error) {
	seen := make(map[RecordID]bool)
	if err := defragSubtree(src, dst, src.RootID, src.Height, seen); err != nil {
		return nil, err
	}
	dstCtx := &Context{
		Cap:                 src.ctx.Cap,
		Comparator:          src.ctx.Comparator,
		KeySerializer:       src.ctx.KeySerializer,
		ValueSerializer:     src.ctx.ValueSerializer,
		MaxInlineRecordSize: src.ctx.MaxInlineRecordSize,
		LoadValues:          src.ctx.LoadValues,
		RecordManager:       dst,
	}
	return OpenTree(dstCtx, src.RootID, src.Height), nil
}

func defragSubtree(src *Tree, dst RecordManager, id RecordID, height int, seen map[RecordID]bool) error {
	if id == InvalidRecordID || seen[id] {
		return nil
	}
	seen[id] = true

	raw, err := src.ctx.RecordManager.FetchRaw(id)
	if err != nil {
		return wrapIO("fetch raw page", err)
	}
	if err := dst.ForceInsert(id, raw); err != nil {
		return wrapIO("force-insert page", err)
	}

	p, err := UnmarshalPage(id, raw, src.ctx)
	if err != nil {
		return err
	}

	if height > 0 {
		for i := p.First; i < p.cap; i++ {
			if err := defragSubtree(src, dst, p.Children[i], height-1, seen); err != nil {
				return err
			}
		}
		return nil
	}

	for i := p.First; i < p.cap; i++ {
		ref, ok := p.Values[i].(LazyRef)
		if !ok || seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		data, err := src.ctx.RecordManager.FetchRaw(ref.ID)
		if err != nil {
			return wrapIO("fetch raw lazy record", err)
		}
		if err := dst.ForceInsert(ref.ID, data); err != nil {
			return wrapIO("force-insert lazy record", err)
		}
	}
	return nil
}
