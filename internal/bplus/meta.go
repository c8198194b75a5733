package bplus

import "encoding/binary"

// marshalMeta encodes the RootRef-pointed meta record: the tree's actual
// root page id and its height, as two little-endian uint64s.
func marshalMeta(rootID RecordID, height int) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], uint64(rootID))
	binary.LittleEndian.PutUint64(buf[8:], uint64(height))
	return buf
}

func unmarshalMeta(data []byte) (rootID RecordID, height int, ok bool) {
	if len(data) != 16 {
		return InvalidRecordID, 0, false
	}
	return RecordID(binary.LittleEndian.Uint64(data[0:])), int(binary.LittleEndian.Uint64(data[8:])), true
}

// StoreMeta is the interface a caller-supplied store handle must satisfy
// for SaveMeta/OpenFromMeta: plain record CRUD plus a way to read/update a
// single caller-owned RecordID slot (record.Store.Header().RootRef /
// record.Store.UpdateHeader).
type StoreMeta interface {
	RecordManager
	RootRef() RecordID
	SetRootRef(id RecordID)
}

// SaveMeta persists t's (RootID, Height) pair: it writes or updates a
// small meta record and points store's RootRef slot at it, so a later
// process can find the tree again via OpenFromMeta.
func SaveMeta(store StoreMeta, t *Tree) error {
	data := marshalMeta(t.RootID, t.Height)
	metaID := store.RootRef()
	if metaID == InvalidRecordID {
		id, err := store.Insert(data)
		if err != nil {
			return wrapIO("insert tree meta record", err)
		}
		store.SetRootRef(id)
		return nil
	}
	if err := store.Update(metaID, data); err != nil {
		return wrapIO("update tree meta record", err)
	}
	return nil
}

// OpenFromMeta loads the (RootID, Height) pair a prior SaveMeta call
// persisted under store's RootRef slot and resumes the tree over ctx.
// It returns ErrNotFound if no tree has ever been saved against store.
func OpenFromMeta(ctx *Context, store StoreMeta) (*Tree, error) {
	metaID := store.RootRef()
	if metaID == InvalidRecordID {
		return nil, ErrNotFound
	}
	data, err := store.Fetch(metaID)
	if err != nil {
		return nil, wrapIO("fetch tree meta record", err)
	}
	rootID, height, ok := unmarshalMeta(data)
	if !ok {
		return nil, formatErrorf("tree meta record %d has unexpected length", metaID)
	}
	return OpenTree(ctx, rootID, height), nil
}
