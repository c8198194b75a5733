// Package bplus implements the page-level B+Tree engine: fixed-capacity
// nodes with recursive insert/remove (split, underflow, borrow, merge), a
// doubly-linked leaf list, a bidirectional cursor, and a compact binary
// page format with delta-compressed keys and inline-vs-lazy value
// storage. It treats the record manager (internal/record), the enclosing
// tree-wide metadata, and the lazy-record machinery beyond its contract
// as external collaborators, exactly as scoped out in the specification
// this package implements.
package bplus

import "github.com/tinykv/bplustree/internal/record"

// RecordID is the opaque 64-bit record id the record manager hands out.
type RecordID = record.RecordID

// InvalidRecordID marks "no record" (a nil sibling pointer, an empty
// tree's absent root, ...).
const InvalidRecordID RecordID = record.InvalidRecordID

// RecordManager is the contract the page engine requires of its external
// collaborator (spec §6): opaque byte records keyed by RecordID, plus the
// raw-access pair used by defrag.
type RecordManager interface {
	Insert(data []byte) (RecordID, error)
	Fetch(id RecordID) ([]byte, error)
	Update(id RecordID, data []byte) error
	Delete(id RecordID) error
	ForceInsert(id RecordID, data []byte) error
	FetchRaw(id RecordID) ([]byte, error)
}

// Comparator orders two keys: negative if a < b, zero if equal, positive
// if a > b. A nil Comparator on a Context means "natural order" (see
// comparator.go).
type Comparator interface {
	Compare(a, b any) int
}

// KeySerializer turns a key into bytes and back. A nil KeySerializer on a
// Context means "use the record manager's default object serializer".
type KeySerializer interface {
	SerializeKey(k any) ([]byte, error)
	DeserializeKey(data []byte) (any, error)
}

// ValueSerializer turns a value into bytes and back. A nil ValueSerializer
// means "use the record manager's default object serializer".
type ValueSerializer interface {
	SerializeValue(v any) ([]byte, error)
	DeserializeValue(data []byte) (any, error)
}

// absent is the sentinel "no key"/"no value" marker used throughout the
// in-memory page representation — see DESIGN NOTES §9: "the sentinel is
// modelled as no key rather than a magic value".
type absent struct{}

// Absent is the exported witness of "no key present at this slot".
var Absent any = absent{}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(absent)
	return ok
}
