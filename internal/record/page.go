// Package record implements the page-based record manager that
// internal/bplus treats as an external collaborator (see spec §6): a
// fixed-size-page file with a write-ahead log, crash recovery, a
// free-list, overflow chaining for oversized records, and a reachability
// garbage collector.
//
// The on-disk layout follows the same shape as a typical WAL-backed page
// store: a header page (page 0), fixed-size typed pages each carrying a
// 32-byte common header with a CRC32-C checksum, and a sequential WAL file
// replayed on open.
package record

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// DefaultPageSize is the default page size in bytes (8 KiB).
	DefaultPageSize = 8192

	// MinPageSize is the minimum allowed page size (4 KiB).
	MinPageSize = 4096

	// MaxPageSize is the maximum allowed page size (64 KiB).
	MaxPageSize = 65536

	// PageHeaderSize is the size of the common page header in bytes.
	// Layout:
	//   [0]     PageType   (1 byte)
	//   [1]     Flags      (1 byte)
	//   [2:4]   Reserved   (2 bytes)
	//   [4:12]  RecordID   (8 bytes, uint64 LE)
	//   [12:20] LSN        (8 bytes, uint64 LE)
	//   [20:24] CRC32      (4 bytes, uint32 LE)
	//   [24:32] Reserved   (8 bytes)
	PageHeaderSize = 32

	// InvalidRecordID is the null/invalid record pointer.
	InvalidRecordID RecordID = 0

	// OverflowThreshold is a nominal inline value size (bytes). The Store
	// does not consult it: a record spans an overflow page chain once it
	// exceeds a Data page's payload capacity (page size minus 44 bytes).
	OverflowThreshold = 1024
)

// PageType identifies the kind of data stored in a page.
type PageType uint8

const (
	PageTypeHeader   PageType = 0x01
	PageTypeData     PageType = 0x02
	PageTypeOverflow PageType = 0x03
	PageTypeFreeList PageType = 0x04
)

func (pt PageType) String() string {
	switch pt {
	case PageTypeHeader:
		return "Header"
	case PageTypeData:
		return "Data"
	case PageTypeOverflow:
		return "Overflow"
	case PageTypeFreeList:
		return "FreeList"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(pt))
	}
}

// RecordID is the 64-bit opaque identifier the record manager hands back
// from Insert and accepts in Fetch/Update/Delete (spec GLOSSARY: "recid").
type RecordID uint64

// LSN is a monotonically increasing Log Sequence Number.
type LSN uint64

// TxID is a transaction identifier.
type TxID uint64

// PageHeader is the 32-byte header present at the start of every page.
type PageHeader struct {
	Type     PageType
	Flags    uint8
	Reserved uint16
	ID       RecordID
	LSN      LSN
	CRC      uint32
	Pad      [8]byte
}

// MarshalHeader writes a PageHeader into the first PageHeaderSize bytes of buf.
func MarshalHeader(h *PageHeader, buf []byte) {
	if len(buf) < PageHeaderSize {
		panic("buffer too small for PageHeader")
	}
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(h.ID))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.LSN))
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC)
	copy(buf[24:32], h.Pad[:])
}

// UnmarshalHeader reads a PageHeader from the first PageHeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) PageHeader {
	var h PageHeader
	h.Type = PageType(buf[0])
	h.Flags = buf[1]
	h.Reserved = binary.LittleEndian.Uint16(buf[2:4])
	h.ID = RecordID(binary.LittleEndian.Uint64(buf[4:12]))
	h.LSN = LSN(binary.LittleEndian.Uint64(buf[12:20]))
	h.CRC = binary.LittleEndian.Uint32(buf[20:24])
	copy(h.Pad[:], buf[24:32])
	return h
}

// crcTable is the CRC32 (Castagnoli) table used throughout.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full page, treating the CRC
// field (bytes 20..24) as zero during computation.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:20])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(page[24:])
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	c := ComputePageCRC(page)
	binary.LittleEndian.PutUint32(page[20:24], c)
}

// VerifyPageCRC checks the CRC32 checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.LittleEndian.Uint32(page[20:24])
	computed := ComputePageCRC(page)
	if stored != computed {
		rid := RecordID(binary.LittleEndian.Uint64(page[4:12]))
		return fmt.Errorf("CRC mismatch on page %d: stored=%08x computed=%08x", rid, stored, computed)
	}
	return nil
}

// NewPage allocates a zeroed page buffer at the given size and writes its header.
func NewPage(pageSize int, pt PageType, id RecordID) []byte {
	buf := make([]byte, pageSize)
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return buf
}
