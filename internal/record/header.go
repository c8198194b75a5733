package record

import (
	"encoding/binary"
	"fmt"
)

// Page 0 ("the header page") carries store-wide bookkeeping. Unlike the
// teacher's Superblock, it carries no catalog/table-root field: per spec §6,
// "no separate header record is defined by the engine; that is the
// enclosing tree's concern". RootRef is a single caller-managed slot a tree
// implementation can use to remember its own root RecordID across restarts;
// the engine never interprets it.
//
// Layout (fits in one page):
//
//	Offset  Size  Field
//	0       32    Common PageHeader (Type=Header, ID=0)
//	32      8     Magic            [8]byte "BPTSTORE"
//	40      4     FormatVersion    uint32 LE
//	44      4     PageSize         uint32 LE
//	48      8     PageCount        uint64 LE
//	56      8     FeatureFlags     uint64 LE
//	64      8     RootRef          uint64 LE (caller-defined root RecordID slot)
//	72      8     FreeListRoot     uint64 LE
//	80      8     CheckpointLSN    uint64 LE
//	88      8     NextTxID         uint64 LE
//	96      8     NextRecordID     uint64 LE
const (
	StoreMagic           = "BPTSTORE"
	CurrentFormatVersion uint32 = 1

	hdrMagicOff         = PageHeaderSize
	hdrFormatVersionOff = hdrMagicOff + 8
	hdrPageSizeOff      = hdrFormatVersionOff + 4
	hdrPageCountOff     = hdrPageSizeOff + 4
	hdrFeatureFlagsOff  = hdrPageCountOff + 8
	hdrRootRefOff       = hdrFeatureFlagsOff + 8
	hdrFreeListRootOff  = hdrRootRefOff + 8
	hdrCheckpointLSNOff = hdrFreeListRootOff + 8
	hdrNextTxIDOff      = hdrCheckpointLSNOff + 8
	hdrNextRecordIDOff  = hdrNextTxIDOff + 8
)

// FeatureFlag is a bitmask of optional on-disk format features.
type FeatureFlag uint64

// SupportedFeatures is the set of features this build understands. Any
// flag outside this set causes the file to be rejected.
const SupportedFeatures FeatureFlag = 0

// StoreHeader holds the parsed contents of page 0.
type StoreHeader struct {
	FormatVersion uint32
	PageSize      uint32
	PageCount     uint64
	FeatureFlags  FeatureFlag
	RootRef       RecordID
	FreeListRoot  RecordID
	CheckpointLSN LSN
	NextTxID      TxID
	NextRecordID  RecordID
}

// MarshalHeaderPage serializes a StoreHeader into a full page buffer.
func MarshalHeaderPage(sb *StoreHeader, pageSize int) []byte {
	buf := NewPage(pageSize, PageTypeHeader, 0)
	copy(buf[hdrMagicOff:hdrMagicOff+8], StoreMagic)
	binary.LittleEndian.PutUint32(buf[hdrFormatVersionOff:], sb.FormatVersion)
	binary.LittleEndian.PutUint32(buf[hdrPageSizeOff:], sb.PageSize)
	binary.LittleEndian.PutUint64(buf[hdrPageCountOff:], sb.PageCount)
	binary.LittleEndian.PutUint64(buf[hdrFeatureFlagsOff:], uint64(sb.FeatureFlags))
	binary.LittleEndian.PutUint64(buf[hdrRootRefOff:], uint64(sb.RootRef))
	binary.LittleEndian.PutUint64(buf[hdrFreeListRootOff:], uint64(sb.FreeListRoot))
	binary.LittleEndian.PutUint64(buf[hdrCheckpointLSNOff:], uint64(sb.CheckpointLSN))
	binary.LittleEndian.PutUint64(buf[hdrNextTxIDOff:], uint64(sb.NextTxID))
	binary.LittleEndian.PutUint64(buf[hdrNextRecordIDOff:], uint64(sb.NextRecordID))
	SetPageCRC(buf)
	return buf
}

// UnmarshalHeaderPage decodes page 0 from buf, validating magic, format
// version, feature flags, and CRC.
func UnmarshalHeaderPage(buf []byte) (*StoreHeader, error) {
	if len(buf) < MinPageSize {
		return nil, fmt.Errorf("header page too small: %d bytes", len(buf))
	}
	if err := VerifyPageCRC(buf); err != nil {
		return nil, fmt.Errorf("header page CRC: %w", err)
	}
	magic := string(buf[hdrMagicOff : hdrMagicOff+8])
	if magic != StoreMagic {
		return nil, fmt.Errorf("bad magic %q, expected %q", magic, StoreMagic)
	}
	sb := &StoreHeader{
		FormatVersion: binary.LittleEndian.Uint32(buf[hdrFormatVersionOff:]),
		PageSize:      binary.LittleEndian.Uint32(buf[hdrPageSizeOff:]),
		PageCount:     binary.LittleEndian.Uint64(buf[hdrPageCountOff:]),
		FeatureFlags:  FeatureFlag(binary.LittleEndian.Uint64(buf[hdrFeatureFlagsOff:])),
		RootRef:       RecordID(binary.LittleEndian.Uint64(buf[hdrRootRefOff:])),
		FreeListRoot:  RecordID(binary.LittleEndian.Uint64(buf[hdrFreeListRootOff:])),
		CheckpointLSN: LSN(binary.LittleEndian.Uint64(buf[hdrCheckpointLSNOff:])),
		NextTxID:      TxID(binary.LittleEndian.Uint64(buf[hdrNextTxIDOff:])),
		NextRecordID:  RecordID(binary.LittleEndian.Uint64(buf[hdrNextRecordIDOff:])),
	}
	if sb.FormatVersion != CurrentFormatVersion {
		return nil, fmt.Errorf("unsupported format version %d (this build supports %d)",
			sb.FormatVersion, CurrentFormatVersion)
	}
	if sb.PageSize < MinPageSize || sb.PageSize > MaxPageSize {
		return nil, fmt.Errorf("page size %d out of range [%d..%d]", sb.PageSize, MinPageSize, MaxPageSize)
	}
	if sb.PageSize&(sb.PageSize-1) != 0 {
		return nil, fmt.Errorf("page size %d is not a power of two", sb.PageSize)
	}
	if sb.FeatureFlags & ^SupportedFeatures != 0 {
		return nil, fmt.Errorf("unsupported feature flags: %016x", sb.FeatureFlags)
	}
	return sb, nil
}

// NewStoreHeader creates a default StoreHeader for a new store.
func NewStoreHeader(pageSize uint32) *StoreHeader {
	return &StoreHeader{
		FormatVersion: CurrentFormatVersion,
		PageSize:      pageSize,
		PageCount:     1,
		RootRef:       InvalidRecordID,
		FreeListRoot:  InvalidRecordID,
		CheckpointLSN: 0,
		NextTxID:      1,
		NextRecordID:  1,
	}
}
