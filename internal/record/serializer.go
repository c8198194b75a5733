package record

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Serializer turns arbitrary Go values into the opaque byte blobs the
// Store persists, and back. Spec §6 calls for "a default serializer for
// arbitrary objects" at the record-manager seam; gob is the stdlib
// analogue of that default object codec (no pack example supplies a
// generic replacement for it — see DESIGN.md).
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

func init() {
	// Decoding into the empty interface requires every concrete type
	// that crosses the wire to be registered up front. Cover the common
	// primitive/slice shapes callers are likely to store as keys or
	// values; a caller storing its own struct types must gob.Register
	// them itself before using GobSerializer.
	gob.Register(int(0))
	gob.Register(int32(0))
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register([]byte(nil))
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
}

// GobSerializer is the Store's default Serializer.
type GobSerializer struct{}

// Marshal gob-encodes v.
func (GobSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal gob-decodes data into v.
func (GobSerializer) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

// DefaultSerializer is the Store-wide default object serializer.
var DefaultSerializer Serializer = GobSerializer{}
