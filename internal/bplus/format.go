package bplus

import (
	"bytes"
	"fmt"
	"math"
)

// Page kind tag (spec §4.5).
const (
	kindLeaf    byte = 1
	kindNonLeaf byte = 2
)

// Key-form tags, tried by the encoder in this priority order.
const (
	formAllNull           byte = 0
	formAllIntegers       byte = 1
	formAllIntegersNeg    byte = 2
	formAllLongs          byte = 3
	formAllLongsNeg       byte = 4
	formAllStrings        byte = 5
	formAllOther          byte = 6
)

// Value-slot tags (spec §4.5's "values block").
const (
	valueNull  byte = 0
	valueLazy  byte = 1
	valueInlne byte = 2
)

// putVarlong appends v as a 7-bits-per-byte unsigned varint.
func putVarlong(buf *bytes.Buffer, v uint64) {
	for v >= 0x80 {
		buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

// readVarlong reads a varlong from r.
func readVarlong(r *bytes.Reader) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift > 63 {
			return 0, formatErrorf("varlong too long")
		}
	}
}

func zigUnsigned(v int64) (mag uint64, neg bool) {
	if v < 0 {
		if v == math.MinInt64 {
			return uint64(math.MaxInt64) + 1, true
		}
		return uint64(-v), true
	}
	return uint64(v), false
}

// writeLeadingValuePack writes cur relative to prev as
// [len+1 (0=null)][common_prefix_len][remaining bytes] (spec §4.5). For
// this page engine ignore_leading is always 0.
func writeLeadingValuePack(buf *bytes.Buffer, prev, cur []byte) {
	if cur == nil {
		putVarlong(buf, 0)
		return
	}
	putVarlong(buf, uint64(len(cur))+1)
	commonLen := 0
	maxCommon := len(prev)
	if len(cur) < maxCommon {
		maxCommon = len(cur)
	}
	if maxCommon > 32767 {
		maxCommon = 32767
	}
	for commonLen < maxCommon && prev[commonLen] == cur[commonLen] {
		commonLen++
	}
	putVarlong(buf, uint64(commonLen))
	buf.Write(cur[commonLen:])
}

// readLeadingValuePack reads one leading-value-packed buffer relative to
// prev. Returns nil for a null entry.
func readLeadingValuePack(r *bytes.Reader, prev []byte) ([]byte, error) {
	lenPlus1, err := readVarlong(r)
	if err != nil {
		return nil, err
	}
	if lenPlus1 == 0 {
		return nil, nil
	}
	total := int(lenPlus1 - 1)
	commonLen, err := readVarlong(r)
	if err != nil {
		return nil, err
	}
	tailLen := total - int(commonLen)
	if tailLen < 0 {
		return nil, formatErrorf("leading-value pack: negative tail length")
	}
	tail := make([]byte, tailLen)
	if _, err := readFull(r, tail); err != nil {
		return nil, err
	}
	out := make([]byte, total)
	copy(out, prev[:commonLen])
	copy(out[commonLen:], tail)
	return out, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		b, err := r.ReadByte()
		if err != nil {
			return n, err
		}
		buf[n] = b
		n++
	}
	return n, nil
}

// detectKeyForm inspects the live keys (already excluding the unused low
// slots) and returns the first applicable form in priority order.
func detectKeyForm(keys []any) byte {
	allAbsent := true
	allInt32 := true
	allInt64 := true
	allString := true
	for _, k := range keys {
		if isAbsent(k) {
			continue
		}
		allAbsent = false
		if _, ok := k.(int32); !ok {
			allInt32 = false
		}
		if _, ok := asInt64(k); !ok {
			allInt64 = false
		}
		if _, ok := k.(string); !ok {
			allString = false
		}
	}
	switch {
	case allAbsent:
		return formAllNull
	case allInt32:
		if firstNonAbsent(keys).(int32) < 0 {
			return formAllIntegersNeg
		}
		return formAllIntegers
	case allInt64 && longsSpanFits(keys):
		v, _ := asInt64(firstNonAbsent(keys))
		if v < 0 {
			return formAllLongsNeg
		}
		return formAllLongs
	case allString:
		return formAllStrings
	default:
		return formAllOther
	}
}

func asInt64(k any) (int64, bool) {
	switch v := k.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	default:
		return 0, false
	}
}

func firstNonAbsent(keys []any) any {
	for _, k := range keys {
		if !isAbsent(k) {
			return k
		}
	}
	return Absent
}

// longsSpanFits implements the "max-min span < LONG_MAX/2, LONG_MIN
// disqualifies" rule from spec §4.5.
func longsSpanFits(keys []any) bool {
	first := true
	var min, max int64
	for _, k := range keys {
		if isAbsent(k) {
			continue
		}
		v, _ := asInt64(k)
		if v == math.MinInt64 {
			return false
		}
		if first {
			min, max, first = v, v, false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if first {
		return true
	}
	return uint64(max-min) < uint64(math.MaxInt64)/2
}

// encodeKeys writes the keys block for live slots keys (spec §4.5).
func encodeKeys(buf *bytes.Buffer, ctx *Context, keys []any) error {
	form := detectKeyForm(keys)
	buf.WriteByte(form)
	switch form {
	case formAllNull:
		return nil
	case formAllIntegers, formAllIntegersNeg:
		return encodeIntegerDeltas(buf, keys, form == formAllIntegersNeg, 32)
	case formAllLongs, formAllLongsNeg:
		return encodeIntegerDeltas(buf, keys, form == formAllLongsNeg, 64)
	case formAllStrings:
		var prev []byte
		for _, k := range keys {
			cur := stringKeyBytes(k)
			writeLeadingValuePack(buf, prev, cur)
			if cur != nil {
				prev = cur
			}
		}
		return nil
	default: // formAllOther
		return encodeOtherKeys(buf, ctx, keys)
	}
}

func stringKeyBytes(k any) []byte {
	if isAbsent(k) {
		return nil
	}
	return []byte(k.(string))
}

func encodeIntegerDeltas(buf *bytes.Buffer, keys []any, neg bool, bits int) error {
	first := firstNonAbsent(keys)
	v0, _ := asInt64(first)
	mag, _ := zigUnsigned(v0)
	putVarlong(buf, mag)
	running := v0
	wroteFirst := false
	for _, k := range keys {
		if !wroteFirst {
			wroteFirst = true
			continue // the first non-absent slot was just written as the base
		}
		if isAbsent(k) {
			putVarlong(buf, 0)
			continue
		}
		v, _ := asInt64(k)
		delta := v - running
		if delta <= 0 {
			return invariantErrorf("non-ascending integer keys in page (delta=%d)", delta)
		}
		putVarlong(buf, uint64(delta))
		running = v
	}
	_ = neg
	_ = bits
	return nil
}

func decodeIntegerDeltas(r *bytes.Reader, n int, neg bool, bits int) ([]any, error) {
	mag, err := readVarlong(r)
	if err != nil {
		return nil, err
	}
	var v0 int64
	if neg {
		v0 = -int64(mag)
	} else {
		v0 = int64(mag)
	}
	out := make([]any, n)
	if n == 0 {
		return out, nil
	}
	out[0] = toKeyWidth(v0, bits)
	running := v0
	for i := 1; i < n; i++ {
		delta, err := readVarlong(r)
		if err != nil {
			return nil, err
		}
		if delta == 0 {
			out[i] = Absent
			continue
		}
		running += int64(delta)
		out[i] = toKeyWidth(running, bits)
	}
	return out, nil
}

func toKeyWidth(v int64, bits int) any {
	if bits == 32 {
		return int32(v)
	}
	return v
}

func encodeOtherKeys(buf *bytes.Buffer, ctx *Context, keys []any) error {
	if ctx.KeySerializer == nil {
		for _, k := range keys {
			if isAbsent(k) {
				putVarlong(buf, 0)
				continue
			}
			data, err := serializeKey(ctx, k)
			if err != nil {
				return err
			}
			putVarlong(buf, uint64(len(data))+1)
			buf.Write(data)
		}
		return nil
	}
	var prev []byte
	for _, k := range keys {
		if isAbsent(k) {
			writeLeadingValuePack(buf, prev, nil)
			continue
		}
		data, err := serializeKey(ctx, k)
		if err != nil {
			return err
		}
		writeLeadingValuePack(buf, prev, data)
		prev = data
	}
	return nil
}

func decodeKeys(r *bytes.Reader, ctx *Context, n int) ([]any, error) {
	form, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch form {
	case formAllNull:
		out := make([]any, n)
		for i := range out {
			out[i] = Absent
		}
		return out, nil
	case formAllIntegers:
		return decodeIntegerDeltas(r, n, false, 32)
	case formAllIntegersNeg:
		return decodeIntegerDeltas(r, n, true, 32)
	case formAllLongs:
		return decodeIntegerDeltas(r, n, false, 64)
	case formAllLongsNeg:
		return decodeIntegerDeltas(r, n, true, 64)
	case formAllStrings:
		out := make([]any, n)
		var prev []byte
		for i := 0; i < n; i++ {
			data, err := readLeadingValuePack(r, prev)
			if err != nil {
				return nil, err
			}
			if data == nil {
				out[i] = Absent
				continue
			}
			out[i] = string(data)
			prev = data
		}
		return out, nil
	case formAllOther:
		return decodeOtherKeys(r, ctx, n)
	default:
		return nil, formatErrorf("unrecognized key form tag 0x%02x", form)
	}
}

func decodeOtherKeys(r *bytes.Reader, ctx *Context, n int) ([]any, error) {
	out := make([]any, n)
	if ctx.KeySerializer == nil {
		for i := 0; i < n; i++ {
			lenPlus1, err := readVarlong(r)
			if err != nil {
				return nil, err
			}
			if lenPlus1 == 0 {
				out[i] = Absent
				continue
			}
			data := make([]byte, lenPlus1-1)
			if _, err := readFull(r, data); err != nil {
				return nil, err
			}
			k, err := deserializeKey(ctx, data)
			if err != nil {
				return nil, err
			}
			out[i] = k
		}
		return out, nil
	}
	var prev []byte
	for i := 0; i < n; i++ {
		data, err := readLeadingValuePack(r, prev)
		if err != nil {
			return nil, err
		}
		if data == nil {
			out[i] = Absent
			continue
		}
		k, err := deserializeKey(ctx, data)
		if err != nil {
			return nil, err
		}
		out[i] = k
		prev = data
	}
	return out, nil
}

// encodeValues writes the leaf values block (spec §4.5). It may insert
// oversized values as their own lazy record via ctx.RecordManager.
func encodeValues(buf *bytes.Buffer, ctx *Context, values []any) error {
	for _, v := range values {
		switch vv := v.(type) {
		case LazyRef:
			buf.WriteByte(valueLazy)
			putVarlong(buf, uint64(vv.ID))
		default:
			if isAbsent(v) {
				buf.WriteByte(valueNull)
				continue
			}
			data, err := serializeValue(ctx, v)
			if err != nil {
				return err
			}
			if len(data) <= ctx.MaxInlineRecordSize {
				buf.WriteByte(valueInlne)
				putVarlong(buf, uint64(len(data)))
				buf.Write(data)
			} else {
				id, err := ctx.RecordManager.Insert(data)
				if err != nil {
					return wrapIO("insert lazy record", err)
				}
				buf.WriteByte(valueLazy)
				putVarlong(buf, uint64(id))
			}
		}
	}
	return nil
}

func decodeValues(r *bytes.Reader, n int) ([]any, error) {
	out := make([]any, n)
	for i := 0; i < n; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case valueNull:
			out[i] = Absent
		case valueLazy:
			id, err := readVarlong(r)
			if err != nil {
				return nil, err
			}
			out[i] = LazyRef{ID: RecordID(id)}
		case valueInlne:
			length, err := readVarlong(r)
			if err != nil {
				return nil, err
			}
			data := make([]byte, length)
			if _, err := readFull(r, data); err != nil {
				return nil, err
			}
			out[i] = rawInlineValue(data)
		default:
			return nil, formatErrorf("unrecognized value tag 0x%02x", tag)
		}
	}
	return out, nil
}

// rawInlineValue marks bytes that still need ctx.ValueSerializer applied;
// decodePage resolves these once it has a Context.
type rawInlineValue []byte

// MarshalPage serializes a page into its on-disk record format (spec
// §4.5). ctx supplies the record manager (for spilling oversized values
// into lazy records) and the key/value serializers.
func MarshalPage(p *Page, ctx *Context) ([]byte, error) {
	var buf bytes.Buffer
	if p.IsLeaf {
		buf.WriteByte(kindLeaf)
		putVarlong(&buf, uint64(p.Previous))
		putVarlong(&buf, uint64(p.Next))
	} else {
		buf.WriteByte(kindNonLeaf)
	}
	if p.cap > 255 {
		return nil, formatErrorf("CAP %d exceeds the 1-byte `first` encoding", p.cap)
	}
	buf.WriteByte(byte(p.First))

	if !p.IsLeaf {
		for i := p.First; i < p.cap; i++ {
			putVarlong(&buf, uint64(p.Children[i]))
		}
	}

	if err := encodeKeys(&buf, ctx, p.Keys[p.First:p.cap]); err != nil {
		return nil, err
	}
	if p.IsLeaf {
		if err := encodeValues(&buf, ctx, p.Values[p.First:p.cap]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalPage decodes a page record. If ctx.LoadValues is false,
// decoding stops after `first` (and children, for non-leaf pages); Keys
// and Values are left nil, matching spec §4.5's "partial load" mode used
// only as a raw-data carrier for defrag.
func UnmarshalPage(recID RecordID, data []byte, ctx *Context) (*Page, error) {
	r := bytes.NewReader(data)
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	p := &Page{RecID: recID, cap: ctx.Cap}
	switch kindByte {
	case kindLeaf:
		p.IsLeaf = true
		prev, err := readVarlong(r)
		if err != nil {
			return nil, err
		}
		next, err := readVarlong(r)
		if err != nil {
			return nil, err
		}
		p.Previous = RecordID(prev)
		p.Next = RecordID(next)
	case kindNonLeaf:
		p.IsLeaf = false
	default:
		return nil, formatErrorf("unrecognized page kind tag 0x%02x", kindByte)
	}

	firstByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.First = int(firstByte)
	n := p.cap - p.First

	if !p.IsLeaf {
		p.Children = make([]RecordID, p.cap)
		for i := p.First; i < p.cap; i++ {
			cid, err := readVarlong(r)
			if err != nil {
				return nil, err
			}
			p.Children[i] = RecordID(cid)
		}
	}

	if !ctx.LoadValues {
		return p, nil
	}

	keys, err := decodeKeys(r, ctx, n)
	if err != nil {
		return nil, fmt.Errorf("decode keys: %w", err)
	}
	p.Keys = make([]any, p.cap)
	for i := 0; i < p.First; i++ {
		p.Keys[i] = Absent
	}
	copy(p.Keys[p.First:], keys)

	if p.IsLeaf {
		rawValues, err := decodeValues(r, n)
		if err != nil {
			return nil, fmt.Errorf("decode values: %w", err)
		}
		p.Values = make([]any, p.cap)
		for i := 0; i < p.First; i++ {
			p.Values[i] = Absent
		}
		for i, rv := range rawValues {
			if raw, ok := rv.(rawInlineValue); ok {
				v, err := deserializeValue(ctx, []byte(raw))
				if err != nil {
					return nil, err
				}
				p.Values[p.First+i] = v
			} else {
				p.Values[p.First+i] = rv
			}
		}
	}

	return p, nil
}

func serializeKey(ctx *Context, k any) ([]byte, error) {
	if ctx.KeySerializer != nil {
		return ctx.KeySerializer.SerializeKey(k)
	}
	// Encode through a pointer so the default serializer records the
	// dynamic type, which deserializeKey needs to decode into an any.
	return ctx.defaultSerializer().Marshal(&k)
}

func deserializeKey(ctx *Context, data []byte) (any, error) {
	if ctx.KeySerializer != nil {
		return ctx.KeySerializer.DeserializeKey(data)
	}
	var v any
	if err := ctx.defaultSerializer().Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func serializeValue(ctx *Context, v any) ([]byte, error) {
	if ctx.ValueSerializer != nil {
		return ctx.ValueSerializer.SerializeValue(v)
	}
	// See serializeKey: encoded as an interface value for deserializeValue.
	return ctx.defaultSerializer().Marshal(&v)
}

func deserializeValue(ctx *Context, data []byte) (any, error) {
	if ctx.ValueSerializer != nil {
		return ctx.ValueSerializer.DeserializeValue(data)
	}
	var v any
	if err := ctx.defaultSerializer().Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
