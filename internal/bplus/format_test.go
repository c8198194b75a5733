package bplus

import (
	"bytes"
	"testing"
)

func TestVarlong_RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}
	for _, v := range values {
		var buf bytes.Buffer
		putVarlong(&buf, v)
		r := bytes.NewReader(buf.Bytes())
		got, err := readVarlong(r)
		if err != nil {
			t.Fatalf("readVarlong(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("roundtrip %d got %d", v, got)
		}
	}
}

func TestLeadingValuePack_RoundTrip(t *testing.T) {
	cases := [][2][]byte{
		{nil, []byte("apple")},
		{[]byte("apple"), []byte("application")},
		{[]byte("application"), []byte("banana")},
		{[]byte("same"), []byte("same")},
		{[]byte("x"), nil},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		writeLeadingValuePack(&buf, c[0], c[1])
		r := bytes.NewReader(buf.Bytes())
		got, err := readLeadingValuePack(r, c[0])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, c[1]) {
			t.Fatalf("roundtrip prev=%q cur=%q got=%q", c[0], c[1], got)
		}
	}
}

func TestMarshalPage_LeafIntegerKeys(t *testing.T) {
	ctx := &Context{Cap: 4, MaxInlineRecordSize: DefaultMaxInlineRecordSize, LoadValues: true}
	p := newLeafPage(4)
	p.First = 1
	p.Keys[1], p.Values[1] = int32(10), "ten"
	p.Keys[2], p.Values[2] = int32(20), "twenty"
	p.Keys[3], p.Values[3] = Absent, Absent
	p.Previous = 7
	p.Next = 9

	data, err := MarshalPage(p, ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalPage(42, data, ctx)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.First != 1 || got.Previous != 7 || got.Next != 9 {
		t.Fatalf("got First=%d Previous=%d Next=%d", got.First, got.Previous, got.Next)
	}
	if got.Keys[1] != int32(10) || got.Values[1] != "ten" {
		t.Fatalf("slot 1 = %v/%v", got.Keys[1], got.Values[1])
	}
	if got.Keys[2] != int32(20) || got.Values[2] != "twenty" {
		t.Fatalf("slot 2 = %v/%v", got.Keys[2], got.Values[2])
	}
	if !isAbsent(got.Keys[3]) || !isAbsent(got.Values[3]) {
		t.Fatalf("slot 3 (sentinel) not absent: %v/%v", got.Keys[3], got.Values[3])
	}
}

func TestMarshalPage_LeafNegativeIntegerKeys(t *testing.T) {
	ctx := &Context{Cap: 4, MaxInlineRecordSize: DefaultMaxInlineRecordSize, LoadValues: true}
	p := newLeafPage(4)
	p.First = 0
	p.Keys[0], p.Values[0] = int32(-50), "a"
	p.Keys[1], p.Values[1] = int32(-3), "b"
	p.Keys[2], p.Values[2] = int32(7), "c"
	p.Keys[3], p.Values[3] = Absent, Absent

	data, err := MarshalPage(p, ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalPage(1, data, ctx)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []int32{-50, -3, 7}
	for i, w := range want {
		if got.Keys[i] != w {
			t.Fatalf("slot %d = %v, want %d", i, got.Keys[i], w)
		}
	}
}

func TestMarshalPage_LeafStringKeys(t *testing.T) {
	ctx := &Context{Cap: 4, MaxInlineRecordSize: DefaultMaxInlineRecordSize, LoadValues: true}
	p := newLeafPage(4)
	p.First = 1
	p.Keys[1], p.Values[1] = "apple", int32(1)
	p.Keys[2], p.Values[2] = "application", int32(2)
	p.Keys[3], p.Values[3] = Absent, Absent

	data, err := MarshalPage(p, ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalPage(1, data, ctx)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Keys[1] != "apple" || got.Keys[2] != "application" {
		t.Fatalf("keys = %v, %v", got.Keys[1], got.Keys[2])
	}
	if !isAbsent(got.Keys[3]) {
		t.Fatalf("slot 3 not absent: %v", got.Keys[3])
	}
}

func TestMarshalPage_NonLeafChildren(t *testing.T) {
	ctx := &Context{Cap: 4, MaxInlineRecordSize: DefaultMaxInlineRecordSize, LoadValues: true}
	p := newNonLeafPage(4)
	p.First = 2
	p.Keys[2], p.Children[2] = int32(100), RecordID(5)
	p.Keys[3], p.Children[3] = Absent, RecordID(6)

	data, err := MarshalPage(p, ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalPage(3, data, ctx)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.IsLeaf {
		t.Fatalf("decoded page claims to be a leaf")
	}
	if got.Children[2] != 5 || got.Children[3] != 6 {
		t.Fatalf("children = %v, %v", got.Children[2], got.Children[3])
	}
	if got.Keys[2] != int32(100) || !isAbsent(got.Keys[3]) {
		t.Fatalf("keys = %v, %v", got.Keys[2], got.Keys[3])
	}
}

func TestMarshalPage_PartialLoadSkipsValues(t *testing.T) {
	ctx := &Context{Cap: 4, MaxInlineRecordSize: DefaultMaxInlineRecordSize, LoadValues: true}
	p := newNonLeafPage(4)
	p.First = 3
	p.Keys[3], p.Children[3] = Absent, RecordID(11)

	data, err := MarshalPage(p, ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rawCtx := &Context{Cap: 4, LoadValues: false}
	got, err := UnmarshalPage(1, data, rawCtx)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Children[3] != 11 {
		t.Fatalf("children[3] = %v, want 11", got.Children[3])
	}
	if got.Keys != nil {
		t.Fatalf("expected Keys left nil in partial-load mode")
	}
}

func TestMarshalPage_AllAbsentLeaf(t *testing.T) {
	ctx := &Context{Cap: 4, MaxInlineRecordSize: DefaultMaxInlineRecordSize, LoadValues: true}
	p := newLeafPage(4)
	p.First = 3 // only the sentinel slot is "live", and it's absent

	data, err := MarshalPage(p, ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalPage(1, data, ctx)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !isAbsent(got.Keys[3]) || !isAbsent(got.Values[3]) {
		t.Fatalf("slot 3 not absent")
	}
}
