package bplus

import "bytes"

// naturalComparator orders the Go primitive types the key-form fast paths
// in format.go understand natively: int32, int64/int, string, []byte.
// Selected when a Context carries no explicit Comparator (spec §4.1: "with
// no comparator, keys must be naturally ordered").
type naturalComparator struct{}

func (naturalComparator) Compare(a, b any) int {
	switch av := a.(type) {
	case int32:
		bv := b.(int32)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case int64:
		bv := toInt64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case int:
		return naturalComparator{}.Compare(int64(av), b)
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case []byte:
		return bytes.Compare(av, b.([]byte))
	default:
		panic("bplus: natural order comparator cannot order non-primitive keys; supply a Comparator")
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	default:
		panic("bplus: mismatched key types under natural order")
	}
}

// compare compares a and b under cmp, treating absence as greater than
// any real key (spec §4.1, §9).
func compare(cmp Comparator, a, b any) int {
	aAbs, bAbs := isAbsent(a), isAbsent(b)
	switch {
	case aAbs && bAbs:
		return 0
	case aAbs:
		return 1
	case bAbs:
		return -1
	}
	if cmp == nil {
		cmp = naturalComparator{}
	}
	return cmp.Compare(a, b)
}
