package bplus

// Page is the fixed-capacity B+Tree node (spec §3). Slots [First, CAP)
// are live; slot CAP-1 of a rightmost page carries the sentinel (absence
// of a key). Leaf pages use Values and the Previous/Next sibling links;
// non-leaf pages use Children.
type Page struct {
	RecID    RecordID
	IsLeaf   bool
	First    int
	Keys     []any
	Values   []any      // leaf only
	Children []RecordID // non-leaf only
	Previous RecordID   // leaf only
	Next     RecordID   // leaf only

	cap int
}

// newLeafPage allocates an empty leaf page of the given capacity: slot
// CAP-1 always holds the sentinel, so an otherwise-empty rightmost page
// has fill 1 (First == CAP-1), not 0.
func newLeafPage(cap int) *Page {
	p := &Page{IsLeaf: true, First: cap - 1, cap: cap}
	p.Keys = make([]any, cap)
	p.Values = make([]any, cap)
	for i := range p.Keys {
		p.Keys[i] = Absent
		p.Values[i] = Absent
	}
	return p
}

// newNonLeafPage allocates an empty non-leaf page (see newLeafPage).
func newNonLeafPage(cap int) *Page {
	p := &Page{IsLeaf: false, First: cap - 1, cap: cap}
	p.Keys = make([]any, cap)
	p.Children = make([]RecordID, cap)
	for i := range p.Keys {
		p.Keys[i] = Absent
		p.Children[i] = InvalidRecordID
	}
	return p
}

// Cap returns the page's fixed capacity.
func (p *Page) Cap() int { return p.cap }

// Fill returns the number of live slots.
func (p *Page) Fill() int { return p.cap - p.First }

// largestKey returns the key that best describes "the largest key beneath
// this page": the sentinel if this page is rightmost (holds Absent at
// CAP-1), otherwise the real key at CAP-1.
func (p *Page) largestKey() any {
	return p.Keys[p.cap-1]
}

// isRightmost reports whether this page is the sentinel-bearing,
// rightmost page at its level (spec §3).
func (p *Page) isRightmost() bool {
	return isAbsent(p.Keys[p.cap-1])
}

// realFill is Fill minus the sentinel slot when this page is rightmost:
// the count of actual (key, value/child) entries, which is what the
// HALF threshold in spec §4.4 is measured against. For a non-rightmost
// page every live slot holds a real entry, so realFill == Fill.
func (p *Page) realFill() int {
	f := p.Fill()
	if p.isRightmost() {
		return f - 1
	}
	return f
}

// findChildren does a binary search over slots [First, CAP-1], returning
// the smallest slot index whose stored key is >= key (spec §4.1). The
// sentinel slot (absence) compares greater than any real key, so it
// always matches if reached.
func (p *Page) findChildren(cmp Comparator, key any) int {
	lo, hi := p.First, p.cap-1
	for lo < hi {
		mid := (lo + hi) / 2
		if compare(cmp, p.Keys[mid], key) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// insert_entry shifts keys/values left by one across [First..slot] and
// writes (k,v) at slot (spec §4.1). Requires First > 0.
func (p *Page) insertEntry(slot int, k, v any) {
	for i := p.First - 1; i < slot-1; i++ {
		p.Keys[i] = p.Keys[i+1]
		p.Values[i] = p.Values[i+1]
	}
	p.First--
	p.Keys[slot-1] = k
	p.Values[slot-1] = v
}

// insert_child is insert_entry for the non-leaf side.
func (p *Page) insertChild(slot int, k any, child RecordID) {
	for i := p.First - 1; i < slot-1; i++ {
		p.Keys[i] = p.Keys[i+1]
		p.Children[i] = p.Children[i+1]
	}
	p.First--
	p.Keys[slot-1] = k
	p.Children[slot-1] = child
}

// remove_entry shifts keys/values right by one across [First..slot),
// clears the freed First slot, and increments First (spec §4.1).
func (p *Page) removeEntry(slot int) {
	for i := slot; i > p.First; i-- {
		p.Keys[i] = p.Keys[i-1]
		if p.IsLeaf {
			p.Values[i] = p.Values[i-1]
		} else {
			p.Children[i] = p.Children[i-1]
		}
	}
	p.Keys[p.First] = Absent
	if p.IsLeaf {
		p.Values[p.First] = Absent
	} else {
		p.Children[p.First] = InvalidRecordID
	}
	p.First++
}

// copyEntries bulk-copies [srcFrom, srcFrom+n) of src's keys/values into
// dst starting at dstFrom, tolerating overlap within the same page (spec
// §4.1's copy_entries).
func copyEntries(dst *Page, dstFrom int, src *Page, srcFrom, n int) {
	if dst == src && dstFrom > srcFrom {
		for i := n - 1; i >= 0; i-- {
			dst.Keys[dstFrom+i] = src.Keys[srcFrom+i]
			dst.Values[dstFrom+i] = src.Values[srcFrom+i]
		}
		return
	}
	for i := 0; i < n; i++ {
		dst.Keys[dstFrom+i] = src.Keys[srcFrom+i]
		dst.Values[dstFrom+i] = src.Values[srcFrom+i]
	}
}

// copyChildren is copyEntries for the non-leaf side.
func copyChildren(dst *Page, dstFrom int, src *Page, srcFrom, n int) {
	if dst == src && dstFrom > srcFrom {
		for i := n - 1; i >= 0; i-- {
			dst.Keys[dstFrom+i] = src.Keys[srcFrom+i]
			dst.Children[dstFrom+i] = src.Children[srcFrom+i]
		}
		return
	}
	for i := 0; i < n; i++ {
		dst.Keys[dstFrom+i] = src.Keys[srcFrom+i]
		dst.Children[dstFrom+i] = src.Children[srcFrom+i]
	}
}

// setEntry is an unconditional single-slot write (leaf side).
func (p *Page) setEntry(slot int, k, v any) {
	p.Keys[slot] = k
	p.Values[slot] = v
}

// setChild is an unconditional single-slot write (non-leaf side).
func (p *Page) setChild(slot int, k any, child RecordID) {
	p.Keys[slot] = k
	p.Children[slot] = child
}

// clearBelow zeroes/absents slots [0, first) for hygiene after a split
// (spec §4.3: "Null/zero the now-unused low slots").
func (p *Page) clearBelow(first int) {
	for i := 0; i < first; i++ {
		p.Keys[i] = Absent
		if p.IsLeaf {
			p.Values[i] = Absent
		} else {
			p.Children[i] = InvalidRecordID
		}
	}
}
