package bplus

import "fmt"

// Verify walks the whole tree checking every structural invariant from
// spec §3/§4: ascending key order within a page, the sentinel appearing
// only on the rightmost page at each level, and leaf-list back-pointer
// consistency. It returns a list of issues found (empty slice == healthy),
// mirroring the teacher's VerifyDB issue-list style rather than failing
// fast on the first problem, so a single run reports everything wrong.
func Verify(t *Tree) ([]string, error) {
	var issues []string
	if err := verifySubtree(t.ctx, t.RootID, t.Height, true, &issues); err != nil {
		return issues, err
	}
	if t.Height == 0 {
		return issues, nil
	}
	if err := verifyLeafChain(t.ctx, t.RootID, t.Height, &issues); err != nil {
		return issues, err
	}
	return issues, nil
}

func verifySubtree(ctx *Context, id RecordID, height int, rightmost bool, issues *[]string) error {
	if id == InvalidRecordID {
		*issues = append(*issues, "nil page reached above a leaf")
		return nil
	}
	p, err := loadPage(ctx, id)
	if err != nil {
		return err
	}

	if p.isRightmost() != rightmost {
		*issues = append(*issues, fmt.Sprintf("page %v: isRightmost()=%v, expected %v from parent position",
			id, p.isRightmost(), rightmost))
	}

	last := p.Keys[p.First]
	for i := p.First + 1; i < p.cap; i++ {
		k := p.Keys[i]
		if isAbsent(k) {
			if i != p.cap-1 {
				*issues = append(*issues, fmt.Sprintf("page %v: absent key at non-sentinel slot %d", id, i))
			}
			continue
		}
		if compare(ctx.cmp(), k, last) < 0 {
			*issues = append(*issues, fmt.Sprintf("page %v: keys out of order at slot %d (%v < %v)", id, i, k, last))
		}
		last = k
	}

	if height == 0 {
		return nil
	}
	for i := p.First; i < p.cap; i++ {
		childRightmost := rightmost && i == p.cap-1
		if err := verifySubtree(ctx, p.Children[i], height-1, childRightmost, issues); err != nil {
			return err
		}
	}
	return nil
}

// verifyLeafChain descends to the leftmost leaf and walks Next pointers,
// checking that every step's reciprocal Previous pointer agrees.
func verifyLeafChain(ctx *Context, rootID RecordID, height int, issues *[]string) error {
	id := rootID
	for h := height; h > 0; h-- {
		p, err := loadPage(ctx, id)
		if err != nil {
			return err
		}
		id = p.Children[p.First]
	}

	prevID := InvalidRecordID
	for id != InvalidRecordID {
		p, err := loadPage(ctx, id)
		if err != nil {
			return err
		}
		if p.Previous != prevID {
			*issues = append(*issues, fmt.Sprintf("leaf %v: Previous=%v, expected %v", id, p.Previous, prevID))
		}
		prevID = id
		id = p.Next
	}
	return nil
}
