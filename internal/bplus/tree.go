package bplus

import "github.com/tinykv/bplustree/internal/record"

// DefaultMaxInlineRecordSize bounds how large a leaf value may be before
// it is spilled into its own lazy record (spec §4.5's MAX_INTREE_RECORD_SIZE).
const DefaultMaxInlineRecordSize = 512

// Context carries everything a Page needs beyond its own slots: the
// node capacity, ordering, (de)serialization, and the record manager
// collaborator (spec §6). One Context is shared by every page of a
// single tree.
type Context struct {
	Cap                 int
	Comparator          Comparator
	KeySerializer       KeySerializer
	ValueSerializer     ValueSerializer
	MaxInlineRecordSize int
	LoadValues          bool
	RecordManager       RecordManager

	serializer record.Serializer
}

func (c *Context) defaultSerializer() record.Serializer {
	if c.serializer != nil {
		return c.serializer
	}
	return record.DefaultSerializer
}

func (c *Context) cmp() Comparator {
	if c.Comparator == nil {
		return naturalComparator{}
	}
	return c.Comparator
}

// half is the minimum live-slot count a non-root page may hold before
// it underflows (spec §4.4).
func (c *Context) half() int { return c.Cap / 2 }

// Tree is the tree-wide state driving the recursive page operations:
// a root RecordID, its height, and the shared Context (spec §5,
// "driven by the enclosing tree, not this page").
type Tree struct {
	ctx    *Context
	RootID RecordID
	Height int // 0 == root is a leaf
}

// NewTree creates an empty tree: a single empty leaf root.
func NewTree(ctx *Context) (*Tree, error) {
	root := newLeafPage(ctx.Cap)
	id, err := persistNewPage(ctx, root)
	if err != nil {
		return nil, err
	}
	return &Tree{ctx: ctx, RootID: id, Height: 0}, nil
}

// OpenTree resumes a tree whose root record id and height were
// persisted by the caller (e.g. in internal/record's StoreHeader.RootRef
// plus a side channel for height, or a caller-defined metadata record).
func OpenTree(ctx *Context, rootID RecordID, height int) *Tree {
	return &Tree{ctx: ctx, RootID: rootID, Height: height}
}

func persistNewPage(ctx *Context, p *Page) (RecordID, error) {
	data, err := MarshalPage(p, ctx)
	if err != nil {
		return InvalidRecordID, err
	}
	id, err := ctx.RecordManager.Insert(data)
	if err != nil {
		return InvalidRecordID, wrapIO("insert page", err)
	}
	p.RecID = id
	return id, nil
}

func persistPage(ctx *Context, p *Page) error {
	data, err := MarshalPage(p, ctx)
	if err != nil {
		return err
	}
	return wrapIO("update page", ctx.RecordManager.Update(p.RecID, data))
}

func loadPage(ctx *Context, id RecordID) (*Page, error) {
	data, err := ctx.RecordManager.Fetch(id)
	if err != nil {
		return nil, wrapIO("fetch page", err)
	}
	return UnmarshalPage(id, data, ctx)
}

// Find returns the value stored for key, or ErrNotFound if absent
// (spec §6's find/find_value, collapsed into one call since this page
// engine always has the value alongside the key in a leaf).
func (t *Tree) Find(key any) (any, error) {
	leaf, slot, err := t.findLeaf(t.RootID, t.Height, key)
	if err != nil {
		return nil, err
	}
	if slot >= leaf.cap || compare(t.ctx.cmp(), leaf.Keys[slot], key) != 0 {
		return nil, ErrNotFound
	}
	return resolveValue(t.ctx, leaf.Values[slot])
}

// findLeaf descends from (id, height) to the leaf that would contain
// key, returning that leaf and the slot findChildren lands on.
func (t *Tree) findLeaf(id RecordID, height int, key any) (*Page, int, error) {
	p, err := loadPage(t.ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if height == 0 {
		slot := p.findChildren(t.ctx.cmp(), key)
		return p, slot, nil
	}
	slot := p.findChildren(t.ctx.cmp(), key)
	if slot >= p.cap {
		return nil, 0, invariantErrorf("non-leaf page %d has no child slot for key", id)
	}
	return t.findLeaf(p.Children[slot], height-1, key)
}

// FindFirst returns the leftmost (key, value) pair in the tree, or
// ErrNotFound if the tree is empty (spec §4.6's cursor start).
func (t *Tree) FindFirst() (any, any, error) {
	p, err := t.leftmostLeaf()
	if err != nil {
		return nil, nil, err
	}
	if p.Fill() == 0 || isAbsent(p.Keys[p.First]) {
		return nil, nil, ErrNotFound
	}
	v, err := resolveValue(t.ctx, p.Values[p.First])
	if err != nil {
		return nil, nil, err
	}
	return p.Keys[p.First], v, nil
}

func (t *Tree) leftmostLeaf() (*Page, error) {
	id, height := t.RootID, t.Height
	for height > 0 {
		p, err := loadPage(t.ctx, id)
		if err != nil {
			return nil, err
		}
		id = p.Children[p.First]
		height--
	}
	return loadPage(t.ctx, id)
}

// NewCursor positions a Cursor at the leaf entry for key's lower bound,
// or at the very first entry if key is nil (spec §4.6).
func (t *Tree) NewCursor(key any) (*Cursor, error) {
	if key == nil {
		p, err := t.leftmostLeaf()
		if err != nil {
			return nil, err
		}
		return &Cursor{ctx: t.ctx, page: p, index: p.First}, nil
	}
	leaf, slot, err := t.findLeaf(t.RootID, t.Height, key)
	if err != nil {
		return nil, err
	}
	return &Cursor{ctx: t.ctx, page: leaf, index: slot}, nil
}

// Insert inserts or replaces key/value, growing the tree's height if
// the root overflows (spec §4.3). It returns the value already stored
// under key, if any, whether or not replace let it be overwritten.
func (t *Tree) Insert(key, value any, replace bool) (any, error) {
	res, err := t.insert(t.RootID, t.Height, key, value, replace)
	if err != nil {
		return nil, err
	}
	if res.overflowKey != nil {
		if err := t.rootOverflow(res.overflowKey, res.overflowRight); err != nil {
			return nil, err
		}
	}
	return res.existing, nil
}

type insertResult struct {
	existing      any // previous value, if key already present and replaced
	overflowKey   any // non-nil if the child split and produced a new lower-keyed sibling
	overflowRight RecordID
}

// rootOverflow builds a new non-leaf root with two slots: the new
// lower-keyed sibling under midKey, and the old root under the sentinel
// (spec §4.3).
func (t *Tree) rootOverflow(midKey any, rightID RecordID) error {
	newRoot := newNonLeafPage(t.ctx.Cap)
	cap := t.ctx.Cap
	newRoot.First = cap - 2
	newRoot.Keys[cap-2] = midKey
	newRoot.Children[cap-2] = rightID
	newRoot.Keys[cap-1] = Absent
	newRoot.Children[cap-1] = t.RootID
	id, err := persistNewPage(t.ctx, newRoot)
	if err != nil {
		return err
	}
	t.RootID = id
	t.Height++
	return nil
}

func (t *Tree) insert(id RecordID, height int, key, value any, replace bool) (insertResult, error) {
	p, err := loadPage(t.ctx, id)
	if err != nil {
		return insertResult{}, err
	}
	if height == 0 {
		return t.insertLeaf(p, key, value, replace)
	}
	return t.insertNonLeaf(p, height, key, value, replace)
}

func (t *Tree) insertLeaf(p *Page, key, value any, replace bool) (insertResult, error) {
	slot := p.findChildren(t.ctx.cmp(), key)
	if slot < p.cap && compare(t.ctx.cmp(), p.Keys[slot], key) == 0 {
		old := p.Values[slot]
		existing, err := resolveValue(t.ctx, old)
		if err != nil || !replace {
			return insertResult{existing: existing}, err
		}
		if err := deleteIfLazy(t.ctx.RecordManager, old); err != nil {
			return insertResult{}, err
		}
		p.setEntry(slot, key, value)
		if err := persistPage(t.ctx, p); err != nil {
			return insertResult{}, err
		}
		return insertResult{existing: existing}, nil
	}

	if p.First > 0 {
		p.insertEntry(slot, key, value)
		if err := persistPage(t.ctx, p); err != nil {
			return insertResult{}, err
		}
		return insertResult{}, nil
	}

	return t.splitLeaf(p, slot, key, value)
}

// splitLeaf splits a full leaf around slot (spec §4.3). p keeps its own
// recid and ends up holding the upper half (plus, when slot >= HALF,
// the new entry); a brand new page is allocated to hold the lower half
// and is spliced into the leaf list immediately before p. The returned
// overflow is that new, lower-keyed page.
func (t *Tree) splitLeaf(p *Page, slot int, key, value any) (insertResult, error) {
	cap := p.cap
	h := t.ctx.half()
	left := newLeafPage(cap)

	if slot < h {
		copyEntries(left, h, p, 0, slot)
		left.setEntry(h+slot, key, value)
		if n := (h - 1) - slot; n > 0 {
			copyEntries(left, h+slot+1, p, slot, n)
		}
		left.First = h
	} else {
		copyEntries(left, h, p, 0, h)
		left.First = h
		if slot > h {
			copyEntries(p, h-1, p, h, slot-h)
		}
		p.setEntry(slot-1, key, value)
	}
	p.clearBelow(h - 1)
	p.First = h - 1

	left.Previous = p.Previous
	left.Next = p.RecID
	leftID, err := persistNewPage(t.ctx, left)
	if err != nil {
		return insertResult{}, err
	}
	if p.Previous != InvalidRecordID {
		oldPrev, err := loadPage(t.ctx, p.Previous)
		if err != nil {
			return insertResult{}, err
		}
		oldPrev.Next = leftID
		if err := persistPage(t.ctx, oldPrev); err != nil {
			return insertResult{}, err
		}
	}
	p.Previous = leftID
	if err := persistPage(t.ctx, p); err != nil {
		return insertResult{}, err
	}

	return insertResult{overflowKey: left.largestKey(), overflowRight: leftID}, nil
}

func (t *Tree) insertNonLeaf(p *Page, height int, key, value any, replace bool) (insertResult, error) {
	slot := p.findChildren(t.ctx.cmp(), key)
	if slot >= p.cap {
		return insertResult{}, invariantErrorf("non-leaf page %d has no child slot for key", p.RecID)
	}
	childID := p.Children[slot]
	res, err := t.insert(childID, height-1, key, value, replace)
	if err != nil {
		return insertResult{}, err
	}
	if res.overflowKey == nil {
		return res, nil
	}

	// The child that split keeps its recid and its own largest key never
	// moves (a split only ever relocates the child's low end), so keys[slot]
	// needs no update. The new lower-keyed sibling lands immediately
	// before slot.
	if p.First > 0 {
		p.insertChild(slot, res.overflowKey, res.overflowRight)
		if err := persistPage(t.ctx, p); err != nil {
			return insertResult{}, err
		}
		return insertResult{existing: res.existing}, nil
	}

	return t.splitNonLeaf(p, slot, res.overflowKey, res.overflowRight, res.existing)
}

// splitNonLeaf mirrors splitLeaf for the children array; non-leaf pages
// carry no sibling links.
func (t *Tree) splitNonLeaf(p *Page, slot int, childKey any, childID RecordID, existing any) (insertResult, error) {
	cap := p.cap
	h := t.ctx.half()
	left := newNonLeafPage(cap)

	if slot < h {
		copyChildren(left, h, p, 0, slot)
		left.setChild(h+slot, childKey, childID)
		if n := (h - 1) - slot; n > 0 {
			copyChildren(left, h+slot+1, p, slot, n)
		}
		left.First = h
	} else {
		copyChildren(left, h, p, 0, h)
		left.First = h
		if slot > h {
			copyChildren(p, h-1, p, h, slot-h)
		}
		p.setChild(slot-1, childKey, childID)
	}
	p.clearBelow(h - 1)
	p.First = h - 1

	leftID, err := persistNewPage(t.ctx, left)
	if err != nil {
		return insertResult{}, err
	}
	if err := persistPage(t.ctx, p); err != nil {
		return insertResult{}, err
	}

	return insertResult{existing: existing, overflowKey: left.largestKey(), overflowRight: leftID}, nil
}

// Remove deletes key, returning its value, or ErrNotFound. It rebalances
// underflowing pages via borrow-from-sibling or merge (spec §4.4),
// collapsing the root if it becomes a single-child non-leaf.
func (t *Tree) Remove(key any) (any, error) {
	val, underflow, err := t.remove(t.RootID, t.Height, key)
	if err != nil {
		return nil, err
	}
	if underflow && t.Height > 0 {
		root, err := loadPage(t.ctx, t.RootID)
		if err != nil {
			return nil, err
		}
		if root.Fill() == 1 {
			t.RootID = root.Children[root.First]
			t.Height--
		}
	}
	return val, nil
}

func (t *Tree) remove(id RecordID, height int, key any) (any, bool, error) {
	p, err := loadPage(t.ctx, id)
	if err != nil {
		return nil, false, err
	}
	if height == 0 {
		return t.removeLeaf(p, key)
	}
	return t.removeNonLeaf(p, height, key)
}

func (t *Tree) removeLeaf(p *Page, key any) (any, bool, error) {
	slot := p.findChildren(t.ctx.cmp(), key)
	if slot >= p.cap || compare(t.ctx.cmp(), p.Keys[slot], key) != 0 {
		return nil, false, ErrNotFound
	}
	raw := p.Values[slot]
	p.removeEntry(slot)
	if err := persistPage(t.ctx, p); err != nil {
		return nil, false, err
	}
	val, err := resolveValue(t.ctx, raw)
	if err != nil {
		return nil, false, err
	}
	if err := deleteIfLazy(t.ctx.RecordManager, raw); err != nil {
		return nil, false, err
	}
	return val, p.realFill() < t.ctx.half(), nil
}

func (t *Tree) removeNonLeaf(p *Page, height int, key any) (any, bool, error) {
	slot := p.findChildren(t.ctx.cmp(), key)
	if slot >= p.cap {
		return nil, false, ErrNotFound
	}
	childID := p.Children[slot]
	val, underflow, err := t.remove(childID, height-1, key)
	if err != nil {
		return nil, false, err
	}
	if !underflow {
		return val, false, nil
	}
	if err := t.rebalanceChild(p, slot); err != nil {
		return nil, false, err
	}
	return val, p.realFill() < t.ctx.half(), nil
}

// rebalanceChild fixes up an underflowed child at slot: prefers
// borrowing from the right sibling, merging if the sibling itself is
// at or below HALF (spec §4.4). Falls back to the left sibling at the
// rightmost slot.
func (t *Tree) rebalanceChild(p *Page, slot int) error {
	var siblingSlot int
	var fromRight bool
	if slot+1 < p.cap {
		siblingSlot = slot + 1
		fromRight = true
	} else if slot-1 >= p.First {
		siblingSlot = slot - 1
		fromRight = false
	} else {
		return nil // only child, nothing to rebalance against
	}

	childID, sibID := p.Children[slot], p.Children[siblingSlot]

	child, err := loadPage(t.ctx, childID)
	if err != nil {
		return err
	}
	sib, err := loadPage(t.ctx, sibID)
	if err != nil {
		return err
	}

	if sib.realFill() > t.ctx.half() {
		return t.borrow(p, slot, siblingSlot, fromRight, child, sib)
	}
	return t.merge(p, slot, siblingSlot, fromRight, child, sib)
}

func (t *Tree) borrow(p *Page, slot, sibSlot int, fromRight bool, child, sib *Page) error {
	if fromRight {
		// steal sib's smallest entry, append it as child's new largest.
		key := sib.Keys[sib.First]
		if child.IsLeaf {
			child.insertEntry(child.cap, key, sib.Values[sib.First])
		} else {
			child.insertChild(child.cap, key, sib.Children[sib.First])
		}
		sib.removeEntry(sib.First)
		p.Keys[slot] = child.largestKey()
	} else {
		// steal sib's largest entry, prepend it as child's new smallest.
		last := sib.cap - 1
		key := sib.Keys[last]
		if child.IsLeaf {
			child.insertEntry(child.First, key, sib.Values[last])
		} else {
			child.insertChild(child.First, key, sib.Children[last])
		}
		sib.removeEntry(last)
		p.Keys[sibSlot] = sib.largestKey()
	}
	if err := persistPage(t.ctx, child); err != nil {
		return err
	}
	if err := persistPage(t.ctx, sib); err != nil {
		return err
	}
	return persistPage(t.ctx, p)
}

// merge absorbs the positionally-left page's entries into the
// positionally-right one (spec §4.4): the right page keeps its recid, so
// its own cap-1 bound (real key or sentinel) never needs to move. The
// left page is spliced out of the leaf list (if applicable), its record
// deleted, and its parent slot removed.
func (t *Tree) merge(p *Page, slot, sibSlot int, fromRight bool, child, sib *Page) error {
	left, right := sib, child
	leftSlot := sibSlot
	if fromRight {
		left, right = child, sib
		leftSlot = slot
	}

	n := left.Fill()
	newFirst := right.First - n
	if right.IsLeaf {
		copyEntries(right, newFirst, left, left.First, n)
	} else {
		copyChildren(right, newFirst, left, left.First, n)
	}
	right.First = newFirst

	if right.IsLeaf {
		right.Previous = left.Previous
		if left.Previous != InvalidRecordID {
			prevPage, err := loadPage(t.ctx, left.Previous)
			if err != nil {
				return err
			}
			prevPage.Next = right.RecID
			if err := persistPage(t.ctx, prevPage); err != nil {
				return err
			}
		}
	}

	if err := persistPage(t.ctx, right); err != nil {
		return err
	}
	if err := t.ctx.RecordManager.Delete(left.RecID); err != nil {
		return wrapIO("delete merged page", err)
	}

	p.removeEntry(leftSlot)
	return persistPage(t.ctx, p)
}

// Delete recursively destroys the entire tree rooted at RootID,
// unlinking leaves before deleting their records (spec §4.4's full-tree
// teardown, used when a caller drops a collection entirely).
func (t *Tree) Delete() error {
	return t.deleteSubtree(t.RootID, t.Height)
}

// LiveRecords walks the whole tree and returns every page RecordID plus
// every lazy-value RecordID it references — the RootLister contract
// internal/record.Store.GC expects from its caller (SPEC_FULL.md §12).
func (t *Tree) LiveRecords() ([]RecordID, error) {
	var ids []RecordID
	if err := t.collectLive(t.RootID, t.Height, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *Tree) collectLive(id RecordID, height int, ids *[]RecordID) error {
	if id == InvalidRecordID {
		return nil
	}
	p, err := loadPage(t.ctx, id)
	if err != nil {
		return err
	}
	*ids = append(*ids, id)
	if height > 0 {
		for i := p.First; i < p.cap; i++ {
			if err := t.collectLive(p.Children[i], height-1, ids); err != nil {
				return err
			}
		}
		return nil
	}
	for i := p.First; i < p.cap; i++ {
		if ref, ok := p.Values[i].(LazyRef); ok {
			*ids = append(*ids, ref.ID)
		}
	}
	return nil
}

func (t *Tree) deleteSubtree(id RecordID, height int) error {
	p, err := loadPage(t.ctx, id)
	if err != nil {
		return err
	}
	if height > 0 {
		seen := map[RecordID]bool{}
		for i := p.First; i < p.cap; i++ {
			c := p.Children[i]
			if c == InvalidRecordID || seen[c] {
				continue
			}
			seen[c] = true
			if err := t.deleteSubtree(c, height-1); err != nil {
				return err
			}
		}
	} else {
		for i := p.First; i < p.cap; i++ {
			if err := deleteIfLazy(t.ctx.RecordManager, p.Values[i]); err != nil {
				return err
			}
		}
		if p.Next != InvalidRecordID {
			next, err := loadPage(t.ctx, p.Next)
			if err != nil {
				return err
			}
			next.Previous = p.Previous
			if err := persistPage(t.ctx, next); err != nil {
				return err
			}
		}
	}
	return wrapIO("delete page", t.ctx.RecordManager.Delete(id))
}
