package bplus

// Cursor is a bidirectional iterator over a tree's leaf entries,
// coupled to the leaf linked list (spec §4.6). It is invalidated by any
// concurrent mutation of the tree it was opened against — this engine
// has no concurrent mutators (spec §5's single-threaded, synchronous
// contract), so a Cursor used after a mutation simply yields undefined
// results rather than detecting the race.
type Cursor struct {
	ctx   *Context
	page  *Page
	index int
}

// Key returns the entry the cursor currently sits on.
func (c *Cursor) Key() any {
	return c.page.Keys[c.index]
}

// Value returns the entry's value, dereferencing a lazy record if
// needed.
func (c *Cursor) Value() (any, error) {
	return resolveValue(c.ctx, c.page.Values[c.index])
}

// Next advances the cursor to the following entry, crossing into the
// right sibling leaf via Next when the current page is exhausted.
// Returns ErrNotFound once the end of the leaf list is reached.
func (c *Cursor) Next() error {
	c.index++
	for c.index >= c.page.cap || isAbsent(c.page.Keys[c.index]) {
		if c.page.Next == InvalidRecordID {
			return ErrNotFound
		}
		next, err := loadPage(c.ctx, c.page.Next)
		if err != nil {
			return err
		}
		c.page = next
		c.index = next.First
	}
	return nil
}

// Previous retreats the cursor to the preceding entry, crossing into
// the left sibling leaf via Previous when the current page's low
// boundary is reached. Returns ErrNotFound once the start of the leaf
// list is reached.
func (c *Cursor) Previous() error {
	c.index--
	for c.index < c.page.First || isAbsent(c.page.Keys[c.index]) {
		if c.page.Previous == InvalidRecordID {
			return ErrNotFound
		}
		prev, err := loadPage(c.ctx, c.page.Previous)
		if err != nil {
			return err
		}
		c.page = prev
		c.index = prev.cap - 1
	}
	return nil
}
