package segment

import (
	"sort"

	"github.com/halcwb/LSM/cursor"
	"github.com/halcwb/LSM/kv"
)

// segmentCursor navigates one segment through its in-memory index.
// pos is the entry index, or -1 when the cursor is invalid.
type segmentCursor struct {
	seg *Segment
	pos int
}

func (c *segmentCursor) First() error {
	if c.seg.Count() == 0 {
		c.pos = -1

		return nil
	}

	c.pos = 0

	return nil
}

func (c *segmentCursor) Last() error {
	c.pos = c.seg.Count() - 1

	return nil
}

func (c *segmentCursor) Next() error {
	if c.pos < 0 {
		return cursor.ErrInvalid
	}

	c.pos++
	if c.pos >= c.seg.Count() {
		c.pos = -1
	}

	return nil
}

func (c *segmentCursor) Prev() error {
	if c.pos < 0 {
		return cursor.ErrInvalid
	}

	c.pos--

	return nil
}

// Seek positions the cursor by binary search over the index. Exact-match
// seeks consult the bloom filter first to skip the search on definite misses.
func (c *segmentCursor) Seek(key kv.Key, op cursor.SeekOp) error {
	c.pos = -1

	if op == cursor.SeekEQ && !c.seg.mayContain(key) {
		return nil
	}

	n := c.seg.Count()

	// First entry with key >= target.
	i := sort.Search(n, func(i int) bool {
		return kv.Compare(kv.Key(c.seg.entries[i].Key), key) >= 0
	})

	exact := i < n && kv.Compare(kv.Key(c.seg.entries[i].Key), key) == 0

	switch op {
	case cursor.SeekEQ:
		if exact {
			c.pos = i
		}
	case cursor.SeekGE:
		if i < n {
			c.pos = i
		}
	case cursor.SeekLE:
		switch {
		case exact:
			c.pos = i
		case i > 0:
			c.pos = i - 1
		}
	}

	return nil
}

func (c *segmentCursor) IsValid() bool {
	return c.seg != nil && c.pos >= 0 && c.pos < c.seg.Count()
}

func (c *segmentCursor) Key() (kv.Key, error) {
	if !c.IsValid() {
		return nil, cursor.ErrInvalid
	}

	return kv.Key(c.seg.entries[c.pos].Key), nil
}

func (c *segmentCursor) Value() (kv.Value, error) {
	if !c.IsValid() {
		return nil, cursor.ErrInvalid
	}

	return c.seg.readValue(c.pos)
}

// Close releases the segment reference held by the cursor.
func (c *segmentCursor) Close() error {
	if c.seg == nil {
		return nil
	}

	seg := c.seg
	c.seg = nil
	c.pos = -1

	return seg.Release()
}

var _ cursor.Cursor = (*segmentCursor)(nil)
