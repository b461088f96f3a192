package lsm

import (
	"fmt"
	"strings"

	"github.com/huandu/skiplist"

	"github.com/halcwb/LSM/kv"
	"github.com/halcwb/LSM/segment"
	"github.com/halcwb/LSM/tx"
)

// PairBuffer accumulates key-value pairs and spills them into segments of a
// bounded size, collecting the handles for one commit. Pairs are kept sorted
// as they arrive, so a spill feeds the sorted-sequence writer directly.
// Re-adding a key before the spill keeps the later value. A PairBuffer is
// not safe for concurrent use.
type PairBuffer struct {
	db    *Database
	limit int

	list    *skiplist.SkipList
	handles []segment.Handle
}

// NewPairBuffer returns a buffer that spills into a segment whenever it
// holds limit distinct keys.
func (db *Database) NewPairBuffer(limit int) *PairBuffer {
	return &PairBuffer{
		db:    db,
		limit: limit,
		list:  newPairList(),
	}
}

func newPairList() *skiplist.SkipList {
	return skiplist.New(skiplist.GreaterThanFunc(func(a, b interface{}) int {
		return strings.Compare(a.(string), b.(string))
	}))
}

// Add records a pair, spilling the buffer into a segment when it reaches the
// limit.
func (pb *PairBuffer) Add(key kv.Key, value kv.Value) error {
	pb.list.Set(string(key), value)

	if pb.list.Len() >= pb.limit {
		return pb.Flush()
	}

	return nil
}

// Flush writes the buffered pairs as one segment and clears the buffer.
// Flushing an empty buffer does nothing.
func (pb *PairBuffer) Flush() error {
	if pb.list.Len() == 0 {
		return nil
	}

	pairs := make([]kv.Pair, 0, pb.list.Len())
	for e := pb.list.Front(); e != nil; e = e.Next() {
		pairs = append(pairs, kv.Pair{
			Key:   kv.Key(e.Key().(string)),
			Value: e.Value.(kv.Value),
		})
	}

	h, err := pb.db.WriteSortedSegment(pairs)
	if err != nil {
		return fmt.Errorf("spill pair buffer: %w", err)
	}

	pb.handles = append(pb.handles, h)
	pb.list = newPairList()

	return nil
}

// Handles returns the segments spilled so far, oldest first.
func (pb *PairBuffer) Handles() []segment.Handle {
	return append([]segment.Handle(nil), pb.handles...)
}

// Commit flushes the remainder and commits every spilled segment in spill
// order, so later spills shadow earlier ones. The buffer is empty afterwards
// and may be reused.
func (pb *PairBuffer) Commit(t tx.Tx) error {
	if err := pb.Flush(); err != nil {
		return err
	}

	if len(pb.handles) == 0 {
		return nil
	}

	if err := t.CommitSegments(pb.handles); err != nil {
		return fmt.Errorf("commit pair buffer: %w", err)
	}

	pb.handles = nil

	return nil
}
