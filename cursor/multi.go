package cursor

import (
	"errors"
	"fmt"

	"github.com/tarantool/go-option"

	"github.com/halcwb/LSM/kv"
)

// direction records which way the multi cursor moved last. While moving
// steadily in one direction every subcursor is known to sit on the frontier
// for that direction, so a step only has to advance the matching subcursors.
// After First, Last or Seek the subcursor positions are not normalized for
// either direction and the next relative move has to re-seek the laggards.
type direction int

const (
	wandering direction = iota
	forward
	backward
)

// Multi merges several independently sorted subcursors into one logically
// sorted, deduplicated view. Subcursors must be passed newest-first: when two
// subcursors sit on the same key, the earliest one wins and the entries of the
// later ones are shadowed and skipped as a group on the next advance. The
// winner is re-evaluated at every position change, never cached across moves.
type Multi struct {
	subs []Cursor
	cur  option.Generic[int]
	dir  direction
}

// NewMulti creates a merge cursor over the given subcursors, ordered
// newest-first. The new cursor starts out invalid; position it with First,
// Last or Seek. Closing the multi cursor closes every subcursor.
func NewMulti(subs ...Cursor) *Multi {
	return &Multi{
		subs: subs,
		cur:  option.None[int](),
		dir:  wandering,
	}
}

// find scans the valid subcursors and returns the index of the one whose key
// wins under less. Ties keep the earliest (newest) subcursor.
func (m *Multi) find(less func(a, b kv.Key) bool) (option.Generic[int], error) {
	win := option.None[int]()
	var winKey kv.Key

	for i, sub := range m.subs {
		if !sub.IsValid() {
			continue
		}

		k, err := sub.Key()
		if err != nil {
			return option.None[int](), fmt.Errorf("subcursor %d key: %w", i, err)
		}

		if !win.IsSome() || less(k, winKey) {
			win = option.Some(i)
			winKey = k
		}
	}

	return win, nil
}

func (m *Multi) findMin() (option.Generic[int], error) {
	return m.find(func(a, b kv.Key) bool { return kv.Compare(a, b) < 0 })
}

func (m *Multi) findMax() (option.Generic[int], error) {
	return m.find(func(a, b kv.Key) bool { return kv.Compare(a, b) > 0 })
}

// First implements Cursor.
func (m *Multi) First() error {
	for i, sub := range m.subs {
		if err := sub.First(); err != nil {
			return fmt.Errorf("subcursor %d first: %w", i, err)
		}
	}

	cur, err := m.findMin()
	if err != nil {
		return err
	}

	m.cur = cur
	m.dir = wandering

	return nil
}

// Last implements Cursor.
func (m *Multi) Last() error {
	for i, sub := range m.subs {
		if err := sub.Last(); err != nil {
			return fmt.Errorf("subcursor %d last: %w", i, err)
		}
	}

	cur, err := m.findMax()
	if err != nil {
		return err
	}

	m.cur = cur
	m.dir = wandering

	return nil
}

// IsValid implements Cursor.
func (m *Multi) IsValid() bool {
	return m.cur.IsSome() && m.subs[m.cur.UnwrapOr(0)].IsValid()
}

// Key implements Cursor.
func (m *Multi) Key() (kv.Key, error) {
	if !m.IsValid() {
		return nil, ErrInvalid
	}

	return m.subs[m.cur.UnwrapOr(0)].Key()
}

// Value implements Cursor.
func (m *Multi) Value() (kv.Value, error) {
	if !m.IsValid() {
		return nil, ErrInvalid
	}

	return m.subs[m.cur.UnwrapOr(0)].Value()
}

// Next implements Cursor. Every subcursor sitting on the current key,
// including the shadowed ones, is advanced past it, then the new minimum
// becomes current.
func (m *Multi) Next() error {
	if !m.IsValid() {
		return ErrInvalid
	}

	icur := m.cur.UnwrapOr(0)

	k, err := m.subs[icur].Key()
	if err != nil {
		return err
	}
	k = k.Clone()

	for j, sub := range m.subs {
		if m.dir != forward && j != icur {
			if err := sub.Seek(k, SeekGE); err != nil {
				return fmt.Errorf("subcursor %d seek: %w", j, err)
			}
		}

		if !sub.IsValid() {
			continue
		}

		sk, err := sub.Key()
		if err != nil {
			return fmt.Errorf("subcursor %d key: %w", j, err)
		}

		if kv.Compare(sk, k) == 0 {
			if err := sub.Next(); err != nil && !errors.Is(err, ErrInvalid) {
				return fmt.Errorf("subcursor %d next: %w", j, err)
			}
		}
	}

	cur, err := m.findMin()
	if err != nil {
		return err
	}

	m.cur = cur
	m.dir = forward

	return nil
}

// Prev implements Cursor. The mirror image of Next.
func (m *Multi) Prev() error {
	if !m.IsValid() {
		return ErrInvalid
	}

	icur := m.cur.UnwrapOr(0)

	k, err := m.subs[icur].Key()
	if err != nil {
		return err
	}
	k = k.Clone()

	for j, sub := range m.subs {
		if m.dir != backward && j != icur {
			if err := sub.Seek(k, SeekLE); err != nil {
				return fmt.Errorf("subcursor %d seek: %w", j, err)
			}
		}

		if !sub.IsValid() {
			continue
		}

		sk, err := sub.Key()
		if err != nil {
			return fmt.Errorf("subcursor %d key: %w", j, err)
		}

		if kv.Compare(sk, k) == 0 {
			if err := sub.Prev(); err != nil && !errors.Is(err, ErrInvalid) {
				return fmt.Errorf("subcursor %d prev: %w", j, err)
			}
		}
	}

	cur, err := m.findMax()
	if err != nil {
		return err
	}

	m.cur = cur
	m.dir = backward

	return nil
}

// Seek implements Cursor. For SeekEQ the scan stops at the first (newest)
// subcursor holding the exact key, so the value reported is the
// highest-generation match. For SeekLE and SeekGE the nearest key across all
// subcursors wins.
func (m *Multi) Seek(key kv.Key, op SeekOp) error {
	m.cur = option.None[int]()
	m.dir = wandering

	found := false

	for j, sub := range m.subs {
		if err := sub.Seek(key, op); err != nil {
			return fmt.Errorf("subcursor %d seek: %w", j, err)
		}

		if found || !sub.IsValid() {
			continue
		}

		exact := op == SeekEQ

		if !exact {
			sk, err := sub.Key()
			if err != nil {
				return fmt.Errorf("subcursor %d key: %w", j, err)
			}

			exact = kv.Compare(sk, key) == 0
		}

		if exact {
			m.cur = option.Some(j)
			found = true

			if op == SeekEQ {
				// Later (older) subcursors hold only shadowed
				// matches, and the wandering state re-seeks
				// them before the next relative move anyway.
				break
			}
		}
	}

	if found || op == SeekEQ {
		return nil
	}

	switch op {
	case SeekGE:
		cur, err := m.findMin()
		if err != nil {
			return err
		}

		m.cur = cur
		if cur.IsSome() {
			m.dir = forward
		}
	case SeekLE:
		cur, err := m.findMax()
		if err != nil {
			return err
		}

		m.cur = cur
		if cur.IsSome() {
			m.dir = backward
		}
	case SeekEQ:
	}

	return nil
}

// Close implements Cursor. All subcursors are closed even when some of them
// fail; the combined error is returned.
func (m *Multi) Close() error {
	var errs []error

	for i, sub := range m.subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("subcursor %d close: %w", i, err))
		}
	}

	m.subs = nil
	m.cur = option.None[int]()

	return errors.Join(errs...)
}

var _ Cursor = (*Multi)(nil)
