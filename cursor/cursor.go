// Package cursor defines the bidirectional cursor contract shared by segment
// readers and the multi-segment merge view, together with the seek modes.
package cursor

import (
	"errors"

	"github.com/halcwb/LSM/kv"
)

// ErrInvalid is returned when Key, Value or a relative move is requested
// while the cursor is not positioned at an entry.
var ErrInvalid = errors.New("cursor is not positioned at an entry")

// SeekOp selects how Seek positions the cursor relative to the target key.
type SeekOp int

const (
	// SeekEQ positions the cursor at the exact key, or leaves it invalid.
	SeekEQ SeekOp = iota
	// SeekLE positions the cursor at the largest key not greater than the
	// target, or leaves it invalid.
	SeekLE
	// SeekGE positions the cursor at the smallest key not less than the
	// target, or leaves it invalid.
	SeekGE
)

// String implements fmt.Stringer.
func (op SeekOp) String() string {
	switch op {
	case SeekEQ:
		return "EQ"
	case SeekLE:
		return "LE"
	case SeekGE:
		return "GE"
	default:
		return "unknown"
	}
}

// Cursor is a read-only, bidirectionally navigable view over a sorted set of
// key-value entries. A cursor is either positioned at an entry (valid) or
// invalid; moving past either end is not an error, it merely invalidates the
// cursor. Key, Value, Next and Prev return ErrInvalid when the cursor is not
// valid. Close releases any resources held by the view and must be called on
// every exit path.
type Cursor interface {
	// First positions the cursor at the smallest key, or invalidates it
	// when the view is empty.
	First() error
	// Last positions the cursor at the largest key, or invalidates it when
	// the view is empty.
	Last() error
	// Next moves to the next larger key; the cursor becomes invalid past
	// the last entry.
	Next() error
	// Prev moves to the next smaller key; the cursor becomes invalid past
	// the first entry.
	Prev() error
	// Seek positions the cursor relative to key according to op. Finding
	// no qualifying entry is not an error; the cursor becomes invalid.
	Seek(key kv.Key, op SeekOp) error
	// IsValid reports whether the cursor is positioned at an entry.
	IsValid() bool
	// Key returns the key at the current position.
	Key() (kv.Key, error)
	// Value returns the value at the current position.
	Value() (kv.Value, error)
	// Close releases the view. The cursor must not be used afterwards.
	Close() error
}
