// Package tx provides the exclusive write transaction interface for atomic
// active-set mutations. At most one transaction is live at any instant; it is
// the only actor allowed to change which segments a database presents.
package tx

import (
	"errors"

	"github.com/halcwb/LSM/merge"
	"github.com/halcwb/LSM/segment"
)

// ErrReleased is returned when a transaction is used after Close.
var ErrReleased = errors.New("transaction already released")

// ErrStale is returned by CommitMerge when the merge's input set is no
// longer fully present, unchanged, in the current active set, because a
// concurrent merge commit consumed part of it. The active set is left exactly
// as it was; the caller recomputes the merge from a fresh snapshot.
var ErrStale = errors.New("merge input set is no longer current")

// Tx is an exclusive write transaction. The active set may be changed more
// than once while the transaction is held; the lock is released by Close,
// which must run on every exit path and is idempotent.
type Tx interface {
	// CommitSegments assigns each handle the next generation, in order,
	// and atomically publishes them into the active set, newest first.
	// Cursors opened after the call see all of them; cursors opened
	// before see none.
	CommitSegments(handles []segment.Handle) error

	// CommitMerge atomically replaces the merge's input set with the
	// merged segment, preserving every segment committed after the merge
	// snapshot was taken. The pending computation must already be
	// finished; a still-running computation fails with merge.ErrNotReady
	// so the lock is never held across it. Fails with ErrStale when the
	// input set is gone.
	CommitMerge(pending *merge.Pending) error

	// Close releases the write lock. Only the first call has an effect.
	Close() error
}
