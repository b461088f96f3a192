// Package merge provides the building blocks of the background merge cycle:
// the ticket capturing exactly which active-set rows a merge consumed, the
// pending result observed by the committer, and the fold that drains a merged
// cursor view into a segment writer.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/halcwb/LSM/cursor"
	"github.com/halcwb/LSM/kv"
	"github.com/halcwb/LSM/segment"
)

// ErrNotReady is returned when the result of a merge is requested before the
// background computation has finished.
var ErrNotReady = errors.New("merge computation has not finished")

// Ticket identifies the exact input set of a merge: the generations of the
// active-set rows the merge snapshot contained, newest first. A commit of the
// merge result is valid only while those rows are still present unchanged.
type Ticket struct {
	generations []uint64
}

// NewTicket captures the given generations, newest first.
func NewTicket(generations []uint64) Ticket {
	return Ticket{
		generations: append([]uint64(nil), generations...),
	}
}

// Generations returns the captured generations, newest first.
func (t Ticket) Generations() []uint64 {
	return append([]uint64(nil), t.generations...)
}

// Len returns the number of input rows the merge consumed.
func (t Ticket) Len() int {
	return len(t.generations)
}

// Pending is the observable result of an in-flight merge computation. The
// computation runs without any lock; a writer that wants to install the
// result waits for completion first, acquires the write lock, and commits.
type Pending struct {
	ticket Ticket
	done   chan struct{}

	seg segment.Handle
	err error
}

// NewPending creates a pending result for the given ticket together with the
// resolve function the background computation calls exactly once.
func NewPending(ticket Ticket) (*Pending, func(segment.Handle, error)) {
	p := &Pending{
		ticket: ticket,
		done:   make(chan struct{}),
	}

	resolve := func(seg segment.Handle, err error) {
		p.seg = seg
		p.err = err
		close(p.done)
	}

	return p, resolve
}

// Ticket returns the input set the merge was computed from.
func (p *Pending) Ticket() Ticket {
	return p.ticket
}

// Done is closed when the computation has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Ready reports whether the computation has finished.
func (p *Pending) Ready() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the computation finishes or ctx is cancelled, and
// returns the merged segment. Cancelling the wait does not cancel the
// computation and has no effect on the active set.
func (p *Pending) Wait(ctx context.Context) (segment.Handle, error) {
	select {
	case <-p.done:
		return p.seg, p.err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for merge: %w", ctx.Err())
	}
}

// Result returns the merged segment without blocking. It fails with
// ErrNotReady while the computation is still running.
func (p *Pending) Result() (segment.Handle, error) {
	if !p.Ready() {
		return nil, ErrNotReady
	}

	return p.seg, p.err
}

// Fold drains src from its first entry to its last into dst. src is expected
// to present a deduplicated ascending key sequence, which the writer
// enforces.
func Fold(src cursor.Cursor, dst *segment.Writer) error {
	if err := src.First(); err != nil {
		return fmt.Errorf("position merge source: %w", err)
	}

	for src.IsValid() {
		k, err := src.Key()
		if err != nil {
			return fmt.Errorf("merge source key: %w", err)
		}

		v, err := src.Value()
		if err != nil {
			return fmt.Errorf("merge source value for %q: %w", kv.Key(k), err)
		}

		if err := dst.Append(k, v); err != nil {
			return fmt.Errorf("append merged pair: %w", err)
		}

		if err := src.Next(); err != nil && !errors.Is(err, cursor.ErrInvalid) {
			return fmt.Errorf("advance merge source: %w", err)
		}
	}

	return nil
}
