package lsm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcwb/LSM/merge"
	"github.com/halcwb/LSM/segment"
	"github.com/halcwb/LSM/tx"
)

// RequestWriteLock suspends the caller until it is the sole writer and
// returns the exclusive transaction. Waiters are served in FIFO order by the
// runtime, so acquisition is eventual under bounded contention. Cancelling
// the wait leaves the lock untouched for other waiters. The transaction must
// be closed on every exit path.
//
// The lock must never be held across a pending merge computation: commit the
// merge only after its Pending reports ready, from a freshly acquired
// transaction.
func (db *Database) RequestWriteLock(ctx context.Context) (tx.Tx, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	select {
	case db.lockCh <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire write lock: %w", ctx.Err())
	}

	if db.closed.Load() {
		<-db.lockCh

		return nil, ErrClosed
	}

	return &writeTx{db: db}, nil
}

// writeTx is the single-holder write transaction. It is not safe for
// concurrent use; the goroutine that acquired it drives it to Close.
type writeTx struct {
	db       *Database
	released bool
}

// CommitSegments implements tx.Tx.
func (t *writeTx) CommitSegments(handles []segment.Handle) error {
	if t.released {
		return tx.ErrReleased
	}

	return t.db.commitSegments(handles)
}

// CommitMerge implements tx.Tx.
func (t *writeTx) CommitMerge(pending *merge.Pending) error {
	if t.released {
		return tx.ErrReleased
	}

	return t.db.commitMerge(pending)
}

// Close implements tx.Tx. The lock is handed to the next waiter; an
// oversized active set then triggers the background merge cycle.
func (t *writeTx) Close() error {
	if t.released {
		return nil
	}
	t.released = true

	db := t.db
	<-db.lockCh

	db.maybeAutoMerge()

	return nil
}

// commitSegments publishes the handles into the active set under the write
// lock. Handles later in the list receive higher generations and therefore
// shadow earlier ones on key conflicts, consistent with last-write-wins
// inside a batch.
func (db *Database) commitSegments(handles []segment.Handle) error {
	if db.closed.Load() {
		return ErrClosed
	}

	if len(handles) == 0 {
		return nil
	}

	db.mu.Lock()

	seen := make(map[segment.Handle]struct{}, len(handles))
	for _, h := range handles {
		if _, dup := seen[h]; dup {
			db.mu.Unlock()

			return fmt.Errorf("commit %s twice: %w", h.Name(), ErrUnknownSegment)
		}
		seen[h] = struct{}{}

		if _, ok := db.waiting[h]; !ok {
			db.mu.Unlock()

			return fmt.Errorf("commit %s: %w", h.Name(), ErrUnknownSegment)
		}
	}

	for _, h := range handles {
		delete(db.waiting, h)
	}

	db.mu.Unlock()

	gens := make([]uint64, len(handles))
	for i := range handles {
		gens[i] = db.gen.Add(1)
	}

	cur := db.active.Load()

	rows := make([]row, 0, len(handles)+len(cur.rows))
	for i := len(handles) - 1; i >= 0; i-- {
		rows = append(rows, row{seg: handles[i], gen: gens[i]})
	}
	rows = append(rows, cur.rows...)

	db.active.Store(&activeSet{rows: rows})
	db.changes.Add(1)

	db.log.Debug("committed segments",
		zap.Int("count", len(handles)),
		zap.Uint64("generation", gens[len(gens)-1]),
		zap.Int("active", len(rows)))

	return nil
}

// commitMerge installs a finished merge under the write lock, replacing its
// input rows as a unit. The input rows must still be present unchanged; a
// concurrent merge commit that consumed any of them makes this one stale.
func (db *Database) commitMerge(pending *merge.Pending) error {
	if db.closed.Load() {
		return ErrClosed
	}

	seg, err := pending.Result()
	if err != nil {
		return fmt.Errorf("merge result: %w", err)
	}

	gens := pending.Ticket().Generations()
	cur := db.active.Load()

	i := 0
	for i < len(cur.rows) && cur.rows[i].gen != gens[0] {
		i++
	}

	if i+len(gens) > len(cur.rows) {
		return fmt.Errorf("commit merge of generations %v: %w", gens, tx.ErrStale)
	}

	for j, g := range gens {
		if cur.rows[i+j].gen != g {
			return fmt.Errorf("commit merge of generations %v: %w", gens, tx.ErrStale)
		}
	}

	db.mu.Lock()
	if _, ok := db.waiting[seg]; !ok {
		db.mu.Unlock()

		return fmt.Errorf("commit merge %s: %w", seg.Name(), ErrUnknownSegment)
	}
	delete(db.waiting, seg)
	db.mu.Unlock()

	replaced := cur.rows[i : i+len(gens)]

	rows := make([]row, 0, len(cur.rows)-len(gens)+1)
	rows = append(rows, cur.rows[:i]...)
	// The merged data already resolves every conflict among the inputs,
	// so the merged row inherits their highest generation.
	rows = append(rows, row{seg: seg, gen: gens[0]})
	rows = append(rows, cur.rows[i+len(gens):]...)

	db.active.Store(&activeSet{rows: rows})
	db.merges.Add(1)

	for _, r := range replaced {
		r.seg.Doom()

		if err := r.seg.Release(); err != nil {
			db.log.Warn("release replaced segment",
				zap.String("segment", r.seg.Name()), zap.Error(err))
		}
	}

	db.log.Debug("committed merge",
		zap.Int("inputs", len(gens)),
		zap.Uint64("generation", gens[0]),
		zap.Int("active", len(rows)))

	return nil
}
