package lsm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tarantool/go-option"
	"go.uber.org/zap"

	"github.com/halcwb/LSM/cursor"
	"github.com/halcwb/LSM/merge"
	"github.com/halcwb/LSM/segment"
	"github.com/halcwb/LSM/tx"
)

// MergeAll captures the current active set and starts folding it into one
// segment in the background. It returns None when there is nothing to merge:
// fewer than two active segments, or the database is closed.
//
// The computation needs no lock and runs concurrently with writes, commits
// and readers. The caller waits on the returned Pending, then acquires a
// write transaction and passes the Pending to CommitMerge; a stale commit
// means a concurrent merge won and the cycle is simply repeated. The merged
// output counts as a waiting segment until committed, so an abandoned merge
// is disposed of with ForgetWaitingSegments.
func (db *Database) MergeAll() option.Generic[*merge.Pending] {
	if db.closed.Load() {
		return option.None[*merge.Pending]()
	}

	subs, gens, ok := db.snapshot(2)
	if !ok {
		return option.None[*merge.Pending]()
	}

	if !db.startBackground() {
		for _, c := range subs {
			_ = c.Close()
		}

		return option.None[*merge.Pending]()
	}

	pending, resolve := merge.NewPending(merge.NewTicket(gens))

	go func() {
		defer db.bg.Done()

		src := cursor.NewMulti(subs...)
		defer src.Close()

		w, err := segment.NewWriter(db.drv, db.nextSegmentName(),
			segment.WithBloomFPRate(db.settings.BloomFPRate))
		if err != nil {
			resolve(nil, fmt.Errorf("start merged segment: %w", err))

			return
		}

		if err := merge.Fold(src, w); err != nil {
			_ = w.Discard()
			resolve(nil, fmt.Errorf("fold %d segments: %w", len(gens), err))

			return
		}

		seg, err := w.Finish()
		if err != nil {
			resolve(nil, fmt.Errorf("finish merged segment: %w", err))

			return
		}

		db.addWaiting(seg)
		resolve(seg, nil)
	}()

	return option.Some(pending)
}

// maybeAutoMerge starts one background merge cycle when the active set has
// grown past the configured threshold. At most one automatic cycle runs at a
// time.
func (db *Database) maybeAutoMerge() {
	if !db.settings.AutoMergeEnabled || db.closed.Load() {
		return
	}

	if len(db.active.Load().rows) < db.settings.AutoMergeMinimumSegments {
		return
	}

	if !db.mergeBusy.CompareAndSwap(false, true) {
		return
	}

	if !db.startBackground() {
		db.mergeBusy.Store(false)

		return
	}

	go func() {
		defer db.bg.Done()
		defer db.mergeBusy.Store(false)

		db.runAutoMerge()
	}()
}

// runAutoMerge drives one full merge cycle: compute off-lock, wait, acquire
// a fresh transaction, commit. Losing the commit race to a concurrent merge
// is benign; the candidate is dropped and the next commit re-triggers.
func (db *Database) runAutoMerge() {
	pending := db.MergeAll().UnwrapOr(nil)
	if pending == nil {
		return
	}

	seg, err := pending.Wait(context.Background())
	if err != nil {
		db.log.Warn("auto merge computation failed", zap.Error(err))

		return
	}

	t, err := db.RequestWriteLock(context.Background())
	if err != nil {
		db.discardMergeOutput(seg)

		return
	}
	defer func() { _ = t.Close() }()

	if err := t.CommitMerge(pending); err != nil {
		switch {
		case errors.Is(err, tx.ErrStale):
			db.log.Debug("auto merge lost the commit race")
		default:
			db.log.Warn("auto merge commit failed", zap.Error(err))
		}

		db.discardMergeOutput(seg)

		return
	}

	db.log.Info("auto merge committed",
		zap.Int("inputs", pending.Ticket().Len()),
		zap.Int("keys", seg.Count()))
}

func (db *Database) discardMergeOutput(seg segment.Handle) {
	if err := db.ForgetWaitingSegments([]segment.Handle{seg}); err != nil {
		db.log.Warn("discard merge output", zap.Error(err))
	}
}
