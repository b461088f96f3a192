package lsm

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/halcwb/LSM/cursor"
	"github.com/halcwb/LSM/driver"
	"github.com/halcwb/LSM/driver/osdir"
	"github.com/halcwb/LSM/kv"
	"github.com/halcwb/LSM/segment"
)

// ErrClosed is returned by every operation on a closed database.
var ErrClosed = errors.New("database is closed")

// ErrUnknownSegment is returned when a commit names a handle that is not
// awaiting commit: it was never written here, already committed, or
// forgotten.
var ErrUnknownSegment = errors.New("segment is not awaiting commit")

// row is one entry of the active set: a committed segment together with the
// generation it received at commit time.
type row struct {
	seg segment.Handle
	gen uint64
}

// activeSet is the immutable ordered collection of live segments, newest
// generation first. Transitions replace the whole value through one atomic
// pointer swap; readers never observe a partially updated set.
type activeSet struct {
	rows []row
}

// Database is an embedded LSM storage core. Segments are built concurrently
// through WriteSegment, published atomically under the exclusive write lock,
// read through snapshot-isolated merge cursors, and folded together by
// background merges.
type Database struct {
	drv      driver.Driver
	log      *zap.Logger
	settings Settings

	active atomic.Pointer[activeSet]
	lockCh chan struct{}

	mu      sync.Mutex
	waiting map[segment.Handle]struct{}

	gen     atomic.Uint64
	changes atomic.Uint64
	merges  atomic.Uint64

	namePrefix string
	nameSeq    atomic.Uint64

	closed    atomic.Bool
	mergeBusy atomic.Bool
	bg        sync.WaitGroup
}

// Open creates a database over the given storage directory. The directory is
// the only durable location the core knows about; WithDriver substitutes any
// other backend, in which case dir is ignored.
func Open(dir string, opts ...Option) (*Database, error) {
	cfg := databaseOptions{
		log:      zap.NewNop(),
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.settings = cfg.settings.withDefaults()

	if cfg.drv == nil {
		drv, err := osdir.New(dir)
		if err != nil {
			return nil, fmt.Errorf("open storage directory: %w", err)
		}

		cfg.drv = drv
	}

	prefix := make([]byte, 4)
	if _, err := rand.Read(prefix); err != nil {
		return nil, fmt.Errorf("generate name prefix: %w", err)
	}

	db := &Database{
		drv:        cfg.drv,
		log:        cfg.log,
		settings:   cfg.settings,
		lockCh:     make(chan struct{}, 1),
		waiting:    make(map[segment.Handle]struct{}),
		namePrefix: hex.EncodeToString(prefix),
	}
	db.active.Store(&activeSet{})

	return db, nil
}

// WriteSegment sorts the batch by byte order of the keys and writes it as a
// durable segment. The returned handle is not visible to readers until
// committed through a write transaction. WriteSegment touches no shared
// state beyond the storage backend and may run with unbounded concurrency
// relative to other writes, commits, merges and readers. An empty batch
// yields an empty segment.
func (db *Database) WriteSegment(batch *segment.Batch) (segment.Handle, error) {
	pairs, err := batch.Pairs()
	if err != nil {
		return nil, fmt.Errorf("collapse batch: %w", err)
	}

	return db.WriteSortedSegment(pairs)
}

// WriteSortedSegment writes a segment from pairs that are already in
// strictly ascending key order, skipping the sort. Out-of-order or duplicate
// keys fail with segment.ErrOutOfOrder.
func (db *Database) WriteSortedSegment(pairs []kv.Pair) (segment.Handle, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	w, err := segment.NewWriter(db.drv, db.nextSegmentName(),
		segment.WithBloomFPRate(db.settings.BloomFPRate))
	if err != nil {
		return nil, fmt.Errorf("start segment: %w", err)
	}

	for _, p := range pairs {
		if err := w.Append(p.Key, p.Value); err != nil {
			_ = w.Discard()

			return nil, fmt.Errorf("write segment: %w", err)
		}
	}

	seg, err := w.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish segment: %w", err)
	}

	db.addWaiting(seg)

	return seg, nil
}

// OpenCursor returns a merged cursor over a snapshot of the current active
// set. Commits after this call are invisible to the cursor. The snapshot's
// segments stay alive until the cursor is closed, even when a merge
// supersedes them. The cursor starts out invalid; position it with First,
// Last or Seek.
func (db *Database) OpenCursor() (cursor.Cursor, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	subs, _, _ := db.snapshot(0)

	return cursor.NewMulti(subs...), nil
}

// OpenSegmentCursor returns a cursor over a single segment, committed or
// still awaiting commit.
func (db *Database) OpenSegmentCursor(h segment.Handle) (cursor.Cursor, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	c, err := h.NewCursor()
	if err != nil {
		return nil, fmt.Errorf("open segment cursor: %w", err)
	}

	return c, nil
}

// ForgetWaitingSegments drops segments that were written but will not be
// committed, reclaiming their storage once unreferenced. Handles that are
// not awaiting commit are ignored.
func (db *Database) ForgetWaitingSegments(handles []segment.Handle) error {
	var errs []error

	for _, h := range handles {
		db.mu.Lock()
		_, ok := db.waiting[h]
		if ok {
			delete(db.waiting, h)
		}
		db.mu.Unlock()

		if !ok {
			continue
		}

		h.Doom()

		if err := h.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", h.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// Stats reports commit and merge counters together with the current segment
// counts.
func (db *Database) Stats() Stats {
	set := db.active.Load()

	db.mu.Lock()
	waiting := len(db.waiting)
	db.mu.Unlock()

	return Stats{
		Segments:        len(set.rows),
		WaitingSegments: waiting,
		Generation:      db.gen.Load(),
		Changes:         db.changes.Load(),
		Merges:          db.merges.Load(),
	}
}

// Stats is a point-in-time snapshot of database counters.
type Stats struct {
	// Segments is the size of the active set.
	Segments int
	// WaitingSegments counts segments written but not yet committed.
	WaitingSegments int
	// Generation is the highest generation assigned so far.
	Generation uint64
	// Changes counts CommitSegments transitions.
	Changes uint64
	// Merges counts CommitMerge transitions.
	Merges uint64
}

// Close waits for background merges to settle and releases every segment
// reference the database holds. Open cursors keep their snapshots usable
// until closed. Closing twice is harmless.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Flush goroutines racing through startBackground, then drain them.
	db.mu.Lock()
	db.mu.Unlock() //nolint:staticcheck // empty critical section is the barrier
	db.bg.Wait()

	var errs []error

	set := db.active.Swap(&activeSet{})
	for _, r := range set.rows {
		if err := r.seg.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", r.seg.Name(), err))
		}
	}

	db.mu.Lock()
	waiting := db.waiting
	db.waiting = make(map[segment.Handle]struct{})
	db.mu.Unlock()

	for seg := range waiting {
		if err := seg.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", seg.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// snapshot opens a subcursor on every row of the current active set, newest
// first, and returns them with the matching generations. When the set swaps
// underneath the scan and a row is already released, the whole snapshot is
// retried against the new set. Reports false when the set holds fewer than
// minRows rows.
func (db *Database) snapshot(minRows int) ([]cursor.Cursor, []uint64, bool) {
	for {
		set := db.active.Load()
		if len(set.rows) < minRows {
			return nil, nil, false
		}

		subs := make([]cursor.Cursor, 0, len(set.rows))
		gens := make([]uint64, 0, len(set.rows))
		retry := false

		for _, r := range set.rows {
			c, err := r.seg.NewCursor()
			if err != nil {
				retry = true

				break
			}

			subs = append(subs, c)
			gens = append(gens, r.gen)
		}

		if retry {
			for _, c := range subs {
				_ = c.Close()
			}

			continue
		}

		return subs, gens, true
	}
}

// startBackground registers a background job, or reports false when the
// database is closing and no new jobs may start.
func (db *Database) startBackground() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed.Load() {
		return false
	}

	db.bg.Add(1)

	return true
}

func (db *Database) addWaiting(seg segment.Handle) {
	db.mu.Lock()
	db.waiting[seg] = struct{}{}
	db.mu.Unlock()
}

// nextSegmentName produces a blob name unique within this database instance.
func (db *Database) nextSegmentName() string {
	return fmt.Sprintf("seg-%s-%06d.lsm", db.namePrefix, db.nameSeq.Add(1))
}
