package lsm_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lsm "github.com/halcwb/LSM"
	"github.com/halcwb/LSM/driver/memdir"
	"github.com/halcwb/LSM/kv"
	"github.com/halcwb/LSM/merge"
	"github.com/halcwb/LSM/segment"
	"github.com/halcwb/LSM/tx"
)

// runMergeCycle computes and commits one full merge.
func runMergeCycle(t *testing.T, db *lsm.Database) {
	t.Helper()

	pending := db.MergeAll().UnwrapOr(nil)
	require.NotNil(t, pending)

	_, err := pending.Wait(context.Background())
	require.NoError(t, err)

	txn, err := db.RequestWriteLock(context.Background())
	require.NoError(t, err)
	defer txn.Close()

	require.NoError(t, txn.CommitMerge(pending))
}

func TestMergeAll_NothingToMerge(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	// Empty set.
	assert.False(t, db.MergeAll().IsSome())

	// A single segment has nothing to fold with.
	commitPairs(t, db, kv.Pair{Key: kv.Key("a"), Value: kv.Value("1")})
	assert.False(t, db.MergeAll().IsSome())
}

func TestMergeAll_Conservation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	commitPairs(t, db,
		kv.Pair{Key: kv.Key("a"), Value: kv.Value("a1")},
		kv.Pair{Key: kv.Key("b"), Value: kv.Value("b1")},
	)
	commitPairs(t, db,
		kv.Pair{Key: kv.Key("b"), Value: kv.Value("b2")},
		kv.Pair{Key: kv.Key("c"), Value: kv.Value("c2")},
	)
	commitPairs(t, db,
		kv.Pair{Key: kv.Key("c"), Value: kv.Value("c3")},
		kv.Pair{Key: kv.Key("d"), Value: kv.Value("d3")},
	)

	before := scanKeys(t, db)

	runMergeCycle(t, db)

	s := db.Stats()
	assert.Equal(t, 1, s.Segments)
	assert.EqualValues(t, 1, s.Merges)

	// The visible pairs are unchanged.
	assert.Equal(t, before, scanKeys(t, db))

	for key, want := range map[string]string{
		"a": "a1", "b": "b2", "c": "c3", "d": "d3",
	} {
		v, ok := lookup(t, db, key)
		require.True(t, ok, "key %s must survive the merge", key)
		assert.Equal(t, want, v)
	}
}

func TestMergeAll_PreservesLaterCommits(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	commitPairs(t, db, kv.Pair{Key: kv.Key("a"), Value: kv.Value("old")})
	commitPairs(t, db, kv.Pair{Key: kv.Key("b"), Value: kv.Value("old")})

	pending := db.MergeAll().UnwrapOr(nil)
	require.NotNil(t, pending)

	_, err := pending.Wait(context.Background())
	require.NoError(t, err)

	// A commit lands between the snapshot and the merge commit.
	commitPairs(t, db, kv.Pair{Key: kv.Key("a"), Value: kv.Value("newer")})

	txn, err := db.RequestWriteLock(context.Background())
	require.NoError(t, err)

	require.NoError(t, txn.CommitMerge(pending))
	require.NoError(t, txn.Close())

	assert.Equal(t, 2, db.Stats().Segments)

	// The later commit still shadows the merged data.
	v, ok := lookup(t, db, "a")
	require.True(t, ok)
	assert.Equal(t, "newer", v)
}

func TestCommitMerge_NotReady(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	pending, _ := merge.NewPending(merge.NewTicket([]uint64{2, 1}))

	txn, err := db.RequestWriteLock(context.Background())
	require.NoError(t, err)
	defer txn.Close()

	assert.ErrorIs(t, txn.CommitMerge(pending), merge.ErrNotReady)
}

func TestCommitMerge_Stale(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	commitPairs(t, db, kv.Pair{Key: kv.Key("a"), Value: kv.Value("1")})
	commitPairs(t, db, kv.Pair{Key: kv.Key("b"), Value: kv.Value("2")})

	// Two merges computed from the same snapshot race to commit.
	first := db.MergeAll().UnwrapOr(nil)
	require.NotNil(t, first)

	second := db.MergeAll().UnwrapOr(nil)
	require.NotNil(t, second)

	_, err := first.Wait(context.Background())
	require.NoError(t, err)

	secondSeg, err := second.Wait(context.Background())
	require.NoError(t, err)

	txn, err := db.RequestWriteLock(context.Background())
	require.NoError(t, err)

	require.NoError(t, txn.CommitMerge(first))

	// The loser's inputs are gone; the active set is untouched by the
	// failed commit.
	err = txn.CommitMerge(second)
	require.ErrorIs(t, err, tx.ErrStale)
	require.NoError(t, txn.Close())

	assert.Equal(t, 1, db.Stats().Segments)
	assert.EqualValues(t, 1, db.Stats().Merges)

	require.NoError(t, db.ForgetWaitingSegments([]segment.Handle{secondSeg}))

	v, ok := lookup(t, db, "a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestCommitMerge_StaleAfterPartialReplacement(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	commitPairs(t, db, kv.Pair{Key: kv.Key("a"), Value: kv.Value("1")})
	commitPairs(t, db, kv.Pair{Key: kv.Key("b"), Value: kv.Value("2")})

	// Snapshot of generations {2, 1}.
	stale := db.MergeAll().UnwrapOr(nil)
	require.NotNil(t, stale)

	staleSeg, err := stale.Wait(context.Background())
	require.NoError(t, err)

	// A newer commit plus a fresh merge replaces all three rows, so the
	// stale ticket no longer matches any contiguous run.
	commitPairs(t, db, kv.Pair{Key: kv.Key("c"), Value: kv.Value("3")})
	runMergeCycle(t, db)

	txn, err := db.RequestWriteLock(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, txn.CommitMerge(stale), tx.ErrStale)
	require.NoError(t, txn.Close())

	require.NoError(t, db.ForgetWaitingSegments([]segment.Handle{staleSeg}))
}

func TestMergeAll_ReclaimsReplacedSegments(t *testing.T) {
	t.Parallel()

	drv := memdir.New()

	db := newTestDB(t, lsm.WithDriver(drv))

	commitPairs(t, db, kv.Pair{Key: kv.Key("a"), Value: kv.Value("1")})
	commitPairs(t, db, kv.Pair{Key: kv.Key("b"), Value: kv.Value("2")})

	runMergeCycle(t, db)

	// Only the merged blob remains on the backend.
	names, err := drv.List()
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestAutoMerge(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, lsm.WithSettings(lsm.Settings{
		AutoMergeEnabled:         true,
		AutoMergeMinimumSegments: 3,
	}))

	for i := range 6 {
		commitPairs(t, db, kv.Pair{
			Key:   kv.Key(fmt.Sprintf("key-%d", i)),
			Value: kv.Value(fmt.Sprintf("value-%d", i)),
		})
	}

	// The background cycle shrinks the set below the threshold.
	require.Eventually(t, func() bool {
		return db.Stats().Segments < 3
	}, 5*time.Second, 10*time.Millisecond)

	keys := scanKeys(t, db)
	assert.Len(t, keys, 6)

	for i := range 6 {
		v, ok := lookup(t, db, fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("value-%d", i), v)
	}
}
