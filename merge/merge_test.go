package merge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcwb/LSM/cursor"
	"github.com/halcwb/LSM/driver/memdir"
	"github.com/halcwb/LSM/kv"
	"github.com/halcwb/LSM/merge"
	"github.com/halcwb/LSM/segment"
)

func TestTicket_CopiesGenerations(t *testing.T) {
	t.Parallel()

	gens := []uint64{5, 4, 3}
	ticket := merge.NewTicket(gens)

	gens[0] = 99

	assert.Equal(t, []uint64{5, 4, 3}, ticket.Generations())
	assert.Equal(t, 3, ticket.Len())

	// The returned slice is a copy as well.
	got := ticket.Generations()
	got[1] = 99

	assert.Equal(t, []uint64{5, 4, 3}, ticket.Generations())
}

func TestPending_ResultBeforeResolve(t *testing.T) {
	t.Parallel()

	p, _ := merge.NewPending(merge.NewTicket([]uint64{1}))

	assert.False(t, p.Ready())

	_, err := p.Result()
	assert.ErrorIs(t, err, merge.ErrNotReady)
}

func TestPending_Resolve(t *testing.T) {
	t.Parallel()

	drv := memdir.New()

	w, err := segment.NewWriter(drv, "merged.lsm")
	require.NoError(t, err)
	require.NoError(t, w.Append(kv.Key("a"), kv.Value("1")))

	seg, err := w.Finish()
	require.NoError(t, err)
	defer seg.Release()

	p, resolve := merge.NewPending(merge.NewTicket([]uint64{2, 1}))

	go resolve(seg, nil)

	got, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, seg, got)

	assert.True(t, p.Ready())

	got, err = p.Result()
	require.NoError(t, err)
	assert.Same(t, seg, got)

	select {
	case <-p.Done():
	default:
		t.Fatal("done channel must be closed after resolve")
	}
}

func TestPending_ResolveError(t *testing.T) {
	t.Parallel()

	failure := errors.New("backend exploded")

	p, resolve := merge.NewPending(merge.NewTicket(nil))
	resolve(nil, failure)

	_, err := p.Result()
	assert.ErrorIs(t, err, failure)

	_, err = p.Wait(context.Background())
	assert.ErrorIs(t, err, failure)
}

func TestPending_WaitCancelled(t *testing.T) {
	t.Parallel()

	p, _ := merge.NewPending(merge.NewTicket([]uint64{1}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFold(t *testing.T) {
	t.Parallel()

	drv := memdir.New()

	newSeg := func(name string, pairs ...kv.Pair) segment.Handle {
		w, err := segment.NewWriter(drv, name)
		require.NoError(t, err)

		for _, p := range pairs {
			require.NoError(t, w.Append(p.Key, p.Value))
		}

		seg, err := w.Finish()
		require.NoError(t, err)

		return seg
	}

	newer := newSeg("in-newer.lsm",
		kv.Pair{Key: kv.Key("b"), Value: kv.Value("new")},
		kv.Pair{Key: kv.Key("d"), Value: kv.Value("new")},
	)
	defer newer.Release()

	older := newSeg("in-older.lsm",
		kv.Pair{Key: kv.Key("a"), Value: kv.Value("old")},
		kv.Pair{Key: kv.Key("b"), Value: kv.Value("old")},
		kv.Pair{Key: kv.Key("c"), Value: kv.Value("old")},
	)
	defer older.Release()

	cNewer, err := newer.NewCursor()
	require.NoError(t, err)

	cOlder, err := older.NewCursor()
	require.NoError(t, err)

	src := cursor.NewMulti(cNewer, cOlder)
	defer src.Close()

	dst, err := segment.NewWriter(drv, "out.lsm")
	require.NoError(t, err)

	require.NoError(t, merge.Fold(src, dst))

	merged, err := dst.Finish()
	require.NoError(t, err)
	defer merged.Release()

	assert.Equal(t, 4, merged.Count())

	c, err := merged.NewCursor()
	require.NoError(t, err)
	defer c.Close()

	want := []kv.Pair{
		{Key: kv.Key("a"), Value: kv.Value("old")},
		{Key: kv.Key("b"), Value: kv.Value("new")},
		{Key: kv.Key("c"), Value: kv.Value("old")},
		{Key: kv.Key("d"), Value: kv.Value("new")},
	}

	require.NoError(t, c.First())

	for _, p := range want {
		require.True(t, c.IsValid())

		k, err := c.Key()
		require.NoError(t, err)
		assert.Equal(t, p.Key, k)

		v, err := c.Value()
		require.NoError(t, err)
		assert.Equal(t, p.Value, v)

		require.NoError(t, c.Next())
	}

	assert.False(t, c.IsValid())
}

func TestFold_EmptySource(t *testing.T) {
	t.Parallel()

	drv := memdir.New()

	src := cursor.NewMulti()
	defer src.Close()

	dst, err := segment.NewWriter(drv, "out-empty.lsm")
	require.NoError(t, err)

	require.NoError(t, merge.Fold(src, dst))

	merged, err := dst.Finish()
	require.NoError(t, err)
	defer merged.Release()

	assert.Equal(t, 0, merged.Count())
}
