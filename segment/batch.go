package segment

import (
	"fmt"
	"io"
	"slices"

	"github.com/halcwb/LSM/kv"
)

// Batch accumulates an unordered collection of key-value pairs destined for
// one segment. Setting a key twice keeps the later value (last-write-wins).
// A Batch is not safe for concurrent use; build one per writer.
type Batch struct {
	values  map[string]kv.Value
	streams map[string]io.Reader
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		values:  make(map[string]kv.Value),
		streams: make(map[string]io.Reader),
	}
}

// Set records a key-value pair, overwriting any earlier value or stream
// recorded for the same key.
func (b *Batch) Set(key kv.Key, value kv.Value) {
	b.values[string(key)] = value
	delete(b.streams, string(key))
}

// SetStream records a key whose value bytes are drained from r when the
// batch is sorted into pairs. Overwrites any earlier entry for the key.
func (b *Batch) SetStream(key kv.Key, r io.Reader) {
	b.streams[string(key)] = r
	delete(b.values, string(key))
}

// Len returns the number of distinct keys in the batch.
func (b *Batch) Len() int {
	return len(b.values) + len(b.streams)
}

// Pairs collapses the batch into pairs sorted by byte order of the key,
// draining any streamed values. The batch itself is not consumed.
func (b *Batch) Pairs() ([]kv.Pair, error) {
	pairs := make([]kv.Pair, 0, b.Len())

	for k, v := range b.values {
		pairs = append(pairs, kv.Pair{Key: kv.Key(k), Value: v})
	}

	for k, r := range b.streams {
		v, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("drain value stream for key %q: %w", k, err)
		}

		pairs = append(pairs, kv.Pair{Key: kv.Key(k), Value: v})
	}

	slices.SortFunc(pairs, func(a, b kv.Pair) int {
		return kv.Compare(a.Key, b.Key)
	})

	return pairs, nil
}
