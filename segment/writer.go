package segment

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/halcwb/LSM/driver"
	"github.com/halcwb/LSM/internal/options"
	"github.com/halcwb/LSM/kv"
)

// WriterOptions contains configuration options for segment writers.
type WriterOptions struct {
	// BloomFPRate is the target false-positive rate of the per-segment
	// bloom filter consulted on exact-match seeks.
	BloomFPRate float64
}

// WriterOption is a function that configures writer options.
type WriterOption = options.OptionCallback[WriterOptions]

// WithBloomFPRate overrides the bloom filter false-positive rate.
func WithBloomFPRate(rate float64) WriterOption {
	return func(o *WriterOptions) {
		o.BloomFPRate = rate
	}
}

func defaultWriterOptions() WriterOptions {
	return WriterOptions{
		BloomFPRate: 0.01,
	}
}

// Writer streams a strictly ascending sequence of key-value pairs into a new
// durable segment blob. Values go to the backend as they arrive; keys are
// held in the in-memory index until Finish writes the index, filter and tail.
type Writer struct {
	drv  driver.Driver
	name string
	file driver.WritableFile
	opts WriterOptions

	off     int64
	entries []indexEntry
	done    bool
}

// NewWriter starts a new segment blob under the given name.
func NewWriter(drv driver.Driver, name string, opts ...WriterOption) (*Writer, error) {
	file, err := drv.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create segment blob: %w", err)
	}

	return &Writer{
		drv:  drv,
		name: name,
		file: file,
		opts: options.ApplyOptions(defaultWriterOptions, opts),
	}, nil
}

// Name returns the blob name the writer produces.
func (w *Writer) Name() string {
	return w.name
}

// Append adds one pair. Keys must arrive in strictly ascending byte order;
// a key equal to or smaller than the previous one fails with ErrOutOfOrder.
func (w *Writer) Append(key kv.Key, value kv.Value) error {
	if w.done {
		return errors.New("writer already finished")
	}

	if n := len(w.entries); n > 0 && kv.Compare(key, kv.Key(w.entries[n-1].Key)) <= 0 {
		return fmt.Errorf("append %q: %w", key, ErrOutOfOrder)
	}

	if _, err := w.file.Write(value); err != nil {
		return fmt.Errorf("write value: %w", err)
	}

	w.entries = append(w.entries, indexEntry{
		Key:      key.Clone(),
		ValueOff: w.off,
		ValueLen: int64(len(value)),
	})
	w.off += int64(len(value))

	return nil
}

// Finish writes the index, filter and tail blocks, makes the blob durable and
// returns the finished segment opened for reading with one reference held by
// the caller.
func (w *Writer) Finish() (*Segment, error) {
	if w.done {
		return nil, errors.New("writer already finished")
	}
	w.done = true

	indexBytes, err := msgpack.Marshal(indexBlock{Entries: w.entries})
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}

	filter := bloom.NewWithEstimates(uint(max(len(w.entries), 1)), w.opts.BloomFPRate)
	for _, e := range w.entries {
		filter.Add(e.Key)
	}

	var filterBuf bytes.Buffer
	if _, err := filter.WriteTo(&filterBuf); err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	if _, err := w.file.Write(indexBytes); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}

	if _, err := w.file.Write(filterBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("write filter: %w", err)
	}

	t := tail{
		indexOff:  uint64(w.off),
		indexLen:  uint64(len(indexBytes)),
		filterLen: uint64(filterBuf.Len()),
		version:   formatVersion,
		magic:     formatMagic,
	}

	if _, err := w.file.Write(t.encode()); err != nil {
		return nil, fmt.Errorf("write tail: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return nil, fmt.Errorf("finalize segment blob: %w", err)
	}

	file, err := w.drv.Open(w.name)
	if err != nil {
		return nil, fmt.Errorf("reopen segment blob: %w", err)
	}

	return &Segment{
		name:    w.name,
		drv:     w.drv,
		file:    file,
		entries: w.entries,
		filter:  filter,
		refs:    1,
	}, nil
}

// Discard abandons the blob. The writer must not be used afterwards.
func (w *Writer) Discard() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close abandoned blob: %w", err)
	}

	if err := w.drv.Remove(w.name); err != nil {
		return fmt.Errorf("remove abandoned blob: %w", err)
	}

	return nil
}
