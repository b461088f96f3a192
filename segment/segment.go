package segment

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/halcwb/LSM/cursor"
	"github.com/halcwb/LSM/driver"
	"github.com/halcwb/LSM/kv"
)

// Handle is an opaque reference to a built segment. A handle returned by a
// writer is not visible to readers of a database until committed.
type Handle = *Segment

// Segment is an immutable, byte-order sorted key-value unit backed by one
// blob in the storage backend. Segments are reference counted: cursors and
// in-flight merges retain them, so a segment outlives its logical removal
// from the active set until the last reference is dropped.
type Segment struct {
	name    string
	drv     driver.Driver
	file    driver.ReadableFile
	entries []indexEntry
	filter  *bloom.BloomFilter

	mu     sync.Mutex
	refs   int
	doomed bool
}

// Open reads the tail, index and filter blocks of an existing blob and
// returns the segment with one reference held by the caller.
func Open(drv driver.Driver, name string) (*Segment, error) {
	file, err := drv.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open segment blob: %w", err)
	}

	seg, err := load(drv, name, file)
	if err != nil {
		_ = file.Close()

		return nil, err
	}

	return seg, nil
}

func load(drv driver.Driver, name string, file driver.ReadableFile) (*Segment, error) {
	size := file.Size()
	if size < tailSize {
		return nil, newCorruptionError(name, "blob shorter than tail", nil)
	}

	tailBuf := make([]byte, tailSize)
	if _, err := file.ReadAt(tailBuf, size-tailSize); err != nil {
		return nil, newCorruptionError(name, "read tail", err)
	}

	t, err := decodeTail(tailBuf)
	if err != nil {
		return nil, newCorruptionError(name, "decode tail", err)
	}

	end := int64(t.indexOff) + int64(t.indexLen) + int64(t.filterLen)
	if int64(t.indexOff) < 0 || end != size-tailSize {
		return nil, newCorruptionError(name, "block extents do not add up", nil)
	}

	indexBuf := make([]byte, t.indexLen)
	if _, err := file.ReadAt(indexBuf, int64(t.indexOff)); err != nil {
		return nil, newCorruptionError(name, "read index", err)
	}

	var index indexBlock
	if err := msgpack.Unmarshal(indexBuf, &index); err != nil {
		return nil, newCorruptionError(name, "decode index", err)
	}

	filterBuf := make([]byte, t.filterLen)
	if _, err := file.ReadAt(filterBuf, int64(t.indexOff)+int64(t.indexLen)); err != nil {
		return nil, newCorruptionError(name, "read filter", err)
	}

	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(bytes.NewReader(filterBuf)); err != nil {
		return nil, newCorruptionError(name, "decode filter", err)
	}

	return &Segment{
		name:    name,
		drv:     drv,
		file:    file,
		entries: index.Entries,
		filter:  filter,
		refs:    1,
	}, nil
}

// Name returns the blob name backing the segment.
func (s *Segment) Name() string {
	return s.name
}

// Count returns the number of keys in the segment.
func (s *Segment) Count() int {
	return len(s.entries)
}

// Retain adds a reference. It reports false when the segment was already
// released, in which case the caller must not use it.
func (s *Segment) Retain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return false
	}

	s.refs++

	return true
}

// Release drops one reference. When the last reference goes the backing file
// is closed, and the blob is deleted if the segment was doomed.
func (s *Segment) Release() error {
	s.mu.Lock()
	s.refs--
	last := s.refs == 0
	doomed := s.doomed
	s.mu.Unlock()

	if !last {
		return nil
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close segment blob: %w", err)
	}

	if doomed {
		if err := s.drv.Remove(s.name); err != nil {
			return fmt.Errorf("reclaim segment blob: %w", err)
		}
	}

	return nil
}

// Doom marks the segment for storage reclamation once the last reference is
// released. Called when the segment is dropped from the active set or
// forgotten before commit.
func (s *Segment) Doom() {
	s.mu.Lock()
	s.doomed = true
	s.mu.Unlock()
}

// NewCursor retains the segment and returns a cursor over it. Closing the
// cursor releases the reference. The cursor starts out invalid.
func (s *Segment) NewCursor() (cursor.Cursor, error) {
	if !s.Retain() {
		return nil, ErrReleased
	}

	return &segmentCursor{seg: s, pos: -1}, nil
}

// readValue fetches the value bytes of the entry at the given index.
func (s *Segment) readValue(i int) (kv.Value, error) {
	e := s.entries[i]

	buf := make([]byte, e.ValueLen)
	if _, err := s.file.ReadAt(buf, e.ValueOff); err != nil {
		return nil, newCorruptionError(s.name, fmt.Sprintf("read value of key %q", e.Key), err)
	}

	return buf, nil
}

// mayContain consults the bloom filter for an exact-match candidate.
func (s *Segment) mayContain(key kv.Key) bool {
	return s.filter.Test(key)
}
