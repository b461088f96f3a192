// Package memdir provides a base in-memory implementation of the storage
// driver interface for demonstration and tests.
package memdir

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/halcwb/LSM/driver"
)

// ErrNotFound is returned when opening or removing a blob that does not
// exist.
var ErrNotFound = errors.New("blob not found")

// Driver keeps all blobs in process memory. A blob written through Create
// becomes visible to Open only once closed, mirroring the filesystem backend.
type Driver struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New returns an empty in-memory driver.
func New() *Driver {
	return &Driver{
		blobs: make(map[string][]byte),
	}
}

// Create implements driver.Driver.
func (d *Driver) Create(name string) (driver.WritableFile, error) {
	return &writableFile{d: d, name: name}, nil
}

// Open implements driver.Driver.
func (d *Driver) Open(name string) (driver.ReadableFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, ok := d.blobs[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, ErrNotFound)
	}

	return &readableFile{data: data}, nil
}

// Remove implements driver.Driver. Readers opened earlier keep their data.
func (d *Driver) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.blobs[name]; !ok {
		return fmt.Errorf("remove %s: %w", name, ErrNotFound)
	}

	delete(d.blobs, name)

	return nil
}

// List implements driver.Driver.
func (d *Driver) List() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.blobs))
	for name := range d.blobs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

type writableFile struct {
	d    *Driver
	name string
	buf  bytes.Buffer
}

func (w *writableFile) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writableFile) Sync() error {
	return nil
}

// Close publishes the accumulated bytes under the blob name.
func (w *writableFile) Close() error {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()

	w.d.blobs[w.name] = append([]byte(nil), w.buf.Bytes()...)

	return nil
}

type readableFile struct {
	data []byte
}

func (r *readableFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(r.data)) {
		return 0, fmt.Errorf("read at %d: out of range", off)
	}

	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("read at %d: short read", off)
	}

	return n, nil
}

func (r *readableFile) Size() int64 {
	return int64(len(r.data))
}

func (r *readableFile) Close() error {
	return nil
}

var _ driver.Driver = (*Driver)(nil)
