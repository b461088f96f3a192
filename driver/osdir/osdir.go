// Package osdir implements the storage driver on top of a directory in the
// local filesystem. Each blob is one regular file; blobs are written to a
// temporary name and renamed into place on Close so that readers never
// observe a partially written file.
package osdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/halcwb/LSM/driver"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	tmpSuffix = ".tmp"
)

// Driver stores blobs as files under a single directory.
type Driver struct {
	dir string
}

// New creates the directory when missing and returns a driver over it.
func New(dir string) (*Driver, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &Driver{dir: dir}, nil
}

// Create implements driver.Driver.
func (d *Driver) Create(name string) (driver.WritableFile, error) {
	path := filepath.Join(d.dir, name)

	f, err := os.OpenFile(path+tmpSuffix, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	return &writableFile{f: f, path: path}, nil
}

// Open implements driver.Driver.
func (d *Driver) Open(name string) (driver.ReadableFile, error) {
	path := filepath.Join(d.dir, name)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("stat %s: %w", name, err)
	}

	return &readableFile{f: f, size: st.Size()}, nil
}

// Remove implements driver.Driver.
func (d *Driver) Remove(name string) error {
	if err := os.Remove(filepath.Join(d.dir, name)); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}

	return nil
}

// List implements driver.Driver. Blobs still being written are not listed.
func (d *Driver) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), tmpSuffix) {
			continue
		}

		names = append(names, e.Name())
	}

	return names, nil
}

type writableFile struct {
	f    *os.File
	path string
}

func (w *writableFile) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *writableFile) Sync() error {
	return w.f.Sync()
}

// Close syncs the temporary file and renames it to its final name.
func (w *writableFile) Close() error {
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()

		return fmt.Errorf("sync %s: %w", w.path, err)
	}

	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.path, err)
	}

	if err := os.Rename(w.path+tmpSuffix, w.path); err != nil {
		return fmt.Errorf("publish %s: %w", w.path, err)
	}

	return nil
}

type readableFile struct {
	f    *os.File
	size int64
}

func (r *readableFile) ReadAt(p []byte, off int64) (int, error) {
	return r.f.ReadAt(p, off)
}

func (r *readableFile) Size() int64 {
	return r.size
}

func (r *readableFile) Close() error {
	return r.f.Close()
}

var _ driver.Driver = (*Driver)(nil)
