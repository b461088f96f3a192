// Package driver defines the interface for durable-storage backends beneath
// segments. The storage core only needs named blobs with sequential writes,
// random reads and deletion; any backend satisfying that contract can hold
// segments.
package driver

import "io"

// Driver is the interface durable-storage backends must implement.
// Implementations must allow concurrent calls.
type Driver interface {
	// Create starts writing a new blob under the given name. The blob
	// becomes readable only after the returned file is closed.
	Create(name string) (WritableFile, error)

	// Open opens an existing blob for random-access reads. A blob may be
	// open for reading any number of times concurrently.
	Open(name string) (ReadableFile, error)

	// Remove deletes the blob. Open readers remain usable until closed.
	Remove(name string) error

	// List returns the names of all blobs in the backend.
	List() ([]string, error)
}

// WritableFile is a blob being written. Writes are sequential; Sync makes the
// bytes written so far durable and Close finalizes the blob.
type WritableFile interface {
	io.Writer

	// Sync flushes written bytes to durable storage.
	Sync() error

	// Close finalizes the blob and makes it visible to Open.
	Close() error
}

// ReadableFile is a blob opened for reading.
type ReadableFile interface {
	io.ReaderAt

	// Size returns the total length of the blob in bytes.
	Size() int64

	// Close releases the reader.
	Close() error
}
