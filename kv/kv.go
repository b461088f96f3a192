// Package kv provides the key-value data model shared by every layer of the
// storage core. Keys are ordered by unsigned byte-wise lexicographic
// comparison; values are opaque blobs.
package kv

import "bytes"

// Key is a byte sequence ordered by raw unsigned byte comparison.
// The ordering is not numeric and not locale-aware.
type Key []byte

// Value is an opaque blob of bytes, possibly empty.
type Value []byte

// Pair represents a single key-value pair.
type Pair struct {
	// Key is the raw key bytes.
	Key Key
	// Value is the raw value bytes.
	Value Value
}

// Compare returns -1, 0 or 1 ordering two keys by unsigned byte-wise
// lexicographic comparison. This is the single total order used by segments,
// cursors and the merge engine.
func Compare(a, b Key) int {
	return bytes.Compare(a, b)
}

// Clone returns an independent copy of the key.
func (k Key) Clone() Key {
	return Key(append([]byte(nil), k...))
}

// Clone returns an independent copy of the value.
func (v Value) Clone() Value {
	return Value(append([]byte(nil), v...))
}
