// Package segment implements the immutable sorted key-value unit of the
// storage core: building one from a batch, writing it durably, and reading it
// back through a bidirectional cursor.
//
// On-disk layout, back to front: a values region, a msgpack-encoded index
// block holding every key with its value extent, a serialized bloom filter,
// and a fixed-size tail locating the blocks. The index is loaded into memory
// when a segment is opened; values are read on demand.
package segment

import (
	"encoding/binary"
	"fmt"
)

const (
	// formatMagic marks the end of a segment blob.
	formatMagic uint64 = 0x73656773746f7265

	// formatVersion is bumped on incompatible layout changes.
	formatVersion uint32 = 1

	// tailSize is the fixed byte length of the encoded tail.
	tailSize = 8 + 8 + 8 + 4 + 8
)

// indexEntry locates one value inside the values region. Keys live in the
// index itself so cursor navigation never touches the values region.
type indexEntry struct {
	Key      []byte `msgpack:"k"`
	ValueOff int64  `msgpack:"o"`
	ValueLen int64  `msgpack:"l"`
}

// indexBlock is the msgpack-encoded key index of a segment, ascending by key.
type indexBlock struct {
	Entries []indexEntry `msgpack:"e"`
}

// tail is the fixed-size trailer locating the index and filter blocks.
// The filter block sits immediately after the index block.
type tail struct {
	indexOff  uint64
	indexLen  uint64
	filterLen uint64
	version   uint32
	magic     uint64
}

func (t tail) encode() []byte {
	buf := make([]byte, tailSize)

	binary.BigEndian.PutUint64(buf[0:], t.indexOff)
	binary.BigEndian.PutUint64(buf[8:], t.indexLen)
	binary.BigEndian.PutUint64(buf[16:], t.filterLen)
	binary.BigEndian.PutUint32(buf[24:], t.version)
	binary.BigEndian.PutUint64(buf[28:], t.magic)

	return buf
}

func decodeTail(buf []byte) (tail, error) {
	if len(buf) != tailSize {
		return tail{}, fmt.Errorf("tail is %d bytes, want %d", len(buf), tailSize)
	}

	t := tail{
		indexOff:  binary.BigEndian.Uint64(buf[0:]),
		indexLen:  binary.BigEndian.Uint64(buf[8:]),
		filterLen: binary.BigEndian.Uint64(buf[16:]),
		version:   binary.BigEndian.Uint32(buf[24:]),
		magic:     binary.BigEndian.Uint64(buf[28:]),
	}

	if t.magic != formatMagic {
		return tail{}, fmt.Errorf("bad magic %#x", t.magic)
	}

	if t.version != formatVersion {
		return tail{}, fmt.Errorf("unsupported format version %d", t.version)
	}

	return t, nil
}
