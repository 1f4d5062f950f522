// Package segment defines the on-disk record format shared by every
// SSTable file and the I/O handle used to read and write it.
package segment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCorruption is returned when a record cannot be parsed: a short
// read, or a key/value length that does not fit in the remaining file
// bytes. The file is immutable and untrusted once this happens; the
// caller decides whether to abort the process or attempt recovery.
var ErrCorruption = errors.New("segment: corrupt record")

// maxSegmentLength bounds key_size and val_size to what the wire format
// can represent: a u32 each, per the record layout below.
const maxSegmentLength = 1<<32 - 1

// Segment is one key/value/tombstone record. Segments are ordered by
// Key using strict lexicographic byte comparison.
type Segment struct {
	Key         []byte
	Value       []byte
	IsTombstone bool
}

// Compare orders two segments by key, ascending.
func Compare(a, b Segment) int {
	return bytes.Compare(a.Key, b.Key)
}

// Handle wraps a file opened for read+write and exposes the sequential
// segment codec operations the SSTable layer needs. A Handle is bound to
// one file for its entire lifetime and is not safe for concurrent use;
// callers serialize access externally.
//
// On-disk record layout:
//
//	[ key_size : u32 little-endian ]
//	[ val_size : u32 little-endian ]
//	[ key bytes : key_size ]
//	[ val bytes : val_size ]
//	[ tombstone : u8 (0 or 1) ]
type Handle struct {
	path string
	file *os.File
}

// Open opens path for read+write, creating it if it does not already
// exist. The offset starts at zero either way.
func Open(path string) (*Handle, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}
	return &Handle{path: path, file: file}, nil
}

// Path returns the file path this handle was opened on.
func (h *Handle) Path() string { return h.path }

// Close releases the underlying file descriptor. It does not flush.
func (h *Handle) Close() error {
	return h.file.Close()
}

// Reset seeks back to the start of the file.
func (h *Handle) Reset() error {
	_, err := h.file.Seek(0, io.SeekStart)
	return err
}

// Offset returns the current byte position in the file.
func (h *Handle) Offset() (int64, error) {
	return h.file.Seek(0, io.SeekCurrent)
}

// Seek jumps to an absolute byte offset.
func (h *Handle) Seek(offset int64) error {
	_, err := h.file.Seek(offset, io.SeekStart)
	return err
}

// AtEnd reports whether the current offset equals the file size.
func (h *Handle) AtEnd() (bool, error) {
	offset, err := h.Offset()
	if err != nil {
		return false, err
	}
	info, err := h.file.Stat()
	if err != nil {
		return false, err
	}
	return offset == info.Size(), nil
}

// Flush durably syncs buffered writes to the OS.
func (h *Handle) Flush() error {
	return h.file.Sync()
}

// Write appends one serialized record at the current offset, advancing
// it by the record's encoded length.
func (h *Handle) Write(seg Segment) error {
	if len(seg.Key) > maxSegmentLength || len(seg.Value) > maxSegmentLength {
		return fmt.Errorf("segment: key or value exceeds %d bytes", maxSegmentLength)
	}

	buf := make([]byte, 9+len(seg.Key)+len(seg.Value))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(seg.Key)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(seg.Value)))
	n := copy(buf[8:], seg.Key)
	copy(buf[8+n:], seg.Value)
	if seg.IsTombstone {
		buf[len(buf)-1] = 1
	}

	if _, err := h.file.Write(buf); err != nil {
		return fmt.Errorf("segment: write %s: %w", h.path, err)
	}
	return nil
}

// ReadNext parses one record at the current offset and advances past
// it. Callers must first check AtEnd; calling ReadNext at EOF is a
// precondition violation.
func (h *Handle) ReadNext() (Segment, error) {
	var header [8]byte
	if _, err := io.ReadFull(h.file, header[:]); err != nil {
		return Segment{}, fmt.Errorf("segment: read header: %w: %v", ErrCorruption, err)
	}
	keyLen := binary.LittleEndian.Uint32(header[0:4])
	valLen := binary.LittleEndian.Uint32(header[4:8])

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(h.file, key); err != nil {
		return Segment{}, fmt.Errorf("segment: read key: %w: %v", ErrCorruption, err)
	}
	val := make([]byte, valLen)
	if _, err := io.ReadFull(h.file, val); err != nil {
		return Segment{}, fmt.Errorf("segment: read value: %w: %v", ErrCorruption, err)
	}
	var tomb [1]byte
	if _, err := io.ReadFull(h.file, tomb[:]); err != nil {
		return Segment{}, fmt.Errorf("segment: read tombstone flag: %w: %v", ErrCorruption, err)
	}
	if tomb[0] != 0 && tomb[0] != 1 {
		return Segment{}, fmt.Errorf("segment: tombstone flag %d: %w", tomb[0], ErrCorruption)
	}

	return Segment{Key: key, Value: val, IsTombstone: tomb[0] == 1}, nil
}
