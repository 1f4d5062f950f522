// Package sstable implements the immutable, on-disk sorted table: built
// by flushing a frozen memtable or by merging other SSTables, and read
// through a sparse in-memory index that bounds the per-lookup scan.
package sstable

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mnohosten/diodb/pkg/memtable"
	"github.com/mnohosten/diodb/pkg/merge"
	"github.com/mnohosten/diodb/pkg/readable"
	"github.com/mnohosten/diodb/pkg/segment"
)

// DefaultIndexOffsetBytes is the minimum byte gap the sparse index
// leaves between indexed entries, trading index memory for a longer
// linear scan per lookup.
const DefaultIndexOffsetBytes = 4096

type indexEntry struct {
	key    []byte
	offset int64
}

// SSTable is an immutable, on-disk sorted table. It is constructed once
// (open, flush, or merge) and then read-only for the rest of its
// lifetime; a new version is always written to a sibling path and
// renamed in, never edited in place.
//
// A table is refcounted so that a reader holding it across a list swap
// never sees its handle close underneath an in-flight lookup: the live
// list's own slot counts as one reference, taken at construction, and a
// reader snapshotting the list must Acquire its own before the list's
// reference can be dropped.
type SSTable struct {
	path string
	id   uint64
	size int64

	index []indexEntry

	// handle serializes point lookups against this table's file: concurrent
	// lookups on the same SSTable are serialized on its handle.
	mu     sync.Mutex
	handle *segment.Handle

	liveCount      int
	tombstoneCount int

	refs atomic.Int32
}

func tableID(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

// Path returns the canonical file path backing this table.
func (s *SSTable) Path() string { return s.path }

// ID returns a stable hash of the table's path.
func (s *SSTable) ID() uint64 { return s.id }

// ByteSize returns the on-disk file size as of construction.
func (s *SSTable) ByteSize() int64 { return s.size }

// Counts returns the live and tombstone record counts.
func (s *SSTable) Counts() (live, tombstone int) { return s.liveCount, s.tombstoneCount }

// Acquire adds one reference to the table. Pair every Acquire with a
// Release; the table's file handle stays open until the reference count
// returns to zero.
func (s *SSTable) Acquire() {
	s.refs.Add(1)
}

// Release drops one reference to the table, closing its I/O handle once
// the last reference is released. The caller whose Release actually
// closes the handle is responsible for deleting the backing file, if
// desired, afterward.
func (s *SSTable) Release() error {
	if s.refs.Add(-1) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.handle.Close()
	}
	return nil
}

// Close releases the table's own reference, the one implicitly held
// since construction. It is Release under another name, for callers
// (construction error paths, tests building a table directly) that hold
// the table's only reference and never call Acquire.
func (s *SSTable) Close() error {
	return s.Release()
}

// Open constructs an SSTable from an existing file, requiring it to
// already exist. The sparse index is rebuilt by scanning the file once.
func Open(path string, indexOffsetBytes int) (*SSTable, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	return build(path, indexOffsetBytes)
}

// Flush constructs a new SSTable at path from a frozen memtable, walking
// it in ascending key order and appending every segment, including
// tombstones. path must not already exist and m must be frozen.
func Flush(path string, m *memtable.Memtable, indexOffsetBytes int) (*SSTable, error) {
	if !m.Frozen() {
		panic("sstable: Flush requires a frozen memtable")
	}
	if _, err := os.Stat(path); err == nil {
		panic(fmt.Sprintf("sstable: Flush target %s already exists", path))
	}

	handle, err := segment.Open(path)
	if err != nil {
		return nil, err
	}

	it := m.Iterator()
	for it.Next() {
		if err := handle.Write(it.Segment()); err != nil {
			handle.Close()
			return nil, err
		}
	}
	if err := handle.Flush(); err != nil {
		handle.Close()
		return nil, err
	}
	if err := handle.Close(); err != nil {
		return nil, err
	}

	return build(path, indexOffsetBytes)
}

// MergeFrom constructs a new SSTable at path by k-way merging parents,
// newest first. path must not already exist. The merge engine does not
// maintain index state directly; once it completes, the file is scanned
// and the sparse index rebuilt from it, guaranteeing index-file
// consistency.
func MergeFrom(path string, parents []*SSTable, indexOffsetBytes int) (*SSTable, error) {
	if len(parents) == 0 {
		panic("sstable: MergeFrom requires at least one parent")
	}
	if _, err := os.Stat(path); err == nil {
		panic(fmt.Sprintf("sstable: MergeFrom target %s already exists", path))
	}

	readers := make([]*segment.Handle, len(parents))
	for i, p := range parents {
		r, err := p.openReader()
		if err != nil {
			for _, opened := range readers[:i] {
				opened.Close()
			}
			return nil, err
		}
		readers[i] = r
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	dest, err := segment.Open(path)
	if err != nil {
		return nil, err
	}
	if err := merge.Merge(readers, dest); err != nil {
		dest.Close()
		return nil, err
	}
	if err := dest.Close(); err != nil {
		return nil, err
	}

	return build(path, indexOffsetBytes)
}

// openReader opens an independent, freshly-reset read handle on this
// table's file, for use by MergeFrom. It is distinct from the table's
// own serialized handle so a merge reading an old base table does not
// contend with concurrent point lookups against it.
func (s *SSTable) openReader() (*segment.Handle, error) {
	return segment.Open(s.path)
}

// build scans path from the start, constructing the sparse index and
// live/tombstone counters, and returns the resulting SSTable holding an
// open handle reset to the start of the file.
func build(path string, indexOffsetBytes int) (*SSTable, error) {
	if indexOffsetBytes <= 0 {
		indexOffsetBytes = DefaultIndexOffsetBytes
	}

	handle, err := segment.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		handle.Close()
		return nil, err
	}

	var (
		idx            []indexEntry
		lastIndexed    int64 = -1
		liveCount      int
		tombstoneCount int
	)

	for {
		atEnd, err := handle.AtEnd()
		if err != nil {
			handle.Close()
			return nil, err
		}
		if atEnd {
			break
		}

		offset, err := handle.Offset()
		if err != nil {
			handle.Close()
			return nil, err
		}
		candidate := offset == 0 || offset-lastIndexed >= int64(indexOffsetBytes)

		seg, err := handle.ReadNext()
		if err != nil {
			handle.Close()
			return nil, err
		}

		if candidate {
			idx = append(idx, indexEntry{key: append([]byte(nil), seg.Key...), offset: offset})
			lastIndexed = offset
		}

		if seg.IsTombstone {
			tombstoneCount++
		} else {
			liveCount++
		}
	}

	if err := handle.Reset(); err != nil {
		handle.Close()
		return nil, err
	}

	t := &SSTable{
		path:           path,
		id:             tableID(path),
		size:           info.Size(),
		index:          idx,
		handle:         handle,
		liveCount:      liveCount,
		tombstoneCount: tombstoneCount,
	}
	t.refs.Store(1)
	return t, nil
}

// findSegment returns the exact segment for key if present in the file,
// using the sparse index to bound the linear scan.
func (s *SSTable) findSegment(key []byte) (segment.Segment, bool, error) {
	if len(s.index) == 0 || bytes.Compare(key, s.index[0].key) < 0 {
		return segment.Segment{}, false, nil
	}

	i := sort.Search(len(s.index), func(i int) bool {
		return bytes.Compare(s.index[i].key, key) >= 0
	})

	var startOffset int64
	if i < len(s.index) && bytes.Equal(s.index[i].key, key) {
		startOffset = s.index[i].offset
	} else {
		if i == 0 {
			return segment.Segment{}, false, nil
		}
		startOffset = s.index[i-1].offset
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.handle.Seek(startOffset); err != nil {
		return segment.Segment{}, false, err
	}

	for {
		atEnd, err := s.handle.AtEnd()
		if err != nil {
			return segment.Segment{}, false, err
		}
		if atEnd {
			return segment.Segment{}, false, nil
		}

		seg, err := s.handle.ReadNext()
		if err != nil {
			return segment.Segment{}, false, err
		}

		switch bytes.Compare(seg.Key, key) {
		case 0:
			return seg, true, nil
		case 1:
			return segment.Segment{}, false, nil
		}
	}
}

// Lookup distinguishes a tombstone from a missing key.
func (s *SSTable) Lookup(key []byte) (readable.Lookup, error) {
	seg, found, err := s.findSegment(key)
	if err != nil {
		return readable.Lookup{}, err
	}
	if !found {
		return readable.Lookup{}, nil
	}
	return readable.Lookup{Present: true, Tombstone: seg.IsTombstone}, nil
}

// Get returns the segment's value if found and not a tombstone.
func (s *SSTable) Get(key []byte) ([]byte, bool, error) {
	seg, found, err := s.findSegment(key)
	if err != nil {
		return nil, false, err
	}
	if !found || seg.IsTombstone {
		return nil, false, nil
	}
	return seg.Value, true, nil
}

// Size returns the live record count.
func (s *SSTable) Size() int { return s.liveCount }

// SanityCheck scans the entire file and verifies keys are
// non-decreasing; equal adjacent keys pass. It is a debug operation used
// by tests and optionally run after a merge.
func (s *SSTable) SanityCheck() error {
	r, err := s.openReader()
	if err != nil {
		return err
	}
	defer r.Close()

	var prev []byte
	for {
		atEnd, err := r.AtEnd()
		if err != nil {
			return err
		}
		if atEnd {
			return nil
		}
		seg, err := r.ReadNext()
		if err != nil {
			return err
		}
		if prev != nil && bytes.Compare(prev, seg.Key) > 0 {
			return fmt.Errorf("sstable: %s out of order: %q follows %q", s.path, seg.Key, prev)
		}
		prev = seg.Key
	}
}
