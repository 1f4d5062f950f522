// Package merge implements the streaming k-way merge that SSTable uses
// to combine an ordered list of parent tables into one new table,
// resolving same-key collisions by recency and dropping tombstones.
package merge

import (
	"github.com/mnohosten/diodb/pkg/segment"
)

// pending is the merge buffer of §4.4.1: at most one (segment, age) pair,
// where age is the ordinal of the source parent (0 = youngest).
type pending struct {
	seg segment.Segment
	age int
}

// Merge reads from parents, newest first (index 0) to oldest last, and
// writes the union of their key spaces to dest, each key resolved to its
// most recent version. Tombstones are dropped: this always merges down
// to a base table. dest is flushed before returning.
//
// parents must be freshly opened (or Reset) read handles; Merge consumes
// them sequentially and does not close them.
func Merge(parents []*segment.Handle, dest *segment.Handle) error {
	if len(parents) == 0 {
		panic("merge: empty parent list")
	}

	cached := make([]*segment.Segment, len(parents))

	var buf *pending
	for {
		// Ensure every parent with more bytes available has a cached
		// segment before picking a candidate.
		for i, p := range parents {
			if cached[i] != nil {
				continue
			}
			atEnd, err := p.AtEnd()
			if err != nil {
				return err
			}
			if atEnd {
				continue
			}
			seg, err := p.ReadNext()
			if err != nil {
				return err
			}
			cached[i] = &seg
		}

		minIdx := -1
		for i, seg := range cached {
			if seg == nil {
				continue
			}
			if minIdx == -1 || segment.Compare(*seg, *cached[minIdx]) < 0 {
				minIdx = i
			}
		}
		if minIdx == -1 {
			break // every parent exhausted and no cached segment remains
		}

		var err error
		buf, err = feed(buf, *cached[minIdx], minIdx, dest)
		if err != nil {
			return err
		}
		cached[minIdx] = nil
	}

	if buf != nil && !buf.seg.IsTombstone {
		if err := dest.Write(buf.seg); err != nil {
			return err
		}
	}
	return dest.Flush()
}

// feed applies one incoming (segment, age) pair to the merge buffer,
// emitting the previously buffered segment through dest if the key
// changed.
func feed(buf *pending, seg segment.Segment, age int, dest *segment.Handle) (*pending, error) {
	if buf == nil {
		return &pending{seg: seg, age: age}, nil
	}

	if segment.Compare(buf.seg, seg) != 0 {
		if !buf.seg.IsTombstone {
			if err := dest.Write(buf.seg); err != nil {
				return nil, err
			}
		}
		return &pending{seg: seg, age: age}, nil
	}

	// Same key: the smaller age is younger and wins.
	if age < buf.age {
		return &pending{seg: seg, age: age}, nil
	}
	return buf, nil
}
