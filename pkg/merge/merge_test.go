package merge

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mnohosten/diodb/pkg/segment"
)

func buildParent(t *testing.T, dir, name string, segs []segment.Segment) *segment.Handle {
	t.Helper()
	h, err := segment.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, s := range segs {
		if err := h.Write(s); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := h.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := h.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	return h
}

func readAll(t *testing.T, h *segment.Handle) []segment.Segment {
	t.Helper()
	if err := h.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	var out []segment.Segment
	for {
		end, err := h.AtEnd()
		if err != nil {
			t.Fatalf("AtEnd: %v", err)
		}
		if end {
			break
		}
		seg, err := h.ReadNext()
		if err != nil {
			t.Fatalf("ReadNext: %v", err)
		}
		out = append(out, seg)
	}
	return out
}

// TestMergeAdjacentRanges is scenario 4: two SSTables with disjoint key
// ranges merge into one table containing every key in ascending order.
func TestMergeAdjacentRanges(t *testing.T) {
	dir := t.TempDir()

	var a, b []segment.Segment
	for i := 0; i < 100; i++ {
		a = append(a, segment.Segment{Key: []byte(fmt.Sprintf("%03d", i)), Value: []byte("a")})
	}
	for i := 100; i < 200; i++ {
		b = append(b, segment.Segment{Key: []byte(fmt.Sprintf("%03d", i)), Value: []byte("b")})
	}

	pa := buildParent(t, dir, "a.dat", a)
	pb := buildParent(t, dir, "b.dat", b)
	dest, err := segment.Open(filepath.Join(dir, "dest.dat"))
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}

	if err := Merge([]*segment.Handle{pa, pb}, dest); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	got := readAll(t, dest)
	if len(got) != 200 {
		t.Fatalf("len(got) = %d, want 200", len(got))
	}
	for i, seg := range got {
		want := fmt.Sprintf("%03d", i)
		if string(seg.Key) != want {
			t.Fatalf("got[%d].Key = %q, want %q", i, seg.Key, want)
		}
	}
}

// TestMergeDuplicatesNewerWins is scenario 5: among parents with
// overlapping keys, the youngest (lowest index) parent's version wins.
func TestMergeDuplicatesNewerWins(t *testing.T) {
	dir := t.TempDir()

	a := []segment.Segment{
		{Key: []byte("0"), Value: []byte("0-new")},
		{Key: []byte("1"), Value: []byte("1-new")},
		{Key: []byte("3"), Value: []byte("3-new")},
	}
	b := []segment.Segment{
		{Key: []byte("0"), Value: []byte("0-old")},
		{Key: []byte("2"), Value: []byte("2-old")},
		{Key: []byte("3"), Value: []byte("3-old")},
	}

	pa := buildParent(t, dir, "a.dat", a)
	pb := buildParent(t, dir, "b.dat", b)
	dest, err := segment.Open(filepath.Join(dir, "dest.dat"))
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}

	if err := Merge([]*segment.Handle{pa, pb}, dest); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	got := readAll(t, dest)
	want := map[string]string{"0": "0-new", "1": "1-new", "2": "2-old", "3": "3-new"}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for _, seg := range got {
		if string(seg.Value) != want[string(seg.Key)] {
			t.Errorf("key %q = %q, want %q", seg.Key, seg.Value, want[string(seg.Key)])
		}
	}
}

// TestMergeDropsTombstonesAtBase covers the rule that a merge down to
// the base table drops tombstones entirely.
func TestMergeDropsTombstonesAtBase(t *testing.T) {
	dir := t.TempDir()

	a := []segment.Segment{
		{Key: []byte("k1"), IsTombstone: true},
		{Key: []byte("k2"), Value: []byte("v2")},
	}
	b := []segment.Segment{
		{Key: []byte("k1"), Value: []byte("old")},
	}

	pa := buildParent(t, dir, "a.dat", a)
	pb := buildParent(t, dir, "b.dat", b)
	dest, err := segment.Open(filepath.Join(dir, "dest.dat"))
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}

	if err := Merge([]*segment.Handle{pa, pb}, dest); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	got := readAll(t, dest)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1 (tombstoned k1 dropped)", len(got))
	}
	if string(got[0].Key) != "k2" {
		t.Fatalf("got[0].Key = %q, want k2", got[0].Key)
	}
}

// TestMergeThreeWayTieBreak covers the load-bearing tie-break rule:
// among parents caching the same key, the youngest (smallest index)
// wins, exercised across three parents.
func TestMergeThreeWayTieBreak(t *testing.T) {
	dir := t.TempDir()

	p0 := buildParent(t, dir, "p0.dat", []segment.Segment{{Key: []byte("k"), Value: []byte("youngest")}})
	p1 := buildParent(t, dir, "p1.dat", []segment.Segment{{Key: []byte("k"), Value: []byte("middle")}})
	p2 := buildParent(t, dir, "p2.dat", []segment.Segment{{Key: []byte("k"), Value: []byte("oldest")}})

	dest, err := segment.Open(filepath.Join(dir, "dest.dat"))
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}
	if err := Merge([]*segment.Handle{p0, p1, p2}, dest); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	got := readAll(t, dest)
	if len(got) != 1 || string(got[0].Value) != "youngest" {
		t.Fatalf("got = %+v, want single youngest segment", got)
	}
}
