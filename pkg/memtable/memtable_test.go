package memtable

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

func TestPutOverwriteReturnsLatestValue(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("v1"))
	m.Put([]byte("k"), []byte("v2"))

	got, ok := m.Get([]byte("k"))
	if !ok || string(got) != "v2" {
		t.Fatalf("Get = (%q, %v), want (v2, true)", got, ok)
	}
}

func TestEraseMasksOlderLayers(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("v"))
	if !m.Erase([]byte("k")) {
		t.Fatal("Erase returned false")
	}

	if _, ok := m.Get([]byte("k")); ok {
		t.Fatal("Get returned ok after Erase")
	}
	lk := m.Lookup([]byte("k"))
	if !lk.Present || !lk.Tombstone {
		t.Fatalf("Lookup = %+v, want present tombstone", lk)
	}
}

func TestEraseIsIdempotent(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("v"))
	m.Erase([]byte("k"))
	live1, tomb1 := m.Counts()

	m.Erase([]byte("k"))
	live2, tomb2 := m.Counts()

	if live1 != live2 || tomb1 != tomb2 {
		t.Fatalf("counts changed on second erase: (%d,%d) -> (%d,%d)", live1, tomb1, live2, tomb2)
	}
}

func TestEraseAbsentKeyInsertsTombstone(t *testing.T) {
	m := New()
	if !m.Erase([]byte("ghost")) {
		t.Fatal("Erase returned false")
	}
	lk := m.Lookup([]byte("ghost"))
	if !lk.Present || !lk.Tombstone {
		t.Fatalf("Lookup = %+v, want present tombstone", lk)
	}
}

func TestFrozenMemtableRejectsMutation(t *testing.T) {
	m := New()
	m.Put([]byte("a"), []byte("1"))
	m.Freeze()
	m.Freeze() // idempotent

	if m.Put([]byte("b"), []byte("2")) {
		t.Fatal("Put on frozen memtable returned true")
	}
	if m.Erase([]byte("a")) {
		t.Fatal("Erase on frozen memtable returned true")
	}
	if _, ok := m.Get([]byte("a")); !ok {
		t.Fatal("Get on frozen memtable should still see prior data")
	}
}

func TestCountersTrackOverwriteTransitions(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("v"))
	if live, tomb := m.Counts(); live != 1 || tomb != 0 {
		t.Fatalf("after Put: (%d,%d), want (1,0)", live, tomb)
	}

	m.Erase([]byte("k"))
	if live, tomb := m.Counts(); live != 0 || tomb != 1 {
		t.Fatalf("after Erase: (%d,%d), want (0,1)", live, tomb)
	}

	m.Put([]byte("k"), []byte("v2"))
	if live, tomb := m.Counts(); live != 1 || tomb != 0 {
		t.Fatalf("after revive Put: (%d,%d), want (1,0)", live, tomb)
	}
}

// TestIterationIsAlwaysAscending is IT-1: after any sequence of
// put/erase on a mutable memtable, iteration yields strictly ascending
// keys.
func TestIterationIsAlwaysAscending(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := New()

	for i := 0; i < 2000; i++ {
		key := []byte(fmt.Sprintf("key-%05d", rng.Intn(500)))
		if rng.Intn(3) == 0 {
			m.Erase(key)
		} else {
			m.Put(key, []byte("value"))
		}
	}

	it := m.Iterator()
	var prev []byte
	count := 0
	for it.Next() {
		seg := it.Segment()
		if prev != nil && bytes.Compare(prev, seg.Key) >= 0 {
			t.Fatalf("iteration out of order: %q then %q", prev, seg.Key)
		}
		prev = seg.Key
		count++
	}
	if count == 0 {
		t.Fatal("expected at least one entry")
	}
}

// TestCountInvariant is IT-2: live_count + tombstone_count equals the
// number of entries, neither counter negative.
func TestCountInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := New()

	for i := 0; i < 5000; i++ {
		key := []byte(fmt.Sprintf("key-%05d", rng.Intn(800)))
		if rng.Intn(2) == 0 {
			m.Erase(key)
		} else {
			m.Put(key, []byte("value"))
		}

		live, tomb := m.Counts()
		if live < 0 || tomb < 0 {
			t.Fatalf("negative counter: live=%d tomb=%d", live, tomb)
		}

		entries := 0
		it := m.Iterator()
		for it.Next() {
			entries++
		}
		if live+tomb != entries {
			t.Fatalf("live+tomb=%d, entries=%d", live+tomb, entries)
		}
	}
}
