// Package memtable implements the in-memory sorted component of the LSM
// engine: an ordered map from key to the most recent segment for that
// key, which freezes exactly once before being flushed to an SSTable.
package memtable

import (
	"sync"

	"github.com/mnohosten/diodb/pkg/readable"
	"github.com/mnohosten/diodb/pkg/segment"
)

// Memtable is an ordered, in-memory mapping from key to the most recent
// segment for that key. It is created mutable, transitions to frozen
// exactly once, and is then only read until it is discarded by a flush.
type Memtable struct {
	mu     sync.RWMutex
	table  *skipList
	frozen bool

	liveCount      int
	tombstoneCount int
}

// New creates an empty, mutable Memtable.
func New() *Memtable {
	return &Memtable{table: newSkipList()}
}

// Put inserts or overwrites key with a live value. It reports false
// without making any change if the memtable is frozen.
func (m *Memtable) Put(key, value []byte) bool {
	return m.put(key, value, false)
}

func (m *Memtable) put(key, value []byte, tombstone bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return false
	}

	seg := segment.Segment{Key: key, Value: value, IsTombstone: tombstone}
	prior, existed := m.table.search(key)
	m.table.insert(key, seg)

	switch {
	case !existed:
		if tombstone {
			m.tombstoneCount++
		} else {
			m.liveCount++
		}
	case prior.IsTombstone && !tombstone:
		m.tombstoneCount--
		m.liveCount++
	case !prior.IsTombstone && tombstone:
		m.liveCount--
		m.tombstoneCount++
	}
	return true
}

// Erase records a deletion. If the key is absent, a tombstone is
// inserted anyway: a later SSTable layer may still hold the key and
// must be overridden. If the key is already a tombstone, this is a
// no-op (idempotent). It reports false without making any change if
// the memtable is frozen.
func (m *Memtable) Erase(key []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return false
	}

	prior, existed := m.table.search(key)
	if existed && prior.IsTombstone {
		return true
	}

	m.table.insert(key, segment.Segment{Key: key, IsTombstone: true})
	if existed {
		m.liveCount--
	}
	m.tombstoneCount++
	return true
}

// Get returns the stored value for a live entry. It reports false both
// when the key is absent and when the entry is a tombstone.
func (m *Memtable) Get(key []byte) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seg, ok := m.table.search(key)
	if !ok || seg.IsTombstone {
		return nil, false
	}
	return seg.Value, true
}

// Lookup distinguishes a tombstone from a missing key, which a plain Get
// cannot: this is what the controller's layered read needs.
func (m *Memtable) Lookup(key []byte) readable.Lookup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seg, ok := m.table.search(key)
	if !ok {
		return readable.Lookup{}
	}
	return readable.Lookup{Present: true, Tombstone: seg.IsTombstone}
}

// Freeze idempotently marks the memtable read-only. After Freeze, every
// mutating call fails cleanly by returning false.
func (m *Memtable) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

// Frozen reports whether Freeze has been called.
func (m *Memtable) Frozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}

// Size returns the live entry count, per the engine's definition of
// "is there anything here worth flushing".
func (m *Memtable) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liveCount
}

// Counts returns the live and tombstone counters, for tests and stats.
func (m *Memtable) Counts() (live, tombstone int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liveCount, m.tombstoneCount
}

// Iterator returns an iterator over all entries (live and tombstone) in
// strictly ascending key order, for use by a flush.
func (m *Memtable) Iterator() *Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Iterator{current: m.table.head}
}

// Iterator walks a Memtable's entries in ascending key order. It follows
// the skip list's level-0 chain as it stands at each Next call, without
// taking the memtable's lock; callers must only iterate a frozen
// memtable to get a consistent view.
type Iterator struct {
	current *skipListNode
}

// Next advances the iterator and reports whether an entry is available.
func (it *Iterator) Next() bool {
	if it.current == nil {
		return false
	}
	it.current = it.current.forward[0]
	return it.current != nil
}

// Segment returns the entry at the iterator's current position.
func (it *Iterator) Segment() segment.Segment {
	return it.current.value
}

// AsTable adapts m to the readable.Table capability so the controller can
// walk memtables and SSTables through one interface. A memtable's
// methods never fail, so err is always nil.
func (m *Memtable) AsTable() readable.Table { return tableAdapter{m} }

type tableAdapter struct{ m *Memtable }

func (t tableAdapter) Lookup(key []byte) (readable.Lookup, error) {
	return t.m.Lookup(key), nil
}

func (t tableAdapter) Get(key []byte) ([]byte, bool, error) {
	value, ok := t.m.Get(key)
	return value, ok, nil
}

func (t tableAdapter) Size() int { return t.m.Size() }
