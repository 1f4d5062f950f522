// Package engine implements the DB controller: the state machine that
// owns the two memtable slots and the two SSTable lists, serves
// Put/Erase/Get/KeyExists, and drives the roll (compaction) protocol as
// a self-rescheduling background job.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mnohosten/diodb/pkg/memtable"
	"github.com/mnohosten/diodb/pkg/readable"
	"github.com/mnohosten/diodb/pkg/scopedexec"
	"github.com/mnohosten/diodb/pkg/sstable"
)

// Enqueuer is the capability the controller needs from a worker pool:
// run a job on a goroutine distinct from the caller's.
type Enqueuer interface {
	Enqueue(job func())
}

// Config holds every tunable the controller needs, passed explicitly at
// construction. There are no package-level flags or singletons.
type Config struct {
	// DBDirectory is where the canonical and staging SSTable files live.
	DBDirectory string

	// Extension names the on-disk file suffix, e.g. "diodb". Defaults to
	// "diodb" when empty.
	Extension string

	// BackgroundTaskMinGap is the minimum time between successive roll
	// jobs. Defaults to one second.
	BackgroundTaskMinGap time.Duration

	// IndexOffsetBytes is the SSTable sparse-index gap. Defaults to
	// sstable.DefaultIndexOffsetBytes.
	IndexOffsetBytes int

	// ResolvedWorkerCount is purely informational: the worker pool's
	// actual size, logged once at construction.
	ResolvedWorkerCount int

	// OnRoll, if set, is called once per rollTables invocation that
	// reaches a flush or merge attempt, with the error from that attempt
	// (nil on success). A roll skipped because the primary memtable was
	// empty does not call OnRoll.
	OnRoll func(err error)
}

func (c Config) withDefaults() Config {
	if c.Extension == "" {
		c.Extension = "diodb"
	}
	if c.BackgroundTaskMinGap <= 0 {
		c.BackgroundTaskMinGap = time.Second
	}
	if c.IndexOffsetBytes <= 0 {
		c.IndexOffsetBytes = sstable.DefaultIndexOffsetBytes
	}
	return c
}

// Controller is the DB controller described by the engine's roll
// protocol. The zero value is not usable; construct one with New.
type Controller struct {
	cfg     Config
	log     *zap.SugaredLogger
	workers Enqueuer

	startOnce sync.Once
	started   bool

	primaryMu sync.RWMutex // guards the primary memtable pointer itself
	primary   *memtable.Memtable

	secondary *memtable.Memtable // always frozen outside a roll in flight

	tablesMu sync.RWMutex
	primaryTables []*sstable.SSTable
}

// New constructs a stopped Controller. Call Start before Put/Erase/Get.
func New(cfg Config, workers Enqueuer, log *zap.SugaredLogger) *Controller {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	secondary := memtable.New()
	secondary.Freeze()

	log.Infow("constructed db controller", "worker_count", cfg.ResolvedWorkerCount)

	return &Controller{
		cfg:       cfg.withDefaults(),
		log:       log,
		workers:   workers,
		primary:   memtable.New(),
		secondary: secondary,
	}
}

// Start enqueues the first roll job. It is idempotent; calling it more
// than once has no additional effect.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		c.started = true
		c.log.Infow("starting db controller", "index_offset_bytes", c.cfg.IndexOffsetBytes)
		c.workers.Enqueue(c.rollTables)
	})
}

// Put inserts or overwrites key with value, retrying against a
// transiently frozen primary memtable.
func (c *Controller) Put(key, value []byte) {
	c.mustBeStarted()
	for {
		c.primaryMu.RLock()
		m := c.primary
		c.primaryMu.RUnlock()
		if m.Put(key, value) {
			return
		}
	}
}

// Erase records a deletion of key, with the same retry discipline as Put.
func (c *Controller) Erase(key []byte) {
	c.mustBeStarted()
	for {
		c.primaryMu.RLock()
		m := c.primary
		c.primaryMu.RUnlock()
		if m.Erase(key) {
			return
		}
	}
}

// layers returns the ordered list of readable tables to probe for a
// read: primary memtable, secondary memtable, then every SSTable in the
// live list, newest first. Every SSTable layer is Acquired before it is
// returned, so a concurrent roll's list swap cannot close its handle out
// from under the read; the caller must invoke the returned release func
// exactly once, after it is done probing the layers.
func (c *Controller) layers() ([]readable.Table, func()) {
	c.primaryMu.RLock()
	primary, secondary := c.primary, c.secondary
	c.primaryMu.RUnlock()

	c.tablesMu.RLock()
	tables := c.primaryTables
	c.tablesMu.RUnlock()

	for _, t := range tables {
		t.Acquire()
	}

	layers := make([]readable.Table, 0, 2+len(tables))
	layers = append(layers, primary.AsTable(), secondary.AsTable())
	for _, t := range tables {
		layers = append(layers, t)
	}

	release := func() {
		for _, t := range tables {
			t.Release()
		}
	}
	return layers, release
}

// KeyExists reports whether key is present and not tombstoned, per the
// layered probe.
func (c *Controller) KeyExists(key []byte) (bool, error) {
	c.mustBeStarted()
	layers, release := c.layers()
	defer release()
	for _, layer := range layers {
		l, err := layer.Lookup(key)
		if err != nil {
			return false, err
		}
		if l.Present {
			return !l.Tombstone, nil
		}
	}
	return false, nil
}

// Get returns the value for key, or nil if it is absent or tombstoned.
func (c *Controller) Get(key []byte) ([]byte, error) {
	c.mustBeStarted()
	layers, release := c.layers()
	defer release()
	for _, layer := range layers {
		l, err := layer.Lookup(key)
		if err != nil {
			return nil, err
		}
		if l.Present {
			if l.Tombstone {
				return nil, nil
			}
			value, _, err := layer.Get(key)
			return value, err
		}
	}
	return nil, nil
}

func (c *Controller) mustBeStarted() {
	if !c.started {
		panic("engine: controller used before Start")
	}
}

// Close waits for no in-flight roll guarantee; the roll protocol has no
// cancellation, so Close only releases the live list's own reference to
// each current SSTable. If a reader is still mid-lookup against one of
// them, that table's handle stays open until the reader's own Release
// runs. Callers that need a clean shutdown must stop enqueueing new work
// on the worker pool themselves.
func (c *Controller) Close() error {
	c.tablesMu.Lock()
	defer c.tablesMu.Unlock()

	var firstErr error
	for _, t := range c.primaryTables {
		if err := t.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Controller) path(name string) string {
	return filepath.Join(c.cfg.DBDirectory, name)
}

func (c *Controller) levelZeroPath() string  { return c.path(fmt.Sprintf("lvl_0.%s", c.cfg.Extension)) }
func (c *Controller) levelBasePath() string  { return c.path(fmt.Sprintf("lvl_base.%s", c.cfg.Extension)) }
func (c *Controller) levelZeroStage() string { return c.levelZeroPath() + ".secondary" }
func (c *Controller) levelBaseStage() string { return c.levelBasePath() + ".secondary" }

// rollTables is the compaction job. It is always run on a worker-pool
// goroutine, never concurrently with itself, and re-enqueues itself on
// every exit path via a scoped release.
func (c *Controller) rollTables() {
	if !c.secondary.Frozen() {
		panic("engine: rollTables precondition violated: secondary memtable not frozen")
	}

	c.log.Debug("performing table roll")
	startTime := time.Now()

	onRoll := c.cfg.OnRoll
	if onRoll == nil {
		onRoll = func(error) {}
	}

	guard := scopedexec.New(func() {
		elapsed := time.Since(startTime)
		sleepFor := c.cfg.BackgroundTaskMinGap - elapsed
		time.Sleep(sleepFor)
		c.workers.Enqueue(c.rollTables)
	})
	defer guard.Release()

	c.primaryMu.RLock()
	primarySize := c.primary.Size()
	c.primaryMu.RUnlock()
	if primarySize == 0 {
		c.log.Debug("primary memtable empty, skipping roll")
		return
	}

	c.primaryMu.Lock()
	c.primary.Freeze()
	oldPrimary := c.primary
	// The new primary is a fresh, unfrozen memtable rather than the old
	// secondary slot: the old secondary is always empty by the roll's own
	// precondition, so there is nothing worth keeping from it, and a
	// brand new memtable makes "unfrozen and empty" true by construction
	// instead of by bookkeeping.
	c.primary = memtable.New()
	c.secondary = oldPrimary
	c.primaryMu.Unlock()

	var secondaryTables []*sstable.SSTable

	// "Has entries" counts tombstones too, unlike step 1's size() check:
	// a tombstone-only memtable still carries a deletion that must reach
	// disk so later SSTable layers stop answering for that key.
	live, tombstone := oldPrimary.Counts()
	if live+tombstone > 0 {
		stagePath := c.levelZeroStage()
		lvl0, err := sstable.Flush(stagePath, oldPrimary, c.cfg.IndexOffsetBytes)
		if err != nil {
			c.log.Errorw("flush to level-0 failed", "error", err)
			onRoll(err)
			return
		}
		secondaryTables = append(secondaryTables, lvl0)
	}

	c.tablesMu.RLock()
	parents := append([]*sstable.SSTable(nil), c.primaryTables...)
	c.tablesMu.RUnlock()

	if len(parents) > 0 {
		baseStage := c.levelBaseStage()
		base, err := sstable.MergeFrom(baseStage, parents, c.cfg.IndexOffsetBytes)
		if err != nil {
			c.log.Errorw("merge to base table failed", "error", err)
			onRoll(err)
			return
		}
		secondaryTables = append(secondaryTables, base)
	}

	c.tablesMu.Lock()
	oldTables := c.primaryTables
	c.primaryTables = secondaryTables
	c.tablesMu.Unlock()

	// Release, not Close: a reader that snapshotted this list in layers()
	// just before the swap may still hold its own Acquire on one of these
	// tables. The handle only actually closes once that reader's Release
	// runs too.
	for _, t := range oldTables {
		t.Release()
	}
	os.Remove(c.levelZeroPath())
	os.Remove(c.levelBasePath())
	if _, err := os.Stat(c.levelZeroStage()); err == nil {
		os.Rename(c.levelZeroStage(), c.levelZeroPath())
	}
	if _, err := os.Stat(c.levelBaseStage()); err == nil {
		os.Rename(c.levelBaseStage(), c.levelBasePath())
	}

	c.primaryMu.Lock()
	fresh := memtable.New()
	fresh.Freeze()
	c.secondary = fresh
	c.primaryMu.Unlock()

	onRoll(nil)
}

// NumWorkerThreads returns runtime.NumCPU(), the default used when a
// caller configures zero worker threads.
func NumWorkerThreads() int { return runtime.NumCPU() }
