// Package diodb is the embedding-facing facade over the storage engine:
// it owns a Config, the DB controller, and a worker pool, and exposes
// the handful of operations an embedder or a surrounding server needs.
package diodb

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mnohosten/diodb/internal/engine"
	"github.com/mnohosten/diodb/pkg/workerpool"
)

// Config is passed explicitly to Open; there are no package-level flags
// or singletons.
type Config struct {
	// DBDirectory is where SSTable files are created and read. It is
	// created if it does not already exist.
	DBDirectory string

	// Extension names the on-disk file suffix. Defaults to "diodb".
	Extension string

	// BackgroundTaskMinGap is the minimum time between roll cycles.
	// Defaults to one second.
	BackgroundTaskMinGap time.Duration

	// NumWorkerThreads sizes the worker pool. Zero selects hardware
	// concurrency.
	NumWorkerThreads int

	// IndexOffsetBytes controls SSTable sparse-index density. Defaults
	// to sstable.DefaultIndexOffsetBytes.
	IndexOffsetBytes int

	// Logger receives structured engine logs. A no-op logger is used
	// when nil.
	Logger *zap.SugaredLogger

	// OnRoll, if set, is called after every attempted background roll
	// with the error from that attempt (nil on success). A roll skipped
	// because the primary memtable was empty does not call OnRoll.
	OnRoll func(err error)
}

// DB is an open, running instance of the storage engine.
type DB struct {
	cfg        Config
	controller *engine.Controller
	pool       *workerpool.Pool
	events     *hub
}

// Open creates cfg.DBDirectory if needed, starts a worker pool and the
// DB controller, and returns a running DB. The background roll job is
// already scheduled when Open returns.
func Open(cfg Config) (*DB, error) {
	if cfg.DBDirectory == "" {
		return nil, fmt.Errorf("diodb: Config.DBDirectory is required")
	}
	if err := os.MkdirAll(cfg.DBDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("diodb: create %s: %w", cfg.DBDirectory, err)
	}

	pool := workerpool.New(workerpool.Config{NumWorkers: cfg.NumWorkerThreads, Logger: cfg.Logger})

	controller := engine.New(engine.Config{
		DBDirectory:          cfg.DBDirectory,
		Extension:            cfg.Extension,
		BackgroundTaskMinGap: cfg.BackgroundTaskMinGap,
		IndexOffsetBytes:     cfg.IndexOffsetBytes,
		ResolvedWorkerCount:  pool.Stats().NumWorkers,
		OnRoll:               cfg.OnRoll,
	}, pool, cfg.Logger)
	controller.Start()

	return &DB{cfg: cfg, controller: controller, pool: pool, events: newHub()}, nil
}

// Put inserts or overwrites key with value.
func (db *DB) Put(key, value []byte) {
	db.controller.Put(key, value)
	db.events.publish(Event{Type: EventPut, Key: key, Value: value})
}

// Erase records a deletion of key.
func (db *DB) Erase(key []byte) {
	db.controller.Erase(key)
	db.events.publish(Event{Type: EventErase, Key: key})
}

// Subscribe registers for a live feed of Put/Erase events, delivered in
// the order they are applied. The returned channel is closed by
// the cancel function; callers must call it to release the
// subscription.
func (db *DB) Subscribe(bufferSize int) (<-chan Event, func()) {
	return db.events.Subscribe(bufferSize)
}

// Get returns the value for key, or nil if absent or tombstoned.
func (db *DB) Get(key []byte) ([]byte, error) {
	return db.controller.Get(key)
}

// Exists reports whether key is present and not tombstoned.
func (db *DB) Exists(key []byte) (bool, error) {
	return db.controller.KeyExists(key)
}

// Close shuts the worker pool down, draining any queued jobs, and
// releases the controller's open SSTable handles. The in-flight roll,
// if any, is not cancelled; Close waits for the worker pool to drain
// after it finishes.
func (db *DB) Close() error {
	db.pool.Shutdown()
	return db.controller.Close()
}
