// Package metrics collects counters for the engine's own operations and
// exports them in Prometheus text format.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector holds the counters the HTTP surface and the engine update as
// requests are served and rolls occur.
type Collector struct {
	startTime time.Time

	putsTotal   atomic.Uint64
	erasesTotal atomic.Uint64
	getsTotal   atomic.Uint64
	getsHit     atomic.Uint64
	getsMiss    atomic.Uint64
	rollsTotal  atomic.Uint64
	rollsFailed atomic.Uint64
}

// NewCollector returns a Collector with its uptime clock started.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordPut increments the put counter.
func (c *Collector) RecordPut() { c.putsTotal.Add(1) }

// RecordErase increments the erase counter.
func (c *Collector) RecordErase() { c.erasesTotal.Add(1) }

// RecordGet increments the get counter and its hit/miss split.
func (c *Collector) RecordGet(hit bool) {
	c.getsTotal.Add(1)
	if hit {
		c.getsHit.Add(1)
	} else {
		c.getsMiss.Add(1)
	}
}

// RecordRoll increments the roll counter and, on failure, the failure
// counter.
func (c *Collector) RecordRoll(err error) {
	c.rollsTotal.Add(1)
	if err != nil {
		c.rollsFailed.Add(1)
	}
}
