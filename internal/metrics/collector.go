// Package metrics keeps usage counters and request timings for the
// guardrail endpoints. A Collector is created once at startup and handed to
// every component that records usage.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates named counters and durations.
type Collector struct {
	mutex    sync.RWMutex
	counters map[string]*counterMetric
	timings  map[string]*timingMetric
	started  time.Time
}

type counterMetric struct {
	value atomic.Int64
}

type timingMetric struct {
	mutex sync.Mutex
	last  float64
	count int64
	sum   float64
	max   float64
}

// TimingStats summarises every recorded duration of one name.
type TimingStats struct {
	Count  int64   `json:"count"`
	LastMs float64 `json:"last_ms"`
	AvgMs  float64 `json:"avg_ms"`
	MaxMs  float64 `json:"max_ms"`
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	Counters    map[string]int64       `json:"counters"`
	TimingsMs   map[string]float64     `json:"timings_ms"`
	TimingStats map[string]TimingStats `json:"timing_stats"`
	UptimeSec   float64                `json:"uptime_sec"`
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counters: make(map[string]*counterMetric),
		timings:  make(map[string]*timingMetric),
		started:  time.Now(),
	}
}

// Increment adds one to the named counter.
func (c *Collector) Increment(name string) {
	c.Add(name, 1)
}

// Add adds n to the named counter.
func (c *Collector) Add(name string, n int64) {
	c.counter(name).value.Add(n)
}

// RecordDuration records one duration for name.
func (c *Collector) RecordDuration(name string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	t := c.timing(name)

	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.last = ms
	t.count++
	t.sum += ms
	if ms > t.max {
		t.max = ms
	}
}

// Time starts a timer; calling the returned func records the elapsed time.
func (c *Collector) Time(name string) func() {
	start := time.Now()
	return func() {
		c.RecordDuration(name, time.Since(start))
	}
}

// Snapshot returns a copy of every counter and timing.
func (c *Collector) Snapshot() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	snap := Snapshot{
		Counters:    make(map[string]int64, len(c.counters)),
		TimingsMs:   make(map[string]float64, len(c.timings)),
		TimingStats: make(map[string]TimingStats, len(c.timings)),
		UptimeSec:   time.Since(c.started).Seconds(),
	}
	for name, counter := range c.counters {
		snap.Counters[name] = counter.value.Load()
	}
	for name, t := range c.timings {
		t.mutex.Lock()
		stats := TimingStats{Count: t.count, LastMs: t.last, MaxMs: t.max}
		if t.count > 0 {
			stats.AvgMs = t.sum / float64(t.count)
		}
		t.mutex.Unlock()

		snap.TimingsMs[name] = stats.LastMs
		snap.TimingStats[name] = stats
	}
	return snap
}

func (c *Collector) counter(name string) *counterMetric {
	c.mutex.RLock()
	m, ok := c.counters[name]
	c.mutex.RUnlock()
	if ok {
		return m
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if m, ok = c.counters[name]; !ok {
		m = &counterMetric{}
		c.counters[name] = m
	}
	return m
}

func (c *Collector) timing(name string) *timingMetric {
	c.mutex.RLock()
	m, ok := c.timings[name]
	c.mutex.RUnlock()
	if ok {
		return m
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if m, ok = c.timings[name]; !ok {
		m = &timingMetric{}
		c.timings[name] = m
	}
	return m
}
