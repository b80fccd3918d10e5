package server

import (
	"sync/atomic"
	"time"
)

// Stats collects atomic counters for the query pipeline. All methods are
// safe for concurrent use.
type Stats struct {
	received       atomic.Uint64
	dropped        atomic.Uint64
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64
	errors         atomic.Uint64
	latencyTotalNs atomic.Uint64
	latencyCount   atomic.Uint64
}

func (s *Stats) RecordReceived()  { s.received.Add(1) }
func (s *Stats) RecordDropped()   { s.dropped.Add(1) }
func (s *Stats) RecordCacheHit()  { s.cacheHits.Add(1) }
func (s *Stats) RecordCacheMiss() { s.cacheMisses.Add(1) }
func (s *Stats) RecordError()     { s.errors.Add(1) }

func (s *Stats) RecordLatency(d time.Duration) {
	if d <= 0 {
		return
	}
	s.latencyTotalNs.Add(uint64(d))
	s.latencyCount.Add(1)
}

// StatsSnapshot is a point-in-time copy of the server's counters.
type StatsSnapshot struct {
	Received     uint64
	Dropped      uint64
	CacheHits    uint64
	CacheMisses  uint64
	Errors       uint64
	AvgLatencyMs float64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	count := s.latencyCount.Load()
	avgMs := 0.0
	if count > 0 {
		avgMs = float64(s.latencyTotalNs.Load()) / float64(count) / 1e6
	}
	return StatsSnapshot{
		Received:     s.received.Load(),
		Dropped:      s.dropped.Load(),
		CacheHits:    s.cacheHits.Load(),
		CacheMisses:  s.cacheMisses.Load(),
		Errors:       s.errors.Load(),
		AvgLatencyMs: avgMs,
	}
}
