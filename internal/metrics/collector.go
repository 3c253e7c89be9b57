// Package metrics keeps per-operation timing and token counts for a single
// threadsync invocation. Nothing is exported to an external backend; the CLI
// prints a snapshot when --stats is set.
package metrics

import (
	"sync"
	"time"
)

// Operation names recorded by the sync pipeline.
const (
	OpCompletion = "completion"
	OpSourceRead = "source_read"
	OpStoreWrite = "store_write"
	OpRelay      = "relay"
)

// Ops lists the known operations in display order.
var Ops = []string{OpSourceRead, OpStoreWrite, OpRelay, OpCompletion}

// span accumulates total, min and max of a series of samples.
type span struct {
	n, total, lo, hi int64
}

func (s *span) add(v int64) {
	if s.n == 0 || v < s.lo {
		s.lo = v
	}
	if v > s.hi {
		s.hi = v
	}
	s.n++
	s.total += v
}

func (s span) stats() Range {
	r := Range{Total: s.total, Min: s.lo, Max: s.hi}
	if s.n > 0 {
		r.Avg = float64(s.total) / float64(s.n)
	}
	return r
}

type opStats struct {
	elapsed span // milliseconds
	in, out span
	usage   bool
}

// Range summarizes a series of samples.
type Range struct {
	Total int64
	Avg   float64
	Min   int64
	Max   int64
}

// OpSnapshot is the aggregate for one operation. Tokens are nil for
// operations that never reported token usage.
type OpSnapshot struct {
	Count     int64
	TimeMs    Range
	InTokens  *Range
	OutTokens *Range
}

// Snapshot holds every recorded operation at a point in time.
type Snapshot struct {
	Elapsed time.Duration
	Ops     map[string]OpSnapshot
}

// Op returns the aggregate for name and whether it was ever recorded.
func (s Snapshot) Op(name string) (OpSnapshot, bool) {
	o, ok := s.Ops[name]
	return o, ok
}

// Collector is safe for concurrent use. A nil *Collector discards
// everything, so callers never need to check before recording.
type Collector struct {
	mu      sync.Mutex
	started time.Time
	ops     map[string]*opStats
}

func NewCollector() *Collector {
	return &Collector{started: time.Now(), ops: map[string]*opStats{}}
}

func (c *Collector) stat(op string) *opStats {
	s, ok := c.ops[op]
	if !ok {
		s = &opStats{}
		c.ops[op] = s
	}
	return s
}

// RecordTiming adds one call of op that took d.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stat(op).elapsed.add(d.Milliseconds())
	c.mu.Unlock()
}

// RecordLLMUsage adds one model call together with its token usage.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stat(op)
	s.elapsed.add(d.Milliseconds())
	s.in.add(inputTokens)
	s.out.add(outputTokens)
	s.usage = true
}

// Since records the time elapsed since start for op.
//
//	defer collector.Since(metrics.OpStoreWrite, time.Now())
func (c *Collector) Since(op string, start time.Time) {
	c.RecordTiming(op, time.Since(start))
}

// Snapshot copies the current aggregates. A nil collector yields an empty
// snapshot.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{Ops: map[string]OpSnapshot{}}
	if c == nil {
		return snap
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap.Elapsed = time.Since(c.started)
	for name, s := range c.ops {
		o := OpSnapshot{Count: s.elapsed.n, TimeMs: s.elapsed.stats()}
		if s.usage {
			in, out := s.in.stats(), s.out.stats()
			o.InTokens, o.OutTokens = &in, &out
		}
		snap.Ops[name] = o
	}
	return snap
}
