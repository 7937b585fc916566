// Package metrics provides in-memory runtime statistics for pipeline operations.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Operation name prefixes used by the pipeline.
const (
	OpVision     = "vision."  // + provider name
	OpAcquire    = "acquire." // + media type
	OpStructure  = "structure"
	OpRefine     = "refine"
	OpEmbedding  = "embedding"
	OpAnalyze    = "analyze"
	OpJob        = "job"
	OpJobAttempt = "job_attempt"
)

// OperationMetrics holds aggregated metrics for a single operation.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// recent durations, overwritten round-robin once full
	samples []time.Duration
	next    int
}

// sampleSize bounds the window used for percentiles.
const sampleSize = 512

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Name        string  `json:"name"`
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
	P95TimeMs   int64   `json:"p95_time_ms"`
}

// Snapshot is the full set of statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64             `json:"uptime_seconds"`
	Operations    []OperationSnapshot `json:"operations"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe, and a nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// Record records one completed operation; a non-nil err counts as an error.
func (c *Collector) Record(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Errors++
	}
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
	if len(m.samples) < sampleSize {
		m.samples = append(m.samples, duration)
	} else {
		m.samples[m.next] = duration
		m.next = (m.next + 1) % sampleSize
	}
}

// P95 returns the nearest-rank 95th percentile of the retained samples.
func (m *OperationMetrics) P95() time.Duration {
	if len(m.samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), m.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	return sorted[rank]
}

// Since is shorthand for Record(op, time.Since(start), err).
func (c *Collector) Since(op string, start time.Time, err error) {
	c.Record(op, time.Since(start), err)
}

// Snapshot returns a point-in-time snapshot of all metrics, sorted by operation name.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := Snapshot{UptimeSeconds: time.Since(c.startTime).Seconds()}
	for name, m := range c.ops {
		if m.Count == 0 {
			continue
		}
		out.Operations = append(out.Operations, OperationSnapshot{
			Name:        name,
			Count:       m.Count,
			Errors:      m.Errors,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
			MinTimeMs:   m.MinTime.Milliseconds(),
			MaxTimeMs:   m.MaxTime.Milliseconds(),
			P95TimeMs:   m.P95().Milliseconds(),
		})
	}
	sort.Slice(out.Operations, func(i, j int) bool { return out.Operations[i].Name < out.Operations[j].Name })
	return out
}

// Get returns the snapshot for one operation.
func (s Snapshot) Get(name string) (OperationSnapshot, bool) {
	for _, op := range s.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return OperationSnapshot{}, false
}
