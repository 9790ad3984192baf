package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// StatsSnapshot is a point-in-time aggregate of latency samples.
type StatsSnapshot struct {
	Count  int     `json:"count"`
	Errors int     `json:"errors"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Stats tracks recent call latencies within a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	errors  []time.Time
	maxAge  time.Duration
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

func (s *Stats) Record(durationMs int64) {
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{
		timestamp:  now,
		durationMs: durationMs,
	})
}

// RecordError counts a failed call within the window.
func (s *Stats) RecordError() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.errors = append(s.errors, now)
}

func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return StatsSnapshot{Errors: len(s.errors)}
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return StatsSnapshot{
		Count:  len(values),
		Errors: len(s.errors),
		MinMs:  values[0],
		MaxMs:  values[len(values)-1],
		AvgMs:  float64(sum) / float64(len(values)),
		P50Ms:  percentile(values, 50),
		P95Ms:  percentile(values, 95),
		P99Ms:  percentile(values, 99),
	}
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	writeIdx := 0
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			s.samples[writeIdx] = sm
			writeIdx++
		}
	}
	s.samples = s.samples[:writeIdx]

	kept := s.errors[:0]
	for _, ts := range s.errors {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.errors = kept
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}

var storeOps = []string{"load", "save", "list", "copy"}

// Instrumented wraps a Store and records the latency of every call per
// operation.
type Instrumented struct {
	Store
	stats map[string]*Stats
}

func Instrument(s Store, window time.Duration) *Instrumented {
	stats := make(map[string]*Stats, len(storeOps))
	for _, op := range storeOps {
		stats[op] = NewStats(window)
	}
	return &Instrumented{Store: s, stats: stats}
}

// Snapshot returns the current aggregate for each operation.
func (i *Instrumented) Snapshot() map[string]StatsSnapshot {
	out := make(map[string]StatsSnapshot, len(i.stats))
	for op, st := range i.stats {
		out[op] = st.Snapshot()
	}
	return out
}

// Unwrap returns the wrapped store.
func (i *Instrumented) Unwrap() Store { return i.Store }

func (i *Instrumented) observe(op string, start time.Time, err error) {
	st := i.stats[op]
	st.Record(time.Since(start).Milliseconds())
	if err != nil {
		st.RecordError()
	}
}

func (i *Instrumented) Load(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := i.Store.Load(ctx, key)
	i.observe("load", start, err)
	return data, err
}

func (i *Instrumented) Save(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := i.Store.Save(ctx, key, data)
	i.observe("save", start, err)
	return err
}

func (i *Instrumented) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.Store.List(ctx, prefix)
	i.observe("list", start, err)
	return keys, err
}

func (i *Instrumented) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := i.Store.Copy(ctx, src, dst)
	i.observe("copy", start, err)
	return err
}
