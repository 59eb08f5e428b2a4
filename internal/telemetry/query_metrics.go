// Package telemetry keeps in-process query statistics for the status
// surfaces of a running server. Nothing leaves the machine and nothing is
// persisted; counters start over with each process.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is one bin of the search latency histogram.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket bins a search duration. Most of it is the embedding
// round trip.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch ms := d.Milliseconds(); {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Ring is a fixed-capacity FIFO that overwrites its oldest item.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
	full  bool
}

// NewRing returns a ring holding up to capacity items (100 if <= 0).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends item, evicting the oldest when full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = item
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// Items returns the contents oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]T{}, r.items[:r.next]...)
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

// Len is the number of stored items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.items)
	}
	return r.next
}

// Terms splits a query into lowercased words of at least three bytes.
func Terms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query word and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	TopTerms          []TermCount             `json:"top_terms"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	RepeatCount       int64                   `json:"repeat_count"`
	Since             time.Time               `json:"since"`
}

// ZeroResultPercentage is the share of queries that returned nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config bounds the memory the collector uses.
type Config struct {
	TopTerms      int // distinct words tracked
	ZeroResults   int // recent zero-result queries kept
	RecentQueries int // query fingerprints kept for repeat detection
	TopN          int // words reported in a snapshot
}

// DefaultConfig returns the bounds used by NewQueryMetrics.
func DefaultConfig() Config {
	return Config{TopTerms: 200, ZeroResults: 50, RecentQueries: 500, TopN: 10}
}

// QueryMetrics aggregates search activity. Safe for concurrent use.
type QueryMetrics struct {
	mu          sync.Mutex
	cfg         Config
	terms       *lru.Cache[string, int64]
	recent      *lru.Cache[string, struct{}]
	zeroResults *Ring[string]
	latency     map[LatencyBucket]int64
	total       int64
	zero        int64
	repeats     int64
	since       time.Time
}

// NewQueryMetrics creates an empty collector with DefaultConfig.
func NewQueryMetrics() *QueryMetrics {
	return NewQueryMetricsWithConfig(DefaultConfig())
}

// NewQueryMetricsWithConfig creates an empty collector; zero fields take
// their defaults.
func NewQueryMetricsWithConfig(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTerms <= 0 {
		cfg.TopTerms = def.TopTerms
	}
	if cfg.ZeroResults <= 0 {
		cfg.ZeroResults = def.ZeroResults
	}
	if cfg.RecentQueries <= 0 {
		cfg.RecentQueries = def.RecentQueries
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}

	// lru.New only fails for non-positive sizes.
	terms, _ := lru.New[string, int64](cfg.TopTerms)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueries)

	return &QueryMetrics{
		cfg:         cfg,
		terms:       terms,
		recent:      recent,
		zeroResults: NewRing[string](cfg.ZeroResults),
		latency:     make(map[LatencyBucket]int64),
		since:       time.Now(),
	}
}

// RecordQuery counts one completed search.
func (m *QueryMetrics) RecordQuery(query string, results int, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latency[LatencyToBucket(latency)]++
	for _, term := range Terms(query) {
		n, _ := m.terms.Get(term)
		m.terms.Add(term, n+1)
	}
	if results == 0 {
		m.zero++
		m.zeroResults.Push(query)
	}

	key := fingerprint(query)
	if m.recent.Contains(key) {
		m.repeats++
	}
	m.recent.Add(key, struct{}{})
}

func fingerprint(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot copies the current counters.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	terms := make([]TermCount, 0, m.terms.Len())
	for _, k := range m.terms.Keys() {
		if n, ok := m.terms.Peek(k); ok {
			terms = append(terms, TermCount{Term: k, Count: n})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > m.cfg.TopN {
		terms = terms[:m.cfg.TopN]
	}

	latency := make(map[LatencyBucket]int64, len(m.latency))
	for k, v := range m.latency {
		latency[k] = v
	}

	return &Snapshot{
		TotalQueries:      m.total,
		ZeroResultCount:   m.zero,
		ZeroResultQueries: m.zeroResults.Items(),
		TopTerms:          terms,
		Latency:           latency,
		RepeatCount:       m.repeats,
		Since:             m.since,
	}
}
