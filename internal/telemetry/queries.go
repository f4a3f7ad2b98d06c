// Package telemetry keeps process-local analytics about search queries:
// popular terms, keywords that found nothing, latency and repetition. No
// data leaves the process.
package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a coarse latency class.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
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

// QueryEvent is one completed search.
type QueryEvent struct {
	OwnerID string
	Keyword string
	// Sort names the result order, "relevance" for score order.
	Sort    string
	Results uint64
	Latency time.Duration
}

// Ring is a fixed-capacity FIFO that evicts its oldest item when full.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding up to capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest one when full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// Items returns the items oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, r.size)
	if r.size < len(r.items) {
		return append(out, r.items[:r.size]...)
	}
	out = append(out, r.items[r.head:]...)
	return append(out, r.items[:r.head]...)
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// ExtractTerms splits a keyword into lowercased terms of at least two
// characters.
func ExtractTerms(keyword string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(keyword)) {
		if utf8.RuneCountInString(w) >= 2 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the analytics.
type Snapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	ExactRepeatCount  int64                   `json:"exact_repeat_count"`
	ActiveOwners      int                     `json:"active_owners"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	Sorts             map[string]int64        `json:"sorts"`
	Since             time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of searches that found nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// RepeatRate returns the share of searches seen recently for the same owner.
func (s *Snapshot) RepeatRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ExactRepeatCount) / float64(s.TotalQueries)
}

// Config sizes the collector.
type Config struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
	RecentCapacity      int
	OwnersCapacity      int
}

// DefaultConfig returns the default sizes.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    200,
		ZeroResultsCapacity: 100,
		RecentCapacity:      500,
		OwnersCapacity:      10000,
	}
}

// Collector aggregates query events. It is safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	total      int64
	zero       int64
	repeats    int64
	latency    map[LatencyBucket]int64
	sorts      map[string]int64
	terms      *lru.Cache[string, int64]
	recent     *lru.Cache[string, struct{}]
	owners     *lru.Cache[string, struct{}]
	zeroResult *Ring[string]
	since      time.Time
}

// NewCollector creates a collector. Zero capacities take defaults.
func NewCollector(cfg Config) *Collector {
	def := DefaultConfig()
	cfg.TopTermsCapacity = cmp.Or(max(cfg.TopTermsCapacity, 0), def.TopTermsCapacity)
	cfg.ZeroResultsCapacity = cmp.Or(max(cfg.ZeroResultsCapacity, 0), def.ZeroResultsCapacity)
	cfg.RecentCapacity = cmp.Or(max(cfg.RecentCapacity, 0), def.RecentCapacity)
	cfg.OwnersCapacity = cmp.Or(max(cfg.OwnersCapacity, 0), def.OwnersCapacity)

	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentCapacity)
	owners, _ := lru.New[string, struct{}](cfg.OwnersCapacity)
	return &Collector{
		latency:    make(map[LatencyBucket]int64),
		sorts:      make(map[string]int64),
		terms:      terms,
		recent:     recent,
		owners:     owners,
		zeroResult: NewRing[string](cfg.ZeroResultsCapacity),
		since:      time.Now(),
	}
}

// Record adds one search.
func (c *Collector) Record(ev QueryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.latency[LatencyToBucket(ev.Latency)]++
	c.sorts[cmp.Or(ev.Sort, "relevance")]++
	c.owners.Add(ev.OwnerID, struct{}{})

	for _, term := range ExtractTerms(ev.Keyword) {
		n, _ := c.terms.Get(term)
		c.terms.Add(term, n+1)
	}
	if ev.Results == 0 {
		c.zero++
		c.zeroResult.Add(strings.TrimSpace(ev.Keyword))
	}

	key := queryKey(ev.OwnerID, ev.Keyword)
	if _, seen := c.recent.Get(key); seen {
		c.repeats++
	}
	c.recent.Add(key, struct{}{})
}

// queryKey identifies an owner's normalised keyword without keeping it.
func queryKey(owner, keyword string) string {
	sum := sha256.Sum256([]byte(owner + "\x00" + strings.ToLower(strings.TrimSpace(keyword))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the current analytics with terms ordered by count.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	terms := make([]TermCount, 0, c.terms.Len())
	for _, k := range c.terms.Keys() {
		if n, ok := c.terms.Peek(k); ok {
			terms = append(terms, TermCount{Term: k, Count: n})
		}
	}
	slices.SortFunc(terms, func(a, b TermCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.Term, b.Term))
	})

	latency := make(map[LatencyBucket]int64, len(c.latency))
	for k, v := range c.latency {
		latency[k] = v
	}
	sorts := make(map[string]int64, len(c.sorts))
	for k, v := range c.sorts {
		sorts[k] = v
	}

	return &Snapshot{
		TotalQueries:      c.total,
		ZeroResultCount:   c.zero,
		ExactRepeatCount:  c.repeats,
		ActiveOwners:      c.owners.Len(),
		TopTerms:          terms,
		ZeroResultQueries: c.zeroResult.Items(),
		Latency:           latency,
		Sorts:             sorts,
		Since:             c.since,
	}
}
