package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{3 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	// Given: a ring of three
	r := NewRing[string](3)
	assert.Empty(t, r.Items())

	// When: adding four items
	for _, s := range []string{"a", "b", "c", "d"} {
		r.Add(s)
	}

	// Then: the oldest is gone and order is preserved
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"b", "c", "d"}, r.Items())
}

func TestRing_PartiallyFilled(t *testing.T) {
	r := NewRing[int](0)
	r.Add(1)
	r.Add(2)
	assert.Equal(t, []int{1, 2}, r.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"quarterly", "report"}, ExtractTerms("  Quarterly REPORT "))
	assert.Equal(t, []string{"q3", "报告"}, ExtractTerms("a q3 报告"))
	assert.Nil(t, ExtractTerms(""))
	assert.Nil(t, ExtractTerms("a b c"))
}

func TestCollector_Record(t *testing.T) {
	// Given: a collector
	c := NewCollector(Config{})

	// When: recording searches from two owners
	c.Record(QueryEvent{OwnerID: "alice", Keyword: "budget report", Results: 3, Latency: 5 * time.Millisecond})
	c.Record(QueryEvent{OwnerID: "alice", Keyword: "Budget Report", Results: 3, Latency: 20 * time.Millisecond, Sort: "modified"})
	c.Record(QueryEvent{OwnerID: "bob", Keyword: "budget", Results: 0, Latency: 700 * time.Millisecond})

	// Then: the snapshot aggregates them
	s := c.Snapshot()
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []string{"budget"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.ExactRepeatCount, "same owner, same normalised keyword")
	assert.Equal(t, 2, s.ActiveOwners)
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "budget", Count: 3}, s.TopTerms[0])
	assert.Equal(t, TermCount{Term: "report", Count: 2}, s.TopTerms[1])
	assert.Equal(t, int64(1), s.Latency[BucketP10])
	assert.Equal(t, int64(1), s.Latency[BucketP50])
	assert.Equal(t, int64(1), s.Latency[BucketP1000])
	assert.Equal(t, map[string]int64{"relevance": 2, "modified": 1}, s.Sorts)
	assert.InDelta(t, 33.33, s.ZeroResultPercentage(), 0.01)
	assert.InDelta(t, 1.0/3, s.RepeatRate(), 0.001)
}

func TestCollector_RepeatsAreScopedToOwner(t *testing.T) {
	c := NewCollector(Config{})
	c.Record(QueryEvent{OwnerID: "alice", Keyword: "x1"})
	c.Record(QueryEvent{OwnerID: "bob", Keyword: "x1"})

	assert.Zero(t, c.Snapshot().ExactRepeatCount)
}

func TestCollector_EmptySnapshot(t *testing.T) {
	s := NewCollector(Config{}).Snapshot()

	assert.Zero(t, s.TotalQueries)
	assert.Empty(t, s.TopTerms)
	assert.Empty(t, s.ZeroResultQueries)
	assert.Zero(t, s.ZeroResultPercentage())
	assert.Zero(t, s.RepeatRate())
	assert.False(t, s.Since.IsZero())
}

func TestCollector_TermCapacity(t *testing.T) {
	// Given: a collector tracking two terms
	c := NewCollector(Config{TopTermsCapacity: 2})

	// When: three distinct terms are searched
	for _, k := range []string{"alpha", "beta", "gamma"} {
		c.Record(QueryEvent{OwnerID: "alice", Keyword: k})
	}

	// Then: only the two most recent remain
	terms := c.Snapshot().TopTerms
	require.Len(t, terms, 2)
	assert.ElementsMatch(t, []string{"beta", "gamma"}, []string{terms[0].Term, terms[1].Term})
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	c := NewCollector(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(QueryEvent{OwnerID: fmt.Sprintf("u%d", i), Keyword: "shared term"})
				_ = c.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(1000), s.TotalQueries)
	assert.Equal(t, 10, s.ActiveOwners)
	assert.Equal(t, int64(990), s.ExactRepeatCount)
}
