package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_KeepsNewestInOrder(t *testing.T) {
	r := NewRing[string](3)
	assert.Empty(t, r.Items())

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		r.Push(q)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"q3", "q4", "q5"}, r.Items())
}

func TestRing_PartiallyFilled(t *testing.T) {
	r := NewRing[int](0)

	r.Push(1)
	r.Push(2)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int{1, 2}, r.Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"quarterly", "budget", "review"}, Terms("  Quarterly BUDGET of review "))
	assert.Nil(t, Terms("a an"))
	assert.Nil(t, Terms(""))
}

func TestQueryMetrics_Snapshot(t *testing.T) {
	// Given: a collector and a handful of searches
	m := NewQueryMetrics()
	m.RecordQuery("budget report", 3, 20*time.Millisecond)
	m.RecordQuery("Budget Report", 2, 5*time.Millisecond)
	m.RecordQuery("tomato soup", 0, 700*time.Millisecond)

	// When: taking a snapshot
	s := m.Snapshot()

	// Then: counters reflect every query
	assert.EqualValues(t, 3, s.TotalQueries)
	assert.EqualValues(t, 1, s.ZeroResultCount)
	assert.Equal(t, []string{"tomato soup"}, s.ZeroResultQueries)
	assert.EqualValues(t, 1, s.RepeatCount)
	assert.InDelta(t, 33.3, s.ZeroResultPercentage(), 0.1)
	assert.EqualValues(t, 1, s.Latency[BucketP10])
	assert.EqualValues(t, 1, s.Latency[BucketP50])
	assert.EqualValues(t, 1, s.Latency[BucketP1000])

	// And: top terms are ordered by count then term
	require.Len(t, s.TopTerms, 4)
	assert.Equal(t, TermCount{Term: "budget", Count: 2}, s.TopTerms[0])
	assert.Equal(t, TermCount{Term: "report", Count: 2}, s.TopTerms[1])
	assert.Equal(t, "soup", s.TopTerms[2].Term)
}

func TestQueryMetrics_TopNAndEmpty(t *testing.T) {
	m := NewQueryMetricsWithConfig(Config{TopN: 1})
	assert.Zero(t, m.Snapshot().ZeroResultPercentage())

	m.RecordQuery("alpha beta", 1, 0)
	m.RecordQuery("beta", 1, 0)

	s := m.Snapshot()
	require.Len(t, s.TopTerms, 1)
	assert.Equal(t, "beta", s.TopTerms[0].Term)
}

func TestQueryMetrics_Concurrent(t *testing.T) {
	m := NewQueryMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.RecordQuery("shared query", j%2, time.Millisecond)
				_ = m.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.EqualValues(t, 400, s.TotalQueries)
	assert.EqualValues(t, 200, s.ZeroResultCount)
	assert.EqualValues(t, 399, s.RepeatCount)
}
