package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterTotalAccumulates(t *testing.T) {
	now := time.Now()
	c := NewCounter(now)
	c.Add(now, 3)
	c.Add(now, 4)
	assert.Equal(t, int64(7), c.Total())
}

func TestCounterWindowSumDropsOldBuckets(t *testing.T) {
	now := time.Now()
	c := NewCounter(now)
	c.Add(now, 10)

	// Advance past the full horizon; the old bucket should age out of
	// the window sum even though Total() still reflects it.
	later := now.Add(Horizon + BucketWidth)
	c.Add(later, 5)

	assert.Equal(t, int64(15), c.Total())
	assert.Equal(t, int64(5), c.WindowSum(later))
}

func TestCounterRateRespondsToLoad(t *testing.T) {
	now := time.Now()
	c := NewCounter(now)

	var rate float64
	for i := 0; i < NumBuckets*3; i++ {
		now = now.Add(BucketWidth)
		c.Add(now, 10)
		rate = c.RatePerSecond(now)
	}
	// 10 per 200ms bucket = 50/sec instantaneous; the EWMA should
	// converge toward that once enough buckets have rotated.
	assert.InDelta(t, 50.0, rate, 5.0)
}

func TestWindowRecordCreatesCounterOnFirstUse(t *testing.T) {
	now := time.Now()
	w := NewWindow()
	w.Record("meta.messagesSent", now, 1)

	c, ok := w.Counter("meta.messagesSent")
	require.True(t, ok)
	assert.Equal(t, int64(1), c.Total())

	_, ok = w.Counter("never.recorded")
	assert.False(t, ok)
}

func TestWindowNamesListsEveryCounter(t *testing.T) {
	now := time.Now()
	w := NewWindow()
	w.Record("foo", now, 1)
	w.Record("bar", now, 1)
	assert.ElementsMatch(t, []string{"foo", "bar"}, w.Names())
}
