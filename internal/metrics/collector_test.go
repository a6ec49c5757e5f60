package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIncrement(t *testing.T) {
	c := NewCollector()
	c.Increment("score_requests")
	c.Increment("score_requests")
	c.Add("imports_csv", 3)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Counters["score_requests"])
	assert.Equal(t, int64(3), snap.Counters["imports_csv"])
	assert.NotContains(t, snap.Counters, "trend_requests")
}

func TestRecordDuration(t *testing.T) {
	c := NewCollector()
	c.RecordDuration("score_ms", 10*time.Millisecond)
	c.RecordDuration("score_ms", 30*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, 30.0, snap.TimingsMs["score_ms"])

	stats := snap.TimingStats["score_ms"]
	assert.Equal(t, int64(2), stats.Count)
	assert.Equal(t, 20.0, stats.AvgMs)
	assert.Equal(t, 30.0, stats.MaxMs)
}

func TestTime(t *testing.T) {
	c := NewCollector()
	done := c.Time("trend_ms")
	time.Sleep(2 * time.Millisecond)
	done()

	assert.GreaterOrEqual(t, c.Snapshot().TimingsMs["trend_ms"], 1.0)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.Increment("a")

	snap := c.Snapshot()
	c.Increment("a")

	assert.Equal(t, int64(1), snap.Counters["a"])
	assert.Equal(t, int64(2), c.Snapshot().Counters["a"])
}

func TestConcurrentUse(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Increment("hits")
				c.RecordDuration("latency_ms", time.Millisecond)
			}
			_ = c.Snapshot()
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(5000), snap.Counters["hits"])
	assert.Equal(t, int64(5000), snap.TimingStats["latency_ms"].Count)
}
