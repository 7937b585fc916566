package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecord(t *testing.T) {
	c := NewCollector()
	c.Record(OpStructure, 10*time.Millisecond, nil)
	c.Record(OpStructure, 30*time.Millisecond, errors.New("boom"))
	c.Record(OpVision+"openai", 5*time.Millisecond, nil)

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 2)
	assert.Equal(t, "structure", snap.Operations[0].Name)

	op, ok := snap.Get(OpStructure)
	require.True(t, ok)
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(1), op.Errors)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
	assert.InDelta(t, 20.0, op.AvgTimeMs, 0.001)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.Record(OpJob, time.Second, nil)
	assert.Empty(t, c.Snapshot().Operations)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(OpEmbedding, time.Millisecond, nil)
		}()
	}
	wg.Wait()
	op, ok := c.Snapshot().Get(OpEmbedding)
	require.True(t, ok)
	assert.Equal(t, int64(50), op.Count)
}

func TestCollectorP95(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 100; i++ {
		c.Record(OpJob, time.Duration(i)*time.Millisecond, nil)
	}
	op, ok := c.Snapshot().Get(OpJob)
	require.True(t, ok)
	assert.Equal(t, int64(95), op.P95TimeMs)

	// older samples roll off once the window is full
	for i := 0; i < sampleSize; i++ {
		c.Record(OpJob, time.Second, nil)
	}
	op, _ = c.Snapshot().Get(OpJob)
	assert.Equal(t, int64(1000), op.P95TimeMs)
	assert.Equal(t, int64(1), op.MinTimeMs)
}
