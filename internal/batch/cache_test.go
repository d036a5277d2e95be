package batch_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fiberplan/internal/batch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCacheCreateJobIfCapacity(t *testing.T) {
	t.Parallel()

	cache := batch.NewCache(5*time.Minute, 200, discardLogger(), nil)

	first := cache.CreateJobIfCapacity(10, []int{10}, 2)
	require.NotNil(t, first)
	assert.Equal(t, batch.StatusQueued, first.Status)
	assert.Equal(t, 10, first.TotalPoints)
	assert.Equal(t, 1, first.TotalChunks)

	second := cache.CreateJobIfCapacity(10, []int{10}, 2)
	require.NotNil(t, second)

	// Both slots taken.
	third := cache.CreateJobIfCapacity(10, []int{10}, 2)
	assert.Nil(t, third)
	assert.Equal(t, 2, cache.ActiveCount())
}

func TestCacheTerminalJobsFreeCapacity(t *testing.T) {
	t.Parallel()

	cache := batch.NewCache(5*time.Minute, 200, discardLogger(), nil)

	entry := cache.CreateJobIfCapacity(10, []int{10}, 1)
	require.NotNil(t, entry)
	assert.Nil(t, cache.CreateJobIfCapacity(10, []int{10}, 1))

	cache.Update(entry.JobID, func(e *batch.Entry) {
		e.Status = batch.StatusCompleted
	})

	assert.NotNil(t, cache.CreateJobIfCapacity(10, []int{10}, 1))
}

func TestCacheAppendResultAggregates(t *testing.T) {
	t.Parallel()

	cache := batch.NewCache(5*time.Minute, 200, discardLogger(), nil)
	entry := cache.CreateJobIfCapacity(30, []int{10, 10, 10}, 5)
	require.NotNil(t, entry)

	cache.AppendResult(entry.JobID, batch.ChunkResult{ChunkIndex: 0, Status: batch.ChunkOK, DurationMS: 100}, false)
	cache.AppendResult(entry.JobID, batch.ChunkResult{ChunkIndex: 1, Status: batch.ChunkFailed, DurationMS: 300}, true)
	updated := cache.AppendResult(entry.JobID, batch.ChunkResult{ChunkIndex: 2, Status: batch.ChunkOK, DurationMS: 200}, false)

	require.NotNil(t, updated)
	assert.Equal(t, 3, updated.ProcessedChunks)
	assert.Equal(t, 1, updated.FailedChunks)
	assert.Len(t, updated.Results, 3)
	assert.InDelta(t, 200.0, updated.AverageChunkDurationMS, 1e-9)
	assert.Equal(t, int64(300), updated.MaxChunkDurationMS)
	assert.Equal(t, int64(600), updated.TotalProcessingTimeMS)
}

func TestCachePopRemovesEntry(t *testing.T) {
	t.Parallel()

	cache := batch.NewCache(5*time.Minute, 200, discardLogger(), nil)
	entry := cache.CreateJobIfCapacity(10, []int{10}, 5)
	require.NotNil(t, entry)

	popped := cache.Pop(entry.JobID)
	require.NotNil(t, popped)
	assert.Nil(t, cache.Get(entry.JobID))
	assert.Nil(t, cache.Pop(entry.JobID))
}

func TestCacheGetReturnsCopy(t *testing.T) {
	t.Parallel()

	cache := batch.NewCache(5*time.Minute, 200, discardLogger(), nil)
	entry := cache.CreateJobIfCapacity(10, []int{10}, 5)
	require.NotNil(t, entry)

	first := cache.Get(entry.JobID)
	first.Status = batch.StatusFailed
	first.ChunkSizes[0] = 999

	second := cache.Get(entry.JobID)
	assert.Equal(t, batch.StatusQueued, second.Status)
	assert.Equal(t, 10, second.ChunkSizes[0])
}

func TestCacheCleanupFinishedHonorsRetention(t *testing.T) {
	t.Parallel()

	cache := batch.NewCache(0, 200, discardLogger(), nil)

	running := cache.CreateJobIfCapacity(10, []int{10}, 5)
	finished := cache.CreateJobIfCapacity(10, []int{10}, 5)
	require.NotNil(t, running)
	require.NotNil(t, finished)

	cache.Update(finished.JobID, func(e *batch.Entry) {
		e.Status = batch.StatusCompleted
		past := time.Now().Add(-time.Minute)
		e.FinishedAt = &past
	})

	removed := cache.CleanupFinished()
	assert.Equal(t, 1, removed)
	assert.Nil(t, cache.Get(finished.JobID))
	assert.NotNil(t, cache.Get(running.JobID))
}

func TestCacheMemoryEvictionOldestTerminalFirst(t *testing.T) {
	t.Parallel()

	evicted := 0
	// 1 MB cap: a few thousand results overflow it.
	cache := batch.NewCache(time.Hour, 1, discardLogger(), func(count int) {
		evicted += count
	})

	old := cache.CreateJobIfCapacity(10, []int{10}, 10)
	newer := cache.CreateJobIfCapacity(10, []int{10}, 10)
	active := cache.CreateJobIfCapacity(10, []int{10}, 10)
	require.NotNil(t, old)
	require.NotNil(t, newer)
	require.NotNil(t, active)

	for _, job := range []*batch.Entry{old, newer} {
		for i := range 3000 {
			cache.AppendResult(job.JobID, batch.ChunkResult{ChunkIndex: i, Status: batch.ChunkOK}, false)
		}
	}

	cache.Update(old.JobID, func(e *batch.Entry) {
		e.Status = batch.StatusCompleted
		past := time.Now().Add(-time.Hour)
		e.FinishedAt = &past
	})
	cache.Update(newer.JobID, func(e *batch.Entry) {
		e.Status = batch.StatusCompleted
		now := time.Now()
		e.FinishedAt = &now
	})

	// Oversize the active job as well: it must survive regardless. The guard
	// runs on every append, so eviction happens as soon as the cap overflows.
	for i := range 3000 {
		cache.AppendResult(active.JobID, batch.ChunkResult{ChunkIndex: i, Status: batch.ChunkOK}, false)
	}

	cache.EnforceMemoryLimit()

	assert.Positive(t, evicted)
	assert.Nil(t, cache.Get(old.JobID), "oldest terminal entry evicted first")
	assert.NotNil(t, cache.Get(active.JobID), "in-flight jobs are never evicted")
}

func TestCacheMetrics(t *testing.T) {
	t.Parallel()

	cache := batch.NewCache(time.Hour, 200, discardLogger(), nil)

	queued := cache.CreateJobIfCapacity(10, []int{10}, 10)
	done := cache.CreateJobIfCapacity(10, []int{10}, 10)
	failed := cache.CreateJobIfCapacity(10, []int{10}, 10)
	require.NotNil(t, queued)
	require.NotNil(t, done)
	require.NotNil(t, failed)

	cache.Update(done.JobID, func(e *batch.Entry) { e.Status = batch.StatusCompleted })
	cache.Update(failed.JobID, func(e *batch.Entry) { e.Status = batch.StatusFailed })

	metrics := cache.Metrics()
	assert.Equal(t, 1, metrics.ActiveJobs)
	assert.Equal(t, 1, metrics.CompletedJobs)
	assert.Equal(t, 1, metrics.FailedJobs)
	assert.Equal(t, 3, metrics.TotalJobs)
}
