package batch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Approximate per-entry cache cost in bytes. Sizing is an estimate tracked
// incrementally: a fixed overhead per entry, a constant per stored chunk
// result, and the chunk-size slice.
const (
	entryOverheadBytes = 512
	resultBytes        = 160
	chunkSizeBytes     = 8
)

// CacheMetrics summarizes the cache population by state.
type CacheMetrics struct {
	ActiveJobs    int `json:"active_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`
	TotalJobs     int `json:"total_jobs"`
}

// Cache is the in-memory job ledger: a mutex-guarded map with TTL cleanup of
// terminal entries and oldest-first eviction of terminal entries under
// memory pressure. In-flight jobs are never evicted.
type Cache struct {
	mu           sync.Mutex
	jobs         map[uuid.UUID]*Entry
	currentBytes int64

	retention time.Duration
	maxBytes  int64
	logger    *slog.Logger
	onEvict   func(count int)
	now       func() time.Time
}

// NewCache creates a job cache. retention bounds how long terminal entries
// outlive their finish; maxMB caps approximate memory usage (0 disables the
// cap). onEvict, when non-nil, observes memory-pressure eviction counts.
func NewCache(retention time.Duration, maxMB int, logger *slog.Logger, onEvict func(count int)) *Cache {
	return &Cache{
		jobs:      make(map[uuid.UUID]*Entry),
		retention: retention,
		maxBytes:  int64(maxMB) * 1024 * 1024,
		logger:    logger,
		onEvict:   onEvict,
		now:       time.Now,
	}
}

func entrySize(e *Entry) int64 {
	return entryOverheadBytes +
		int64(len(e.Results))*resultBytes +
		int64(len(e.ChunkSizes))*chunkSizeBytes
}

// CreateJobIfCapacity atomically checks the active-job count and inserts a
// fresh queued entry. Returns nil when maxActive slots are already taken.
func (c *Cache) CreateJobIfCapacity(totalPoints int, chunkSizes []int, maxActive int) *Entry {
	now := c.now()
	entry := &Entry{
		Job: Job{
			JobID:       uuid.New(),
			Status:      StatusQueued,
			TotalPoints: totalPoints,
			TotalChunks: len(chunkSizes),
			CreatedAt:   now,
		},
		ChunkSizes:    append([]int(nil), chunkSizes...),
		LastUpdatedAt: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeCountLocked() >= maxActive {
		return nil
	}

	c.jobs[entry.JobID] = entry
	c.currentBytes += entrySize(entry)
	c.enforceMemoryLimitLocked()

	return entry.clone()
}

// Set inserts or replaces an entry, e.g. after hydrating from the durable
// store.
func (c *Cache) Set(entry *Entry) {
	stored := entry.clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.jobs[stored.JobID]; ok {
		c.currentBytes -= entrySize(prev)
	}

	c.jobs[stored.JobID] = stored
	c.currentBytes += entrySize(stored)
	c.enforceMemoryLimitLocked()
}

// Get returns a copy of the entry, or nil when absent.
func (c *Cache) Get(jobID uuid.UUID) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.jobs[jobID]
	if !ok {
		return nil
	}

	return entry.clone()
}

// Update applies mutate to the entry under the lock, stamps LastUpdatedAt,
// and returns a copy. Returns nil when the job is absent.
func (c *Cache) Update(jobID uuid.UUID, mutate func(*Entry)) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.jobs[jobID]
	if !ok {
		return nil
	}

	mutate(entry)
	entry.LastUpdatedAt = c.now()
	c.enforceMemoryLimitLocked()

	return entry.clone()
}

// AppendResult records a chunk outcome: appends the result, bumps the
// processed and failed counters, and folds the duration into the rolling
// average, maximum, and total. Returns nil when the job is absent.
func (c *Cache) AppendResult(jobID uuid.UUID, item ChunkResult, failed bool) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.jobs[jobID]
	if !ok {
		return nil
	}

	entry.Results = append(entry.Results, item)
	entry.ProcessedChunks++

	if failed {
		entry.FailedChunks++
	}

	processed := entry.ProcessedChunks
	entry.AverageChunkDurationMS = (entry.AverageChunkDurationMS*float64(processed-1) + float64(item.DurationMS)) / float64(max(processed, 1))
	entry.MaxChunkDurationMS = max(entry.MaxChunkDurationMS, item.DurationMS)
	entry.TotalProcessingTimeMS += item.DurationMS

	entry.LastUpdatedAt = c.now()
	c.currentBytes += resultBytes
	c.enforceMemoryLimitLocked()

	return entry.clone()
}

// Pop removes and returns the entry, or nil when absent. Durable rows are
// unaffected.
func (c *Cache) Pop(jobID uuid.UUID) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.jobs[jobID]
	if !ok {
		return nil
	}

	delete(c.jobs, jobID)
	c.currentBytes -= entrySize(entry)

	return entry
}

// ActiveCount returns the number of queued or processing entries.
func (c *Cache) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.activeCountLocked()
}

func (c *Cache) activeCountLocked() int {
	active := 0

	for _, entry := range c.jobs {
		if entry.Status.Active() {
			active++
		}
	}

	return active
}

// Metrics counts cached entries by state.
func (c *Cache) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics := CacheMetrics{TotalJobs: len(c.jobs)}

	for _, entry := range c.jobs {
		switch {
		case entry.Status.Active():
			metrics.ActiveJobs++
		case entry.Status == StatusCompleted:
			metrics.CompletedJobs++
		case entry.Status == StatusFailed:
			metrics.FailedJobs++
		}
	}

	return metrics
}

// CleanupFinished removes terminal entries older than the retention window,
// then applies the memory guard. Returns the total number removed.
func (c *Cache) CleanupFinished() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0

	for jobID, entry := range c.jobs {
		if !entry.Status.Terminal() {
			continue
		}

		if now.Sub(evictionTime(entry)) > c.retention {
			c.currentBytes -= entrySize(entry)
			delete(c.jobs, jobID)
			removed++
		}
	}

	return removed + c.enforceMemoryLimitLocked()
}

// EnforceMemoryLimit applies the memory guard and returns the eviction count.
func (c *Cache) EnforceMemoryLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.enforceMemoryLimitLocked()
}

// evictionTime is the age reference for TTL cleanup and eviction ordering:
// finish time, falling back to last update, then creation.
func evictionTime(e *Entry) time.Time {
	if e.FinishedAt != nil {
		return *e.FinishedAt
	}

	if !e.LastUpdatedAt.IsZero() {
		return e.LastUpdatedAt
	}

	return e.CreatedAt
}

func (c *Cache) enforceMemoryLimitLocked() int {
	if c.maxBytes <= 0 {
		return 0
	}

	removed := 0

	for c.currentBytes > c.maxBytes {
		var (
			oldestID uuid.UUID
			oldest   *Entry
		)

		for jobID, entry := range c.jobs {
			if !entry.Status.Terminal() {
				continue
			}

			if oldest == nil || evictionTime(entry).Before(evictionTime(oldest)) {
				oldestID = jobID
				oldest = entry
			}
		}

		if oldest == nil {
			break
		}

		c.currentBytes -= entrySize(oldest)
		delete(c.jobs, oldestID)
		removed++
	}

	if removed > 0 {
		c.logger.Warn("job cache eviction",
			slog.Int("evicted_jobs", removed),
			slog.String("memory_limit", humanize.IBytes(uint64(c.maxBytes))),
		)

		if c.onEvict != nil {
			c.onEvict(removed)
		}
	}

	return removed
}
