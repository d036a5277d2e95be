package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// BatchMetrics holds the instruments recorded by the batch subsystem.
type BatchMetrics struct {
	// JobsAdmitted counts jobs accepted past admission control.
	JobsAdmitted metric.Int64Counter

	// JobsCompleted counts jobs that reached the completed state.
	JobsCompleted metric.Int64Counter

	// JobsFailed counts jobs that reached the failed state.
	JobsFailed metric.Int64Counter

	// JobsRejected counts submissions refused at admission (server busy).
	JobsRejected metric.Int64Counter

	// ChunksProcessed counts chunk results recorded, ok and failed alike.
	ChunksProcessed metric.Int64Counter

	// ChunkDuration observes per-chunk wall time in milliseconds.
	ChunkDuration metric.Float64Histogram

	// CacheEvictions counts job cache entries removed under memory pressure.
	CacheEvictions metric.Int64Counter
}

// NewBatchMetrics creates all batch instruments on the given meter.
func NewBatchMetrics(meter metric.Meter) (*BatchMetrics, error) {
	jobsAdmitted, err := meter.Int64Counter("fiberplan.jobs.admitted",
		metric.WithDescription("Jobs accepted past admission control."))
	if err != nil {
		return nil, fmt.Errorf("create jobs.admitted: %w", err)
	}

	jobsCompleted, err := meter.Int64Counter("fiberplan.jobs.completed",
		metric.WithDescription("Jobs that reached the completed state."))
	if err != nil {
		return nil, fmt.Errorf("create jobs.completed: %w", err)
	}

	jobsFailed, err := meter.Int64Counter("fiberplan.jobs.failed",
		metric.WithDescription("Jobs that reached the failed state."))
	if err != nil {
		return nil, fmt.Errorf("create jobs.failed: %w", err)
	}

	jobsRejected, err := meter.Int64Counter("fiberplan.jobs.rejected",
		metric.WithDescription("Submissions refused at admission."))
	if err != nil {
		return nil, fmt.Errorf("create jobs.rejected: %w", err)
	}

	chunksProcessed, err := meter.Int64Counter("fiberplan.chunks.processed",
		metric.WithDescription("Chunk results recorded, ok and failed alike."))
	if err != nil {
		return nil, fmt.Errorf("create chunks.processed: %w", err)
	}

	chunkDuration, err := meter.Float64Histogram("fiberplan.chunks.duration_ms",
		metric.WithDescription("Per-chunk wall time in milliseconds."))
	if err != nil {
		return nil, fmt.Errorf("create chunks.duration_ms: %w", err)
	}

	cacheEvictions, err := meter.Int64Counter("fiberplan.jobcache.evictions",
		metric.WithDescription("Job cache entries removed under memory pressure."))
	if err != nil {
		return nil, fmt.Errorf("create jobcache.evictions: %w", err)
	}

	return &BatchMetrics{
		JobsAdmitted:    jobsAdmitted,
		JobsCompleted:   jobsCompleted,
		JobsFailed:      jobsFailed,
		JobsRejected:    jobsRejected,
		ChunksProcessed: chunksProcessed,
		ChunkDuration:   chunkDuration,
		CacheEvictions:  cacheEvictions,
	}, nil
}
