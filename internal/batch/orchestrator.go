package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/fiberplan/internal/apperr"
	"github.com/Sumatoshi-tech/fiberplan/internal/observability"
)

// Classified batch failures.
var (
	// ErrServerBusy reports admission refusal: all active-job slots taken.
	ErrServerBusy = apperr.New("server_busy",
		"Server busy. Try again later.", http.StatusTooManyRequests)

	// ErrPersistence reports a failure to record the job durably before
	// execution.
	ErrPersistence = apperr.New("persistence_error",
		"Server busy. Try again later.", http.StatusServiceUnavailable)

	// ErrExecutorUnavailable reports a failed hand-off to the job pool.
	ErrExecutorUnavailable = apperr.New("executor_unavailable",
		"Server busy. Try again later.", http.StatusServiceUnavailable)

	// ErrJobNotFound reports an unknown or cleaned-up job ID.
	ErrJobNotFound = apperr.New("job_not_found",
		"Job ID not found or already cleaned up.", http.StatusNotFound)
)

// BatchTooLarge reports an upload over the hard point cap.
func BatchTooLarge(totalPoints int) *apperr.Error {
	return apperr.New("batch_too_large",
		fmt.Sprintf("Batch contains %d points; maximum allowed is %d.", totalPoints, SecureMaxPoints),
		http.StatusRequestEntityTooLarge)
}

// JobNotReady reports a result request against a still-running job.
func JobNotReady(status Status) *apperr.Error {
	return apperr.New("job_not_ready",
		fmt.Sprintf("Job is currently %s.", status), http.StatusConflict)
}

// Store is the durable job ledger the orchestrator records into.
type Store interface {
	CreateJob(ctx context.Context, jobID uuid.UUID, totalPoints, totalChunks int, status Status) error
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status Status, update StatusUpdate) error
	PersistChunkResult(ctx context.Context, jobID uuid.UUID, result ChunkResult) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	GetChunkResults(ctx context.Context, jobID uuid.UUID) ([]ChunkResult, error)
	Metrics(ctx context.Context) (*StoreMetrics, error)
}

// Accepted is the admission response for a queued upload.
type Accepted struct {
	JobID       uuid.UUID `json:"job_id"`
	Status      Status    `json:"status"`
	TotalPoints int       `json:"total_points"`
	TotalChunks int       `json:"total_chunks"`
	ChunkSizes  []int     `json:"chunk_sizes"`
}

// MetricsView is the operator-facing job metrics snapshot: durable history
// plus the static capacity configuration.
type MetricsView struct {
	ActiveJobs             int     `json:"active_jobs"`
	CompletedJobs          int     `json:"completed_jobs"`
	FailedJobs             int     `json:"failed_jobs"`
	TotalJobs              int     `json:"total_jobs"`
	MaxActiveJobs          int     `json:"max_active_jobs"`
	ExecutorMaxWorkers     int     `json:"executor_max_workers"`
	AverageChunkDurationMS float64 `json:"average_chunk_duration_ms"`
	AverageJobDurationMS   float64 `json:"average_job_duration_ms"`
}

// Options carries the orchestrator capacity and timing configuration.
type Options struct {
	ChunkSize          int
	MaxActiveJobs      int
	ChunkTimeout       time.Duration
	ExecutorMaxWorkers int
}

// Orchestrator drives batch jobs end to end: admission, background chunked
// execution on the two-tier pools, and dual bookkeeping in the cache and the
// durable store.
type Orchestrator struct {
	opts    Options
	cache   *Cache
	store   Store
	proc    Processor
	jobs    *Pool
	chunks  *Pool
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.BatchMetrics
}

// NewOrchestrator wires the batch subsystem together. The pools are owned by
// the orchestrator and stopped by Close.
func NewOrchestrator(
	opts Options,
	cache *Cache,
	store Store,
	proc Processor,
	jobs, chunks *Pool,
	logger *slog.Logger,
	tracer trace.Tracer,
	metrics *observability.BatchMetrics,
) *Orchestrator {
	return &Orchestrator{
		opts:    opts,
		cache:   cache,
		store:   store,
		proc:    proc,
		jobs:    jobs,
		chunks:  chunks,
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
	}
}

// UploadBatch admits a batch upload: capacity check, durable job row, then
// hand-off to the job pool. The job executes in the background; the returned
// admission record carries the ID to poll.
func (o *Orchestrator) UploadBatch(ctx context.Context, points []Point) (*Accepted, error) {
	o.cache.CleanupFinished()

	totalPoints := len(points)
	if totalPoints > SecureMaxPoints {
		return nil, BatchTooLarge(totalPoints)
	}

	chunkSizes := ChunkSizes(totalPoints, o.opts.ChunkSize)

	entry := o.cache.CreateJobIfCapacity(totalPoints, chunkSizes, o.opts.MaxActiveJobs)
	if entry == nil {
		o.metrics.JobsRejected.Add(ctx, 1)

		return nil, ErrServerBusy
	}

	// Durable row before execution; the cache slot is released on failure so
	// a broken database does not leak admission capacity.
	err := o.store.CreateJob(ctx, entry.JobID, totalPoints, len(chunkSizes), StatusQueued)
	if err != nil {
		o.cache.Pop(entry.JobID)
		o.logger.Error("job persistence failed",
			slog.String("job_id", entry.JobID.String()),
			slog.Any("error", err),
		)

		return nil, ErrPersistence
	}

	submitErr := o.jobs.Submit(func() {
		o.runJob(entry.JobID, points)
	})
	if submitErr != nil {
		o.failJob(entry.JobID, "Failed to submit job to executor.")
		o.logger.Error("job submission failed",
			slog.String("job_id", entry.JobID.String()),
			slog.Any("error", submitErr),
		)

		return nil, ErrExecutorUnavailable
	}

	o.metrics.JobsAdmitted.Add(ctx, 1)
	o.logger.Info("batch queued",
		slog.String("job_id", entry.JobID.String()),
		slog.Int("total_points", totalPoints),
		slog.Int("chunk_size", o.opts.ChunkSize),
		slog.Int("total_chunks", len(chunkSizes)),
	)

	return &Accepted{
		JobID:       entry.JobID,
		Status:      entry.Status,
		TotalPoints: totalPoints,
		TotalChunks: len(chunkSizes),
		ChunkSizes:  chunkSizes,
	}, nil
}

// JobStatus returns the job progress snapshot, hydrating the cache from the
// durable store when needed.
func (o *Orchestrator) JobStatus(ctx context.Context, jobID uuid.UUID) (*Entry, error) {
	o.cache.CleanupFinished()

	entry, err := o.cacheOrStore(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, ErrJobNotFound
	}

	return entry, nil
}

// JobResult returns the full result set of a finished job and drops the
// cache copy. Durable rows remain; a repeat request rehydrates from them.
func (o *Orchestrator) JobResult(ctx context.Context, jobID uuid.UUID) (*Entry, error) {
	o.cache.CleanupFinished()

	entry, err := o.cacheOrStore(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, ErrJobNotFound
	}

	if entry.Status.Active() {
		return nil, JobNotReady(entry.Status)
	}

	o.cache.Pop(jobID)

	return entry, nil
}

// Metrics reports durable job history plus capacity configuration.
func (o *Orchestrator) Metrics(ctx context.Context) (*MetricsView, error) {
	o.cache.CleanupFinished()

	stored, err := o.store.Metrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("batch metrics: %w", err)
	}

	return &MetricsView{
		ActiveJobs:             stored.ActiveJobs,
		CompletedJobs:          stored.CompletedJobs,
		FailedJobs:             stored.FailedJobs,
		TotalJobs:              stored.TotalJobs,
		MaxActiveJobs:          o.opts.MaxActiveJobs,
		ExecutorMaxWorkers:     o.opts.ExecutorMaxWorkers,
		AverageChunkDurationMS: stored.AverageChunkDurationMS,
		AverageJobDurationMS:   stored.AverageJobDurationMS,
	}, nil
}

// Close stops both pools: queued jobs run to completion, then the workers
// exit. Call after the HTTP server stops accepting uploads.
func (o *Orchestrator) Close() {
	o.jobs.Shutdown()
	o.chunks.Shutdown()
}

// cacheOrStore reads the job from the cache, falling back to durable rows
// and re-seeding the cache on a hit.
func (o *Orchestrator) cacheOrStore(ctx context.Context, jobID uuid.UUID) (*Entry, error) {
	if cached := o.cache.Get(jobID); cached != nil {
		return cached, nil
	}

	entry, err := o.hydrate(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("hydrate job: %w", err)
	}

	if entry == nil {
		return nil, nil
	}

	o.cache.Set(entry)

	return entry, nil
}

// hydrate rebuilds a cache entry from durable rows. Chunk sizes are
// reconstructed from the configured chunk size; duration aggregates are
// recomputed from the stored per-chunk durations.
func (o *Orchestrator) hydrate(ctx context.Context, jobID uuid.UUID) (*Entry, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job == nil {
		return nil, nil
	}

	results, err := o.store.GetChunkResults(ctx, jobID)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Job:        *job,
		ChunkSizes: reconstructChunkSizes(job.TotalPoints, job.TotalChunks, o.opts.ChunkSize),
		Results:    results,
	}

	for _, result := range results {
		entry.MaxChunkDurationMS = max(entry.MaxChunkDurationMS, result.DurationMS)
		entry.TotalProcessingTimeMS += result.DurationMS
	}

	if len(results) > 0 {
		entry.AverageChunkDurationMS = float64(entry.TotalProcessingTimeMS) / float64(len(results))
	}

	switch {
	case job.FinishedAt != nil:
		entry.LastUpdatedAt = *job.FinishedAt
	case job.StartedAt != nil:
		entry.LastUpdatedAt = *job.StartedAt
	default:
		entry.LastUpdatedAt = job.CreatedAt
	}

	return entry, nil
}

// reconstructChunkSizes recovers the chunk layout of a hydrated job from its
// stored totals.
func reconstructChunkSizes(totalPoints, totalChunks, chunkSize int) []int {
	if totalChunks <= 0 {
		return nil
	}

	if totalChunks == 1 {
		return []int{totalPoints}
	}

	sizes := make([]int, 0, totalChunks)
	for range totalChunks - 1 {
		sizes = append(sizes, chunkSize)
	}

	return append(sizes, totalPoints-chunkSize*(totalChunks-1))
}

// runJob is the background driver: it walks the chunks sequentially, runs
// each on the chunk pool under the per-chunk timeout, records every outcome
// in both ledgers, and finalizes the job.
func (o *Orchestrator) runJob(jobID uuid.UUID, points []Point) {
	ctx, span := o.tracer.Start(context.Background(), "batch.job",
		trace.WithAttributes(
			attribute.String("job_id", jobID.String()),
			attribute.Int("total_points", len(points)),
		),
	)
	defer span.End()

	err := o.executeJob(ctx, jobID, points)
	if err != nil {
		message := fmt.Sprintf("Background processing failed: %v", err)
		o.failJob(jobID, message)
		o.metrics.JobsFailed.Add(ctx, 1)
		o.logger.Error("batch job aborted",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) executeJob(ctx context.Context, jobID uuid.UUID, points []Point) error {
	o.cache.Update(jobID, func(e *Entry) {
		now := time.Now()
		e.Status = StatusProcessing
		e.StartedAt = &now
		e.ErrorMessage = ""
	})

	err := o.store.UpdateJobStatus(ctx, jobID, StatusProcessing, StatusUpdate{StartedNow: true})
	if err != nil {
		return err
	}

	hadFailures := false

	for idx, chunk := range SplitPoints(points, o.opts.ChunkSize) {
		result := o.runChunk(ctx, jobID, idx, chunk)

		failed := result.Status != ChunkOK
		if failed {
			hadFailures = true
		}

		o.cache.AppendResult(jobID, result, failed)

		persistErr := o.store.PersistChunkResult(ctx, jobID, result)
		if persistErr != nil {
			return persistErr
		}

		o.metrics.ChunksProcessed.Add(ctx, 1)
		o.metrics.ChunkDuration.Record(ctx, float64(result.DurationMS))
	}

	finalStatus := StatusCompleted
	finalError := ""

	if hadFailures {
		finalStatus = StatusFailed
		finalError = "One or more chunks failed."
	}

	o.cache.Update(jobID, func(e *Entry) {
		now := time.Now()
		e.Status = finalStatus
		e.FinishedAt = &now
		e.ErrorMessage = finalError
	})

	var errMsg *string
	if finalError != "" {
		errMsg = &finalError
	}

	err = o.store.UpdateJobStatus(ctx, jobID, finalStatus, StatusUpdate{FinishedNow: true, ErrorMessage: errMsg})
	if err != nil {
		return err
	}

	if hadFailures {
		o.metrics.JobsFailed.Add(ctx, 1)
	} else {
		o.metrics.JobsCompleted.Add(ctx, 1)
	}

	o.cache.EnforceMemoryLimit()
	o.logger.Info("batch job finished",
		slog.String("job_id", jobID.String()),
		slog.String("status", string(finalStatus)),
		slog.Bool("had_failures", hadFailures),
	)

	return nil
}

// runChunk executes one chunk on the chunk pool under the per-chunk timeout
// and normalizes the outcome into a ChunkResult. The timeout covers queue
// wait plus execution.
func (o *Orchestrator) runChunk(ctx context.Context, jobID uuid.UUID, idx int, chunk []Point) ChunkResult {
	chunkCtx, cancel := context.WithTimeout(ctx, o.opts.ChunkTimeout)
	defer cancel()

	spanCtx, span := o.tracer.Start(chunkCtx, "batch.chunk",
		trace.WithAttributes(
			attribute.String("job_id", jobID.String()),
			attribute.Int("chunk_index", idx),
			attribute.Int("chunk_points", len(chunk)),
		),
	)
	defer span.End()

	started := time.Now()

	var (
		result  ChunkResult
		procErr error
	)

	execErr := o.chunks.Execute(spanCtx, func(taskCtx context.Context) {
		result, procErr = o.proc.ProcessChunk(taskCtx, chunk, idx)
	})

	durationMS := time.Since(started).Milliseconds()

	err := execErr
	if err == nil {
		err = procErr
	}

	if err != nil {
		message := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			message = fmt.Sprintf("Chunk timeout after %d seconds.", int(o.opts.ChunkTimeout.Seconds()))
		}

		return ChunkResult{
			ChunkIndex:      idx,
			ProcessedPoints: len(chunk),
			Status:          ChunkFailed,
			ErrorMessage:    message,
			DurationMS:      durationMS,
		}
	}

	// Normalize processor output.
	result.ChunkIndex = idx

	if result.ProcessedPoints == 0 {
		result.ProcessedPoints = len(chunk)
	}

	if result.Status == "" {
		result.Status = ChunkOK
	}

	if result.DurationMS == 0 {
		result.DurationMS = durationMS
	}

	return result
}

// failJob records a terminal failure in both ledgers.
func (o *Orchestrator) failJob(jobID uuid.UUID, message string) {
	o.cache.Update(jobID, func(e *Entry) {
		now := time.Now()
		e.Status = StatusFailed
		e.FinishedAt = &now
		e.ErrorMessage = message
	})

	err := o.store.UpdateJobStatus(context.Background(), jobID, StatusFailed,
		StatusUpdate{FinishedNow: true, ErrorMessage: &message})
	if err != nil {
		o.logger.Error("durable failure record lost",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err),
		)
	}
}
