package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// StoreMetrics aggregates durable job history.
type StoreMetrics struct {
	ActiveJobs             int     `json:"active_jobs"`
	CompletedJobs          int     `json:"completed_jobs"`
	FailedJobs             int     `json:"failed_jobs"`
	TotalJobs              int     `json:"total_jobs"`
	AverageChunkDurationMS float64 `json:"average_chunk_duration_ms"`
	AverageJobDurationMS   float64 `json:"average_job_duration_ms"`
}

// StatusUpdate describes a durable job-status transition.
type StatusUpdate struct {
	// StartedNow stamps started_at with the database clock.
	StartedNow bool

	// FinishedNow stamps finished_at with the database clock.
	FinishedNow bool

	// ErrorMessage, when non-nil, replaces the stored error message.
	ErrorMessage *string
}

// PgStore is the durable job ledger backed by Postgres. Job rows and chunk
// results survive process restarts; the cache is rebuilt from them on read.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a durable store over the given connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS batch_jobs (
		job_id UUID PRIMARY KEY,
		total_points INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		processed_chunks INTEGER DEFAULT 0,
		failed_chunks INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		error_message TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS batch_chunk_results (
		id BIGSERIAL PRIMARY KEY,
		job_id UUID REFERENCES batch_jobs(job_id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		processed_points INTEGER NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT,
		duration_ms INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_jobs_status ON batch_jobs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_chunk_results_job_id ON batch_chunk_results(job_id)`,
}

// EnsureSchema creates the job tables and indexes if missing.
func (ps *PgStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		_, err := ps.pool.Exec(ctx, stmt)
		if err != nil {
			return fmt.Errorf("ensure batch schema: %w", err)
		}
	}

	return nil
}

// CreateJob inserts a fresh job row with zeroed counters.
func (ps *PgStore) CreateJob(ctx context.Context, jobID uuid.UUID, totalPoints, totalChunks int, status Status) error {
	_, err := ps.pool.Exec(ctx, `
		INSERT INTO batch_jobs (job_id, total_points, total_chunks, processed_chunks, failed_chunks, status)
		VALUES ($1, $2, $3, 0, 0, $4)`,
		jobID, totalPoints, totalChunks, string(status))
	if err != nil {
		return fmt.Errorf("create job row: %w", err)
	}

	return nil
}

// UpdateJobStatus transitions the job row, optionally stamping start and
// finish times with the database clock.
func (ps *PgStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status Status, update StatusUpdate) error {
	setParts := []string{"status = $1"}
	args := []any{string(status)}

	if update.StartedNow {
		setParts = append(setParts, "started_at = NOW()")
	}

	if update.FinishedNow {
		setParts = append(setParts, "finished_at = NOW()")
	}

	if update.ErrorMessage != nil {
		args = append(args, *update.ErrorMessage)
		setParts = append(setParts, "error_message = $"+strconv.Itoa(len(args)))
	}

	args = append(args, jobID)
	query := "UPDATE batch_jobs SET " + strings.Join(setParts, ", ") +
		" WHERE job_id = $" + strconv.Itoa(len(args))

	_, err := ps.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	return nil
}

// PersistChunkResult appends a chunk-result row and bumps the job counters in
// one transaction, so durable counters never drift from durable results.
func (ps *PgStore) PersistChunkResult(ctx context.Context, jobID uuid.UUID, result ChunkResult) error {
	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("persist chunk result: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var errorMessage *string
	if result.ErrorMessage != "" {
		errorMessage = &result.ErrorMessage
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO batch_chunk_results (job_id, chunk_index, processed_points, status, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		jobID, result.ChunkIndex, result.ProcessedPoints, string(result.Status), errorMessage, result.DurationMS)
	if err != nil {
		return fmt.Errorf("insert chunk result: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE batch_jobs
		SET processed_chunks = processed_chunks + 1,
		    failed_chunks = failed_chunks + CASE WHEN $1 = 'failed' THEN 1 ELSE 0 END
		WHERE job_id = $2`,
		string(result.Status), jobID)
	if err != nil {
		return fmt.Errorf("update chunk counters: %w", err)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit chunk result: %w", commitErr)
	}

	return nil
}

// GetJob fetches the durable job row, or nil when absent.
func (ps *PgStore) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var (
		job          Job
		status       string
		errorMessage *string
	)

	err := ps.pool.QueryRow(ctx, `
		SELECT job_id, total_points, total_chunks, processed_chunks, failed_chunks,
		       status, created_at, started_at, finished_at, error_message
		FROM batch_jobs
		WHERE job_id = $1`,
		jobID).Scan(
		&job.JobID, &job.TotalPoints, &job.TotalChunks, &job.ProcessedChunks, &job.FailedChunks,
		&status, &job.CreatedAt, &job.StartedAt, &job.FinishedAt, &errorMessage)
	if isNoRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get job row: %w", err)
	}

	job.Status = Status(status)
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}

	return &job, nil
}

// GetChunkResults fetches a job's chunk results ordered by chunk index.
func (ps *PgStore) GetChunkResults(ctx context.Context, jobID uuid.UUID) ([]ChunkResult, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT chunk_index, processed_points, status, error_message, COALESCE(duration_ms, 0)
		FROM batch_chunk_results
		WHERE job_id = $1
		ORDER BY chunk_index`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("get chunk results: %w", err)
	}
	defer rows.Close()

	var results []ChunkResult

	for rows.Next() {
		var (
			result       ChunkResult
			status       string
			errorMessage *string
		)

		scanErr := rows.Scan(&result.ChunkIndex, &result.ProcessedPoints, &status, &errorMessage, &result.DurationMS)
		if scanErr != nil {
			return nil, fmt.Errorf("scan chunk result: %w", scanErr)
		}

		result.Status = ChunkStatus(status)
		if errorMessage != nil {
			result.ErrorMessage = *errorMessage
		}

		results = append(results, result)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate chunk results: %w", rowsErr)
	}

	return results, nil
}

// ActiveJobCount counts durable rows in a non-terminal state.
func (ps *PgStore) ActiveJobCount(ctx context.Context) (int, error) {
	var count int

	err := ps.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM batch_jobs WHERE status IN ('queued', 'processing')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("active job count: %w", err)
	}

	return count, nil
}

// MarkIncompleteJobsFailed fails every non-terminal job row. Called once at
// startup: jobs interrupted by a restart can never resume.
func (ps *PgStore) MarkIncompleteJobsFailed(ctx context.Context) (int64, error) {
	tag, err := ps.pool.Exec(ctx, `
		UPDATE batch_jobs
		SET status = 'failed',
		    finished_at = NOW(),
		    error_message = 'Server restarted during execution.'
		WHERE status IN ('queued', 'processing')`)
	if err != nil {
		return 0, fmt.Errorf("mark incomplete jobs failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Metrics aggregates durable job counts and average durations.
func (ps *PgStore) Metrics(ctx context.Context) (*StoreMetrics, error) {
	var metrics StoreMetrics

	err := ps.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status IN ('queued', 'processing'))::int,
		       COUNT(*) FILTER (WHERE status = 'completed')::int,
		       COUNT(*) FILTER (WHERE status = 'failed')::int,
		       COUNT(*)::int
		FROM batch_jobs`).Scan(
		&metrics.ActiveJobs, &metrics.CompletedJobs, &metrics.FailedJobs, &metrics.TotalJobs)
	if err != nil {
		return nil, fmt.Errorf("job metrics: %w", err)
	}

	err = ps.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(duration_ms), 0)::float8 FROM batch_chunk_results`).
		Scan(&metrics.AverageChunkDurationMS)
	if err != nil {
		return nil, fmt.Errorf("chunk duration metrics: %w", err)
	}

	err = ps.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (finished_at - started_at)) * 1000), 0)::float8
		FROM batch_jobs
		WHERE started_at IS NOT NULL AND finished_at IS NOT NULL`).
		Scan(&metrics.AverageJobDurationMS)
	if err != nil {
		return nil, fmt.Errorf("job duration metrics: %w", err)
	}

	return &metrics, nil
}
