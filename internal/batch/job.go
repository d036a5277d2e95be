// Package batch implements asynchronous batch processing of coordinate
// uploads: admission control, chunked execution on bounded worker pools, and
// a dual job ledger (durable Postgres rows plus an in-memory cache with TTL
// cleanup and memory-pressure eviction).
package batch

import (
	"time"

	"github.com/google/uuid"
)

// Status is a job lifecycle state.
type Status string

// Job lifecycle states. A job moves queued -> processing -> completed|failed.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Active reports whether the job still occupies an admission slot.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusProcessing
}

// Terminal reports whether the job has finished, successfully or not.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ChunkStatus is a per-chunk outcome.
type ChunkStatus string

// Per-chunk outcomes.
const (
	ChunkOK     ChunkStatus = "ok"
	ChunkFailed ChunkStatus = "failed"
)

// Point is one uploaded consumer coordinate.
type Point struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ChunkResult records the outcome of processing one chunk.
type ChunkResult struct {
	ChunkIndex      int         `json:"chunk_index"`
	ProcessedPoints int         `json:"processed_points"`
	Status          ChunkStatus `json:"status"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	DurationMS      int64       `json:"duration_ms"`
}

// Job is the durable core of a batch job record.
type Job struct {
	JobID           uuid.UUID  `json:"job_id"`
	Status          Status     `json:"status"`
	TotalPoints     int        `json:"total_points"`
	TotalChunks     int        `json:"total_chunks"`
	ProcessedChunks int        `json:"processed_chunks"`
	FailedChunks    int        `json:"failed_chunks"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// Entry is the full cached job record: the durable core plus per-chunk
// results and running duration aggregates kept only in memory.
type Entry struct {
	Job

	ChunkSizes             []int         `json:"chunk_sizes"`
	Results                []ChunkResult `json:"results"`
	LastUpdatedAt          time.Time     `json:"last_updated_at"`
	AverageChunkDurationMS float64       `json:"average_chunk_duration"`
	MaxChunkDurationMS     int64         `json:"max_chunk_duration"`
	TotalProcessingTimeMS  int64         `json:"total_processing_time"`
}

// clone returns a deep copy safe to hand out after the cache lock is released.
func (e *Entry) clone() *Entry {
	out := *e
	out.ChunkSizes = append([]int(nil), e.ChunkSizes...)
	out.Results = append([]ChunkResult(nil), e.Results...)

	return &out
}
