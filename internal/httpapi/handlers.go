package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Sumatoshi-tech/fiberplan/internal/batch"
	"github.com/Sumatoshi-tech/fiberplan/internal/routing"
	"github.com/Sumatoshi-tech/fiberplan/internal/spatial"
)

// Catalog is the dataset query surface backing the catalog and health
// endpoints. *spatial.Gateway satisfies it.
type Catalog interface {
	Summary(ctx context.Context) (*spatial.CatalogSummary, error)
	Districts(ctx context.Context) ([]spatial.District, error)
	Franchises(ctx context.Context, districtID string) ([]spatial.Franchise, error)
	Health(ctx context.Context) spatial.HealthReport
}

// RoutePlanner computes single consumer routes. *routing.Planner satisfies it.
type RoutePlanner interface {
	Route(ctx context.Context, lon, lat float64) (*routing.Result, error)
}

// BatchService is the batch-job surface. *batch.Orchestrator satisfies it.
type BatchService interface {
	UploadBatch(ctx context.Context, points []batch.Point) (*batch.Accepted, error)
	JobStatus(ctx context.Context, jobID uuid.UUID) (*batch.Entry, error)
	JobResult(ctx context.Context, jobID uuid.UUID) (*batch.Entry, error)
	Metrics(ctx context.Context) (*batch.MetricsView, error)
}

// Handlers binds the service surfaces to HTTP endpoints.
type Handlers struct {
	catalog Catalog
	planner RoutePlanner
	batch   BatchService
	logger  *slog.Logger
}

// NewHandlers creates the endpoint set.
func NewHandlers(catalog Catalog, planner RoutePlanner, batchService BatchService, logger *slog.Logger) *Handlers {
	return &Handlers{
		catalog: catalog,
		planner: planner,
		batch:   batchService,
		logger:  logger,
	}
}

type healthResponse struct {
	Status string `json:"status"`

	spatial.HealthReport
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	report := h.catalog.Health(r.Context())
	if !report.DatabaseOK {
		writeAppError(w, r, h.logger, errHealthCheckFailed)

		return
	}

	// Reachable database with a missing extension still serves, degraded.
	status := "ok"
	if !report.Healthy() {
		status = "degraded"
	}

	writeJSON(w, h.logger, http.StatusOK, healthResponse{Status: status, HealthReport: report})
}

func (h *Handlers) catalogSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.catalog.Summary(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, errSummaryFetchFailed, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, summary)
}

func (h *Handlers) catalogDistricts(w http.ResponseWriter, r *http.Request) {
	districts, err := h.catalog.Districts(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, errDistrictsFetchFailed, err)

		return
	}

	if districts == nil {
		districts = []spatial.District{}
	}

	writeJSON(w, h.logger, http.StatusOK, districts)
}

func (h *Handlers) catalogFranchises(w http.ResponseWriter, r *http.Request) {
	franchises, err := h.catalog.Franchises(r.Context(), r.URL.Query().Get("district_id"))
	if err != nil {
		writeFailure(w, r, h.logger, errFranchisesFetchFailed, err)

		return
	}

	if franchises == nil {
		franchises = []spatial.Franchise{}
	}

	writeJSON(w, h.logger, http.StatusOK, franchises)
}

func (h *Handlers) computeRoute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest

	err := decodeValidated(r, computeSchema, &req)
	if err != nil {
		writeError(w, r, h.logger, err)

		return
	}

	result, err := h.planner.Route(r.Context(), req.Longitude, req.Latitude)
	if err != nil {
		writeError(w, r, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, result)
}

func (h *Handlers) uploadBatch(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest

	err := decodeValidated(r, uploadSchema, &req)
	if err != nil {
		writeError(w, r, h.logger, err)

		return
	}

	accepted, err := h.batch.UploadBatch(r.Context(), req.Coordinates)
	if err != nil {
		writeError(w, r, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusAccepted, accepted)
}

type jobStatusResponse struct {
	JobID           uuid.UUID    `json:"job_id"`
	Status          batch.Status `json:"status"`
	TotalPoints     int          `json:"total_points"`
	TotalChunks     int          `json:"total_chunks"`
	ProcessedChunks int          `json:"processed_chunks"`
	FailedChunks    int          `json:"failed_chunks"`
	StartedAt       *time.Time   `json:"started_at"`
	FinishedAt      *time.Time   `json:"finished_at"`
	ErrorMessage    *string      `json:"error_message"`
}

func (h *Handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(r)
	if !ok {
		writeError(w, r, h.logger, batch.ErrJobNotFound)

		return
	}

	entry, err := h.batch.JobStatus(r.Context(), jobID)
	if err != nil {
		writeError(w, r, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, jobStatusResponse{
		JobID:           entry.JobID,
		Status:          entry.Status,
		TotalPoints:     entry.TotalPoints,
		TotalChunks:     entry.TotalChunks,
		ProcessedChunks: entry.ProcessedChunks,
		FailedChunks:    entry.FailedChunks,
		StartedAt:       entry.StartedAt,
		FinishedAt:      entry.FinishedAt,
		ErrorMessage:    optionalString(entry.ErrorMessage),
	})
}

type jobResultResponse struct {
	JobID           uuid.UUID           `json:"job_id"`
	Status          batch.Status        `json:"status"`
	TotalPoints     int                 `json:"total_points"`
	TotalChunks     int                 `json:"total_chunks"`
	ChunkSizes      []int               `json:"chunk_sizes"`
	ProcessedChunks int                 `json:"processed_chunks"`
	FailedChunks    int                 `json:"failed_chunks"`
	Results         []batch.ChunkResult `json:"results"`
	ErrorMessage    *string             `json:"error_message"`
}

func (h *Handlers) jobResult(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(r)
	if !ok {
		writeError(w, r, h.logger, batch.ErrJobNotFound)

		return
	}

	entry, err := h.batch.JobResult(r.Context(), jobID)
	if err != nil {
		writeError(w, r, h.logger, err)

		return
	}

	results := entry.Results
	if results == nil {
		results = []batch.ChunkResult{}
	}

	writeJSON(w, h.logger, http.StatusOK, jobResultResponse{
		JobID:           entry.JobID,
		Status:          entry.Status,
		TotalPoints:     entry.TotalPoints,
		TotalChunks:     entry.TotalChunks,
		ChunkSizes:      entry.ChunkSizes,
		ProcessedChunks: entry.ProcessedChunks,
		FailedChunks:    entry.FailedChunks,
		Results:         results,
		ErrorMessage:    optionalString(entry.ErrorMessage),
	})
}

func (h *Handlers) jobsMetrics(w http.ResponseWriter, r *http.Request) {
	view, err := h.batch.Metrics(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)

		return
	}

	writeJSON(w, h.logger, http.StatusOK, view)
}

func parseJobID(r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(mux.Vars(r)["job_id"])
	if err != nil {
		return uuid.Nil, false
	}

	return jobID, true
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
