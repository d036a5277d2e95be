package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sumatoshi-tech/fiberplan/internal/batch"
	"github.com/Sumatoshi-tech/fiberplan/internal/config"
	"github.com/Sumatoshi-tech/fiberplan/internal/httpapi"
	"github.com/Sumatoshi-tech/fiberplan/internal/routing"
	"github.com/Sumatoshi-tech/fiberplan/internal/spatial"
)

type fakeCatalog struct {
	health spatial.HealthReport
}

func (fc *fakeCatalog) Summary(_ context.Context) (*spatial.CatalogSummary, error) {
	return &spatial.CatalogSummary{Districts: 2, Franchises: 5, FiberNodes: 40, RoadNodes: 900, RoadEdges: 1200}, nil
}

func (fc *fakeCatalog) Districts(_ context.Context) ([]spatial.District, error) {
	return []spatial.District{{DistrictID: "d-01", Name: "Central", Franchises: 3}}, nil
}

func (fc *fakeCatalog) Franchises(_ context.Context, districtID string) ([]spatial.Franchise, error) {
	if districtID != "" && districtID != "d-01" {
		return nil, nil
	}

	return []spatial.Franchise{{FranchiseID: "fr-001", DistrictID: "d-01", AreaSqKm: 12.5, FiberNodes: 8}}, nil
}

func (fc *fakeCatalog) Health(_ context.Context) spatial.HealthReport {
	return fc.health
}

type fakePlanner struct {
	result *routing.Result
	err    error
}

func (fp *fakePlanner) Route(_ context.Context, _, _ float64) (*routing.Result, error) {
	return fp.result, fp.err
}

type fakeBatch struct {
	accepted *batch.Accepted
	entry    *batch.Entry
	view     *batch.MetricsView
	err      error
}

func (fb *fakeBatch) UploadBatch(_ context.Context, _ []batch.Point) (*batch.Accepted, error) {
	return fb.accepted, fb.err
}

func (fb *fakeBatch) JobStatus(_ context.Context, _ uuid.UUID) (*batch.Entry, error) {
	return fb.entry, fb.err
}

func (fb *fakeBatch) JobResult(_ context.Context, _ uuid.UUID) (*batch.Entry, error) {
	return fb.entry, fb.err
}

func (fb *fakeBatch) Metrics(_ context.Context) (*batch.MetricsView, error) {
	return fb.view, fb.err
}

type fixture struct {
	catalog *fakeCatalog
	planner *fakePlanner
	batch   *fakeBatch
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		ListenAddr:                 ":0",
		CORSAllowOrigins:           "*",
		MaxRequestBodyBytes:        5_000_000,
		RateLimitWindowSec:         60,
		RateLimitRequestsPerWindow: 10_000,
		RequestTimeoutSec:          5,
	}

	fx := &fixture{
		catalog: &fakeCatalog{health: spatial.HealthReport{DatabaseOK: true, PostGISOK: true, PgRoutingOK: true}},
		planner: &fakePlanner{},
		batch:   &fakeBatch{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := httpapi.NewHandlers(fx.catalog, fx.planner, fx.batch, logger)
	server := httpapi.NewServer(cfg, handlers, prometheus.NewRegistry(),
		tracenoop.NewTracerProvider().Tracer("test"), logger)

	fx.server = httptest.NewServer(server.Handler())
	t.Cleanup(fx.server.Close)

	return fx
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec,noctx // test server URL
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body)) //nolint:gosec,noctx // test server URL
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type envelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp := get(t, fx.server.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status      string `json:"status"`
		DatabaseOK  bool   `json:"database_ok"`
		PostGISOK   bool   `json:"postgis_ok"`
		PgRoutingOK bool   `json:"pgrouting_ok"`
	}
	decodeBody(t, resp, &body)

	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.DatabaseOK)
	assert.True(t, body.PostGISOK)
	assert.True(t, body.PgRoutingOK)
}

func TestHealthEndpointDatabaseDown(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.catalog.health = spatial.HealthReport{}

	resp := get(t, fx.server.URL+"/health")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body envelope
	decodeBody(t, resp, &body)
	assert.Equal(t, "health_check_failed", body.Error.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestHealthEndpointDegradedExtension(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.catalog.health = spatial.HealthReport{DatabaseOK: true, PostGISOK: true, PgRoutingOK: false}

	resp := get(t, fx.server.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status      string `json:"status"`
		PgRoutingOK bool   `json:"pgrouting_ok"`
	}
	decodeBody(t, resp, &body)

	assert.Equal(t, "degraded", body.Status)
	assert.False(t, body.PgRoutingOK)
}

func TestCatalogEndpoints(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp := get(t, fx.server.URL+"/catalog/summary")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary spatial.CatalogSummary
	decodeBody(t, resp, &summary)
	assert.Equal(t, 5, summary.Franchises)

	resp = get(t, fx.server.URL+"/catalog/districts")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var districts []spatial.District
	decodeBody(t, resp, &districts)
	require.Len(t, districts, 1)
	assert.Equal(t, "Central", districts[0].Name)

	resp = get(t, fx.server.URL+"/catalog/franchises?district_id=d-99")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var franchises []spatial.Franchise
	decodeBody(t, resp, &franchises)
	assert.Empty(t, franchises)
}

func TestComputeRouteSuccess(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.planner.result = &routing.Result{
		FranchiseID:    "fr-001",
		NearestNodeID:  "fn-010",
		DistanceMeters: 1350,
		EstimatedCost:  945000,
		EdgeCount:      7,
		RouteGeoJSON:   json.RawMessage(`{"type":"LineString","coordinates":[]}`),
	}

	resp := post(t, fx.server.URL+"/routing/compute", `{"longitude":32.85,"latitude":39.93}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result routing.Result
	decodeBody(t, resp, &result)
	assert.Equal(t, "fr-001", result.FranchiseID)
	assert.Equal(t, 7, result.EdgeCount)
}

func TestComputeRoutePipelineError(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.planner.err = routing.ErrOutsideFranchise

	resp := post(t, fx.server.URL+"/routing/compute", `{"longitude":0,"latitude":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body envelope
	decodeBody(t, resp, &body)
	assert.Equal(t, "outside_franchise", body.Error.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestComputeRouteValidation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp := post(t, fx.server.URL+"/routing/compute", `{"longitude":200.0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body envelope
	decodeBody(t, resp, &body)
	assert.Equal(t, "validation_error", body.Error.Code)
	assert.NotEmpty(t, body.Error.Details)
}

func TestComputeRouteMalformedJSON(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp := post(t, fx.server.URL+"/routing/compute", `{"longitude":`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body envelope
	decodeBody(t, resp, &body)
	assert.Equal(t, "malformed_json", body.Error.Code)
}

func TestUploadBatchAccepted(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	jobID := uuid.New()
	fx.batch.accepted = &batch.Accepted{
		JobID:       jobID,
		Status:      batch.StatusQueued,
		TotalPoints: 2,
		TotalChunks: 1,
		ChunkSizes:  []int{2},
	}

	resp := post(t, fx.server.URL+"/upload-batch",
		`{"coordinates":[{"id":1,"lat":39.9,"lon":32.8},{"id":2,"lat":39.91,"lon":32.81}]}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted batch.Accepted
	decodeBody(t, resp, &accepted)
	assert.Equal(t, jobID, accepted.JobID)
	assert.Equal(t, batch.StatusQueued, accepted.Status)
}

func TestUploadBatchServerBusy(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.batch.err = batch.ErrServerBusy

	resp := post(t, fx.server.URL+"/upload-batch", `{"coordinates":[{"id":1,"lat":39.9,"lon":32.8}]}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body envelope
	decodeBody(t, resp, &body)
	assert.Equal(t, "server_busy", body.Error.Code)
}

func TestUploadBatchValidation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp := post(t, fx.server.URL+"/upload-batch", `{"coordinates":[{"id":1,"lat":95.0,"lon":32.8}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body envelope
	decodeBody(t, resp, &body)
	assert.Equal(t, "validation_error", body.Error.Code)
}

func TestJobStatusInvalidID(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp := get(t, fx.server.URL+"/job-status/not-a-uuid")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body envelope
	decodeBody(t, resp, &body)
	assert.Equal(t, "job_not_found", body.Error.Code)
}

func TestJobResultConflict(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.batch.err = batch.JobNotReady(batch.StatusProcessing)

	resp := get(t, fx.server.URL+"/job-result/"+uuid.NewString())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body envelope
	decodeBody(t, resp, &body)
	assert.Equal(t, "job_not_ready", body.Error.Code)
	assert.Contains(t, body.Error.Message, "processing")
}

func TestJobsMetricsEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.batch.view = &batch.MetricsView{
		CompletedJobs:      4,
		TotalJobs:          5,
		MaxActiveJobs:      5,
		ExecutorMaxWorkers: 3,
	}

	resp := get(t, fx.server.URL+"/jobs/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view batch.MetricsView
	decodeBody(t, resp, &view)
	assert.Equal(t, 4, view.CompletedJobs)
	assert.Equal(t, 5, view.MaxActiveJobs)
}

func TestPrometheusMetricsEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp := get(t, fx.server.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
