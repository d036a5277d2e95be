// Package config provides file/env configuration for the fiberplan service.
package config

import "errors"

// Config is the top-level configuration struct for fiberplan.
// Field tags use mapstructure for viper unmarshalling. Keys are flat so the
// environment spelling is FIBERPLAN_<KEY>, e.g. FIBERPLAN_DATABASE_URL.
type Config struct {
	ListenAddr       string `mapstructure:"listen_addr"`
	CORSAllowOrigins string `mapstructure:"cors_allow_origins"`

	DatabaseURL string `mapstructure:"database_url"`

	DefaultCostPerMeter float64 `mapstructure:"default_cost_per_meter"`

	MaxBatchCoordinates      int     `mapstructure:"max_batch_coordinates"`
	BatchChunkSize           int     `mapstructure:"batch_chunk_size"`
	MockChunkDelaySec        float64 `mapstructure:"mock_chunk_delay_seconds"`
	JobRetentionSec          int     `mapstructure:"job_retention_seconds"`
	ExecutorMaxWorkers       int     `mapstructure:"executor_max_workers"`
	MaxActiveJobs            int     `mapstructure:"max_active_jobs"`
	ChunkTimeoutSec          int     `mapstructure:"chunk_timeout_seconds"`
	ChunkExecutorMaxWorkers  int     `mapstructure:"chunk_executor_max_workers"`
	MaxStoredResultsMemoryMB int     `mapstructure:"max_stored_results_memory_mb"`

	// ChunkProcessor selects the chunk processor binding: "mock" or "routing".
	ChunkProcessor string `mapstructure:"chunk_processor"`

	MaxRequestBodyBytes        int64 `mapstructure:"max_request_body_bytes"`
	RateLimitWindowSec         int   `mapstructure:"rate_limit_window_seconds"`
	RateLimitRequestsPerWindow int   `mapstructure:"rate_limit_requests_per_window"`
	RequestTimeoutSec          int   `mapstructure:"request_timeout_seconds"`

	LogLevel     string `mapstructure:"log_level"`
	LogJSON      bool   `mapstructure:"log_json"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Chunk processor bindings.
const (
	ProcessorMock    = "mock"
	ProcessorRouting = "routing"
)

// Sentinel errors for configuration validation.
var (
	// ErrMissingDatabaseURL indicates no database connection string was provided.
	ErrMissingDatabaseURL = errors.New("database_url must be set")
	// ErrInvalidChunkSize indicates the batch chunk size is not positive.
	ErrInvalidChunkSize = errors.New("batch_chunk_size must be positive")
	// ErrInvalidMaxBatchCoordinates indicates the batch coordinate cap is not positive.
	ErrInvalidMaxBatchCoordinates = errors.New("max_batch_coordinates must be positive")
	// ErrInvalidExecutorWorkers indicates the job executor worker count is not positive.
	ErrInvalidExecutorWorkers = errors.New("executor_max_workers must be positive")
	// ErrInvalidChunkExecutorWorkers indicates the chunk executor worker count is not positive.
	ErrInvalidChunkExecutorWorkers = errors.New("chunk_executor_max_workers must be positive")
	// ErrInvalidMaxActiveJobs indicates the active job cap is not positive.
	ErrInvalidMaxActiveJobs = errors.New("max_active_jobs must be positive")
	// ErrInvalidChunkTimeout indicates the chunk timeout is not positive.
	ErrInvalidChunkTimeout = errors.New("chunk_timeout_seconds must be positive")
	// ErrInvalidJobRetention indicates the job retention window is not positive.
	ErrInvalidJobRetention = errors.New("job_retention_seconds must be positive")
	// ErrInvalidMemoryLimit indicates the stored-results memory budget is negative.
	ErrInvalidMemoryLimit = errors.New("max_stored_results_memory_mb must be non-negative")
	// ErrInvalidCostPerMeter indicates the fallback cost rate is not positive.
	ErrInvalidCostPerMeter = errors.New("default_cost_per_meter must be positive")
	// ErrInvalidChunkProcessor indicates an unknown chunk processor binding.
	ErrInvalidChunkProcessor = errors.New(`chunk_processor must be "mock" or "routing"`)
	// ErrInvalidRequestBodyLimit indicates the request body cap is not positive.
	ErrInvalidRequestBodyLimit = errors.New("max_request_body_bytes must be positive")
	// ErrInvalidRateLimit indicates a rate limit knob is not positive.
	ErrInvalidRateLimit = errors.New("rate limit window and request count must be positive")
	// ErrInvalidRequestTimeout indicates the request timeout is not positive.
	ErrInvalidRequestTimeout = errors.New("request_timeout_seconds must be positive")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	batchErr := c.validateBatch()
	if batchErr != nil {
		return batchErr
	}

	return c.validateBoundary()
}

func (c *Config) validateBatch() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}

	if c.BatchChunkSize <= 0 {
		return ErrInvalidChunkSize
	}

	if c.MaxBatchCoordinates <= 0 {
		return ErrInvalidMaxBatchCoordinates
	}

	if c.ExecutorMaxWorkers <= 0 {
		return ErrInvalidExecutorWorkers
	}

	if c.ChunkExecutorMaxWorkers <= 0 {
		return ErrInvalidChunkExecutorWorkers
	}

	if c.MaxActiveJobs <= 0 {
		return ErrInvalidMaxActiveJobs
	}

	if c.ChunkTimeoutSec <= 0 {
		return ErrInvalidChunkTimeout
	}

	if c.JobRetentionSec <= 0 {
		return ErrInvalidJobRetention
	}

	if c.MaxStoredResultsMemoryMB < 0 {
		return ErrInvalidMemoryLimit
	}

	if c.DefaultCostPerMeter <= 0 {
		return ErrInvalidCostPerMeter
	}

	if c.ChunkProcessor != ProcessorMock && c.ChunkProcessor != ProcessorRouting {
		return ErrInvalidChunkProcessor
	}

	return nil
}

func (c *Config) validateBoundary() error {
	if c.MaxRequestBodyBytes <= 0 {
		return ErrInvalidRequestBodyLimit
	}

	if c.RateLimitWindowSec <= 0 || c.RateLimitRequestsPerWindow <= 0 {
		return ErrInvalidRateLimit
	}

	if c.RequestTimeoutSec <= 0 {
		return ErrInvalidRequestTimeout
	}

	return nil
}
