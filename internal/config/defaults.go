package config

// Server default values.
const (
	DefaultListenAddr       = ":8000"
	DefaultCORSAllowOrigins = "*"
)

// Routing default values.
const (
	// DefaultCostPerMeter is the fallback deployment cost rate applied when the
	// road subgraph carries zero edge costs.
	DefaultCostPerMeter = 700.0
)

// Batch default values.
const (
	DefaultMaxBatchCoordinates      = 50_000
	DefaultBatchChunkSize           = 1_000
	DefaultMockChunkDelaySeconds    = 0.02
	DefaultJobRetentionSeconds      = 300
	DefaultExecutorMaxWorkers       = 3
	DefaultMaxActiveJobs            = 5
	DefaultChunkTimeoutSeconds      = 30
	DefaultChunkExecutorMaxWorkers  = 8
	DefaultMaxStoredResultsMemoryMB = 200
	DefaultChunkProcessor           = ProcessorMock
)

// HTTP boundary default values.
const (
	DefaultMaxRequestBodyBytes        = 5_000_000
	DefaultRateLimitWindowSeconds     = 60
	DefaultRateLimitRequestsPerWindow = 10
	DefaultRequestTimeoutSeconds      = 30
)

// Observability default values.
const (
	DefaultLogLevel = "INFO"
	DefaultLogJSON  = false
)
