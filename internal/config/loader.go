package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".fiberplan"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for fiberplan settings.
const envPrefix = "FIBERPLAN"

// Load reads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("listen_addr", DefaultListenAddr)
	viperCfg.SetDefault("cors_allow_origins", DefaultCORSAllowOrigins)

	viperCfg.SetDefault("database_url", "")

	viperCfg.SetDefault("default_cost_per_meter", DefaultCostPerMeter)

	viperCfg.SetDefault("max_batch_coordinates", DefaultMaxBatchCoordinates)
	viperCfg.SetDefault("batch_chunk_size", DefaultBatchChunkSize)
	viperCfg.SetDefault("mock_chunk_delay_seconds", DefaultMockChunkDelaySeconds)
	viperCfg.SetDefault("job_retention_seconds", DefaultJobRetentionSeconds)
	viperCfg.SetDefault("executor_max_workers", DefaultExecutorMaxWorkers)
	viperCfg.SetDefault("max_active_jobs", DefaultMaxActiveJobs)
	viperCfg.SetDefault("chunk_timeout_seconds", DefaultChunkTimeoutSeconds)
	viperCfg.SetDefault("chunk_executor_max_workers", DefaultChunkExecutorMaxWorkers)
	viperCfg.SetDefault("max_stored_results_memory_mb", DefaultMaxStoredResultsMemoryMB)
	viperCfg.SetDefault("chunk_processor", DefaultChunkProcessor)

	viperCfg.SetDefault("max_request_body_bytes", DefaultMaxRequestBodyBytes)
	viperCfg.SetDefault("rate_limit_window_seconds", DefaultRateLimitWindowSeconds)
	viperCfg.SetDefault("rate_limit_requests_per_window", DefaultRateLimitRequestsPerWindow)
	viperCfg.SetDefault("request_timeout_seconds", DefaultRequestTimeoutSeconds)

	viperCfg.SetDefault("log_level", DefaultLogLevel)
	viperCfg.SetDefault("log_json", DefaultLogJSON)
	viperCfg.SetDefault("otlp_endpoint", "")
	viperCfg.SetDefault("otlp_insecure", false)
}
