// Package observability initializes tracing, metrics, and structured logging
// for the fiberplan service.
package observability

import (
	"log/slog"
	"strings"
)

// defaultShutdownTimeoutSec bounds provider shutdown when no override is set.
const defaultShutdownTimeoutSec = 10

// Config holds observability initialization settings.
type Config struct {
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string

	// ServiceVersion is the OTel service.version resource attribute.
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod).
	Environment string

	// LogLevel is the minimum slog level.
	LogLevel slog.Level

	// LogJSON selects the JSON handler over the text handler.
	LogJSON bool

	// OTLPEndpoint is the OTLP gRPC trace collector endpoint.
	// Empty disables trace export (no-op tracer provider).
	OTLPEndpoint string

	// OTLPInsecure disables TLS on the OTLP connection.
	OTLPInsecure bool

	// ShutdownTimeoutSec bounds the telemetry flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with service defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "fiberplan",
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// ParseLevel converts a config log level string to a slog.Level.
// Unknown values fall back to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
