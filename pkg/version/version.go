// Package version carries build metadata stamped in via -ldflags.
package version

// Set at build time:
//
//	go build -ldflags "-X .../pkg/version.Version=v0.1.0 -X .../pkg/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
