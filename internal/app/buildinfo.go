package app

import "github.com/hyperifyio/gocorpus/internal/store"

// Build information populated via -ldflags at build time.
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// Build returns the build information recorded in manifests.
func Build() store.Build {
	return store.Build{Version: BuildVersion, Commit: BuildCommit, Date: BuildDate}
}
