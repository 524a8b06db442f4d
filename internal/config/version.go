package config

// Build metadata, set with -ldflags "-X github.com/edirooss/loopcast/internal/config.Version=...".
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)
