package version

// Build metadata, injected through -ldflags by the release script.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
