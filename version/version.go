package version

// Overridden at build time with -ldflags "-X github.com/thetatoken/hubchannel/version.GitHash=...".
var (
	Version   = "0.1.0"
	GitHash   = "unknown"
	Timestamp = "unknown"
)
