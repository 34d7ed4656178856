package internal

import "fmt"

// Set through -ldflags "-X github.com/zhengshuai-xiao/fidxsync/internal.version=..."
var (
	version   = "0.3.0-dev"
	revision  = "$Format:%h$"
	buildDate = "unknown"
)

func Version() string {
	return fmt.Sprintf("%s+%s (built %s)", version, revision, buildDate)
}

// UserAgent is sent by the HTTP fetcher.
func UserAgent() string {
	return "fidxsync/" + version
}
