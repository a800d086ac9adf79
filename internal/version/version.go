// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X goportfolio/internal/version.Version=v1.2.3 -X goportfolio/internal/version.Commit=$(git rev-parse --short HEAD) -X goportfolio/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("goportfolio %s (commit %s, built %s)", Version, Commit, Date)
}
