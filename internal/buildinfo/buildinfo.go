// Package buildinfo carries the version stamped in by the linker:
//
//	go build -ldflags "-X smpcore/internal/buildinfo.Version=v0.3.0 -X smpcore/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for window titles.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// Long returns the version with commit and build date.
func Long() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
