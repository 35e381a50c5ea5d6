// Package buildinfo carries build identifiers injected with -ldflags:
//
//	-ldflags "-X hourmeter/internal/buildinfo.Version=v1.2.0 -X hourmeter/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for the window title and the
// boot log.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// Line describes the build as "version commit date" with unset parts
// omitted.
func Line() string {
	s := Version
	if s == "" {
		s = "dev"
	}
	if Commit != "" && Commit != "unknown" {
		s += " " + Commit
	}
	if Date != "" && Date != "unknown" {
		s += " " + Date
	}
	return s
}
