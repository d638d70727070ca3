// Package buildinfo holds build metadata injected with -ldflags, e.g.
//
//	-X github.com/garyellow/timetable-linebot-go/internal/buildinfo.Version=v1.2.0
package buildinfo

var (
	// Version is the release tag of this build.
	Version = ""
	// Commit is the git commit SHA of this build.
	Commit = ""
	// BuildDate is the RFC3339 build timestamp.
	BuildDate = ""
)

// Release names this build for logs and error reports: the version, else
// the short commit, else "dev".
func Release() string {
	switch {
	case Version != "":
		return Version
	case len(Commit) > 12:
		return Commit[:12]
	case Commit != "":
		return Commit
	default:
		return "dev"
	}
}
