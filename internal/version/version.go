// Package version exposes build metadata stamped via ldflags:
//
//	go build -ldflags "-X github.com/feedmux/feedgate/internal/version.Version=1.2.0 \
//	                   -X github.com/feedmux/feedgate/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the semantic release version.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"
)

// String returns "version (commit)".
func String() string {
	return Version + " (" + Commit + ")"
}
