// Package version records build provenance for the rpcpool binaries.
//
// The variables default to development placeholders; release builds override
// them with -ldflags="-X github.com/rickgao/rpcpool/internal/version.Version=... ".
package version

import "fmt"

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// Commit is the short git revision the binary was built from.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp in RFC 3339 form.
	BuildTime = "unknown"
)

// String renders the full build identity, e.g. "1.2.0 (4fa1c9b) built 2026-01-02T10:04:11Z".
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, Commit, BuildTime)
}
