package version

// Package and Version are set at build time via -ldflags, the way the
// teacher stamps its registry binary.
var (
	Package = "github.com/tableformat/snapshotmerge"
	Version = "dev"
)
