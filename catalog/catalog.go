// Package catalog defines the TableOperations collaborator this module
// consumes (spec.md §6) plus two implementations: an in-memory one for
// tests and a Postgres-backed one for integration tests and real use,
// grounded on the teacher's registry/datastore store pattern.
package catalog

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/tableformat/snapshotmerge/manifest"
)

// Default table property values (spec.md §6).
const (
	DefaultTargetSizeBytes       = 8 << 20 // 8 MiB
	DefaultMinManifestsToMerge   = 100
	PropTargetSizeBytes          = "commit.manifest.target-size-bytes"
	PropMinManifestsToMerge      = "commit.manifest.min-count-to-merge"
)

// TableMetadata is the read-only snapshot of table state an Update applies
// against.
type TableMetadata interface {
	// Spec is the table's current (default) partition spec.
	Spec() *manifest.PartitionSpec
	// SpecByID resolves a historical partition spec by id; every manifest
	// in CurrentSnapshot was written against a spec resolvable here.
	SpecByID(specID int32) (*manifest.PartitionSpec, bool)
	// Properties is the raw string-keyed property bag; PropertyAsLong/Int
	// decode out of it via mapstructure, matching the teacher's storage
	// driver Parameters convention.
	Properties() map[string]string
	// CurrentSnapshot is nil for a brand-new table.
	CurrentSnapshot() (*manifest.Snapshot, bool)
}

// PropertyAsLong decodes an int64-valued property, falling back to def.
func PropertyAsLong(md TableMetadata, name string, def int64) int64 {
	raw, ok := md.Properties()[name]
	if !ok {
		return def
	}
	var out int64
	if err := mapstructure.WeakDecode(raw, &out); err != nil {
		return def
	}
	return out
}

// PropertyAsInt decodes an int-valued property, falling back to def.
func PropertyAsInt(md TableMetadata, name string, def int) int {
	raw, ok := md.Properties()[name]
	if !ok {
		return def
	}
	var out int
	if err := mapstructure.WeakDecode(raw, &out); err != nil {
		return def
	}
	return out
}

//go:generate mockgen -package mocks -destination mocks/catalog.go . TableOperations,TableMetadata

// TableOperations is the consumed commit-protocol collaborator: loading
// current metadata and (outside this module's scope, spec.md §1) swapping
// it atomically on commit.
type TableOperations interface {
	Current(ctx context.Context) (TableMetadata, error)
}

// ErrNoCurrentSnapshot is returned by callers that require a base snapshot
// to exist; a brand-new table legitimately has none (spec.md §4.F: "may
// have null currentSnapshot").
var ErrNoCurrentSnapshot = fmt.Errorf("table has no current snapshot")
