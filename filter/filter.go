// Package filter implements the ManifestFilter: rewriting a manifest to
// mark entries matching a delete criterion as DELETED, with strict/
// inclusive partition predicate semantics (spec.md §4.B).
package filter

import (
	"errors"
	"fmt"

	"github.com/tableformat/snapshotmerge/internal/metrics"
	"github.com/tableformat/snapshotmerge/iofs"
	"github.com/tableformat/snapshotmerge/log"
	"github.com/tableformat/snapshotmerge/manifest"
	"github.com/tableformat/snapshotmerge/predicate"
)

func deleteReason(forced bool) string {
	if forced {
		return "explicit"
	}
	return "predicate"
}

// Criteria bundles the three ways a file can be marked for deletion.
type Criteria struct {
	DeletePaths    map[string]struct{}
	DropPartitions map[string]manifest.Partition
	Expression     predicate.Expression
	FailAnyDelete  bool
}

// IsEmpty reports the fast-path condition of spec.md §4.B: no delete
// criterion is active, so every manifest passes through unchanged.
func (c Criteria) IsEmpty() bool {
	return predicate.IsFalse(c.Expression) && len(c.DeletePaths) == 0 && len(c.DropPartitions) == 0
}

func (c Criteria) forceDeleted(f *manifest.DataFile) bool {
	if _, ok := c.DeletePaths[f.Path]; ok {
		return true
	}
	if _, ok := c.DropPartitions[f.Partition.Key()]; ok {
		return true
	}
	return false
}

// Result is the outcome of filtering one manifest.
type Result struct {
	// Output is the input manifest, if nothing changed, or a freshly
	// written one with matched entries marked DELETED.
	Output *manifest.File
	// Changed reports whether Output is a new manifest distinct from the
	// input (so callers know whether to track it for eventual cleanup).
	Changed bool
	// DeletedPaths is the set of paths newly marked DELETED in Output.
	DeletedPaths map[string]struct{}
}

// Filter applies criteria to the manifest at mf, using spec (the
// PartitionSpec mf.PartitionSpecID resolves to) to compute partition
// predicates. outputPath is only used if a rewrite is actually needed.
func Filter(
	io iofs.FileIO,
	mf *manifest.File,
	spec *manifest.PartitionSpec,
	criteria Criteria,
	projector *predicate.Projector,
	metricsEval *predicate.StrictMetricsEvaluator,
	snapshotID int64,
	outputPath string,
	logger log.Logger,
) (*Result, error) {
	if criteria.IsEmpty() {
		return &Result{Output: mf, Changed: false}, nil
	}

	reader, err := manifest.OpenReader(io, mf.Path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", mf.Path, err)
	}
	entries, err := manifest.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", mf.Path, err)
	}

	inclusive := projector.Inclusive(spec)
	strict := projector.Strict(spec)

	if !detectCandidate(entries, criteria, inclusive, strict, metricsEval) {
		return &Result{Output: mf, Changed: false}, nil
	}

	return rewrite(io, entries, spec, criteria, inclusive, strict, metricsEval, snapshotID, outputPath, logger)
}

// detectCandidate scans for the first entry that would be deleted and stops
// at that match. It does not validate the entry it finds: a
// CannotDeletePartialError or DeleteForbiddenError is only raised by the
// rewrite pass, which validates every entry it marks DELETED (spec.md §9
// Open Question).
func detectCandidate(
	entries []*manifest.ManifestEntry,
	criteria Criteria,
	inclusive, strict predicate.PartitionPredicate,
	metricsEval *predicate.StrictMetricsEvaluator,
) bool {
	for _, e := range entries {
		if e.Status == manifest.DELETED {
			continue
		}
		fileDelete := criteria.forceDeleted(e.File)
		if !(fileDelete || inclusive(e.File.Partition)) {
			continue
		}
		return true
	}
	return false
}

func rewrite(
	io iofs.FileIO,
	entries []*manifest.ManifestEntry,
	spec *manifest.PartitionSpec,
	criteria Criteria,
	inclusive, strict predicate.PartitionPredicate,
	metricsEval *predicate.StrictMetricsEvaluator,
	snapshotID int64,
	outputPath string,
	logger log.Logger,
) (*Result, error) {
	writer, err := manifest.NewWriter(io, outputPath, spec.SpecID)
	if err != nil {
		return nil, fmt.Errorf("opening output manifest %s: %w", outputPath, err)
	}
	// abort discards the in-progress output file on any error return: no
	// caller holds outputPath to clean it up later, since a failed rewrite
	// never reaches a cache that would track it. Writer.Abort knows whether
	// its content-addressed rename already happened and deletes the right
	// underlying file either way.
	abort := func(cause error) (*Result, error) {
		if derr := writer.Abort(); derr != nil && logger != nil {
			var notFound iofs.PathNotFoundError
			if !errors.As(derr, &notFound) {
				logger.WithError(derr).Warn("deleting aborted manifest rewrite")
			}
		}
		return nil, cause
	}
	deletedPaths := make(map[string]struct{})

	for _, e := range entries {
		if e.Status == manifest.DELETED {
			// A prior snapshot's delete is dropped: it carries no new
			// information once this rewrite produces its own manifest.
			continue
		}

		fileDelete := criteria.forceDeleted(e.File)
		mustDelete := fileDelete || inclusive(e.File.Partition)
		if !mustDelete {
			if werr := writer.AddExisting(&manifest.ManifestEntry{SnapshotID: e.SnapshotID, File: e.File}); werr != nil {
				return abort(werr)
			}
			continue
		}

		if !fileDelete && !strict(e.File.Partition) && !metricsEval.Evaluate(e.File) {
			return abort(&CannotDeletePartialError{Path: e.File.Path})
		}
		if criteria.FailAnyDelete {
			return abort(&DeleteForbiddenError{PartitionPath: e.File.Partition.Key()})
		}

		if _, dup := deletedPaths[e.File.Path]; dup && logger != nil {
			logger.WithFields(log.Fields{"path": e.File.Path}).Warn("duplicate deleted path observed while rewriting manifest")
		}
		deletedPaths[e.File.Path] = struct{}{}
		metrics.FilesFiltered.WithLabelValues(deleteReason(fileDelete)).Inc()

		if werr := writer.Delete(&manifest.ManifestEntry{SnapshotID: snapshotID, File: e.File}); werr != nil {
			return abort(werr)
		}
	}

	if err := writer.Close(); err != nil {
		return abort(fmt.Errorf("closing output manifest %s: %w", outputPath, err))
	}
	out, err := writer.ToManifestFile()
	if err != nil {
		return nil, err
	}

	return &Result{Output: out, Changed: true, DeletedPaths: deletedPaths}, nil
}
