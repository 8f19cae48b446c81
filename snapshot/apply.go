package snapshot

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"gitlab.com/gitlab-org/labkit/correlation"

	"github.com/tableformat/snapshotmerge/catalog"
	"github.com/tableformat/snapshotmerge/filter"
	"github.com/tableformat/snapshotmerge/log"
	"github.com/tableformat/snapshotmerge/manifest"
	"github.com/tableformat/snapshotmerge/merge"
	"github.com/tableformat/snapshotmerge/predicate"
)

func (u *Update) concurrency() int {
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return 1
}

// Apply assembles the manifest list for a new snapshot built on top of
// base, reusing cached filter/merge outputs from prior Apply calls on this
// same Update. It may be invoked again, against a moved base, after a
// failed commit.
func (u *Update) Apply(ctx context.Context, base catalog.TableMetadata) ([]*manifest.File, error) {
	u.mu.Lock()
	deletePaths := make(map[string]struct{}, len(u.deletePaths))
	for p := range u.deletePaths {
		deletePaths[p] = struct{}{}
	}
	dropPartitions := make(map[string]manifest.Partition, len(u.dropPartitions))
	for k, v := range u.dropPartitions {
		dropPartitions[k] = v
	}
	deleteExpr := u.deleteExpr
	failAnyDelete := u.failAnyDelete
	failMissing := u.failMissing
	newFiles := append([]*manifest.DataFile(nil), u.newFiles...)
	filterUpdated := u.filterUpdated
	newFilesDirty := u.newFilesDirty
	u.filterUpdated = false
	u.newFilesDirty = false
	u.mu.Unlock()

	corrID := correlation.ExtractFromContextOrGenerate(ctx)
	logger := u.logger.WithFields(log.Fields{correlation.FieldName: corrID})
	ctx = log.WithLogger(ctx, logger)

	if u.currentSnapshotID == 0 {
		u.currentSnapshotID = u.clk.Now()
	}
	snapshotID := u.currentSnapshotID

	// Step 1: a change in delete criteria invalidates every cached filter
	// output; nothing in this update's filtered set can be assumed still
	// valid once the predicate it was filtered against has changed.
	if filterUpdated {
		u.cleanFilteredManifests(map[string]struct{}{})
	}

	currentSpec := base.Spec()

	// Step 2: materialize (or reuse) the new-files manifest.
	hasNewFiles := len(newFiles) > 0
	if hasNewFiles && (u.newManifest == nil || newFilesDirty) {
		if u.newManifest != nil {
			if err := u.io.DeleteFile(u.newManifest.Path); err != nil {
				logger.WithError(err).Warn("deleting stale new-files manifest")
			}
		}
		w, err := manifest.NewWriter(u.io, u.nextOutputPath(snapshotID), currentSpec.SpecID)
		if err != nil {
			return nil, fmt.Errorf("opening new-files manifest: %w", err)
		}
		if err := w.AddAll(newFiles, snapshotID); err != nil {
			w.Abort()
			return nil, fmt.Errorf("writing new-files manifest: %w", err)
		}
		if err := w.Close(); err != nil {
			w.Abort()
			return nil, fmt.Errorf("closing new-files manifest: %w", err)
		}
		nm, err := w.ToManifestFile()
		if err != nil {
			return nil, err
		}
		u.newManifest = nm
	}

	snap, hasSnapshot := base.CurrentSnapshot()
	var baseManifests []*manifest.File
	if hasSnapshot {
		baseManifests = snap.Manifests
	}

	// Step 3: groups, iterated in descending specId order, new-files
	// manifest first within its group.
	groups := map[int32][]*manifest.File{}
	if u.newManifest != nil {
		groups[u.newManifest.PartitionSpecID] = append(groups[u.newManifest.PartitionSpecID], u.newManifest)
	}

	// Step 4: predicate projector and strict metrics evaluator, shared by
	// every manifest this apply filters.
	projector := predicate.NewProjector(deleteExpr)
	metricsEval := predicate.NewStrictMetricsEvaluator(deleteExpr)
	criteria := filter.Criteria{
		DeletePaths:    deletePaths,
		DropPartitions: dropPartitions,
		Expression:     deleteExpr,
		FailAnyDelete:  failAnyDelete,
	}

	// Step 5+6: filter base manifests in parallel, pre-indexed by position.
	filtered, err := u.filterAll(ctx, baseManifests, base, criteria, projector, metricsEval, snapshotID, logger)
	if err != nil {
		return nil, err
	}

	deletedFiles := map[string]struct{}{}
	for _, out := range filtered {
		if dp, ok := u.filteredManifestToDeletedFiles.Load(out.Key()); ok {
			for p := range dp.(map[string]struct{}) {
				deletedFiles[p] = struct{}{}
			}
		}
	}

	// Step 7: append filtered manifests to their spec group, original order.
	for i, mf := range baseManifests {
		groups[mf.PartitionSpecID] = append(groups[mf.PartitionSpecID], filtered[i])
	}

	// Step 8: run the merge-group processor per spec group, descending
	// specId order, concatenating results in that order.
	specIDs := make([]int32, 0, len(groups))
	for id := range groups {
		specIDs = append(specIDs, id)
	}
	sort.Slice(specIDs, func(i, j int) bool { return specIDs[i] > specIDs[j] })

	opts := merge.Options{
		TargetSizeBytes:          catalog.PropertyAsLong(base, catalog.PropTargetSizeBytes, catalog.DefaultTargetSizeBytes),
		MinManifestsCountToMerge: catalog.PropertyAsInt(base, catalog.PropMinManifestsToMerge, catalog.DefaultMinManifestsToMerge),
		CurrentSnapshotID:        snapshotID,
	}

	var out []*manifest.File
	for _, specID := range specIDs {
		groupOut, err := u.processGroup(ctx, specID, groups[specID], opts)
		if err != nil {
			return nil, err
		}
		out = append(out, groupOut...)
	}

	// Step 9: failMissingDeletePaths validation.
	if failMissing {
		var missing []string
		for p := range deletePaths {
			if _, ok := deletedFiles[p]; !ok {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, &MissingDeletePathsError{Paths: missing}
		}
	}

	return out, nil
}

// Snapshot wraps out (the manifest list from the Apply call that produced
// it) into the materialized snapshot record a successful commit publishes,
// recomputing the aggregate summary across that list. parentID is the
// snapshot base was built on, or 0 if base had none.
func (u *Update) Snapshot(out []*manifest.File, parentID int64, timestampMs int64) *manifest.Snapshot {
	return &manifest.Snapshot{
		SnapshotID:  u.currentSnapshotID,
		ParentID:    parentID,
		TimestampMs: timestampMs,
		Manifests:   out,
		Summary:     manifest.Summarize(out),
	}
}

// filterAll runs the ManifestFilter over every base manifest in parallel,
// writing results into pre-indexed slots so output order matches the
// input regardless of completion order.
func (u *Update) filterAll(
	ctx context.Context,
	baseManifests []*manifest.File,
	base catalog.TableMetadata,
	criteria filter.Criteria,
	projector *predicate.Projector,
	metricsEval *predicate.StrictMetricsEvaluator,
	snapshotID int64,
	logger log.Logger,
) ([]*manifest.File, error) {
	results := make([]*manifest.File, len(baseManifests))
	errs := make([]error, len(baseManifests))

	g := &errgroup.Group{}
	sem := make(chan struct{}, u.concurrency())
	var mu sync.Mutex
	var merr *multierror.Error

	for i, mf := range baseManifests {
		i, mf := i, mf
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()

			spec, ok := base.SpecByID(mf.PartitionSpecID)
			if !ok {
				err := fmt.Errorf("manifest %s: unknown partition spec %d", mf.Path, mf.PartitionSpecID)
				errs[i] = err
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
				return nil
			}

			out, err := u.filterOne(mf, spec, criteria, projector, metricsEval, snapshotID, logger)
			if err != nil {
				errs[i] = err
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
				return nil
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	if merr != nil {
		logger.WithError(merr).Error("filtering base manifests failed")
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
	}
	return results, nil
}

// filterOne reuses the cached output for mf if this exact input was
// already filtered (by an earlier call in this Apply or a prior retry).
func (u *Update) filterOne(
	mf *manifest.File,
	spec *manifest.PartitionSpec,
	criteria filter.Criteria,
	projector *predicate.Projector,
	metricsEval *predicate.StrictMetricsEvaluator,
	snapshotID int64,
	logger log.Logger,
) (*manifest.File, error) {
	if cached, ok := u.filteredManifests.Load(mf.Key()); ok {
		return cached.(*manifest.File), nil
	}

	res, err := filter.Filter(u.io, mf, spec, criteria, projector, metricsEval, snapshotID, u.nextOutputPath(snapshotID), logger)
	if err != nil {
		return nil, err
	}
	u.filteredManifests.Store(mf.Key(), res.Output)
	if res.Changed {
		u.filteredManifestToDeletedFiles.Store(res.Output.Key(), res.DeletedPaths)
	}
	return res.Output, nil
}

// processGroup runs the merge-group processor (component D) over one
// partition-spec group's manifests, bins processed in parallel and
// reassembled in bin order.
func (u *Update) processGroup(ctx context.Context, specID int32, manifests []*manifest.File, opts merge.Options) ([]*manifest.File, error) {
	bins := merge.PlanBins(manifests, opts.TargetSizeBytes)
	results := make([][]*manifest.File, len(bins))
	errs := make([]error, len(bins))

	g := &errgroup.Group{}
	sem := make(chan struct{}, u.concurrency())
	var mu sync.Mutex
	var merr *multierror.Error

	for i, bin := range bins {
		i, bin := i, bin
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			out, err := u.mergeBin(specID, bin, opts)
			if err != nil {
				errs[i] = err
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
				return nil
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	if merr != nil {
		u.logger.WithError(merr).Error("merging manifest group failed")
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
	}

	var flat []*manifest.File
	for _, r := range results {
		flat = append(flat, r...)
	}
	return flat, nil
}

// mergeBin applies the bin's merge decision, reusing a cached merged
// manifest when this exact bin (by member identity) was already merged.
func (u *Update) mergeBin(specID int32, bin []*manifest.File, opts merge.Options) ([]*manifest.File, error) {
	key := binKey(bin)
	if cached, ok := u.mergeManifests.Load(key); ok {
		return []*manifest.File{cached.(*manifest.File)}, nil
	}

	out, merged, err := merge.ProcessBin(u.io, specID, bin, u.newManifest, opts, func([]*manifest.File) string {
		return u.nextOutputPath(opts.CurrentSnapshotID)
	})
	if err != nil {
		return nil, err
	}
	if merged {
		u.mergeManifests.Store(key, out[0])
	}
	return out, nil
}
