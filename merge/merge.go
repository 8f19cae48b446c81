// Package merge implements the MergeGroupProcessor: deciding, per
// partition-spec group, whether a bin of manifests should be rewritten into
// a single merged manifest (spec.md §4.D).
package merge

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tableformat/snapshotmerge/internal/metrics"
	"github.com/tableformat/snapshotmerge/iofs"
	"github.com/tableformat/snapshotmerge/manifest"
	"github.com/tableformat/snapshotmerge/pack"
)

// Options configures merge decisions for one group.
type Options struct {
	// MinManifestsCountToMerge is commit.manifest.min-count-to-merge
	// (spec.md §6): a bin holding the in-memory new-files manifest is left
	// alone until it has at least this many manifests.
	MinManifestsCountToMerge int
	// TargetSizeBytes is commit.manifest.target-size-bytes, the BinPacker
	// target.
	TargetSizeBytes int64
	// CurrentSnapshotID is the snapshot being built; it decides which
	// DELETED/ADDED entries survive a merge unchanged vs. get downgraded.
	CurrentSnapshotID int64
}

// PlanBins groups manifests (already filtered to one partition-spec) into
// BinPacker bins.
func PlanBins(manifests []*manifest.File, targetSizeBytes int64) [][]*manifest.File {
	return pack.PackEnd(manifests, func(m *manifest.File) int64 { return m.LengthBytes }, targetSizeBytes, 1)
}

// ProcessGroup runs the per-bin merge decision over every bin in a group,
// in parallel, and reassembles the results in bin order (spec.md §5:
// "parallel tasks write their results into pre-indexed slots").
func ProcessGroup(
	ctx context.Context,
	io iofs.FileIO,
	specID int32,
	bins [][]*manifest.File,
	newFilesManifest *manifest.File,
	opts Options,
	outputPath func(bin []*manifest.File) string,
) ([]*manifest.File, error) {
	results := make([][]*manifest.File, len(bins))

	g, _ := errgroup.WithContext(ctx)
	for i, bin := range bins {
		i, bin := i, bin
		g.Go(func() error {
			out, _, err := ProcessBin(io, specID, bin, newFilesManifest, opts, outputPath)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flattened []*manifest.File
	for _, r := range results {
		flattened = append(flattened, r...)
	}
	return flattened, nil
}

func containsManifest(bin []*manifest.File, target *manifest.File) bool {
	if target == nil {
		return false
	}
	for _, m := range bin {
		if m.Key() == target.Key() {
			return true
		}
	}
	return false
}

// ProcessBin applies the 4.D decision to a single bin: pass it through
// unchanged (len==1, or it holds the new-files manifest but hasn't reached
// the merge threshold yet), or merge it into one manifest. The bool result
// reports whether an actual merge happened, so callers can decide whether
// the outcome is cache-worthy (a pass-through is never cached: its output
// is just its input).
func ProcessBin(
	io iofs.FileIO,
	specID int32,
	bin []*manifest.File,
	newFilesManifest *manifest.File,
	opts Options,
	outputPath func(bin []*manifest.File) string,
) ([]*manifest.File, bool, error) {
	if len(bin) == 1 {
		return bin, false, nil
	}
	if containsManifest(bin, newFilesManifest) && len(bin) < opts.MinManifestsCountToMerge {
		return bin, false, nil
	}

	merged, err := CreateManifest(io, specID, bin, opts.CurrentSnapshotID, outputPath(bin))
	if err != nil {
		return nil, false, err
	}
	return []*manifest.File{merged}, true, nil
}

// CreateManifest streams every manifest in bin, in order, into a single new
// manifest, applying the snapshot-aware status downgrade rules of
// spec.md §4.D.
func CreateManifest(io iofs.FileIO, specID int32, bin []*manifest.File, currentSnapshotID int64, outputPath string) (*manifest.File, error) {
	writer, err := manifest.NewWriter(io, outputPath, specID)
	if err != nil {
		return nil, fmt.Errorf("opening merged manifest %s: %w", outputPath, err)
	}

	for _, mf := range bin {
		if err := appendManifest(io, writer, mf, currentSnapshotID); err != nil {
			writer.Abort()
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		writer.Abort()
		return nil, fmt.Errorf("closing merged manifest %s: %w", outputPath, err)
	}
	metrics.ManifestsMerged.WithLabelValues(fmt.Sprint(specID)).Add(float64(len(bin)))
	return writer.ToManifestFile()
}

func appendManifest(io iofs.FileIO, writer manifest.Writer, mf *manifest.File, currentSnapshotID int64) error {
	reader, err := manifest.OpenReader(io, mf.Path)
	if err != nil {
		return fmt.Errorf("opening manifest %s: %w", mf.Path, err)
	}
	entries, err := manifest.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading manifest %s: %w", mf.Path, err)
	}

	for _, e := range entries {
		switch {
		case e.Status == manifest.DELETED && e.SnapshotID == currentSnapshotID:
			if err := writer.Delete(e); err != nil {
				return err
			}
		case e.Status == manifest.DELETED:
			// an old delete: suppressed, it carries no information once merged
		case e.Status == manifest.ADDED && e.SnapshotID == currentSnapshotID:
			if err := writer.Add(e); err != nil {
				return err
			}
		default:
			// everything else (older ADDED, or already EXISTING) downgrades
			// to EXISTING in the merged manifest
			if err := writer.AddExisting(e); err != nil {
				return err
			}
		}
	}
	return nil
}
