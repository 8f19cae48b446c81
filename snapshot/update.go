// Package snapshot implements the SnapshotAssembler (component F) and
// CommitRetry & Cleanup (component G): the Update type accumulates pending
// file additions and deletes, and Apply assembles the manifest list for a
// new snapshot against a possibly-moved base, reusing cached filter/merge
// outputs across retries (spec.md §3, §4.F, §4.G).
package snapshot

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tableformat/snapshotmerge/catalog"
	"github.com/tableformat/snapshotmerge/internal/clock"
	"github.com/tableformat/snapshotmerge/iofs"
	"github.com/tableformat/snapshotmerge/log"
	"github.com/tableformat/snapshotmerge/manifest"
	"github.com/tableformat/snapshotmerge/predicate"
)

// Update accumulates one in-flight snapshot update (spec.md §3 "Update
// state") and assembles it into a manifest list via Apply. It is not safe
// for concurrent mutation (appendFile/delete/... are meant to be called
// from one controlling goroutine, per spec.md §5), but Apply itself runs
// its filter/merge fan-out concurrently and the caches tolerate concurrent
// access from that fan-out.
type Update struct {
	io    iofs.FileIO
	table catalog.TableOperations
	clk   clock.Source

	// outputDir roots every manifest this update writes. nextOutputPath
	// requests "<outputDir>/<snapshotId>-<counter>.avro"; manifest.Writer
	// keeps that directory and extension but names the final file by its
	// content digest.
	outputDir string

	logger log.Logger

	mu             sync.Mutex
	newFiles       []*manifest.DataFile
	deletePaths    map[string]struct{}
	dropPartitions map[string]manifest.Partition
	deleteExpr     predicate.Expression
	failAnyDelete  bool
	failMissing    bool

	// filterUpdated is set whenever deletePaths/dropPartitions/deleteExpr
	// change, so the next Apply invalidates stale filtered manifests
	// before reusing the rest of the caches (spec.md §9).
	filterUpdated bool
	// newFilesDirty is set whenever appendFile/add is called, so Apply
	// knows it must rewrite the in-memory new-files manifest; left false
	// across a plain retry, Apply reuses the existing one untouched
	// (spec.md §8 "idempotent cache").
	newFilesDirty bool

	newManifest *manifest.File

	// filteredManifests: input manifest Key() -> output manifest.
	filteredManifests sync.Map
	// mergeManifests: bin Key() -> merged manifest, only populated when a
	// merge actually happened (a pass-through bin is never cached, its
	// output is just its input).
	mergeManifests sync.Map
	// filteredManifestToDeletedFiles: output manifest Key() -> deleted
	// path set.
	filteredManifestToDeletedFiles sync.Map

	manifestCount int64

	// currentSnapshotID is assigned once, on the first Apply call, and
	// reused by every subsequent retry of this same Update so that cached
	// filter/merge outputs (whose entries were stamped with it) remain
	// consistent with freshly computed ones.
	currentSnapshotID int64
}

// New creates an Update ready for appendFile/delete/... calls.
func New(io iofs.FileIO, table catalog.TableOperations, clk clock.Source, outputDir string, logger log.Logger) *Update {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Update{
		io:             io,
		table:          table,
		clk:            clk,
		outputDir:      outputDir,
		logger:         logger,
		deletePaths:    map[string]struct{}{},
		dropPartitions: map[string]manifest.Partition{},
		deleteExpr:     predicate.False,
	}
}

// AppendFile enqueues a new DataFile (spec.md §6 appendFile).
func (u *Update) AppendFile(f *manifest.DataFile) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.newFiles = append(u.newFiles, f)
	u.newFilesDirty = true
}

// Add is an alias for AppendFile (spec.md §6 "appendFile(file) / add(file)").
func (u *Update) Add(f *manifest.DataFile) { u.AppendFile(f) }

// Delete adds a force-delete path.
func (u *Update) Delete(path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deletePaths[path] = struct{}{}
	u.filterUpdated = true
}

// DeleteByRowFilter ORs expr into the update's delete expression.
func (u *Update) DeleteByRowFilter(expr predicate.Expression) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleteExpr = predicate.OrExpr(u.deleteExpr, expr)
	u.filterUpdated = true
}

// DropPartition adds tuple to the set of partitions to drop wholesale.
func (u *Update) DropPartition(tuple manifest.Partition) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dropPartitions[tuple.Key()] = tuple
	u.filterUpdated = true
}

// FailAnyDelete sets the flag that aborts the update if any file would be
// deleted.
func (u *Update) FailAnyDelete() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failAnyDelete = true
}

// FailMissingDeletePaths sets the flag that requires every deletePaths
// entry to match some file in the base snapshot.
func (u *Update) FailMissingDeletePaths() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failMissing = true
}

func (u *Update) nextOutputPath(snapshotID int64) string {
	n := atomic.AddInt64(&u.manifestCount, 1)
	return fmt.Sprintf("%s/%d-%d.avro", u.outputDir, snapshotID, n)
}

func binKey(bin []*manifest.File) string {
	var b []byte
	for i, m := range bin {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, m.Key()...)
	}
	return string(b)
}
