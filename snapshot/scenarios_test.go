package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tableformat/snapshotmerge/catalog"
	"github.com/tableformat/snapshotmerge/filter"
	"github.com/tableformat/snapshotmerge/internal/clock"
	"github.com/tableformat/snapshotmerge/iofs"
	"github.com/tableformat/snapshotmerge/log"
	"github.com/tableformat/snapshotmerge/manifest"
	"github.com/tableformat/snapshotmerge/predicate"
)

func identitySpec() *manifest.PartitionSpec {
	return &manifest.PartitionSpec{
		SpecID: 1,
		Fields: []manifest.Field{{SourceColumn: "x", Transform: manifest.IdentityTransform{}, Name: "x"}},
	}
}

func writeBaseManifest(t *testing.T, io_ iofs.FileIO, path string, specID int32, entries []*manifest.ManifestEntry) *manifest.File {
	t.Helper()
	w, err := manifest.NewWriter(io_, path, specID)
	require.NoError(t, err)
	for _, e := range entries {
		switch e.Status {
		case manifest.ADDED:
			require.NoError(t, w.Add(e))
		case manifest.EXISTING:
			require.NoError(t, w.AddExisting(e))
		case manifest.DELETED:
			require.NoError(t, w.Delete(e))
		}
	}
	require.NoError(t, w.Close())
	mf, err := w.ToManifestFile()
	require.NoError(t, err)
	return mf
}

func readManifestEntries(t *testing.T, io_ iofs.FileIO, mf *manifest.File) []*manifest.ManifestEntry {
	t.Helper()
	r, err := manifest.OpenReader(io_, mf.Path)
	require.NoError(t, err)
	entries, err := manifest.ReadAll(r)
	require.NoError(t, err)
	return entries
}

// fakeCommitter simulates the external commit protocol: by default it
// always succeeds and reports every manifest it was given as committed.
// shouldFail can be flipped mid-test (under mu) to model a commit that
// fails once and then succeeds on CommitRetry's next attempt.
type fakeCommitter struct {
	mu         sync.Mutex
	shouldFail bool
	calls      int
}

func (c *fakeCommitter) Commit(ctx context.Context, manifests []*manifest.File) (map[string]struct{}, error) {
	c.mu.Lock()
	c.calls++
	fail := c.shouldFail
	c.mu.Unlock()

	if fail {
		return nil, errCommitUnavailable
	}
	committed := map[string]struct{}{}
	for _, m := range manifests {
		committed[m.Path] = struct{}{}
	}
	return committed, nil
}

func (c *fakeCommitter) setShouldFail(v bool) {
	c.mu.Lock()
	c.shouldFail = v
	c.mu.Unlock()
}

func (c *fakeCommitter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

var errCommitUnavailable = commitUnavailableError{}

type commitUnavailableError struct{}

func (commitUnavailableError) Error() string { return "commit unavailable" }

// countingFileIO wraps a FileIO and counts input opens, so a test can prove
// Apply's filteredManifests cache is reused across a second call rather
// than rereading unchanged manifests.
type countingFileIO struct {
	iofs.FileIO
	mu    sync.Mutex
	reads int
}

func (c *countingFileIO) NewInputFile(path string) (iofs.InputFile, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.FileIO.NewInputFile(path)
}

func (c *countingFileIO) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func newIOAt(t *testing.T, dir string) iofs.FileIO {
	t.Helper()
	io_, err := iofs.NewLocalFileIO(dir)
	require.NoError(t, err)
	return io_
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestScenario_PureAppend(t *testing.T) {
	dir := t.TempDir()
	io_ := newIOAt(t, dir)
	spec := identitySpec()
	tbl := catalog.NewInMemory(spec, nil)
	clk := clock.NewMock()

	u := New(io_, tbl, clk, ".", log.GetLogger())
	u.AppendFile(&manifest.DataFile{Path: "d1.parquet", Partition: manifest.Partition{1}, RecordCount: 10})

	base, err := tbl.Current(context.Background())
	require.NoError(t, err)

	out, err := u.Apply(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, out, 1)

	entries := readManifestEntries(t, io_, out[0])
	require.Len(t, entries, 1)
	require.Equal(t, manifest.ADDED, entries[0].Status)
	require.Equal(t, "d1.parquet", entries[0].File.Path)
}

func TestScenario_AppendAndDropPartition(t *testing.T) {
	dir := t.TempDir()
	io_ := newIOAt(t, dir)
	spec := identitySpec()
	tbl := catalog.NewInMemory(spec, nil)
	clk := clock.NewMock()

	baseManifest := writeBaseManifest(t, io_, "base.avro", spec.SpecID, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "a", Partition: manifest.Partition{1}, RecordCount: 1}},
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "b", Partition: manifest.Partition{2}, RecordCount: 1}},
	})
	tbl.Commit(&manifest.Snapshot{SnapshotID: 1, Manifests: []*manifest.File{baseManifest}})

	u := New(io_, tbl, clk, ".", log.GetLogger())
	u.AppendFile(&manifest.DataFile{Path: "new.parquet", Partition: manifest.Partition{3}, RecordCount: 1})
	u.DropPartition(manifest.Partition{1})

	base, err := tbl.Current(context.Background())
	require.NoError(t, err)
	out, err := u.Apply(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, out, 2)

	var sawDelete, sawAdd bool
	for _, mf := range out {
		for _, e := range readManifestEntries(t, io_, mf) {
			switch e.File.Path {
			case "a":
				require.Equal(t, manifest.DELETED, e.Status)
				sawDelete = true
			case "new.parquet":
				require.Equal(t, manifest.ADDED, e.Status)
				sawAdd = true
			case "b":
				require.Equal(t, manifest.EXISTING, e.Status)
			}
		}
	}
	require.True(t, sawDelete)
	require.True(t, sawAdd)
}

func TestScenario_PartialDeleteMatch_FatalAndCleanedUp(t *testing.T) {
	dir := t.TempDir()
	io_ := newIOAt(t, dir)

	bucketSpec := &manifest.PartitionSpec{
		SpecID: 1,
		Fields: []manifest.Field{{SourceColumn: "x", Transform: manifest.BucketTransform{N: 4}, Name: "x"}},
	}
	tbl := catalog.NewInMemory(bucketSpec, nil)
	clk := clock.NewMock()

	bucket := manifest.BucketTransform{N: 4}.Apply(int64(1))
	baseManifest := writeBaseManifest(t, io_, "base.avro", bucketSpec.SpecID, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "a", Partition: manifest.Partition{bucket}, RecordCount: 1}},
	})
	tbl.Commit(&manifest.Snapshot{SnapshotID: 1, Manifests: []*manifest.File{baseManifest}})

	before := listFiles(t, dir)

	u := New(io_, tbl, clk, ".", log.GetLogger())
	u.DeleteByRowFilter(&predicate.Term{Column: "x", Op: predicate.OpEq, Value: int64(1)})

	retry := NewCommitRetry(u, tbl, &fakeCommitter{}, clk, RetryPolicy{MaxAttempts: 1, BaseBackoff: 0, MaxBackoff: 0}, log.GetLogger())
	out, err := retry.Run(context.Background())
	require.Nil(t, out)
	require.Error(t, err)

	var partial *filter.CannotDeletePartialError
	require.ErrorAs(t, err, &partial)
	require.Equal(t, "a", partial.Path)

	after := listFiles(t, dir)
	require.ElementsMatch(t, before, after, "no orphan output files should survive a fatal Apply error")
}

func TestScenario_BelowMinMergeCountPassesThrough(t *testing.T) {
	dir := t.TempDir()
	io_ := newIOAt(t, dir)
	spec := identitySpec()
	// A bin holding the new-files manifest is left alone until it reaches
	// this many manifests; two (new + one old) stays below it.
	tbl := catalog.NewInMemory(spec, map[string]string{catalog.PropMinManifestsToMerge: "5"})
	clk := clock.NewMock()

	m1 := writeBaseManifest(t, io_, "m1.avro", spec.SpecID, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "a", Partition: manifest.Partition{1}, RecordCount: 1}},
	})
	tbl.Commit(&manifest.Snapshot{SnapshotID: 1, Manifests: []*manifest.File{m1}})

	u := New(io_, tbl, clk, ".", log.GetLogger())
	u.AppendFile(&manifest.DataFile{Path: "new.parquet", Partition: manifest.Partition{1}, RecordCount: 1})

	base, err := tbl.Current(context.Background())
	require.NoError(t, err)
	out, err := u.Apply(context.Background(), base)
	require.NoError(t, err)

	require.Len(t, out, 2, "below the merge threshold, the new-files manifest and the old one stay separate")
	require.Contains(t, out, m1)
}

func TestScenario_MergeTriggerReached(t *testing.T) {
	dir := t.TempDir()
	io_ := newIOAt(t, dir)
	spec := identitySpec()
	tbl := catalog.NewInMemory(spec, map[string]string{catalog.PropMinManifestsToMerge: "2"})
	clk := clock.NewMock()

	m1 := writeBaseManifest(t, io_, "m1.avro", spec.SpecID, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "a", Partition: manifest.Partition{1}, RecordCount: 1}},
	})
	m2 := writeBaseManifest(t, io_, "m2.avro", spec.SpecID, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "b", Partition: manifest.Partition{1}, RecordCount: 1}},
	})
	tbl.Commit(&manifest.Snapshot{SnapshotID: 1, Manifests: []*manifest.File{m1, m2}})

	u := New(io_, tbl, clk, ".", log.GetLogger())
	u.AppendFile(&manifest.DataFile{Path: "new.parquet", Partition: manifest.Partition{1}, RecordCount: 1})

	base, err := tbl.Current(context.Background())
	require.NoError(t, err)
	out, err := u.Apply(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, out, 1, "new-files manifest plus both base manifests should merge into one")

	entries := readManifestEntries(t, io_, out[0])
	require.Len(t, entries, 3)
}

func TestScenario_FailMissingDeletePaths_MergedOutputsCleanedUp(t *testing.T) {
	dir := t.TempDir()
	io_ := newIOAt(t, dir)
	spec := identitySpec()
	tbl := catalog.NewInMemory(spec, map[string]string{catalog.PropMinManifestsToMerge: "2"})
	clk := clock.NewMock()

	m1 := writeBaseManifest(t, io_, "m1.avro", spec.SpecID, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "a", Partition: manifest.Partition{1}, RecordCount: 1}},
	})
	m2 := writeBaseManifest(t, io_, "m2.avro", spec.SpecID, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "b", Partition: manifest.Partition{1}, RecordCount: 1}},
	})
	tbl.Commit(&manifest.Snapshot{SnapshotID: 1, Manifests: []*manifest.File{m1, m2}})

	before := listFiles(t, dir)

	u := New(io_, tbl, clk, ".", log.GetLogger())
	u.AppendFile(&manifest.DataFile{Path: "new.parquet", Partition: manifest.Partition{1}, RecordCount: 1})
	u.Delete("does-not-exist.parquet")
	u.FailMissingDeletePaths()

	retry := NewCommitRetry(u, tbl, &fakeCommitter{}, clk, RetryPolicy{MaxAttempts: 1, BaseBackoff: 0, MaxBackoff: 0}, log.GetLogger())
	out, err := retry.Run(context.Background())
	require.Nil(t, out)

	var missing *MissingDeletePathsError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"does-not-exist.parquet"}, missing.Paths)

	after := listFiles(t, dir)
	require.ElementsMatch(t, before, after, "merged manifest produced during Apply must be cleaned up once failMissingDeletePaths rejects the update")
}

func TestCommitRetry_SucceedsAndLeavesOnlyCommittedFiles(t *testing.T) {
	dir := t.TempDir()
	io_ := newIOAt(t, dir)
	spec := identitySpec()
	tbl := catalog.NewInMemory(spec, nil)
	clk := clock.NewMock()

	u := New(io_, tbl, clk, ".", log.GetLogger())
	u.AppendFile(&manifest.DataFile{Path: "d1.parquet", Partition: manifest.Partition{1}, RecordCount: 1})

	retry := NewCommitRetry(u, tbl, &fakeCommitter{}, clk, DefaultRetryPolicy(), log.GetLogger())
	out, err := retry.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)

	after := listFiles(t, dir)
	require.Contains(t, after, filepath.Base(out[0].Path))
	require.ElementsMatch(t, []string{filepath.Base(out[0].Path)}, after)
}

// TestCommitRetry_RetriesAfterCommitFailureThenSucceeds exercises a path no
// prior scenario drove: a commit that fails once, forcing CommitRetry to
// back off and re-Apply against the table's current metadata, followed by
// a commit that succeeds.
func TestCommitRetry_RetriesAfterCommitFailureThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	io_ := newIOAt(t, dir)
	spec := identitySpec()
	tbl := catalog.NewInMemory(spec, nil)
	clk := clock.NewMock()

	u := New(io_, tbl, clk, ".", log.GetLogger())
	u.AppendFile(&manifest.DataFile{Path: "d1.parquet", Partition: manifest.Partition{1}, RecordCount: 1})

	committer := &fakeCommitter{shouldFail: true}
	policy := RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	retry := NewCommitRetry(u, tbl, committer, clk, policy, log.GetLogger())

	done := make(chan struct{})
	var out []*manifest.File
	var runErr error
	go func() {
		defer close(done)
		out, runErr = retry.Run(context.Background())
	}()

	// Wait for the first (failing) attempt to land, then let the second
	// one succeed before advancing the mock clock past the backoff that
	// Run is currently blocked on.
	require.Eventually(t, func() bool { return committer.callCount() >= 1 }, time.Second, time.Millisecond)
	committer.setShouldFail(false)
	clk.Add(policy.BaseBackoff)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("CommitRetry.Run did not return after the mock clock advanced past the backoff")
	}

	require.NoError(t, runErr)
	require.Len(t, out, 1)
	require.Equal(t, 2, committer.callCount(), "Run must retry exactly once after the first commit failure")
}

// TestScenario_ApplyReusesCachesOnSecondCall proves the "idempotent cache"
// property: re-applying the same Update against an unchanged (but freshly
// reloaded) base must reproduce the identical manifest list without
// rereading any base manifest.
func TestScenario_ApplyReusesCachesOnSecondCall(t *testing.T) {
	dir := t.TempDir()
	counting := &countingFileIO{FileIO: newIOAt(t, dir)}
	spec := identitySpec()
	tbl := catalog.NewInMemory(spec, nil)
	clk := clock.NewMock()

	baseManifest := writeBaseManifest(t, counting, "base.avro", spec.SpecID, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: &manifest.DataFile{Path: "a", Partition: manifest.Partition{1}, RecordCount: 1}},
	})
	tbl.Commit(&manifest.Snapshot{SnapshotID: 1, Manifests: []*manifest.File{baseManifest}})

	u := New(counting, tbl, clk, ".", log.GetLogger())
	u.AppendFile(&manifest.DataFile{Path: "new.parquet", Partition: manifest.Partition{2}, RecordCount: 1})
	// A delete criterion that never matches still forces the base
	// manifest's filter path to open and read it, so the first Apply has
	// a real read for the second Apply to avoid repeating.
	u.DeleteByRowFilter(&predicate.Term{Column: "x", Op: predicate.OpEq, Value: int64(999)})

	base, err := tbl.Current(context.Background())
	require.NoError(t, err)

	out1, err := u.Apply(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, out1, 2)

	readsAfterFirst := counting.readCount()
	require.Greater(t, readsAfterFirst, 0, "the first Apply should have read the base manifest")

	// A retry re-reads the table's current metadata, exactly as
	// CommitRetry.Run does against every attempt; nothing about the
	// table changed, so this models a retry after a failed commit.
	movedBase, err := tbl.Current(context.Background())
	require.NoError(t, err)

	out2, err := u.Apply(context.Background(), movedBase)
	require.NoError(t, err)
	require.Equal(t, out1, out2, "re-applying against an unchanged base must reproduce the identical manifest list")
	require.Equal(t, readsAfterFirst, counting.readCount(), "second Apply must reuse cached filter output instead of rereading manifests")
}
