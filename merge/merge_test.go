package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tableformat/snapshotmerge/iofs"
	"github.com/tableformat/snapshotmerge/manifest"
)

func newIO(t *testing.T) iofs.FileIO {
	t.Helper()
	io_, err := iofs.NewLocalFileIO(t.TempDir())
	require.NoError(t, err)
	return io_
}

func writeManifest(t *testing.T, io_ iofs.FileIO, path string, specID int32, entries []*manifest.ManifestEntry) *manifest.File {
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

func readEntries(t *testing.T, io_ iofs.FileIO, mf *manifest.File) []*manifest.ManifestEntry {
	t.Helper()
	r, err := manifest.OpenReader(io_, mf.Path)
	require.NoError(t, err)
	entries, err := manifest.ReadAll(r)
	require.NoError(t, err)
	return entries
}

func dataFile(path string) *manifest.DataFile {
	return &manifest.DataFile{Path: path, RecordCount: 1}
}

func TestProcessBin_SingletonPassesThrough(t *testing.T) {
	io_ := newIO(t)
	mf := writeManifest(t, io_, "a.manifest", 1, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: dataFile("a")},
	})

	out, merged, err := ProcessBin(io_, 1, []*manifest.File{mf}, nil, Options{MinManifestsCountToMerge: 2}, nil)
	require.NoError(t, err)
	require.False(t, merged)
	require.Equal(t, []*manifest.File{mf}, out)
}

func TestProcessBin_BelowMinCountWithNewFilesManifestPassesThrough(t *testing.T) {
	io_ := newIO(t)
	newFiles := writeManifest(t, io_, "new.manifest", 1, []*manifest.ManifestEntry{
		{Status: manifest.ADDED, SnapshotID: 2, File: dataFile("n")},
	})
	other := writeManifest(t, io_, "old.manifest", 1, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: dataFile("a")},
	})

	bin := []*manifest.File{newFiles, other}
	out, merged, err := ProcessBin(io_, 1, bin, newFiles, Options{MinManifestsCountToMerge: 5, CurrentSnapshotID: 2}, func([]*manifest.File) string { return "merged.manifest" })
	require.NoError(t, err)
	require.False(t, merged)
	require.Equal(t, bin, out)
}

func TestProcessBin_MeetsMinCountMerges(t *testing.T) {
	io_ := newIO(t)
	newFiles := writeManifest(t, io_, "new.manifest", 1, []*manifest.ManifestEntry{
		{Status: manifest.ADDED, SnapshotID: 2, File: dataFile("n")},
	})
	other := writeManifest(t, io_, "old.manifest", 1, []*manifest.ManifestEntry{
		{Status: manifest.EXISTING, SnapshotID: 1, File: dataFile("a")},
	})

	bin := []*manifest.File{newFiles, other}
	out, merged, err := ProcessBin(io_, 1, bin, newFiles, Options{MinManifestsCountToMerge: 2, CurrentSnapshotID: 2}, func([]*manifest.File) string { return "merged.manifest" })
	require.NoError(t, err)
	require.True(t, merged)
	require.Len(t, out, 1)

	entries := readEntries(t, io_, out[0])
	require.Len(t, entries, 2)
}

func TestCreateManifest_StatusDowngradeRules(t *testing.T) {
	io_ := newIO(t)
	const currentSnapshotID = int64(5)

	manifestA := writeManifest(t, io_, "a.manifest", 1, []*manifest.ManifestEntry{
		{Status: manifest.ADDED, SnapshotID: 1, File: dataFile("old-added")},   // old snapshot: downgrades to EXISTING
		{Status: manifest.DELETED, SnapshotID: 1, File: dataFile("old-deleted")}, // old delete: suppressed entirely
		{Status: manifest.EXISTING, SnapshotID: 1, File: dataFile("existing")},  // stays EXISTING
	})
	manifestB := writeManifest(t, io_, "b.manifest", 1, []*manifest.ManifestEntry{
		{Status: manifest.ADDED, SnapshotID: currentSnapshotID, File: dataFile("new-added")},     // current snapshot: preserved ADDED
		{Status: manifest.DELETED, SnapshotID: currentSnapshotID, File: dataFile("new-deleted")}, // current snapshot: preserved DELETED
	})

	merged, err := CreateManifest(io_, 1, []*manifest.File{manifestA, manifestB}, currentSnapshotID, "merged.manifest")
	require.NoError(t, err)

	entries := readEntries(t, io_, merged)
	byPath := map[string]*manifest.ManifestEntry{}
	for _, e := range entries {
		byPath[e.File.Path] = e
	}

	require.Len(t, entries, 4, "the old-deleted entry must be dropped entirely")
	require.Equal(t, manifest.EXISTING, byPath["old-added"].Status)
	require.Equal(t, manifest.EXISTING, byPath["existing"].Status)
	require.Equal(t, manifest.ADDED, byPath["new-added"].Status)
	require.Equal(t, currentSnapshotID, byPath["new-added"].SnapshotID)
	require.Equal(t, manifest.DELETED, byPath["new-deleted"].Status)
	_, hadOldDeleted := byPath["old-deleted"]
	require.False(t, hadOldDeleted)
}

func TestPlanBins_GroupsByTargetSize(t *testing.T) {
	mfs := []*manifest.File{
		{Path: "a", LengthBytes: 1},
		{Path: "b", LengthBytes: 1},
		{Path: "c", LengthBytes: 1},
	}
	bins := PlanBins(mfs, 2)
	require.Len(t, bins, 2)
	var flattened []*manifest.File
	for _, b := range bins {
		flattened = append(flattened, b...)
	}
	require.Equal(t, mfs, flattened)
}
