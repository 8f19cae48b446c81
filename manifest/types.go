// Package manifest defines the data model shared by the snapshot-merge
// core: data files, partition specs, manifest entries and the manifest
// and snapshot metadata that reference them.
package manifest

import "fmt"

// Status is the lifecycle tag carried by a ManifestEntry.
type Status int

const (
	// EXISTING entries were added by a previous snapshot and are still live.
	EXISTING Status = iota
	// ADDED entries were added by the snapshot currently being built.
	ADDED
	// DELETED entries record that a file, live as of some earlier snapshot,
	// was removed by the given snapshot.
	DELETED
)

func (s Status) String() string {
	switch s {
	case EXISTING:
		return "EXISTING"
	case ADDED:
		return "ADDED"
	case DELETED:
		return "DELETED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ColumnStats summarizes one column's values across a DataFile.
type ColumnStats struct {
	Min        interface{}
	Max        interface{}
	NullCount  int64
	ValueCount int64
}

// DataFile is an immutable record describing one on-disk data file.
// Identity is its Path.
type DataFile struct {
	Path          string
	Partition     Partition
	RecordCount   uint64
	FileSizeBytes uint64
	ColumnStats   map[string]ColumnStats
}

// ManifestEntry is a tagged record over a DataFile's lifecycle in one manifest.
//
// An ADDED or DELETED entry's SnapshotID is the snapshot that performed the
// add/delete. An EXISTING entry's SnapshotID is the snapshot that originally
// added the file.
type ManifestEntry struct {
	Status     Status
	SnapshotID int64
	File       *DataFile
}

// Counts summarizes the ADDED/EXISTING/DELETED entries written to a manifest.
type Counts struct {
	AddedFilesCount    uint32
	ExistingFilesCount uint32
	DeletedFilesCount  uint32
}

// File is the on-disk handle for an immutable manifest file.
type File struct {
	Path            string
	LengthBytes     int64
	PartitionSpecID int32
	// Digest is the content hash Writer computed while encoding this
	// manifest (empty for a File built by hand, e.g. by a catalog
	// implementation that predates digest tracking).
	Digest string
	// Counts is nil when the manifest's counters haven't been computed
	// (e.g. a manifest returned unchanged by the fast path of a filter
	// that never opened it).
	Counts *Counts
}

// Key returns a stable identity for this manifest file, used by the
// caches in the snapshot package. When Digest is known, path and digest
// decide identity; otherwise path, length and spec id do.
func (f *File) Key() string {
	if f.Digest != "" {
		return fmt.Sprintf("%s#%s", f.Path, f.Digest)
	}
	return fmt.Sprintf("%s#%d#%d", f.Path, f.LengthBytes, f.PartitionSpecID)
}

// Snapshot is the immutable, ordered list of manifests defining the
// complete set of live data files at one point in time.
type Snapshot struct {
	SnapshotID  int64
	ParentID    int64
	TimestampMs int64
	Manifests   []*File
	Summary     map[string]string
}
