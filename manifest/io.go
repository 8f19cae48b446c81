package manifest

import (
	"encoding/gob"
	"fmt"
	"io"
	stdpath "path"

	"github.com/opencontainers/go-digest"

	"github.com/tableformat/snapshotmerge/iofs"
)

//go:generate mockgen -package mocks -destination mocks/reader.go . Reader

// Reader streams the entries of one on-disk manifest, in write order.
//
// The actual binary layout (Avro, in a faithful Iceberg implementation) is
// an external row-format concern; this package only needs a reader that
// preserves order and reports the manifest's partition spec id, so it
// implements the envelope with encoding/gob rather than pulling in an Avro
// codec whose schema this spec never constrains.
type Reader interface {
	// SpecID is the partition spec id every entry in this manifest was
	// written against.
	SpecID() int32
	// Next returns the next entry, or ok=false once the manifest is
	// exhausted.
	Next() (entry *ManifestEntry, ok bool, err error)
	Close() error
}

// Writer streams ManifestEntries into a new manifest file, preserving
// insertion order.
type Writer interface {
	Add(entry *ManifestEntry) error
	AddExisting(entry *ManifestEntry) error
	Delete(entry *ManifestEntry) error
	AddAll(files []*DataFile, snapshotID int64) error
	Close() error
	// ToManifestFile reports the resulting manifest's length and status
	// counters. Must be called after Close.
	ToManifestFile() (*File, error)
	// Abort discards whatever this writer has staged on disk so far,
	// whether or not Close has already run and the content address was
	// already resolved. Callers that need to give up mid-write use this
	// instead of Close, since the final on-disk name isn't known to them.
	Abort() error
}

func init() {
	gob.Register("")
	gob.Register(int(0))
	gob.Register(int32(0))
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register(float64(0))
	gob.Register(bool(false))
}

// gobEntry is the on-disk representation of a ManifestEntry.
type gobEntry struct {
	Status        Status
	SnapshotID    int64
	Path          string
	Partition     Partition
	RecordCount   uint64
	FileSizeBytes uint64
	ColumnStats   map[string]ColumnStats
}

type gobHeader struct {
	SpecID int32
}

// gobReader implements Reader over a gob-encoded stream.
type gobReader struct {
	specID int32
	dec    *gob.Decoder
	closer io.Closer
}

// OpenReader opens the manifest at path for reading.
func OpenReader(io_ iofs.FileIO, path string) (Reader, error) {
	in, err := io_.NewInputFile(path)
	if err != nil {
		return nil, err
	}
	rc, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	dec := gob.NewDecoder(rc)
	var hdr gobHeader
	if err := dec.Decode(&hdr); err != nil {
		rc.Close()
		return nil, fmt.Errorf("reading manifest header %s: %w", path, err)
	}
	return &gobReader{specID: hdr.SpecID, dec: dec, closer: rc}, nil
}

func (r *gobReader) SpecID() int32 { return r.specID }

func (r *gobReader) Next() (*ManifestEntry, bool, error) {
	var ge gobEntry
	if err := r.dec.Decode(&ge); err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, err
	}
	entry := &ManifestEntry{
		Status:     ge.Status,
		SnapshotID: ge.SnapshotID,
		File: &DataFile{
			Path:          ge.Path,
			Partition:     ge.Partition,
			RecordCount:   ge.RecordCount,
			FileSizeBytes: ge.FileSizeBytes,
			ColumnStats:   ge.ColumnStats,
		},
	}
	return entry, true, nil
}

func (r *gobReader) Close() error { return r.closer.Close() }

// ReadAll drains a Reader into a slice, in write order, and closes it. A
// manifest is small metadata, not row data, so holding it in memory for the
// detect/rewrite double pass a ManifestFilter performs is the idiomatic
// tradeoff here (spec.md §4.B steps 3 and 5 both need the full entry list).
func ReadAll(r Reader) ([]*ManifestEntry, error) {
	defer r.Close()
	var entries []*ManifestEntry
	for {
		entry, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return entries, nil
		}
		entries = append(entries, entry)
	}
}

// countingWriter tracks the number of bytes written, for ToManifestFile's
// length report, without requiring a second pass or a Stat call.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// gobWriter implements Writer over a gob-encoded stream. The final path is
// only decided once the content is known: entries are staged at a
// temporary path and, on Close, renamed to a content-addressed name derived
// from their digest (mirroring a content-addressed blob store's
// write-then-move pattern, rather than naming the output before a single
// byte of it is known).
type gobWriter struct {
	requestedPath string
	tmpPath       string
	specID        int32
	io            iofs.FileIO
	out           io.WriteCloser
	cw            *countingWriter
	enc           *gob.Encoder
	digester      digest.Digester
	counts        Counts
	closed        bool
	manifest      *File
}

// NewWriter opens a fresh output manifest for the given partition spec.
// path is a hint for the manifest's eventual directory and extension; the
// actual file name is content-addressed once Close computes its digest.
func NewWriter(io_ iofs.FileIO, path string, specID int32) (Writer, error) {
	tmpPath := path + ".tmp"
	out, err := io_.NewOutputFile(tmpPath)
	if err != nil {
		return nil, err
	}
	wc, err := out.Create()
	if err != nil {
		return nil, fmt.Errorf("creating manifest %s: %w", tmpPath, err)
	}
	digester := digest.Canonical.Digester()
	cw := &countingWriter{w: io.MultiWriter(wc, digester.Hash())}
	enc := gob.NewEncoder(cw)
	if err := enc.Encode(gobHeader{SpecID: specID}); err != nil {
		wc.Close()
		return nil, fmt.Errorf("writing manifest header %s: %w", tmpPath, err)
	}
	return &gobWriter{
		requestedPath: path,
		tmpPath:       tmpPath,
		specID:        specID,
		io:            io_,
		out:           wc,
		cw:            cw,
		enc:           enc,
		digester:      digester,
	}, nil
}

// contentAddressedPath keeps requested's directory and extension but
// replaces its base name with the digest, so two writes of the same bytes
// land on the same final path.
func contentAddressedPath(requested string, dig digest.Digest) string {
	dir := stdpath.Dir(requested)
	ext := stdpath.Ext(requested)
	name := dig.Encoded() + ext
	if dir == "." || dir == "" {
		return name
	}
	return stdpath.Join(dir, name)
}

func (w *gobWriter) write(status Status, entry *ManifestEntry) error {
	ge := gobEntry{
		Status:        status,
		SnapshotID:    entry.SnapshotID,
		Path:          entry.File.Path,
		Partition:     entry.File.Partition,
		RecordCount:   entry.File.RecordCount,
		FileSizeBytes: entry.File.FileSizeBytes,
		ColumnStats:   entry.File.ColumnStats,
	}
	if err := w.enc.Encode(ge); err != nil {
		return fmt.Errorf("writing manifest entry %s: %w", entry.File.Path, err)
	}
	switch status {
	case ADDED:
		w.counts.AddedFilesCount++
	case EXISTING:
		w.counts.ExistingFilesCount++
	case DELETED:
		w.counts.DeletedFilesCount++
	}
	return nil
}

func (w *gobWriter) Add(entry *ManifestEntry) error {
	entry.Status = ADDED
	return w.write(ADDED, entry)
}

func (w *gobWriter) AddExisting(entry *ManifestEntry) error {
	entry.Status = EXISTING
	return w.write(EXISTING, entry)
}

func (w *gobWriter) Delete(entry *ManifestEntry) error {
	entry.Status = DELETED
	return w.write(DELETED, entry)
}

func (w *gobWriter) AddAll(files []*DataFile, snapshotID int64) error {
	for _, f := range files {
		if err := w.Add(&ManifestEntry{SnapshotID: snapshotID, File: f}); err != nil {
			return err
		}
	}
	return nil
}

func (w *gobWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.out.Close(); err != nil {
		return err
	}
	dig := w.digester.Digest()
	finalPath := contentAddressedPath(w.requestedPath, dig)
	if err := w.io.Rename(w.tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming manifest %s to content address: %w", w.tmpPath, err)
	}
	w.manifest = &File{
		Path:            finalPath,
		LengthBytes:     w.cw.n,
		PartitionSpecID: w.specID,
		Digest:          dig.String(),
		Counts:          &w.counts,
	}
	return nil
}

func (w *gobWriter) ToManifestFile() (*File, error) {
	if !w.closed {
		return nil, fmt.Errorf("manifest %s: ToManifestFile called before Close", w.requestedPath)
	}
	return w.manifest, nil
}

// Abort implements Writer. It is safe to call after a failed or successful
// Close, or without ever having called Close: it deletes the
// content-addressed file if the rename already completed, otherwise the
// staging file (closing it first if that hasn't happened yet).
func (w *gobWriter) Abort() error {
	if w.manifest != nil {
		return w.io.DeleteFile(w.manifest.Path)
	}
	if !w.closed {
		w.closed = true
		w.out.Close()
	}
	return w.io.DeleteFile(w.tmpPath)
}
