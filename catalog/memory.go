package catalog

import (
	"context"
	"sync"

	"github.com/tableformat/snapshotmerge/manifest"
)

// memoryMetadata is a plain value implementing TableMetadata.
type memoryMetadata struct {
	spec       *manifest.PartitionSpec
	specs      map[int32]*manifest.PartitionSpec
	properties map[string]string
	snapshot   *manifest.Snapshot
}

func (m *memoryMetadata) Spec() *manifest.PartitionSpec { return m.spec }

func (m *memoryMetadata) SpecByID(specID int32) (*manifest.PartitionSpec, bool) {
	s, ok := m.specs[specID]
	return s, ok
}

func (m *memoryMetadata) Properties() map[string]string { return m.properties }

func (m *memoryMetadata) CurrentSnapshot() (*manifest.Snapshot, bool) {
	return m.snapshot, m.snapshot != nil
}

// InMemory is a TableOperations backed entirely by process memory, for
// unit tests.
type InMemory struct {
	mu   sync.RWMutex
	meta *memoryMetadata
}

// NewInMemory seeds a table with its current spec and starting properties.
// Additional historical specs can be registered with RegisterSpec.
func NewInMemory(spec *manifest.PartitionSpec, properties map[string]string) *InMemory {
	if properties == nil {
		properties = map[string]string{}
	}
	return &InMemory{
		meta: &memoryMetadata{
			spec:       spec,
			specs:      map[int32]*manifest.PartitionSpec{spec.SpecID: spec},
			properties: properties,
		},
	}
}

// RegisterSpec makes a historical partition spec resolvable by SpecByID.
func (t *InMemory) RegisterSpec(spec *manifest.PartitionSpec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.meta.specs[spec.SpecID] = spec
}

// Current implements TableOperations.
func (t *InMemory) Current(ctx context.Context) (TableMetadata, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot := t.meta.CurrentSnapshotCopy()
	return &memoryMetadata{
		spec:       t.meta.spec,
		specs:      t.meta.specs,
		properties: t.meta.properties,
		snapshot:   snapshot,
	}, nil
}

// CurrentSnapshotCopy returns the live snapshot pointer; snapshots are
// immutable once published so no deep copy is needed.
func (m *memoryMetadata) CurrentSnapshotCopy() *manifest.Snapshot {
	return m.snapshot
}

// Commit atomically swaps the current snapshot, simulating the external
// commit protocol spec.md §1 treats as out of scope. It is exposed here
// only because tests need some way to drive retries across a moved base.
func (t *InMemory) Commit(snapshot *manifest.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.meta.snapshot = snapshot
}
