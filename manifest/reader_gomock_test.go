package manifest_test

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tableformat/snapshotmerge/manifest"
	"github.com/tableformat/snapshotmerge/manifest/mocks"
)

// TestReadAll_DrainsAndClosesReader exercises ReadAll against a generated
// fake rather than a real gob-encoded file, to pin down its contract: it
// stops at the first ok=false and always closes the reader.
func TestReadAll_DrainsAndClosesReader(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := mocks.NewMockReader(ctrl)
	first := &manifest.ManifestEntry{SnapshotID: 1, File: &manifest.DataFile{Path: "a.parquet"}}
	second := &manifest.ManifestEntry{SnapshotID: 1, File: &manifest.DataFile{Path: "b.parquet"}}
	gomock.InOrder(
		r.EXPECT().Next().Return(first, true, nil),
		r.EXPECT().Next().Return(second, true, nil),
		r.EXPECT().Next().Return(nil, false, nil),
	)
	r.EXPECT().Close().Return(nil)

	entries, err := manifest.ReadAll(r)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.parquet", entries[0].File.Path)
	assert.Equal(t, "b.parquet", entries[1].File.Path)
}

// TestReadAll_ClosesReaderEvenOnError verifies ReadAll's defer closes the
// reader when a decode fails partway through.
func TestReadAll_ClosesReaderEvenOnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := mocks.NewMockReader(ctrl)
	wantErr := errors.New("corrupt entry")
	r.EXPECT().Next().Return(nil, false, wantErr)
	r.EXPECT().Close().Return(nil)

	_, err := manifest.ReadAll(r)
	assert.ErrorIs(t, err, wantErr)
}
