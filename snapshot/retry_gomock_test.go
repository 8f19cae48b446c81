package snapshot

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogmocks "github.com/tableformat/snapshotmerge/catalog/mocks"
	"github.com/tableformat/snapshotmerge/internal/clock"
	"github.com/tableformat/snapshotmerge/iofs"
	"github.com/tableformat/snapshotmerge/log"
	snapshotmocks "github.com/tableformat/snapshotmerge/snapshot/mocks"
)

// TestCommitRetry_HappyPath_GoMock exercises CommitRetry against generated
// fakes for its two external collaborators, rather than the hand-written
// fakeCommitter used elsewhere in this package's scenario tests.
func TestCommitRetry_HappyPath_GoMock(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	md := catalogmocks.NewMockTableMetadata(ctrl)
	md.EXPECT().Spec().Return(identitySpec()).AnyTimes()
	md.EXPECT().Properties().Return(map[string]string{}).AnyTimes()
	md.EXPECT().CurrentSnapshot().Return(nil, false).AnyTimes()

	table := catalogmocks.NewMockTableOperations(ctrl)
	table.EXPECT().Current(gomock.Any()).Return(md, nil)

	committer := snapshotmocks.NewMockCommitter(ctrl)
	committer.EXPECT().
		Commit(gomock.Any(), gomock.Len(0)).
		Return(map[string]struct{}{}, nil)

	io, err := iofs.NewLocalFileIO(t.TempDir())
	require.NoError(t, err)

	u := New(io, nil, clock.NewMock(), "manifests", log.GetLogger())
	retry := NewCommitRetry(u, table, committer, clock.NewMock(), RetryPolicy{MaxAttempts: 1}, log.GetLogger())

	out, err := retry.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}
