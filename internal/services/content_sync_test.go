package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/events"
	"github.com/tgdrive/tgdrive/internal/models"
	"github.com/tgdrive/tgdrive/internal/state"
)

const mb = 1024 * 1024

func newTestSync(t *testing.T) (*ContentSyncService, *fakeAPI, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus(100)
	t.Cleanup(bus.Close)
	fake := newFakeAPI()
	return NewContentSyncService(fake, state.NewAppState(bus), bus, nil), fake, bus
}

func TestContentSync_ApplyUploadSums(t *testing.T) {
	s, _, _ := newTestSync(t)

	for _, size := range []int64{1 * mb, 50 * mb, 2 * mb} {
		s.ApplyUpload(size)
	}

	got := s.State().Storage()
	assert.Equal(t, int64(53*mb), got.TotalBytesUsed)
	assert.Equal(t, 3, got.TotalFileCount)
	assert.Equal(t, state.SourceOptimistic, got.Source)
}

func TestContentSync_RemovalClampsAtZero(t *testing.T) {
	s, _, _ := newTestSync(t)
	s.ApplyAddition(100, 1)
	s.ApplyRemoval(1000, 5)

	got := s.State().Storage()
	assert.Zero(t, got.TotalBytesUsed)
	assert.Zero(t, got.TotalFileCount)
}

func TestContentSync_RefreshStorageTiers(t *testing.T) {
	listing := []models.FileMeta{{ID: 1, Size: 10}, {ID: 2, Size: 5}}

	tests := []struct {
		name       string
		setup      func(f *fakeAPI)
		loadFolder bool
		wantBytes  int64
		wantFiles  int
		wantSource state.StorageSource
	}{
		{
			name: "authoritative",
			setup: func(f *fakeAPI) {
				f.info = &models.StorageInfo{TotalSize: 1000, TotalFiles: 4}
			},
			wantBytes:  1000,
			wantFiles:  4,
			wantSource: state.SourceAuthoritative,
		},
		{
			name: "all files skips deleted",
			setup: func(f *fakeAPI) {
				f.infoErr = errors.New("storage info down")
				f.all = []models.FileMeta{{Size: 100}, {Size: 200}, {Size: 400, IsDeleted: true}}
			},
			wantBytes:  300,
			wantFiles:  2,
			wantSource: state.SourceAllFiles,
		},
		{
			name: "current folder",
			setup: func(f *fakeAPI) {
				f.files[0] = listing
			},
			loadFolder: true,
			wantBytes:  15,
			wantFiles:  2,
			wantSource: state.SourceCurrentFolder,
		},
		{
			name:       "nothing cached",
			wantBytes:  0,
			wantFiles:  0,
			wantSource: state.SourceCurrentFolder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fake, _ := newTestSync(t)
			if tt.setup != nil {
				tt.setup(fake)
			}
			if tt.loadFolder {
				require.NoError(t, s.Reload(context.Background()))
			}
			if tt.wantSource == state.SourceCurrentFolder {
				fake.infoErr = errors.New("storage info down")
				fake.allErr = errors.New("all files down")
			}

			got := s.RefreshStorage(context.Background())
			assert.Equal(t, tt.wantBytes, got.TotalBytesUsed)
			assert.Equal(t, tt.wantFiles, got.TotalFileCount)
			assert.Equal(t, tt.wantSource, got.Source)
			assert.Equal(t, got, s.State().Storage())
		})
	}
}

func TestContentSync_RefreshStorageCancelledKeepsValue(t *testing.T) {
	s, _, _ := newTestSync(t)
	s.ApplyUpload(42)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := s.RefreshStorage(ctx)

	assert.Equal(t, int64(42), got.TotalBytesUsed)
	assert.Equal(t, state.SourceOptimistic, got.Source)
}

func TestContentSync_ReloadReplacesListing(t *testing.T) {
	s, fake, bus := newTestSync(t)
	ch := bus.Subscribe(events.EventListingChanged)
	fake.files[7] = []models.FileMeta{{ID: 1, Name: "a"}}
	fake.folders[7] = []models.FolderMeta{{ID: 8, Name: "sub"}}

	require.NoError(t, s.Navigate(context.Background(), 7))

	listing, ok := s.State().Listing()
	require.True(t, ok)
	assert.Equal(t, int64(7), listing.FolderID)
	assert.Len(t, listing.Files, 1)
	assert.Len(t, listing.Folders, 1)

	ev := (<-ch).(*events.ListingChangedEvent)
	assert.Equal(t, int64(7), ev.FolderID)
	assert.Equal(t, 1, ev.FileCount)
	assert.Equal(t, 1, ev.FolderCount)
}

func TestContentSync_ReloadFailureKeepsCache(t *testing.T) {
	s, fake, bus := newTestSync(t)
	notes := bus.Subscribe(events.EventNotification)
	fake.files[0] = []models.FileMeta{{ID: 1, Name: "kept"}}
	require.NoError(t, s.Reload(context.Background()))

	fake.listErr = &api.HTTPStatusError{Method: "GET", Path: "/files", StatusCode: 500, Detail: "database unavailable"}
	err := s.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, api.KindHTTPStatus, api.Classify(err))

	listing, ok := s.State().Listing()
	require.True(t, ok)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "kept", listing.Files[0].Name)
	assert.Error(t, s.State().LastError())

	note := (<-notes).(*events.NotificationEvent)
	assert.Equal(t, events.ErrorLevel, note.Level)
	assert.Equal(t, "database unavailable", note.Detail)
}

// navigatingAPI switches the current folder while the listing is in flight.
type navigatingAPI struct {
	*fakeAPI
	st *state.AppState
	to int64
}

func (n *navigatingAPI) ListFiles(ctx context.Context, folderID int64) ([]models.FileMeta, error) {
	n.st.SetCurrentFolder(n.to)
	return n.fakeAPI.ListFiles(ctx, folderID)
}

func TestContentSync_StaleReloadEndsLoading(t *testing.T) {
	bus := events.NewEventBus(100)
	t.Cleanup(bus.Close)
	st := state.NewAppState(bus)
	fake := newFakeAPI()
	fake.files[0] = []models.FileMeta{{ID: 1, Name: "root.txt"}}
	s := NewContentSyncService(&navigatingAPI{fakeAPI: fake, st: st, to: 42}, st, bus, nil)
	loading := bus.Subscribe(events.EventListingLoading)
	changed := bus.Subscribe(events.EventListingChanged)

	require.NoError(t, s.Reload(context.Background()))

	assert.False(t, st.IsLoading())
	_, ok := st.Listing()
	assert.False(t, ok, "a listing for a folder the user left must not be cached")

	start := (<-loading).(*events.ListingLoadingEvent)
	assert.True(t, start.Loading)
	end := (<-loading).(*events.ListingLoadingEvent)
	assert.False(t, end.Loading)
	assert.Empty(t, changed)
}

func TestContentSync_ReloadPublishesLoadingEnd(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, fake, bus := newTestSync(t)
		loading := bus.Subscribe(events.EventListingLoading)
		fake.files[0] = []models.FileMeta{{ID: 1, Name: "a"}}

		require.NoError(t, s.Reload(context.Background()))
		assert.False(t, s.State().IsLoading())
		assert.True(t, (<-loading).(*events.ListingLoadingEvent).Loading)
		assert.False(t, (<-loading).(*events.ListingLoadingEvent).Loading)
	})

	t.Run("failure", func(t *testing.T) {
		s, fake, bus := newTestSync(t)
		loading := bus.Subscribe(events.EventListingLoading)
		fake.listErr = errors.New("connection reset")

		require.Error(t, s.Reload(context.Background()))
		assert.False(t, s.State().IsLoading())
		assert.True(t, (<-loading).(*events.ListingLoadingEvent).Loading)
		assert.False(t, (<-loading).(*events.ListingLoadingEvent).Loading)
	})
}

func TestContentSync_AfterMutationAppliesThenReconciles(t *testing.T) {
	s, fake, bus := newTestSync(t)
	storage := bus.Subscribe(events.EventStorageChanged)
	fake.info = &models.StorageInfo{TotalSize: 500, TotalFiles: 2}

	s.AfterMutation(context.Background(), Adjustment{Bytes: 100, Files: 1})

	first := (<-storage).(*events.StorageChangedEvent)
	assert.Equal(t, string(state.SourceOptimistic), first.Source)
	assert.Equal(t, int64(100), first.TotalBytes)

	second := (<-storage).(*events.StorageChangedEvent)
	assert.Equal(t, string(state.SourceAuthoritative), second.Source)
	assert.Equal(t, int64(500), second.TotalBytes)

	assert.Contains(t, fake.Calls(), "ListFiles")
	assert.Contains(t, fake.Calls(), "ListFolders")
}

func TestContentSync_AfterMutationZeroAdjustmentSkipsOptimistic(t *testing.T) {
	s, _, bus := newTestSync(t)
	storage := bus.Subscribe(events.EventStorageChanged)

	s.AfterMutation(context.Background(), Adjustment{})

	ev := (<-storage).(*events.StorageChangedEvent)
	assert.Equal(t, string(state.SourceAuthoritative), ev.Source)
	assert.Zero(t, len(storage))
}
