package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/events"
	"github.com/tgdrive/tgdrive/internal/logging"
	"github.com/tgdrive/tgdrive/internal/models"
	"github.com/tgdrive/tgdrive/internal/state"
)

// ContentSyncService keeps the cached listing and storage summary consistent
// with the backend after mutations.
//
// Every mutation gets an optimistic adjustment when its delta is known, then a
// reconciliation: reload of the current folder plus an authoritative storage
// refresh. There is no rollback; a failed reload leaves the optimistic value
// until the next successful one.
type ContentSyncService struct {
	api      ListingAPI
	state    *state.AppState
	eventBus *events.EventBus
	logger   *logging.Logger
}

// NewContentSyncService creates a sync service over st.
func NewContentSyncService(listingAPI ListingAPI, st *state.AppState, eventBus *events.EventBus, logger *logging.Logger) *ContentSyncService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ContentSyncService{
		api:      listingAPI,
		state:    st,
		eventBus: eventBus,
		logger:   logger,
	}
}

// State returns the application state the service maintains.
func (s *ContentSyncService) State() *state.AppState {
	return s.state
}

// ApplyUpload adds one uploaded file to the storage summary.
func (s *ContentSyncService) ApplyUpload(size int64) {
	s.state.AdjustStorage(size, 1)
}

// ApplyRemoval subtracts removed files. The summary never goes below zero.
func (s *ContentSyncService) ApplyRemoval(bytes int64, count int) {
	s.state.AdjustStorage(-bytes, -count)
}

// ApplyAddition adds files that appeared through a copy or restore.
func (s *ContentSyncService) ApplyAddition(bytes int64, count int) {
	s.state.AdjustStorage(bytes, count)
}

// Reload fetches the files and subfolders of the current folder concurrently
// and replaces the cached listing. On failure the cache is left untouched and
// a notification is published.
func (s *ContentSyncService) Reload(ctx context.Context) error {
	folderID := s.state.CurrentFolder()
	s.state.SetLoading(true)

	var (
		files   []models.FileMeta
		folders []models.FolderMeta
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		files, err = s.api.ListFiles(gctx, folderID)
		return err
	})
	g.Go(func() error {
		var err error
		folders, err = s.api.ListFolders(gctx, folderID)
		return err
	})

	if err := g.Wait(); err != nil {
		s.state.SetError(err)
		s.logger.Warn().Err(err).Int64("folder_id", folderID).Msg("Failed to reload folder")
		s.eventBus.Notify(events.ErrorLevel, "Failed to load folder contents", api.Detail(err))
		return fmt.Errorf("failed to reload folder %d: %w", folderID, err)
	}

	// A navigation during the fetch makes this result stale.
	if current := s.state.CurrentFolder(); current != folderID {
		s.logger.Debug().Int64("folder_id", folderID).Int64("current", current).Msg("Discarding stale listing")
		s.state.SetLoading(false)
		return nil
	}

	s.state.SetListing(state.FolderListing{
		FolderID: folderID,
		Files:    files,
		Folders:  folders,
	})
	return nil
}

// RefreshStorage recomputes the storage summary, degrading through three
// sources: /storage/info, the sum over /files/all, then the sum over the
// cached listing (approximate). It always yields a defined value.
func (s *ContentSyncService) RefreshStorage(ctx context.Context) state.StorageSummary {
	info, err := s.api.GetStorageInfo(ctx)
	if err == nil {
		summary := state.StorageSummary{
			TotalBytesUsed: info.TotalSize,
			TotalFileCount: info.TotalFiles,
			Source:         state.SourceAuthoritative,
		}
		s.state.SetStorage(summary)
		return s.state.Storage()
	}
	s.logger.Warn().Err(err).Str("tier", "storage-info").Msg("Storage info unavailable, summing all files")

	all, err := s.api.ListAllFiles(ctx)
	if err == nil {
		summary := state.StorageSummary{Source: state.SourceAllFiles}
		for _, f := range all {
			if f.IsDeleted {
				continue
			}
			summary.TotalBytesUsed += f.Size
			summary.TotalFileCount++
		}
		s.state.SetStorage(summary)
		return s.state.Storage()
	}
	s.logger.Warn().Err(err).Str("tier", "all-files").Msg("File listing unavailable, summing current folder")

	if ctx.Err() != nil {
		// Cancelled, not a backend outage: keep what we have.
		return s.state.Storage()
	}

	listing, ok := s.state.Listing()
	if !ok {
		s.logger.Warn().Str("tier", "current-folder").Msg("No cached listing, storage summary is zero")
	}
	summary := state.StorageSummary{
		TotalBytesUsed: listing.TotalBytes(),
		TotalFileCount: len(listing.Files),
		Source:         state.SourceCurrentFolder,
	}
	s.state.SetStorage(summary)
	return s.state.Storage()
}

// Reconcile reloads the current folder and refreshes the storage summary.
// A failed reload does not prevent the storage refresh.
func (s *ContentSyncService) Reconcile(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Reconcile: reload failed")
	}
	summary := s.RefreshStorage(ctx)
	s.logger.Debug().
		Int64("bytes", summary.TotalBytesUsed).
		Int("files", summary.TotalFileCount).
		Str("source", string(summary.Source)).
		Msg("Reconciled")
}

// Navigate switches the current folder and loads it.
func (s *ContentSyncService) Navigate(ctx context.Context, folderID int64) error {
	s.state.SetCurrentFolder(folderID)
	return s.Reload(ctx)
}

// AfterMutation applies adj optimistically, then reconciles.
func (s *ContentSyncService) AfterMutation(ctx context.Context, adj Adjustment) {
	if !adj.IsZero() {
		s.state.AdjustStorage(adj.Bytes, adj.Files)
	}
	s.Reconcile(ctx)
}

// CachedFile looks a file up in the cached listing.
func (s *ContentSyncService) CachedFile(fileID int64) (models.FileMeta, bool) {
	listing, _ := s.state.Listing()
	for _, f := range listing.Files {
		if f.ID == fileID {
			return f, true
		}
	}
	return models.FileMeta{}, false
}
