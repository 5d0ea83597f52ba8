package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/diskspace"
	"github.com/tgdrive/tgdrive/internal/events"
	"github.com/tgdrive/tgdrive/internal/logging"
	"github.com/tgdrive/tgdrive/internal/models"
	"github.com/tgdrive/tgdrive/internal/progress"
	"github.com/tgdrive/tgdrive/internal/transfer"
	"github.com/tgdrive/tgdrive/internal/util/paths"
	"github.com/tgdrive/tgdrive/internal/validation"
)

// TransferService wires the upload coordinator to the progress tracker and
// the content sync, and runs downloads.
type TransferService struct {
	coordinator *transfer.Coordinator
	tracker     *progress.Tracker
	downloads   DownloadAPI
	listing     ListingAPI
	eventBus    *events.EventBus
	logger      *logging.Logger
}

// TransferServiceConfig configures the TransferService.
type TransferServiceConfig struct {
	Coordinator transfer.Options
}

// DefaultTransferServiceConfig returns the standard upload timing.
func DefaultTransferServiceConfig() TransferServiceConfig {
	return TransferServiceConfig{Coordinator: transfer.DefaultOptions()}
}

// NewTransferService creates a TransferService on top of the API client.
func NewTransferService(client *api.Client, sync *ContentSyncService, eventBus *events.EventBus, logger *logging.Logger, config TransferServiceConfig) *TransferService {
	return newTransferService(transfer.NewAPITransport(client), client, client, sync, eventBus, logger, config)
}

func newTransferService(transport transfer.Transport, downloads DownloadAPI, listing ListingAPI, sync *ContentSyncService, eventBus *events.EventBus, logger *logging.Logger, config TransferServiceConfig) *TransferService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	tracker := progress.NewTracker(eventBus, logger.Named("progress"))
	var syncer transfer.Syncer
	if sync != nil {
		syncer = sync
	}
	coordinator := transfer.NewCoordinator(transport, tracker, syncer, eventBus, logger.Named("uploads"), config.Coordinator)

	return &TransferService{
		coordinator: coordinator,
		tracker:     tracker,
		downloads:   downloads,
		listing:     listing,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// StartUploads queues the files at localPaths for upload into folderID.
// Paths that cannot be read are skipped and reported in the returned error;
// the rest are queued anyway.
func (ts *TransferService) StartUploads(localPaths []string, folderID int64) ([]transfer.UploadTask, error) {
	files := make([]transfer.LocalFile, 0, len(localPaths))
	var errs []error
	for _, p := range localPaths {
		f, err := transfer.StatLocalFile(p)
		if err != nil {
			ts.logger.Warn().Err(err).Str("path", p).Msg("Skipping file")
			errs = append(errs, err)
			continue
		}
		files = append(files, f)
	}
	return ts.coordinator.Enqueue(files, folderID), errors.Join(errs...)
}

// CancelTransfer cancels a queued or active upload.
func (ts *TransferService) CancelTransfer(taskID string) error {
	return ts.coordinator.Cancel(taskID)
}

// CancelAll cancels all uploads.
func (ts *TransferService) CancelAll() {
	ts.coordinator.CancelAll()
}

// EnableBackgroundMode keeps uploads running without auto-dismissing the
// upload surface.
func (ts *TransferService) EnableBackgroundMode() {
	ts.coordinator.EnableBackgroundMode()
}

// Uploading reports whether the upload surface is still shown.
func (ts *TransferService) Uploading() bool {
	return ts.coordinator.Uploading()
}

// GetStats returns upload counts per state.
func (ts *TransferService) GetStats() transfer.Stats {
	return ts.coordinator.Stats()
}

// GetTasks returns all tracked uploads in enqueue order.
func (ts *TransferService) GetTasks() []transfer.UploadTask {
	return ts.coordinator.Tasks()
}

// ClearCompleted removes finished uploads from tracking.
func (ts *TransferService) ClearCompleted() {
	ts.coordinator.ClearFinished()
}

// Progress returns the derived progress of an active upload.
func (ts *TransferService) Progress(taskID string) (progress.TransferProgress, bool) {
	return ts.tracker.Snapshot(taskID)
}

// Wait blocks until the upload queue is drained and reconciled.
func (ts *TransferService) Wait(ctx context.Context) error {
	return ts.coordinator.Wait(ctx)
}

// Close cancels all uploads and stops the worker.
func (ts *TransferService) Close() {
	ts.coordinator.Close()
}

// PrepareDownloads resolves names for fileIDs and maps them to unique paths
// under destDir. Returns the specs and the number of renamed collisions.
func (ts *TransferService) PrepareDownloads(ctx context.Context, fileIDs []int64, destDir string) ([]DownloadFileSpec, int, error) {
	if len(fileIDs) == 0 {
		return nil, 0, nil
	}

	known := make(map[int64]models.FileMeta)
	all, err := ts.listing.ListAllFiles(ctx)
	if err != nil {
		// Names fall back to file_<id>; the download itself may still work.
		ts.logger.Warn().Err(err).Msg("Could not resolve file names")
	}
	for _, f := range all {
		known[f.ID] = f
	}

	planned := make([]paths.FileForDownload, len(fileIDs))
	var total int64
	for i, id := range fileIDs {
		f := known[id]
		planned[i] = paths.FileForDownload{FileID: id, Name: f.Name, Size: f.Size}
		total += f.Size
	}
	planned, collisions := paths.PlanDownloads(destDir, planned)

	if err := diskspace.CheckAvailableSpace(destDir, total, 1.0+constants.DiskSpaceBufferPercent); err != nil {
		return nil, 0, err
	}

	specs := make([]DownloadFileSpec, len(planned))
	for i, p := range planned {
		if err := validation.ValidatePathInDirectory(p.LocalPath, destDir); err != nil {
			return nil, 0, fmt.Errorf("refusing to download file %d: %w", p.FileID, err)
		}
		specs[i] = DownloadFileSpec{FileID: p.FileID, Name: p.Name, LocalPath: p.LocalPath, Size: p.Size}
	}
	return specs, collisions, nil
}

// Download fetches specs one after another. onProgress may be nil or return
// nil for a spec. A failed file does not stop the batch; a cancelled ctx does.
func (ts *TransferService) Download(ctx context.Context, specs []DownloadFileSpec, onProgress func(DownloadFileSpec) api.ProgressFunc) []DownloadResult {
	results := make([]DownloadResult, 0, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			results = append(results, DownloadResult{Spec: spec, Err: fmt.Errorf("%w: %w", api.ErrCancelled, err)})
			continue
		}

		var cb api.ProgressFunc
		if onProgress != nil {
			cb = onProgress(spec)
		}

		info, err := ts.downloads.DownloadFile(ctx, spec.FileID, spec.LocalPath, cb)
		res := DownloadResult{Spec: spec, Err: err}
		if info != nil {
			res.Bytes = info.Bytes
		}
		if err != nil {
			ts.logger.Error().Err(err).Int64("file_id", spec.FileID).Msg("Download failed")
			ts.eventBus.Notify(events.ErrorLevel, fmt.Sprintf("Failed to download file %d", spec.FileID), api.Detail(err))
		} else {
			ts.logger.Info().Int64("file_id", spec.FileID).Str("local_path", spec.LocalPath).Int64("bytes", res.Bytes).Msg("File downloaded")
		}
		results = append(results, res)
	}
	return results
}
