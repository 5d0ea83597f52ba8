package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/events"
	"github.com/tgdrive/tgdrive/internal/logging"
	"github.com/tgdrive/tgdrive/internal/models"
)

// FileService handles file and folder operations. Every successful mutation
// is followed by ContentSyncService.AfterMutation; every failed one publishes
// an error notification carrying the server detail.
type FileService struct {
	api      FileAPI
	sync     *ContentSyncService
	eventBus *events.EventBus
	logger   *logging.Logger
}

// NewFileService creates a new FileService.
func NewFileService(fileAPI FileAPI, sync *ContentSyncService, eventBus *events.EventBus, logger *logging.Logger) *FileService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FileService{
		api:      fileAPI,
		sync:     sync,
		eventBus: eventBus,
		logger:   logger,
	}
}

// DeleteFile moves a file to the bin.
func (fs *FileService) DeleteFile(ctx context.Context, fileID int64) error {
	adj := fs.removal(fileID)
	if err := fs.api.DeleteFile(ctx, fileID); err != nil {
		return fs.fail(err, fmt.Sprintf("delete file %d", fileID))
	}
	fs.logger.Info().Int64("file_id", fileID).Msg("File moved to bin")
	fs.sync.AfterMutation(ctx, adj)
	return nil
}

// DeleteFilePermanent removes a file for good.
func (fs *FileService) DeleteFilePermanent(ctx context.Context, fileID int64) error {
	adj := fs.removal(fileID)
	if err := fs.api.DeleteFilePermanent(ctx, fileID); err != nil {
		return fs.fail(err, fmt.Sprintf("permanently delete file %d", fileID))
	}
	fs.logger.Info().Int64("file_id", fileID).Msg("File permanently deleted")
	fs.sync.AfterMutation(ctx, adj)
	return nil
}

// DeleteFolder deletes a folder. Its size is not known locally, so only the
// reconciliation corrects the totals.
func (fs *FileService) DeleteFolder(ctx context.Context, folderID int64) error {
	if err := fs.api.DeleteFolder(ctx, folderID); err != nil {
		return fs.fail(err, fmt.Sprintf("delete folder %d", folderID))
	}
	fs.logger.Info().Int64("folder_id", folderID).Msg("Folder deleted")
	fs.sync.AfterMutation(ctx, Adjustment{})
	return nil
}

// CreateFolder creates a folder under parentID.
func (fs *FileService) CreateFolder(ctx context.Context, name string, parentID int64) (*models.FolderMeta, error) {
	folder, err := fs.api.CreateFolder(ctx, name, parentID)
	if err != nil {
		return nil, fs.fail(err, fmt.Sprintf("create folder %q", name))
	}
	fs.logger.Info().Int64("folder_id", folder.ID).Int64("parent_id", parentID).Str("name", folder.Name).Msg("Folder created")
	fs.sync.AfterMutation(ctx, Adjustment{})
	return folder, nil
}

// MoveFile moves a file into folderID.
func (fs *FileService) MoveFile(ctx context.Context, fileID, folderID int64) error {
	if err := fs.api.MoveFile(ctx, fileID, folderID); err != nil {
		return fs.fail(err, fmt.Sprintf("move file %d", fileID))
	}
	fs.sync.AfterMutation(ctx, Adjustment{})
	return nil
}

// CopyFile copies a file into folderID.
func (fs *FileService) CopyFile(ctx context.Context, fileID, folderID int64) error {
	var adj Adjustment
	if f, ok := fs.sync.CachedFile(fileID); ok {
		adj = Adjustment{Bytes: f.Size, Files: 1}
	}
	if err := fs.api.CopyFile(ctx, fileID, folderID); err != nil {
		return fs.fail(err, fmt.Sprintf("copy file %d", fileID))
	}
	fs.sync.AfterMutation(ctx, adj)
	return nil
}

// RenameFile renames a file.
func (fs *FileService) RenameFile(ctx context.Context, fileID int64, name string) error {
	if err := fs.api.RenameFile(ctx, fileID, name); err != nil {
		return fs.fail(err, fmt.Sprintf("rename file %d", fileID))
	}
	fs.sync.AfterMutation(ctx, Adjustment{})
	return nil
}

// RestoreFile brings a file back from the bin.
func (fs *FileService) RestoreFile(ctx context.Context, fileID int64) error {
	if err := fs.api.RestoreFile(ctx, fileID); err != nil {
		return fs.fail(err, fmt.Sprintf("restore file %d", fileID))
	}
	fs.sync.AfterMutation(ctx, Adjustment{})
	return nil
}

// ToggleStar flips the starred flag of a file.
func (fs *FileService) ToggleStar(ctx context.Context, fileID int64) (*models.StarResult, error) {
	res, err := fs.api.ToggleStar(ctx, fileID)
	if err != nil {
		return nil, fs.fail(err, fmt.Sprintf("star file %d", fileID))
	}
	fs.sync.AfterMutation(ctx, Adjustment{})
	return res, nil
}

// ListVersions returns the stored revisions of a file.
func (fs *FileService) ListVersions(ctx context.Context, fileID int64) ([]models.FileVersion, error) {
	versions, err := fs.api.ListVersions(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of file %d: %w", fileID, err)
	}
	return versions, nil
}

// RestoreVersion makes versionID the current content of a file.
func (fs *FileService) RestoreVersion(ctx context.Context, fileID int64, versionID string) error {
	if err := fs.api.RestoreVersion(ctx, fileID, versionID); err != nil {
		return fs.fail(err, fmt.Sprintf("restore version %s of file %d", versionID, fileID))
	}
	fs.sync.AfterMutation(ctx, Adjustment{})
	return nil
}

// Recent returns recently uploaded files.
func (fs *FileService) Recent(ctx context.Context) ([]models.FileMeta, error) {
	files, err := fs.api.RecentFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent files: %w", err)
	}
	return files, nil
}

// Search finds files by name.
func (fs *FileService) Search(ctx context.Context, query string) ([]models.FileMeta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	files, err := fs.api.SearchFiles(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}
	return files, nil
}

// Starred returns starred files.
func (fs *FileService) Starred(ctx context.Context) ([]models.FileMeta, error) {
	files, err := fs.api.StarredFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load starred files: %w", err)
	}
	return files, nil
}

// Bin returns files in the bin.
func (fs *FileService) Bin(ctx context.Context) ([]models.FileMeta, error) {
	files, err := fs.api.BinFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bin: %w", err)
	}
	return files, nil
}

// AllFiles returns every file of the account, including those in the bin.
func (fs *FileService) AllFiles(ctx context.Context) ([]models.FileMeta, error) {
	files, err := fs.api.ListAllFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list all files: %w", err)
	}
	return files, nil
}

// Bulk runs one batched operation over ids. A partial result is not an
// error; it is returned and announced with a warning notification.
func (fs *FileService) Bulk(ctx context.Context, op models.BulkOperation, ids []int64, target *int64) (BulkOutcome, error) {
	outcome := BulkOutcome{Operation: op, Requested: len(ids)}
	if len(ids) == 0 {
		return outcome, fmt.Errorf("no files selected")
	}

	adj, exact := fs.bulkAdjustment(op, ids)

	res, err := fs.api.Bulk(ctx, models.BulkRequest{
		Operation:      op,
		FileIDs:        ids,
		TargetFolderID: target,
	})
	if err != nil {
		return outcome, fs.fail(err, fmt.Sprintf("%s %d files", op, len(ids)))
	}

	outcome.Processed = res.TotalProcessed
	outcome.Failed = res.Failed
	outcome.Errors = res.Errors

	log := fs.logger.With().Str("operation", string(op)).Int("requested", outcome.Requested).Logger()
	if outcome.Partial() {
		log.Warn().Int("processed", outcome.Processed).Int("failed", outcome.Failed).Strs("errors", outcome.Errors).Msg("Bulk operation partially failed")
		fs.eventBus.Notify(events.WarnLevel, outcome.Summary(), strings.Join(outcome.Errors, "; "))
		adj = Adjustment{}
	} else {
		log.Info().Int("processed", outcome.Processed).Msg("Bulk operation completed")
		fs.eventBus.Notify(events.InfoLevel, outcome.Summary(), "")
		if !exact {
			adj = Adjustment{}
		}
	}

	fs.sync.AfterMutation(ctx, adj)
	return outcome, nil
}

// bulkAdjustment computes the storage delta of op when every file is in the
// cached listing.
func (fs *FileService) bulkAdjustment(op models.BulkOperation, ids []int64) (Adjustment, bool) {
	var sign int64
	switch op {
	case models.BulkDelete:
		sign = -1
	case models.BulkCopy:
		sign = 1
	default:
		return Adjustment{}, true
	}

	var adj Adjustment
	for _, id := range ids {
		f, ok := fs.sync.CachedFile(id)
		if !ok || f.IsDeleted {
			return Adjustment{}, false
		}
		adj.Bytes += sign * f.Size
		adj.Files += int(sign)
	}
	return adj, true
}

func (fs *FileService) removal(fileID int64) Adjustment {
	f, ok := fs.sync.CachedFile(fileID)
	if !ok || f.IsDeleted {
		return Adjustment{}
	}
	return Adjustment{Bytes: -f.Size, Files: -1}
}

// fail logs err, publishes an error notification with the server detail and
// returns err wrapped with action.
func (fs *FileService) fail(err error, action string) error {
	fs.logger.Error().Err(err).Str("action", action).Msg("Operation failed")
	fs.eventBus.Notify(events.ErrorLevel, "Failed to "+action, api.Detail(err))
	return fmt.Errorf("failed to %s: %w", action, err)
}
