// Package services provides frontend-agnostic business logic on top of the
// drive API: cache reconciliation, file operations and transfer
// orchestration. Results and state changes are published via the EventBus.
package services

import (
	"context"
	"fmt"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/models"
	strutil "github.com/tgdrive/tgdrive/internal/util/strings"
)

// ListingAPI is the read side of the drive API used by ContentSyncService.
type ListingAPI interface {
	ListFiles(ctx context.Context, folderID int64) ([]models.FileMeta, error)
	ListFolders(ctx context.Context, parentID int64) ([]models.FolderMeta, error)
	ListAllFiles(ctx context.Context) ([]models.FileMeta, error)
	GetStorageInfo(ctx context.Context) (*models.StorageInfo, error)
}

// FileAPI is the part of the drive API used by FileService.
type FileAPI interface {
	DeleteFile(ctx context.Context, fileID int64) error
	DeleteFilePermanent(ctx context.Context, fileID int64) error
	DeleteFolder(ctx context.Context, folderID int64) error
	CreateFolder(ctx context.Context, name string, parentID int64) (*models.FolderMeta, error)
	MoveFile(ctx context.Context, fileID, folderID int64) error
	CopyFile(ctx context.Context, fileID, folderID int64) error
	RenameFile(ctx context.Context, fileID int64, name string) error
	RestoreFile(ctx context.Context, fileID int64) error
	ToggleStar(ctx context.Context, fileID int64) (*models.StarResult, error)
	ListVersions(ctx context.Context, fileID int64) ([]models.FileVersion, error)
	RestoreVersion(ctx context.Context, fileID int64, versionID string) error
	Bulk(ctx context.Context, req models.BulkRequest) (*models.BulkResult, error)

	RecentFiles(ctx context.Context) ([]models.FileMeta, error)
	SearchFiles(ctx context.Context, query string) ([]models.FileMeta, error)
	StarredFiles(ctx context.Context) ([]models.FileMeta, error)
	BinFiles(ctx context.Context) ([]models.FileMeta, error)
	ListAllFiles(ctx context.Context) ([]models.FileMeta, error)
}

// DownloadAPI streams file content.
type DownloadAPI interface {
	DownloadFile(ctx context.Context, fileID int64, destPath string, onProgress api.ProgressFunc) (*api.DownloadInfo, error)
}

var (
	_ ListingAPI  = (*api.Client)(nil)
	_ FileAPI     = (*api.Client)(nil)
	_ DownloadAPI = (*api.Client)(nil)
)

// Adjustment is the precisely known storage delta of a mutation.
// Zero means the delta is unknown and only reconciliation applies.
type Adjustment struct {
	Bytes int64
	Files int
}

// IsZero reports whether there is nothing to apply optimistically.
func (a Adjustment) IsZero() bool {
	return a.Bytes == 0 && a.Files == 0
}

// BulkOutcome is the aggregate result of one batched operation.
type BulkOutcome struct {
	Operation models.BulkOperation
	Requested int
	Processed int
	Failed    int
	Errors    []string
}

// Partial reports whether fewer items than requested were processed.
func (o BulkOutcome) Partial() bool {
	return o.Processed < o.Requested || o.Failed > 0
}

// Summary renders the outcome for the user, e.g. "2 of 3 files deleted".
func (o BulkOutcome) Summary() string {
	verb := bulkVerbs[o.Operation]
	if verb == "" {
		verb = "processed"
	}
	noun := strutil.Pluralize("file", int64(o.Requested))
	if o.Partial() {
		return fmt.Sprintf("%d of %d %s %s", o.Processed, o.Requested, noun, verb)
	}
	return fmt.Sprintf("%d %s %s", o.Processed, noun, verb)
}

var bulkVerbs = map[models.BulkOperation]string{
	models.BulkDelete:  "deleted",
	models.BulkMove:    "moved",
	models.BulkCopy:    "copied",
	models.BulkRestore: "restored",
	models.BulkStar:    "starred",
}

// DownloadFileSpec specifies a single file download.
type DownloadFileSpec struct {
	FileID    int64
	Name      string
	LocalPath string
	Size      int64
}

// DownloadResult is the outcome of one file of a download batch.
type DownloadResult struct {
	Spec  DownloadFileSpec
	Bytes int64
	Err   error
}
