package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/models"
)

// fakeAPI is an in-memory stand-in for api.Client.
type fakeAPI struct {
	mu sync.Mutex

	files   map[int64][]models.FileMeta
	folders map[int64][]models.FolderMeta
	all     []models.FileMeta
	info    *models.StorageInfo

	listErr     error
	allErr      error
	infoErr     error
	mutationErr error
	downloadErr map[int64]error

	bulkResult *models.BulkResult
	bulkReqs   []models.BulkRequest
	calls      []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		files:       make(map[int64][]models.FileMeta),
		folders:     make(map[int64][]models.FolderMeta),
		downloadErr: make(map[int64]error),
	}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ListFiles(ctx context.Context, folderID int64) ([]models.FileMeta, error) {
	f.record("ListFiles")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.FileMeta(nil), f.files[folderID]...), nil
}

func (f *fakeAPI) ListFolders(ctx context.Context, parentID int64) ([]models.FolderMeta, error) {
	f.record("ListFolders")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.FolderMeta(nil), f.folders[parentID]...), nil
}

func (f *fakeAPI) ListAllFiles(ctx context.Context) ([]models.FileMeta, error) {
	f.record("ListAllFiles")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allErr != nil {
		return nil, f.allErr
	}
	return append([]models.FileMeta(nil), f.all...), nil
}

func (f *fakeAPI) GetStorageInfo(ctx context.Context) (*models.StorageInfo, error) {
	f.record("GetStorageInfo")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.info == nil {
		return &models.StorageInfo{}, nil
	}
	info := *f.info
	return &info, nil
}

func (f *fakeAPI) mutation(call string) error {
	f.record(call)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutationErr
}

func (f *fakeAPI) DeleteFile(ctx context.Context, fileID int64) error {
	return f.mutation("DeleteFile")
}

func (f *fakeAPI) DeleteFilePermanent(ctx context.Context, fileID int64) error {
	return f.mutation("DeleteFilePermanent")
}

func (f *fakeAPI) DeleteFolder(ctx context.Context, folderID int64) error {
	return f.mutation("DeleteFolder")
}

func (f *fakeAPI) CreateFolder(ctx context.Context, name string, parentID int64) (*models.FolderMeta, error) {
	if err := f.mutation("CreateFolder"); err != nil {
		return nil, err
	}
	return &models.FolderMeta{ID: 99, Name: name, ParentID: parentID}, nil
}

func (f *fakeAPI) MoveFile(ctx context.Context, fileID, folderID int64) error {
	return f.mutation("MoveFile")
}

func (f *fakeAPI) CopyFile(ctx context.Context, fileID, folderID int64) error {
	return f.mutation("CopyFile")
}

func (f *fakeAPI) RenameFile(ctx context.Context, fileID int64, name string) error {
	return f.mutation("RenameFile")
}

func (f *fakeAPI) RestoreFile(ctx context.Context, fileID int64) error {
	return f.mutation("RestoreFile")
}

func (f *fakeAPI) ToggleStar(ctx context.Context, fileID int64) (*models.StarResult, error) {
	if err := f.mutation("ToggleStar"); err != nil {
		return nil, err
	}
	return &models.StarResult{FileID: fileID, Starred: true}, nil
}

func (f *fakeAPI) ListVersions(ctx context.Context, fileID int64) ([]models.FileVersion, error) {
	f.record("ListVersions")
	return []models.FileVersion{{VersionID: "v1", Size: 10}}, nil
}

func (f *fakeAPI) RestoreVersion(ctx context.Context, fileID int64, versionID string) error {
	return f.mutation("RestoreVersion")
}

func (f *fakeAPI) Bulk(ctx context.Context, req models.BulkRequest) (*models.BulkResult, error) {
	if err := f.mutation("Bulk"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkReqs = append(f.bulkReqs, req)
	if f.bulkResult != nil {
		res := *f.bulkResult
		return &res, nil
	}
	return &models.BulkResult{TotalProcessed: len(req.FileIDs)}, nil
}

func (f *fakeAPI) RecentFiles(ctx context.Context) ([]models.FileMeta, error) {
	f.record("RecentFiles")
	return f.all, nil
}

func (f *fakeAPI) SearchFiles(ctx context.Context, query string) ([]models.FileMeta, error) {
	f.record("SearchFiles")
	return f.all, nil
}

func (f *fakeAPI) StarredFiles(ctx context.Context) ([]models.FileMeta, error) {
	f.record("StarredFiles")
	return nil, nil
}

func (f *fakeAPI) BinFiles(ctx context.Context) ([]models.FileMeta, error) {
	f.record("BinFiles")
	return nil, nil
}

func (f *fakeAPI) DownloadFile(ctx context.Context, fileID int64, destPath string, onProgress api.ProgressFunc) (*api.DownloadInfo, error) {
	f.record("DownloadFile")
	f.mu.Lock()
	err := f.downloadErr[fileID]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	content := []byte("content")
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(destPath, content, 0644); err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(int64(len(content)), int64(len(content)))
	}
	return &api.DownloadInfo{Bytes: int64(len(content))}, nil
}
