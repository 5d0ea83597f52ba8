package transfer

import (
	"context"

	"github.com/tgdrive/tgdrive/internal/api"
	"github.com/tgdrive/tgdrive/internal/models"
)

// APITransport uploads through the drive REST client. The task id doubles
// as the backend upload_id.
type APITransport struct {
	client *api.Client
}

// NewAPITransport wraps client.
func NewAPITransport(client *api.Client) *APITransport {
	return &APITransport{client: client}
}

// Upload implements Transport.
func (t *APITransport) Upload(ctx context.Context, task UploadTask, onProgress func(loaded, total int64)) (*models.FileMeta, error) {
	return t.client.UploadFile(ctx, task.LocalPath, task.FolderID, task.ID, onProgress)
}

// CancelUpload implements Transport.
func (t *APITransport) CancelUpload(ctx context.Context, uploadID string) error {
	return t.client.CancelUpload(ctx, uploadID)
}
