// Package transfer owns the upload queue: tasks are created on enqueue and
// pushed one at a time through a single upload slot.
package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the current state of an upload task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"    // Waiting for the upload slot
	TaskUploading TaskState = "uploading" // Holds the upload slot
	TaskCompleted TaskState = "completed" // Backend confirmed the file
	TaskFailed    TaskState = "failed"    // Network, HTTP status or parse failure
	TaskCancelled TaskState = "cancelled" // Cancelled by user
)

// IsTerminal returns true for completed, failed and cancelled.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// LocalFile is a file selected for upload.
type LocalFile struct {
	Path string
	Name string // defaults to the base name of Path
	Size int64
}

// StatLocalFile builds a LocalFile from a path on disk. Directories are rejected.
func StatLocalFile(path string) (LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return LocalFile{}, fmt.Errorf("%s is a directory", path)
	}
	return LocalFile{Path: path, Name: info.Name(), Size: info.Size()}, nil
}

// UploadTask is one file's upload unit of work. The coordinator owns the
// live value; callers only ever see copies.
type UploadTask struct {
	ID        string
	Name      string
	LocalPath string
	Size      int64
	FolderID  int64 // target folder, fixed at enqueue time
	State     TaskState
	Err       error

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	cancel context.CancelFunc
	runCtx context.Context
}

func newUploadTask(f LocalFile, folderID int64, now time.Time) *UploadTask {
	name := f.Name
	if name == "" {
		name = filepath.Base(f.Path)
	}
	return &UploadTask{
		ID:        NewTaskID(now),
		Name:      name,
		LocalPath: f.Path,
		Size:      f.Size,
		FolderID:  folderID,
		State:     TaskQueued,
		CreatedAt: now,
	}
}

// snapshot returns a copy without the run context.
func (t *UploadTask) snapshot() UploadTask {
	c := *t
	c.cancel = nil
	c.runCtx = nil
	return c
}

func (t *UploadTask) finish(state TaskState, err error, now time.Time) {
	t.State = state
	t.Err = err
	t.FinishedAt = now
}

// NewTaskID returns "upload_<unix millis>_<8 hex chars>". The random suffix
// keeps ids unique for files enqueued within the same millisecond.
func NewTaskID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("upload_%d_%s", now.UnixMilli(), suffix)
}

// Stats holds task counts per state.
type Stats struct {
	Queued    int
	Uploading int
	Completed int
	Failed    int
	Cancelled int
}

// Total returns the number of tasks counted.
func (s Stats) Total() int {
	return s.Queued + s.Uploading + s.Completed + s.Failed + s.Cancelled
}

// Pending returns the number of tasks not yet in a terminal state.
func (s Stats) Pending() int {
	return s.Queued + s.Uploading
}
