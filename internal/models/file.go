package models

import (
	"time"
)

// FileMeta is a file record as returned by the drive backend
type FileMeta struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
	FolderID  int64  `json:"folder_id"`
	CreatedAt string `json:"created_at"`
	Starred   bool   `json:"starred"`
	IsDeleted bool   `json:"is_deleted"`
	DeletedAt string `json:"deleted_at,omitempty"`
}

// Created parses CreatedAt; the zero time is returned when it is unparseable.
func (f FileMeta) Created() time.Time {
	return parseTimestamp(f.CreatedAt)
}

// FolderMeta is a folder record as returned by the drive backend
type FolderMeta struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ParentID  int64  `json:"parent_id"`
	CreatedAt string `json:"created_at"`
}

// Created parses CreatedAt; the zero time is returned when it is unparseable.
func (f FolderMeta) Created() time.Time {
	return parseTimestamp(f.CreatedAt)
}

// FileVersion is one stored revision of a file
type FileVersion struct {
	VersionID string `json:"version_id"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

// StarResult is the response of the star toggle endpoint
type StarResult struct {
	FileID  int64 `json:"file_id"`
	Starred bool  `json:"starred"`
}

// MoveRequest is the body of the move and copy endpoints
type MoveRequest struct {
	FolderID int64 `json:"folder_id"`
}

// RenameRequest is the body of the rename endpoint
type RenameRequest struct {
	Name string `json:"name"`
}

// RestoreVersionRequest is the body of the restore-version endpoint
type RestoreVersionRequest struct {
	VersionID string `json:"version_id"`
}

// The backend writes naive ISO-8601 timestamps (no zone); accept those as
// well as RFC 3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
