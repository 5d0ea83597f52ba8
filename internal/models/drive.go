package models

// User is the authenticated account as reported by /auth/verify
type User struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// VerifyResponse is the response of /auth/verify
type VerifyResponse struct {
	Valid bool `json:"valid"`
	User  User `json:"user"`
}

// StorageInfo is the authoritative storage total from /storage/info
type StorageInfo struct {
	TotalSize     int64  `json:"totalSize"`
	TotalFiles    int    `json:"totalFiles"`
	FormattedSize string `json:"formattedSize"`
}

// BulkOperation names a batched per-selection operation
type BulkOperation string

const (
	BulkDelete  BulkOperation = "delete"
	BulkMove    BulkOperation = "move"
	BulkCopy    BulkOperation = "copy"
	BulkRestore BulkOperation = "restore"
	BulkStar    BulkOperation = "star"
)

// Valid reports whether op is one the backend understands
func (op BulkOperation) Valid() bool {
	switch op {
	case BulkDelete, BulkMove, BulkCopy, BulkRestore, BulkStar:
		return true
	}
	return false
}

// NeedsTarget reports whether op requires a target folder
func (op BulkOperation) NeedsTarget() bool {
	return op == BulkMove || op == BulkCopy
}

// BulkRequest is the body of POST /files/bulk
type BulkRequest struct {
	Operation      BulkOperation `json:"operation"`
	FileIDs        []int64       `json:"file_ids"`
	TargetFolderID *int64        `json:"target_folder_id,omitempty"`
}

// BulkResult is the response of POST /files/bulk
type BulkResult struct {
	TotalProcessed int      `json:"total_processed"`
	Failed         int      `json:"failed,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// MessageResponse is the generic {"message": ...} acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
