package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tgdrive/tgdrive/internal/auth"
	"github.com/tgdrive/tgdrive/internal/config"
	"github.com/tgdrive/tgdrive/internal/constants"
	"github.com/tgdrive/tgdrive/internal/http"
	"github.com/tgdrive/tgdrive/internal/logging"
	"github.com/tgdrive/tgdrive/internal/models"
	"github.com/tgdrive/tgdrive/internal/ratelimit"
)

// Client is the drive backend REST client.
//
// Idempotent GETs go through a retrying client; mutations and uploads are
// sent exactly once and never retried, so a failed mutation is always
// re-initiated by the user.
type Client struct {
	httpClient     *nethttp.Client // retrying, GET only
	plainClient    *nethttp.Client // mutations
	transferClient *nethttp.Client // uploads and downloads, no overall timeout
	config         *config.Config
	baseURL        string
	token          string
	limiter        *ratelimit.RateLimiter
	logger         *logging.Logger
	now            func() time.Time
	totalCalls     atomic.Int64
}

// NewClient creates a new API client from a merged configuration.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty: set it with 'tgdrive config set tgdrive.api_url <url>'")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	plainClient, err := http.ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	transferClient, err := http.CreateTransferClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transfer client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = plainClient
	retryClient.RetryMax = constants.MaxRetries
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.CheckRetry = http.RetryPolicy
	retryClient.Backoff = http.Backoff
	retryClient.Logger = logger.LeveledLogger()
	// Hand the last response back instead of a generic "giving up" error so
	// the status and server detail reach the caller.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		httpClient:     retryClient.StandardClient(),
		plainClient:    plainClient,
		transferClient: transferClient,
		config:         cfg,
		baseURL:        strings.TrimSuffix(cfg.APIBaseURL, "/"),
		token:          strings.TrimSpace(cfg.Token),
		limiter:        ratelimit.NewAPIRateLimiter(logger),
		logger:         logger,
		now:            time.Now,
	}, nil
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// BaseURL returns the API base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// TotalCalls returns the number of requests issued so far.
func (c *Client) TotalCalls() int64 {
	return c.totalCalls.Load()
}

// newRequest builds an authenticated request. Tokens whose exp claim has
// passed are rejected here so no request leaves the machine with them.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*nethttp.Request, error) {
	if err := auth.CheckToken(c.token, c.now()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doRequest performs an HTTP request with authentication and rate limiting.
// The caller owns the response body. Non-2xx statuses are returned as
// responses; use checkResponse to turn them into errors.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, networkError(method, path, fmt.Errorf("rate limiter cancelled: %w", err))
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := c.newRequest(ctx, method, path, query, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.plainClient
	if method == nethttp.MethodGet {
		client = c.httpClient
	}

	c.totalCalls.Add(1)
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("API call failed")
		return nil, networkError(method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("API call")

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.throttled(resp)
	}

	return resp, nil
}

// throttled pauses the shared limiter after the server rejected a request.
func (c *Client) throttled(resp *nethttp.Response) {
	c.limiter.Drain()
	cooldown := time.Second
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			cooldown = time.Duration(secs) * time.Second
		}
	}
	c.limiter.SetCooldown(cooldown)
	c.logger.Warn().Dur("cooldown", cooldown).Msg("Throttled by server")
}

// checkResponse converts a non-2xx response into *HTTPStatusError, reading
// the server-provided detail from the body.
func checkResponse(method, path string, resp *nethttp.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &HTTPStatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Detail:     parseDetail(body),
	}
}

// doJSON runs a request and decodes a 2xx JSON response into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponse(method, path, resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.Canceled) {
			return networkError(method, path, err)
		}
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, id)
}

// VerifyToken validates the bearer token and returns the current user.
func (c *Client) VerifyToken(ctx context.Context) (*models.User, error) {
	var resp models.VerifyResponse
	if err := c.doJSON(ctx, nethttp.MethodGet, "/auth/verify", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// ListFiles returns the files of one folder.
func (c *Client) ListFiles(ctx context.Context, folderID int64) ([]models.FileMeta, error) {
	var files []models.FileMeta
	query := url.Values{"folder_id": {strconv.FormatInt(folderID, 10)}}
	if err := c.doJSON(ctx, nethttp.MethodGet, "/files", query, nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// ListFolders returns the subfolders of one folder.
func (c *Client) ListFolders(ctx context.Context, parentID int64) ([]models.FolderMeta, error) {
	var folders []models.FolderMeta
	query := url.Values{"parent_id": {strconv.FormatInt(parentID, 10)}}
	if err := c.doJSON(ctx, nethttp.MethodGet, "/folders", query, nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// ListAllFiles returns every file record, including those in the bin.
func (c *Client) ListAllFiles(ctx context.Context) ([]models.FileMeta, error) {
	return c.fileView(ctx, "/files/all", nil)
}

// GetStorageInfo returns the authoritative storage totals.
func (c *Client) GetStorageInfo(ctx context.Context) (*models.StorageInfo, error) {
	var info models.StorageInfo
	if err := c.doJSON(ctx, nethttp.MethodGet, "/storage/info", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RecentFiles returns recently uploaded files.
func (c *Client) RecentFiles(ctx context.Context) ([]models.FileMeta, error) {
	return c.fileView(ctx, "/files/recent", nil)
}

// SearchFiles returns files whose name contains query.
func (c *Client) SearchFiles(ctx context.Context, query string) ([]models.FileMeta, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	return c.fileView(ctx, "/files/search", url.Values{"query": {query}})
}

// StarredFiles returns starred files.
func (c *Client) StarredFiles(ctx context.Context) ([]models.FileMeta, error) {
	return c.fileView(ctx, "/files/starred", nil)
}

// BinFiles returns soft-deleted files.
func (c *Client) BinFiles(ctx context.Context) ([]models.FileMeta, error) {
	return c.fileView(ctx, "/files/bin", nil)
}

func (c *Client) fileView(ctx context.Context, path string, query url.Values) ([]models.FileMeta, error) {
	var files []models.FileMeta
	if err := c.doJSON(ctx, nethttp.MethodGet, path, query, nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// DeleteFile moves a file to the bin.
func (c *Client) DeleteFile(ctx context.Context, fileID int64) error {
	return c.doJSON(ctx, nethttp.MethodDelete, idPath("/files/%d", fileID), nil, nil, nil)
}

// DeleteFilePermanent removes a file for good.
func (c *Client) DeleteFilePermanent(ctx context.Context, fileID int64) error {
	return c.doJSON(ctx, nethttp.MethodDelete, idPath("/files/%d/permanent", fileID), nil, nil, nil)
}

// DeleteFolder deletes a folder; the backend moves its files to the bin.
func (c *Client) DeleteFolder(ctx context.Context, folderID int64) error {
	return c.doJSON(ctx, nethttp.MethodDelete, idPath("/folders/%d", folderID), nil, nil, nil)
}

// CreateFolder creates a folder under parentID.
func (c *Client) CreateFolder(ctx context.Context, name string, parentID int64) (*models.FolderMeta, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("folder name must not be empty")
	}
	query := url.Values{
		"name":      {name},
		"parent_id": {strconv.FormatInt(parentID, 10)},
	}
	var folder models.FolderMeta
	if err := c.doJSON(ctx, nethttp.MethodPost, "/folders", query, nil, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// MoveFile moves a file into folderID.
func (c *Client) MoveFile(ctx context.Context, fileID, folderID int64) error {
	return c.doJSON(ctx, nethttp.MethodPost, idPath("/files/%d/move", fileID), nil, models.MoveRequest{FolderID: folderID}, nil)
}

// CopyFile copies a file into folderID.
func (c *Client) CopyFile(ctx context.Context, fileID, folderID int64) error {
	return c.doJSON(ctx, nethttp.MethodPost, idPath("/files/%d/copy", fileID), nil, models.MoveRequest{FolderID: folderID}, nil)
}

// RenameFile renames a file.
func (c *Client) RenameFile(ctx context.Context, fileID int64, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name must not be empty")
	}
	return c.doJSON(ctx, nethttp.MethodPost, idPath("/files/%d/rename", fileID), nil, models.RenameRequest{Name: name}, nil)
}

// RestoreFile restores a file from the bin.
func (c *Client) RestoreFile(ctx context.Context, fileID int64) error {
	return c.doJSON(ctx, nethttp.MethodPost, idPath("/files/%d/restore", fileID), nil, nil, nil)
}

// ToggleStar flips the starred flag and returns the new value.
func (c *Client) ToggleStar(ctx context.Context, fileID int64) (*models.StarResult, error) {
	var result models.StarResult
	if err := c.doJSON(ctx, nethttp.MethodPost, idPath("/files/%d/star", fileID), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListVersions returns the stored versions of a file.
func (c *Client) ListVersions(ctx context.Context, fileID int64) ([]models.FileVersion, error) {
	var versions []models.FileVersion
	if err := c.doJSON(ctx, nethttp.MethodPost, idPath("/files/%d/versions", fileID), nil, nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// RestoreVersion makes versionID the current content of a file.
func (c *Client) RestoreVersion(ctx context.Context, fileID int64, versionID string) error {
	body := models.RestoreVersionRequest{VersionID: versionID}
	return c.doJSON(ctx, nethttp.MethodPost, idPath("/files/%d/restore-version", fileID), nil, body, nil)
}

// Bulk dispatches one batched request for a whole selection.
func (c *Client) Bulk(ctx context.Context, req models.BulkRequest) (*models.BulkResult, error) {
	if !req.Operation.Valid() {
		return nil, fmt.Errorf("unknown bulk operation %q", req.Operation)
	}
	if req.Operation.NeedsTarget() && req.TargetFolderID == nil {
		return nil, fmt.Errorf("bulk %s requires a target folder", req.Operation)
	}
	var result models.BulkResult
	if err := c.doJSON(ctx, nethttp.MethodPost, "/files/bulk", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelUpload sends the best-effort backend cancellation signal for an
// in-flight upload.
func (c *Client) CancelUpload(ctx context.Context, uploadID string) error {
	path := "/upload/cancel/" + url.PathEscape(uploadID)
	return c.doJSON(ctx, nethttp.MethodPost, path, nil, nil, nil)
}
