package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgdrive/tgdrive/internal/auth"
	"github.com/tgdrive/tgdrive/internal/config"
	"github.com/tgdrive/tgdrive/internal/models"
)

const testToken = "test-token"

func newTestClient(t *testing.T, handler nethttp.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.APIBaseURL = srv.URL + "/api"
	cfg.Token = testToken

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return client, srv
}

func writeJSON(w nethttp.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// TestNewClientRejectsEmptyBaseURL verifies that NewClient fails with a clear error
// when APIBaseURL is empty, instead of creating a broken client that produces
// "unsupported protocol scheme" errors on every request.
func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	cfg := config.NewConfig()
	cfg.APIBaseURL = ""
	cfg.Token = testToken

	_, err := NewClient(cfg, nil)
	if err == nil {
		t.Fatal("NewClient() should return error for empty APIBaseURL")
	}
	if !strings.Contains(err.Error(), "API base URL is empty") {
		t.Errorf("NewClient() error = %q, want error containing 'API base URL is empty'", err.Error())
	}
}

func TestNewClientAcceptsValidBaseURL(t *testing.T) {
	cfg := config.NewConfig()
	cfg.APIBaseURL = "https://drive.example.com/api/"
	cfg.Token = testToken

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://drive.example.com/api", client.BaseURL())
	assert.Same(t, cfg, client.GetConfig())
}

func TestVerifyToken_SendsBearer(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/api/auth/verify", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		writeJSON(w, 200, map[string]interface{}{
			"valid": true,
			"user":  map[string]interface{}{"user_id": 5, "username": "alice", "first_name": "Alice"},
		})
	}))

	user, err := client.VerifyToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), user.UserID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, int64(1), client.TotalCalls())
}

func TestUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, 401, map[string]string{"detail": "Invalid token"})
	}))

	_, err := client.ListFiles(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindUnauthorized, Classify(err))
	assert.Equal(t, "Invalid token", Detail(err))
}

func TestExpiredTokenRejectedLocally(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		writeJSON(w, 200, []models.FileMeta{})
	}))

	claims := auth.Claims{UserID: 1}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	client.token = token

	_, err = client.ListFiles(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.Zero(t, hits.Load(), "no request may leave with an expired token")
}

func TestListing(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/api/files":
			assert.Equal(t, "7", r.URL.Query().Get("folder_id"))
			writeJSON(w, 200, []models.FileMeta{{ID: 1, Name: "a.txt", Size: 10, FolderID: 7}})
		case "/api/folders":
			assert.Equal(t, "7", r.URL.Query().Get("parent_id"))
			writeJSON(w, 200, []models.FolderMeta{{ID: 9, Name: "sub", ParentID: 7}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	files, err := client.ListFiles(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Name)

	folders, err := client.ListFolders(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, int64(9), folders[0].ID)
}

func TestSearchFiles(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/api/files/search", r.URL.Path)
		assert.Equal(t, "annual report", r.URL.Query().Get("query"))
		writeJSON(w, 200, []models.FileMeta{{ID: 3}})
	}))

	files, err := client.SearchFiles(context.Background(), "annual report")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = client.SearchFiles(context.Background(), "  ")
	assert.Error(t, err)
}

func TestGetRetriedOnServerError(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, 503, map[string]string{"detail": "busy"})
			return
		}
		writeJSON(w, 200, models.StorageInfo{TotalSize: 2048, TotalFiles: 3, FormattedSize: "2.0 KB"})
	}))

	info, err := client.GetStorageInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2048), info.TotalSize)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMutationNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		calls.Add(1)
		writeJSON(w, 503, map[string]string{"detail": "busy"})
	}))

	err := client.DeleteFile(context.Background(), 4)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 503, statusErr.StatusCode)
	assert.Equal(t, KindHTTPStatus, Classify(err))
}

func TestHTTPStatusDetail(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, 404, map[string]string{"detail": "File not found"})
	}))

	err := client.RenameFile(context.Background(), 99, "new.txt")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "File not found", Detail(err))
	assert.Contains(t, err.Error(), "status 404")
}

func TestParseError(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	client.httpClient = client.plainClient

	_, err := client.RecentFiles(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindParse, Classify(err))
}

func TestNetworkError(t *testing.T) {
	client, srv := newTestClient(t, nethttp.NotFoundHandler())
	srv.Close()
	client.httpClient = client.plainClient

	_, err := client.StarredFiles(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, KindNetwork, Classify(err))
}

func TestMutationBodies(t *testing.T) {
	type seen struct {
		method, path string
		body         map[string]interface{}
	}
	var mu sync.Mutex
	var requests []seen

	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body map[string]interface{}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &body)
		}
		mu.Lock()
		requests = append(requests, seen{r.Method, r.URL.Path, body})
		mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/star"):
			writeJSON(w, 200, models.StarResult{FileID: 1, Starred: true})
		case r.URL.Path == "/api/folders":
			assert.Equal(t, "docs", r.URL.Query().Get("name"))
			assert.Equal(t, "3", r.URL.Query().Get("parent_id"))
			writeJSON(w, 200, models.FolderMeta{ID: 12, Name: "docs", ParentID: 3})
		default:
			writeJSON(w, 200, models.MessageResponse{Message: "ok"})
		}
	}))
	ctx := context.Background()

	require.NoError(t, client.MoveFile(ctx, 1, 8))
	require.NoError(t, client.CopyFile(ctx, 1, 9))
	require.NoError(t, client.RenameFile(ctx, 1, "b.txt"))
	require.NoError(t, client.RestoreFile(ctx, 1))
	require.NoError(t, client.DeleteFilePermanent(ctx, 1))
	require.NoError(t, client.DeleteFolder(ctx, 3))
	require.NoError(t, client.RestoreVersion(ctx, 1, "v2"))
	star, err := client.ToggleStar(ctx, 1)
	require.NoError(t, err)
	assert.True(t, star.Starred)
	folder, err := client.CreateFolder(ctx, "docs", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(12), folder.ID)

	require.Len(t, requests, 9)
	assert.Equal(t, seen{"POST", "/api/files/1/move", map[string]interface{}{"folder_id": float64(8)}}, requests[0])
	assert.Equal(t, seen{"POST", "/api/files/1/copy", map[string]interface{}{"folder_id": float64(9)}}, requests[1])
	assert.Equal(t, seen{"POST", "/api/files/1/rename", map[string]interface{}{"name": "b.txt"}}, requests[2])
	assert.Equal(t, "/api/files/1/restore", requests[3].path)
	assert.Equal(t, seen{"DELETE", "/api/files/1/permanent", nil}, requests[4])
	assert.Equal(t, seen{"DELETE", "/api/folders/3", nil}, requests[5])
	assert.Equal(t, seen{"POST", "/api/files/1/restore-version", map[string]interface{}{"version_id": "v2"}}, requests[6])
}

func TestBulk(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/api/files/bulk", r.URL.Path)
		var req models.BulkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.BulkDelete, req.Operation)
		assert.Equal(t, []int64{10, 11, 12}, req.FileIDs)
		writeJSON(w, 200, models.BulkResult{TotalProcessed: 2})
	}))

	result, err := client.Bulk(context.Background(), models.BulkRequest{
		Operation: models.BulkDelete,
		FileIDs:   []int64{10, 11, 12},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalProcessed)

	_, err = client.Bulk(context.Background(), models.BulkRequest{Operation: models.BulkMove, FileIDs: []int64{1}})
	assert.Error(t, err, "move without target must be rejected")

	_, err = client.Bulk(context.Background(), models.BulkRequest{Operation: "shred", FileIDs: []int64{1}})
	assert.Error(t, err)
}

func TestThrottledDrainsLimiter(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Retry-After", "2")
		writeJSON(w, 429, map[string]string{"detail": "slow down"})
	}))

	err := client.DeleteFile(context.Background(), 1)
	require.Error(t, err)
	assert.Greater(t, client.limiter.CooldownRemaining(), time.Second)
}

func TestUpload(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 256*1024)

	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "7", r.FormValue("folder_id"))
		assert.Equal(t, "upload_1_abcd", r.FormValue("upload_id"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		got, _ := io.ReadAll(f)
		assert.Equal(t, len(content), len(got))
		writeJSON(w, 200, models.FileMeta{ID: 44, Name: hdr.Filename, Size: int64(len(got)), FolderID: 7})
	}))

	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))

	var last, total int64
	file, err := client.UploadFile(context.Background(), path, 7, "upload_1_abcd", func(loaded, tot int64) {
		assert.GreaterOrEqual(t, loaded, last)
		last, total = loaded, tot
	})
	require.NoError(t, err)
	assert.Equal(t, int64(44), file.ID)
	assert.Equal(t, "blob.bin", file.Name)
	assert.Equal(t, int64(len(content)), last)
	assert.Equal(t, int64(len(content)), total)
}

func TestUpload_BackendCancelled(t *testing.T) {
	tests := []struct {
		name   string
		status int
		detail string
	}{
		{"499", StatusClientClosedRequest, "Upload cancelled"},
		{"499 re-raised as 500", nethttp.StatusInternalServerError, "499: Upload cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				writeJSON(w, tt.status, map[string]string{"detail": tt.detail})
			}))

			_, err := client.Upload(context.Background(), UploadRequest{
				Name: "a.txt", Reader: strings.NewReader("hello"), Size: 5, UploadID: "u1",
			}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCancelled)
			assert.Equal(t, KindCancelled, Classify(err))
		})
	}
}

func TestUpload_ContextCancelled(t *testing.T) {
	started := make(chan struct{})
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		close(started)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.Upload(ctx, UploadRequest{
		Name: "a.txt", Reader: strings.NewReader("hello"), Size: 5, UploadID: "u2",
	}, nil)
	require.Error(t, err)
	assert.Equal(t, KindCancelled, Classify(err))
}

func TestCancelUpload(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, nethttp.MethodPost, r.Method)
		assert.Equal(t, "/api/upload/cancel/upload_9_ff", r.URL.Path)
		writeJSON(w, 200, models.MessageResponse{Message: "Upload cancelled"})
	}))

	assert.NoError(t, client.CancelUpload(context.Background(), "upload_9_ff"))
}

func TestDownloadFile(t *testing.T) {
	content := []byte("file body")
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/api/download/5", r.URL.Path)
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", `attachment; filename="notes.txt"`)
		_, _ = w.Write(content)
	}))

	dest := filepath.Join(t.TempDir(), "sub", "notes.txt")
	var loaded int64
	info, err := client.DownloadFile(context.Background(), 5, dest, func(l, _ int64) { loaded = l })
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", info.FileName)
	assert.Equal(t, int64(len(content)), info.Bytes)
	assert.Equal(t, int64(len(content)), loaded)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_NotFound(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, 404, map[string]string{"detail": "File not found"})
	}))

	var buf bytes.Buffer
	_, err := client.Download(context.Background(), 5, &buf, nil)
	assert.True(t, IsNotFound(err))
	assert.Zero(t, buf.Len())
}

func TestDefaultFileName(t *testing.T) {
	assert.Equal(t, "file_3", DefaultFileName(3, ""))
	assert.Equal(t, "file_3", DefaultFileName(3, "application/x-unknown-type"))
	assert.True(t, strings.HasPrefix(DefaultFileName(3, "image/png"), "file_3.png"))
}
