package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/tgdrive/tgdrive/internal/models"
	"github.com/tgdrive/tgdrive/internal/util/buffers"
)

// ProgressFunc receives raw byte-level transfer progress. total is -1 when
// the size is unknown. It is called from the goroutine doing the I/O.
type ProgressFunc func(loaded, total int64)

// UploadRequest describes one file sent to POST /upload.
type UploadRequest struct {
	Name     string    // file name as stored by the backend
	Reader   io.Reader // file content
	Size     int64     // bytes in Reader, used for progress
	FolderID int64     // target folder, 0 for root
	UploadID string    // correlates the request with /upload/cancel/{id}
}

// UploadFile opens path and streams it to the backend.
func (c *Client) UploadFile(ctx context.Context, path string, folderID int64, uploadID string, onProgress ProgressFunc) (*models.FileMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return c.Upload(ctx, UploadRequest{
		Name:     filepath.Base(path),
		Reader:   f,
		Size:     info.Size(),
		FolderID: folderID,
		UploadID: uploadID,
	}, onProgress)
}

// Upload streams a multipart body (file, folder_id, upload_id) to POST /upload.
// The body is produced through a pipe so the file is never buffered in memory.
// Uploads are never retried. Cancelling ctx aborts the request and yields an
// error matching ErrCancelled, as does a 499 from the backend.
func (c *Client) Upload(ctx context.Context, req UploadRequest, onProgress ProgressFunc) (*models.FileMeta, error) {
	const path = "/upload"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, networkError(nethttp.MethodPost, path, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	httpReq, err := c.newRequest(ctx, nethttp.MethodPost, path, nil, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pw.CloseWithError(writeUploadBody(mw, req, onProgress))
	}()

	c.totalCalls.Add(1)
	resp, err := c.transferClient.Do(httpReq)
	// The transport closes the pipe reader when it is done with the body,
	// which unblocks the writer on every path.
	pr.Close()
	wg.Wait()
	if err != nil {
		c.logger.Debug().Err(err).Str("upload_id", req.UploadID).Msg("Upload request failed")
		return nil, networkError(nethttp.MethodPost, path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(nethttp.MethodPost, path, resp); err != nil {
		return nil, err
	}

	var file models.FileMeta
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &file, nil
}

func writeUploadBody(mw *multipart.Writer, req UploadRequest, onProgress ProgressFunc) error {
	if err := mw.WriteField("folder_id", strconv.FormatInt(req.FolderID, 10)); err != nil {
		return err
	}
	if err := mw.WriteField("upload_id", req.UploadID); err != nil {
		return err
	}

	part, err := mw.CreateFormFile("file", req.Name)
	if err != nil {
		return err
	}

	src := req.Reader
	if onProgress != nil {
		src = &countingReader{r: req.Reader, total: req.Size, onProgress: onProgress}
	}
	buf := buffers.GetCopyBuffer()
	defer buffers.PutCopyBuffer(buf)
	if _, err := io.CopyBuffer(part, src, *buf); err != nil {
		return err
	}
	return mw.Close()
}

// countingReader reports cumulative bytes read.
type countingReader struct {
	r          io.Reader
	total      int64
	loaded     int64
	onProgress ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.loaded += int64(n)
		cr.onProgress(cr.loaded, cr.total)
	}
	return n, err
}
