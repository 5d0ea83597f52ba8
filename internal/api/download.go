package api

import (
	"context"
	"fmt"
	"io"
	"mime"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tgdrive/tgdrive/internal/diskspace"
	"github.com/tgdrive/tgdrive/internal/util/buffers"
)

// DownloadInfo describes a finished download.
type DownloadInfo struct {
	Bytes       int64
	ContentType string
	FileName    string // from Content-Disposition, empty for inline media
}

// openDownload issues GET /download/{id} on the transfer client. Downloads
// are streamed and not retried.
func (c *Client) openDownload(ctx context.Context, fileID int64) (*nethttp.Response, string, error) {
	path := idPath("/download/%d", fileID)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, path, networkError(nethttp.MethodGet, path, err)
	}

	req, err := c.newRequest(ctx, nethttp.MethodGet, path, nil, nil)
	if err != nil {
		return nil, path, err
	}
	req.Header.Set("Accept", "*/*")

	c.totalCalls.Add(1)
	resp, err := c.transferClient.Do(req)
	if err != nil {
		return nil, path, networkError(nethttp.MethodGet, path, err)
	}
	if err := checkResponse(nethttp.MethodGet, path, resp); err != nil {
		resp.Body.Close()
		return nil, path, err
	}
	return resp, path, nil
}

// Download streams the content of a file into w.
func (c *Client) Download(ctx context.Context, fileID int64, w io.Writer, onProgress ProgressFunc) (*DownloadInfo, error) {
	resp, path, err := c.openDownload(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	info := downloadInfo(resp)
	n, err := copyWithProgress(w, resp.Body, resp.ContentLength, onProgress)
	info.Bytes = n
	if err != nil {
		return info, networkError(nethttp.MethodGet, path, err)
	}
	return info, nil
}

// DownloadFile writes a file to destPath. Content goes to destPath+".part"
// first and is renamed on success, so an interrupted download never leaves a
// truncated file under the final name. When the server announces a length
// the destination filesystem is checked for room before writing.
func (c *Client) DownloadFile(ctx context.Context, fileID int64, destPath string, onProgress ProgressFunc) (*DownloadInfo, error) {
	resp, path, err := c.openDownload(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", destPath, err)
	}
	if err := diskspace.CheckDownload(destPath, resp.ContentLength); err != nil {
		return nil, err
	}

	partPath := destPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", partPath, err)
	}

	info := downloadInfo(resp)
	n, copyErr := copyWithProgress(out, resp.Body, resp.ContentLength, onProgress)
	info.Bytes = n
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(partPath)
		return info, networkError(nethttp.MethodGet, path, copyErr)
	}
	if closeErr != nil {
		os.Remove(partPath)
		return info, fmt.Errorf("failed to write %s: %w", partPath, closeErr)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		os.Remove(partPath)
		return info, fmt.Errorf("%s: %w: got %d of %d bytes", path, ErrNetwork, n, resp.ContentLength)
	}
	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return info, fmt.Errorf("failed to move download into place: %w", err)
	}

	c.logger.Debug().Int64("file_id", fileID).Str("path", destPath).Int64("bytes", n).Msg("Download complete")
	return info, nil
}

func downloadInfo(resp *nethttp.Response) *DownloadInfo {
	info := &DownloadInfo{ContentType: resp.Header.Get("Content-Type")}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			info.FileName = params["filename"]
		}
	}
	return info
}

// DefaultFileName picks a local name for a file whose record is unknown.
func DefaultFileName(fileID int64, contentType string) string {
	name := "file_" + strconv.FormatInt(fileID, 10)
	if contentType == "" {
		return name
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return name
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return name + exts[0]
	}
	return name
}

func copyWithProgress(w io.Writer, r io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	if onProgress != nil {
		r = &countingReader{r: r, total: total, onProgress: onProgress}
	}
	buf := buffers.GetCopyBuffer()
	defer buffers.PutCopyBuffer(buf)
	return io.CopyBuffer(w, r, *buf)
}
