package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// DownloadProgress is a snapshot emitted while a download runs. TotalBytes
// is zero when the server does not report a content length.
type DownloadProgress struct {
	BytesCopied int64
	TotalBytes  int64
}

// Downloader fetches enclosures and book files to local paths. Progress is
// observed through a channel and cancellation through the context; there is
// no callback surface.
type Downloader struct {
	httpClient *http.Client
	userAgent  string
}

func NewDownloader(httpClient *http.Client, userAgent string) *Downloader {
	return &Downloader{httpClient: httpClient, userAgent: userAgent}
}

// Download fetches url into destPath, emitting progress snapshots to the
// optional progress channel. Snapshots are dropped rather than blocking a
// slow observer. Returns the final path on success.
func (d *Downloader) Download(ctx context.Context, url, destPath string, progress chan<- DownloadProgress) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create destination directory: %w", err)
		}
	}

	tmpPath := destPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var copied int64
	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			os.Remove(tmpPath)
			return "", err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(tmpPath)
				return "", fmt.Errorf("failed to write download: %w", writeErr)
			}
			copied += int64(n)

			if progress != nil {
				select {
				case progress <- DownloadProgress{BytesCopied: copied, TotalBytes: total}:
				default:
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(tmpPath)
			return "", &FetchError{URL: url, Err: readErr}
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close destination file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize download: %w", err)
	}

	return destPath, nil
}
