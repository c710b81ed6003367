// Package remote talks to the update server: it fetches the authoritative
// manifest and downloads the files it declares. Transport failures are
// translated into the recoverable DNSError/HTTPError taxonomy so the
// caller can surface them as retryable conditions.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/knsrhuseyin/crm-client-splash-update/internal/manifest"
)

// downloadChunkSize is the streaming unit for file downloads; progress is
// reported at most once per chunk.
const downloadChunkSize = 64 * 1024

// maxErrorBodySize caps how much of an error response body is read for
// message extraction.
const maxErrorBodySize = 64 * 1024

// ProgressFunc receives progress as an integer percent in [0,100] plus a
// label naming the current file (or the manifest phase)
type ProgressFunc func(percent int, label string)

// Client provides manifest retrieval and file downloads from the update server
type Client interface {
	// FetchManifest retrieves and decodes the remote manifest
	FetchManifest(ctx context.Context, url string) (*manifest.Manifest, error)
	// DownloadAll sequentially downloads the given manifest paths into destDir,
	// reporting batch-scaled progress through onProgress
	DownloadAll(ctx context.Context, m *manifest.Manifest, paths []string, destDir string, onProgress ProgressFunc) error
}

// HTTPClient implements Client over net/http
type HTTPClient struct {
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a client with the given request timeout
func NewHTTPClient(timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// FetchManifest issues a one-shot GET for the remote manifest. There is no
// retry here; retry is a user-initiated action at the orchestrator boundary.
func (c *HTTPClient) FetchManifest(ctx context.Context, url string) (*manifest.Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &HTTPError{Message: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	var m manifest.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, &HTTPError{Status: resp.StatusCode, Message: fmt.Sprintf("invalid manifest body: %v", err)}
	}
	if m.Files == nil {
		m.Files = make(map[string]string)
	}

	c.logger.Debug("manifest fetched", "url", url, "files", len(m.Files))
	return &m, nil
}

// DownloadAll downloads each path in order. For the i-th file of N, the
// reported percent is ((i-1)*100 + filePercent) / N, so the sequence is
// non-decreasing across the whole batch. The first failure aborts the batch.
func (c *HTTPClient) DownloadAll(ctx context.Context, m *manifest.Manifest, paths []string, destDir string, onProgress ProgressFunc) error {
	total := len(paths)
	if total == 0 {
		return nil
	}

	for i, relPath := range paths {
		done := i // files fully downloaded before this one
		perFile := func(filePercent int) {
			if onProgress != nil {
				onProgress((done*100+filePercent)/total, relPath)
			}
		}

		c.logger.Debug("downloading file", "path", relPath, "index", i+1, "total", total)
		if err := c.downloadFile(ctx, m.FileURL(relPath), filepath.Join(destDir, filepath.FromSlash(relPath)), perFile); err != nil {
			return err
		}
	}

	return nil
}

// downloadFile streams one file to destPath through a temp file in the same
// directory, renaming into place once the body is fully written. filePercent
// fires per chunk only when the server declares a content length.
func (c *HTTPClient) downloadFile(ctx context.Context, url, destPath string, filePercent func(int)) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", destPath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &HTTPError{Message: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", destPath, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	totalBytes := resp.ContentLength
	received := int64(0)
	buf := make([]byte, downloadChunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				_ = tmpFile.Close()
				return fmt.Errorf("failed to write %s: %w", destPath, err)
			}
			received += int64(n)
			if totalBytes > 0 {
				filePercent(int(received * 100 / totalBytes))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = tmpFile.Close()
			return classifyTransportErr(readErr)
		}
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", destPath, err)
	}

	return nil
}

// errorMessage extracts a display message from an error response body: the
// "detail" field when the body is a JSON object, the raw text otherwise.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return "request failed"
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err == nil {
		if detail, ok := payload["detail"].(string); ok && detail != "" {
			return detail
		}
	}

	return string(data)
}
