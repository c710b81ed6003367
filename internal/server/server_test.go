package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knsrhuseyin/crm-client-splash-update/internal/config"
	"github.com/knsrhuseyin/crm-client-splash-update/internal/manifest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, advertiseURL string) (*Server, string) {
	t.Helper()

	rootDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(rootDir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "sub", "b.txt"), []byte("world"), 0644))

	cfg := &config.Config{
		Serve: config.ServeConfig{
			ListenAddr:   "127.0.0.1:0",
			RootDir:      rootDir,
			AdvertiseURL: advertiseURL,
		},
	}
	cfg.ApplyDefaults()

	srv := New(cfg, testLogger())
	require.NoError(t, srv.Refresh())
	return srv, rootDir
}

func TestHandleManifest(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/manifest.json")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var m manifest.Manifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))

	assert.Equal(t, ts.URL+"/files", m.DownloadURL)
	assert.Len(t, m.Files, 2)
	assert.Len(t, m.Files["a.txt"], 64)
	assert.Contains(t, m.Files, "sub/b.txt")
}

func TestHandleManifestAdvertiseURL(t *testing.T) {
	srv, _ := newTestServer(t, "https://cdn.example.com/channel/")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/manifest.json")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	var m manifest.Manifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, "https://cdn.example.com/channel", m.DownloadURL)
}

func TestHandleManifestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/manifest.json", "application/json", nil)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleFile(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/files/sub/b.txt")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	// Content-Length drives the launcher's progress reporting
	assert.Equal(t, int64(5), resp.ContentLength)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestHandleFileUnknownPath(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/files/nope.txt")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleFileRejectsTraversal(t *testing.T) {
	srv, rootDir := newTestServer(t, "")

	// A file outside the channel root that must stay unreachable
	secret := filepath.Join(filepath.Dir(rootDir), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0644))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	for _, path := range []string{
		"/files/../secret.txt",
		"/files/sub/../../secret.txt",
		"/files/..%2Fsecret.txt",
	} {
		req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
		require.NoError(t, err)

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.NotEqual(t, http.StatusOK, resp.StatusCode, "path %s must not be served", path)
	}
}

func TestRefreshPicksUpChanges(t *testing.T) {
	srv, rootDir := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	require.NoError(t, os.WriteFile(filepath.Join(rootDir, "c.txt"), []byte("new"), 0644))
	require.NoError(t, srv.Refresh())

	resp, err := http.Get(ts.URL + "/manifest.json")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	var m manifest.Manifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Contains(t, m.Files, "c.txt")
}
