package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Server: config.ServerConfig{Port: 2525, RequestTimeoutSeconds: 5, ShutdownTimeoutSeconds: 1},
		Upstream: config.UpstreamConfig{
			Resolver:       config.ResolverScrape,
			SearchURL:      "http://127.0.0.1:1/search?query=",
			ResultSelector: ".card.v4.tight",
			ImageSelector:  "img.poster",
		},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 1, RateLimitRPS: 10, RateLimitBurst: 10},
		Cache:   config.CacheConfig{Backend: config.CacheBackendFile, File: filepath.Join(dir, "movie-cache.json")},
		Storage: config.StorageConfig{DownloadsDir: filepath.Join(dir, "downloads"), Extension: ".jpg"},
		Submissions: config.SubmissionsConfig{
			HTMLFile:       filepath.Join(dir, "submissions.html"),
			JSONFile:       filepath.Join(dir, "submissions.json"),
			MaxFieldLength: 25,
		},
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestBuildWiresFileBackedApp(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	app, err := buildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	require.DirExists(t, cfg.Storage.DownloadsDir)
	require.FileExists(t, cfg.Submissions.HTMLFile)
	require.FileExists(t, cfg.Submissions.JSONFile)

	h := app.Handler()
	require.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/poster").Code)

	rec := get(t, h, "/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"total":0,"entries":[]}`, rec.Body.String())

	app.Close(context.Background())
	require.FileExists(t, cfg.Cache.File)
}

func TestReadyzFailsWhenDownloadsDirDisappears(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	app, err := buildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close(context.Background())

	require.NoError(t, os.RemoveAll(cfg.Storage.DownloadsDir))
	rec := get(t, app.Handler(), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "downloads")
}

func TestBuildAPIResolverRequiresKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Upstream.Resolver = config.ResolverAPI
	_, err := buildWithLogger(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "api resolver init failed")
}

func TestBuildRejectsUnusableDownloadsDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.Storage.DownloadsDir = blocker

	_, err := buildWithLogger(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "downloads dir init failed")
}
