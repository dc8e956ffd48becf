package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/poster-cache/internal/fetcher/colly"
	"github.com/JakeFAU/poster-cache/internal/poster"
	"github.com/JakeFAU/poster-cache/internal/storage/local"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

type recordingStore struct {
	mu          sync.Mutex
	names       []string
	contentType string
	data        []byte
	err         error
}

func (s *recordingStore) PutObject(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.names = append(s.names, name)
	s.contentType = contentType
	s.data = data
	return "gs://posters/" + name, nil
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/original/poster.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(jpegBytes)
		case "/empty.jpg":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLocalStore(t *testing.T) *local.BlobStore {
	t.Helper()
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestFetchWritesFile(t *testing.T) {
	t.Parallel()

	srv := imageServer(t)
	store := newLocalStore(t)
	d := New(collyfetcher.New(collyfetcher.Config{}), store, zap.NewNop())

	path, err := d.Fetch(context.Background(), srv.URL+"/original/poster.jpg", "national_treasure.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.BaseDir(), "national_treasure.jpg"), path)
	assert.True(t, filepath.IsAbs(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, got)
}

func TestFetchOverwritesExistingFile(t *testing.T) {
	t.Parallel()

	srv := imageServer(t)
	store := newLocalStore(t)
	stale := filepath.Join(store.BaseDir(), "up.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("old bytes that are longer than the new ones"), 0o600))

	d := New(collyfetcher.New(collyfetcher.Config{}), store, nil)
	path, err := d.Fetch(context.Background(), srv.URL+"/original/poster.jpg", "up.jpg")
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, got)
}

func TestFetchStatusFailure(t *testing.T) {
	t.Parallel()

	srv := imageServer(t)
	store := newLocalStore(t)
	d := New(collyfetcher.New(collyfetcher.Config{}), store, nil)

	_, err := d.Fetch(context.Background(), srv.URL+"/missing.jpg", "missing.jpg")
	require.Error(t, err)
	assert.Equal(t, poster.KindDownload, poster.KindOf(err))
	var statusErr *poster.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	_, statErr := os.Stat(filepath.Join(store.BaseDir(), "missing.jpg"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchEmptyBody(t *testing.T) {
	t.Parallel()

	srv := imageServer(t)
	d := New(collyfetcher.New(collyfetcher.Config{}), newLocalStore(t), nil)
	_, err := d.Fetch(context.Background(), srv.URL+"/empty.jpg", "empty.jpg")
	require.Error(t, err)
	assert.Equal(t, poster.KindDownload, poster.KindOf(err))
}

func TestFetchOversizedPosterIsNotStored(t *testing.T) {
	t.Parallel()

	srv := imageServer(t)
	store := newLocalStore(t)
	d := New(collyfetcher.New(collyfetcher.Config{MaxBodySize: len(jpegBytes) - 1}), store, nil)

	_, err := d.Fetch(context.Background(), srv.URL+"/original/poster.jpg", "big.jpg")
	require.Error(t, err)
	assert.Equal(t, poster.KindDownload, poster.KindOf(err))
	require.ErrorIs(t, err, collyfetcher.ErrBodyTooLarge)

	_, statErr := os.Stat(filepath.Join(store.BaseDir(), "big.jpg"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchStoreFailure(t *testing.T) {
	t.Parallel()

	srv := imageServer(t)
	d := New(collyfetcher.New(collyfetcher.Config{}), &recordingStore{err: errors.New("disk full")}, nil)
	_, err := d.Fetch(context.Background(), srv.URL+"/original/poster.jpg", "x.jpg")
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, poster.KindDownload, poster.KindOf(err))
}

func TestFetchMirrorsPoster(t *testing.T) {
	t.Parallel()

	srv := imageServer(t)
	mirror := &recordingStore{}
	d := New(collyfetcher.New(collyfetcher.Config{}), newLocalStore(t), nil, WithMirror(mirror))

	_, err := d.Fetch(context.Background(), srv.URL+"/original/poster.jpg", "up.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"up.jpg"}, mirror.names)
	assert.Equal(t, "image/jpeg", mirror.contentType)
	assert.Equal(t, jpegBytes, mirror.data)
}

func TestFetchMirrorFailureIsIgnored(t *testing.T) {
	t.Parallel()

	srv := imageServer(t)
	d := New(collyfetcher.New(collyfetcher.Config{}), newLocalStore(t), nil,
		WithMirror(&recordingStore{err: errors.New("bucket gone")}))

	path, err := d.Fetch(context.Background(), srv.URL+"/original/poster.jpg", "up.jpg")
	require.NoError(t, err)
	assert.FileExists(t, path)
}
