package tmdbapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/poster-cache/internal/fetcher/colly"
	"github.com/JakeFAU/poster-cache/internal/poster"
)

type searchResult struct {
	Title      string `json:"title"`
	PosterPath string `json:"poster_path"`
}

type fakeAPI struct {
	mu       sync.Mutex
	queries  []string
	apiKeys  []string
	auth     []string
	results  map[string][]searchResult
	failCode int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Query().Get("query"))
	f.apiKeys = append(f.apiKeys, r.URL.Query().Get("api_key"))
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	results := f.results[r.URL.Query().Get("query")]
	f.mu.Unlock()

	if r.URL.Path != "/3/search/movie" {
		http.NotFound(w, r)
		return
	}
	if f.failCode != 0 {
		w.WriteHeader(f.failCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func newTestResolver(t *testing.T, api *fakeAPI, key string) *Resolver {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	r, err := New(collyfetcher.New(collyfetcher.Config{}), Config{
		APIKey:    key,
		APIBase:   srv.URL + "/3",
		ImageBase: "https://image.tmdb.org/t/p/",
	}, nil)
	require.NoError(t, err)
	return r
}

func TestResolveFirstPosterPath(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{results: map[string][]searchResult{
		"Last Crusade": {
			{Title: "Unreleased", PosterPath: ""},
			{Title: "Indiana Jones and the Last Crusade", PosterPath: "/sq6.jpg"},
		},
	}}
	r := newTestResolver(t, api, "v3key")

	got, err := r.Resolve(context.Background(), "Last Crusade")
	require.NoError(t, err)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/sq6.jpg", got)
	assert.Equal(t, []string{"v3key"}, api.apiKeys)
	assert.Equal(t, []string{""}, api.auth)
}

func TestResolveBearerToken(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{results: map[string][]searchResult{"Up": {{PosterPath: "/up.jpg"}}}}
	r := newTestResolver(t, api, "aaa.bbb.ccc")

	_, err := r.Resolve(context.Background(), "Up")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer aaa.bbb.ccc"}, api.auth)
	assert.Equal(t, []string{""}, api.apiKeys)
}

func TestResolveDepunctuatedRetry(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{results: map[string][]searchResult{
		"Spider Man Into The Spider Verse": {{PosterPath: "/spidey.jpg"}},
	}}
	r := newTestResolver(t, api, "k")

	got, err := r.Resolve(context.Background(), "Spider-Man: Into The Spider-Verse")
	require.NoError(t, err)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/spidey.jpg", got)
	assert.Equal(t, []string{"Spider-Man: Into The Spider-Verse", "Spider Man Into The Spider Verse"}, api.queries)
}

func TestResolveNoMatch(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &fakeAPI{}, "k")
	_, err := r.Resolve(context.Background(), "zzzz")
	require.ErrorIs(t, err, poster.ErrNoMatch)
}

func TestResolveUpstreamStatus(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, &fakeAPI{failCode: http.StatusUnauthorized}, "bad")
	_, err := r.Resolve(context.Background(), "Up")
	require.Error(t, err)
	assert.Equal(t, poster.KindUpstream, poster.KindOf(err))
	var statusErr *poster.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{APIKey: "  "}, nil)
	require.Error(t, err)
}

func TestDepunctuate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Amélie 2001", depunctuate("Amélie (2001)"))
	assert.Equal(t, "", depunctuate("?!"))
}
