// Package poster defines the core types shared across the poster subsystems.
package poster

import (
	"net/http"
	"time"
)

// Poster is the result of a pipeline lookup.
type Poster struct {
	Title       string
	CacheKey    string
	Path        string
	Data        []byte
	ContentType string
	ContentHash string
	ModTime     time.Time
	CacheHit    bool
	SourceURL   string
}

// CachedEvent is published after a freshly downloaded poster lands in the cache.
type CachedEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CacheKey    string    `json:"cache_key"`
	SourceURL   string    `json:"source_url"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	CachedAt    time.Time `json:"cached_at"`
}

// Attributes returns the message attributes attached to the published event.
func (e CachedEvent) Attributes() map[string]string {
	return map[string]string{
		"event":     "poster.cached",
		"cache_key": e.CacheKey,
	}
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ContentType returns the response Content-Type, sniffing the body when the header is absent.
func (r FetchResponse) ContentType() string {
	if ct := r.Headers.Get("Content-Type"); ct != "" {
		return ct
	}
	return http.DetectContentType(r.Body)
}
