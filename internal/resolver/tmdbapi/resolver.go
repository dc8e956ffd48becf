// Package tmdbapi resolves movie titles to poster URLs through the TMDb v3 search API.
package tmdbapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/poster"
)

// Defaults target the public TMDb API.
const (
	DefaultAPIBase   = "https://api.themoviedb.org/3"
	DefaultImageBase = "https://image.tmdb.org/t/p"
	DefaultSize      = "original"
)

var (
	punctuation = regexp.MustCompile(`[^0-9\pL\s]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// Config holds API credentials and endpoints.
type Config struct {
	// APIKey is either a v3 key, sent as api_key, or a v4 read access token (a JWT),
	// sent as a bearer token.
	APIKey    string
	APIBase   string
	ImageBase string
	Size      string
	Language  string
}

type searchResponse struct {
	Results []struct {
		Title      string `json:"title"`
		PosterPath string `json:"poster_path"`
	} `json:"results"`
}

// Resolver implements poster.Resolver on the TMDb search API.
type Resolver struct {
	fetcher poster.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New builds a Resolver. It fails when no API key is configured.
func New(fetcher poster.Fetcher, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("tmdb api key is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.ImageBase == "" {
		cfg.ImageBase = DefaultImageBase
	}
	if cfg.Size == "" {
		cfg.Size = DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, cfg: cfg, logger: logger}, nil
}

// Resolve returns the poster URL of the first search result that has one. When the
// literal title finds nothing, a second pass runs with punctuation stripped.
func (r *Resolver) Resolve(ctx context.Context, title string) (string, error) {
	terms := []string{strings.TrimSpace(title)}
	if soft := depunctuate(title); soft != "" && !strings.EqualFold(soft, terms[0]) {
		terms = append(terms, soft)
	}
	for _, term := range terms {
		path, err := r.search(ctx, term)
		if err != nil {
			return "", err
		}
		if path != "" {
			return r.imageURL(path), nil
		}
		r.logger.Debug("tmdb search returned no poster", zap.String("term", term))
	}
	return "", fmt.Errorf("tmdb search %q: %w", title, poster.ErrNoMatch)
}

func (r *Resolver) search(ctx context.Context, term string) (string, error) {
	req := r.searchRequest(term)
	resp, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		return "", poster.NewError(poster.KindUpstream, "tmdb search failed", err)
	}
	var parsed searchResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", poster.NewError(poster.KindUpstream, "tmdb search failed", fmt.Errorf("decode response: %w", err))
	}
	for _, result := range parsed.Results {
		if result.PosterPath != "" {
			return result.PosterPath, nil
		}
	}
	return "", nil
}

func (r *Resolver) searchRequest(term string) poster.FetchRequest {
	q := url.Values{}
	q.Set("query", term)
	q.Set("include_adult", "false")
	q.Set("page", "1")
	if r.cfg.Language != "" {
		q.Set("language", r.cfg.Language)
	}
	headers := http.Header{"Accept": {"application/json"}}
	if isBearerToken(r.cfg.APIKey) {
		headers.Set("Authorization", "Bearer "+r.cfg.APIKey)
	} else {
		q.Set("api_key", r.cfg.APIKey)
	}
	return poster.FetchRequest{
		URL:     strings.TrimSuffix(r.cfg.APIBase, "/") + "/search/movie?" + q.Encode(),
		Headers: headers,
	}
}

func (r *Resolver) imageURL(path string) string {
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimSuffix(r.cfg.ImageBase, "/"), r.cfg.Size, strings.TrimPrefix(path, "/"))
}

// isBearerToken reports whether key looks like a v4 read access token.
func isBearerToken(key string) bool {
	return strings.Count(key, ".") == 2
}

func depunctuate(q string) string {
	q = punctuation.ReplaceAllString(q, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(q, " "))
}
