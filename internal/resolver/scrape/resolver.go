// Package scrape resolves movie titles to poster URLs by scraping the TMDb search page.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/poster"
)

// Defaults target the public TMDb website.
const (
	DefaultSearchURL      = "https://www.themoviedb.org/search?query="
	DefaultOrigin         = "https://www.themoviedb.org"
	DefaultResultSelector = ".card.v4.tight"
	DefaultImageSelector  = "img.poster"
)

// sizeVariant matches TMDb resized image segments such as /w94_and_h141_bestv2.
var sizeVariant = regexp.MustCompile(`(?i)/w\d+_and_h\d+_[a-z0-9]+`)

// imageAttrs lists the attributes read from the poster element, in order. Lazy-loaded
// cards carry the real URL in data-src.
var imageAttrs = []string{"src", "data-src"}

// Config controls which page is fetched and how its markup is read.
type Config struct {
	SearchURL      string
	Origin         string
	ResultSelector string
	ImageSelector  string
}

// Promoter decides whether a page without result cards should be rendered headlessly.
type Promoter interface {
	ShouldPromote(resp poster.FetchResponse) bool
}

// Resolver implements poster.Resolver against HTML search results.
type Resolver struct {
	fetcher  poster.Fetcher
	headless poster.Fetcher
	promoter Promoter
	cfg      Config
	logger   *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithHeadless enables promotion to a headless fetcher when promoter approves.
func WithHeadless(fetcher poster.Fetcher, promoter Promoter) Option {
	return func(r *Resolver) {
		r.headless = fetcher
		r.promoter = promoter
	}
}

// New builds a Resolver on top of fetcher.
func New(fetcher poster.Fetcher, cfg Config, logger *zap.Logger, opts ...Option) *Resolver {
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.ResultSelector == "" {
		cfg.ResultSelector = DefaultResultSelector
	}
	if cfg.ImageSelector == "" {
		cfg.ImageSelector = DefaultImageSelector
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{fetcher: fetcher, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve searches for title and returns the absolute URL of the first result's poster.
// It returns poster.ErrNoMatch when the page has no result card or the card has no image.
func (r *Resolver) Resolve(ctx context.Context, title string) (string, error) {
	searchURL := r.SearchURL(title)
	resp, err := r.fetcher.Fetch(ctx, poster.FetchRequest{URL: searchURL})
	if err != nil {
		return "", poster.NewError(poster.KindUpstream, "search request failed", err)
	}

	src, found, err := r.extract(resp.Body)
	if err != nil {
		return "", poster.NewError(poster.KindUpstream, "parse search results", err)
	}
	if !found && r.shouldPromote(resp) {
		r.logger.Info("no result card in static page; rendering headless", zap.String("url", searchURL))
		rendered, herr := r.headless.Fetch(ctx, poster.FetchRequest{URL: searchURL})
		if herr != nil {
			return "", poster.NewError(poster.KindUpstream, "headless search request failed", herr)
		}
		if src, found, err = r.extract(rendered.Body); err != nil {
			return "", poster.NewError(poster.KindUpstream, "parse rendered search results", err)
		}
	}
	if !found {
		return "", fmt.Errorf("search %q: %w", title, poster.ErrNoMatch)
	}
	return NormalizeURL(src, r.cfg.Origin), nil
}

// componentEscaper turns url.QueryEscape output into URI component encoding: spaces become
// %20 and the marks !'()* stay literal.
var componentEscaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// SearchURL percent-encodes title into the configured search endpoint.
func (r *Resolver) SearchURL(title string) string {
	return r.cfg.SearchURL + componentEscaper.Replace(url.QueryEscape(title))
}

func (r *Resolver) shouldPromote(resp poster.FetchResponse) bool {
	if r.headless == nil {
		return false
	}
	if r.promoter == nil {
		return true
	}
	return r.promoter.ShouldPromote(resp)
}

// extract returns the image source of the first result card. found is false when there
// is no card, or the first card has no image source.
func (r *Resolver) extract(body []byte) (src string, found bool, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("parse html: %w", err)
	}
	card := doc.Find(r.cfg.ResultSelector).First()
	if card.Length() == 0 {
		return "", false, nil
	}
	img := card.Find(r.cfg.ImageSelector).First()
	for _, attr := range imageAttrs {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true, nil
		}
	}
	return "", false, nil
}

// NormalizeURL makes src absolute against origin and requests the original size variant.
// Only the first size segment is rewritten.
func NormalizeURL(src, origin string) string {
	full := src
	switch {
	case strings.HasPrefix(src, "//"):
		full = "https:" + src
	case strings.HasPrefix(src, "/"):
		full = strings.TrimSuffix(origin, "/") + src
	}
	loc := sizeVariant.FindStringIndex(full)
	if loc == nil {
		return full
	}
	return full[:loc[0]] + "/original" + full[loc[1]:]
}
