// Package download fetches poster images and writes them into the downloads directory.
package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/poster"
)

// Downloader implements poster.ImageFetcher.
type Downloader struct {
	fetcher poster.Fetcher
	store   poster.BlobStore
	mirror  poster.BlobStore
	logger  *zap.Logger
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithMirror copies every downloaded poster to mirror as well. Mirror failures are logged
// and never fail the download.
func WithMirror(mirror poster.BlobStore) Option {
	return func(d *Downloader) {
		d.mirror = mirror
	}
}

// New builds a Downloader that fetches through fetcher and writes through store.
func New(fetcher poster.Fetcher, store poster.BlobStore, logger *zap.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Downloader{fetcher: fetcher, store: store, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads url in full and stores it as filename, overwriting any previous file.
// It returns the path reported by the store.
func (d *Downloader) Fetch(ctx context.Context, url string, filename string) (string, error) {
	resp, err := d.fetcher.Fetch(ctx, poster.FetchRequest{
		URL:     url,
		Headers: http.Header{"Accept": {"image/avif,image/webp,image/*,*/*;q=0.8"}},
	})
	if err != nil {
		return "", poster.NewError(poster.KindDownload, "download poster", err)
	}
	if len(resp.Body) == 0 {
		return "", poster.NewError(poster.KindDownload, "download poster", errors.New("empty response body"))
	}
	contentType := resp.ContentType()

	path, err := d.store.PutObject(ctx, filename, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		return "", poster.NewError(poster.KindDownload, "write poster", err)
	}
	d.logger.Debug("poster written",
		zap.String("url", url),
		zap.String("path", path),
		zap.Int("bytes", len(resp.Body)),
		zap.String("content_type", contentType),
	)

	if d.mirror != nil {
		uri, err := d.mirror.PutObject(ctx, filename, contentType, bytes.NewReader(resp.Body))
		if err != nil {
			d.logger.Warn("poster mirror failed", zap.String("filename", filename), zap.Error(err))
		} else {
			d.logger.Debug("poster mirrored", zap.String("uri", uri))
		}
	}
	return path, nil
}
