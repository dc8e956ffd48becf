package poster

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/poster-cache/internal/metrics"
)

// Messages returned to API clients.
const (
	MsgTitleRequired = "Movie name is required. Use ?movie=YourMovieName"
	MsgNotFound      = "Movie poster not found"
	MsgFetchFailed   = "An error occurred while fetching the poster"
)

// Config controls pipeline behavior.
type Config struct {
	// Extension is appended to sanitized filenames (default ".jpg").
	Extension string
	// Topic receives CachedEvent payloads when a Publisher is configured.
	Topic string
}

// Pipeline resolves, downloads and caches posters behind a single Get call.
type Pipeline struct {
	cache     CacheStore
	resolver  Resolver
	images    ImageFetcher
	publisher Publisher
	hasher    Hasher
	clock     Clock
	idGen     IDGenerator
	cfg       Config
	logger    *zap.Logger
	inflight  singleflight.Group
}

// NewPipeline wires the pipeline dependencies. publisher, hasher and idGen may be nil.
func NewPipeline(
	cache CacheStore,
	resolver Resolver,
	images ImageFetcher,
	publisher Publisher,
	hasher Hasher,
	clock Clock,
	idGen IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	return &Pipeline{
		cache:     cache,
		resolver:  resolver,
		images:    images,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
	}
}

// Get returns the poster for title, serving from the cache when the cached file still exists.
func (p *Pipeline) Get(ctx context.Context, title string) (Poster, error) {
	if strings.TrimSpace(title) == "" {
		metrics.ObservePosterRequest(metrics.OutcomeInvalid)
		return Poster{}, NewError(KindValidation, MsgTitleRequired, nil)
	}
	key := NormalizeKey(title)
	p.logger.Info("poster requested", zap.String("title", title), zap.String("cache_key", key))

	if result, ok := p.lookup(ctx, title, key); ok {
		metrics.ObservePosterRequest(metrics.OutcomeHit)
		return result, nil
	}

	// Concurrent misses for one key share a single resolve and download. The flight
	// runs detached from the first caller so its cancellation does not fail the others.
	v, err, shared := p.inflight.Do(key, func() (any, error) {
		return p.fetch(context.WithoutCancel(ctx), title, key)
	})
	if err != nil {
		switch KindOf(err) {
		case KindNotFound:
			metrics.ObservePosterRequest(metrics.OutcomeNotFound)
		default:
			metrics.ObservePosterRequest(metrics.OutcomeError)
		}
		p.logger.Warn("poster lookup failed",
			zap.String("title", title),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return Poster{}, err
	}
	result, ok := v.(Poster)
	if !ok {
		return Poster{}, NewError(KindInternal, MsgFetchFailed, fmt.Errorf("unexpected flight result %T", v))
	}
	if shared {
		p.logger.Debug("poster flight shared", zap.String("cache_key", key))
	}
	result.Title = title
	if result.CacheHit {
		metrics.ObservePosterRequest(metrics.OutcomeHit)
	} else {
		metrics.ObservePosterRequest(metrics.OutcomeMiss)
	}
	return result, nil
}

// lookup serves a cache hit. Stale entries whose file is gone are reported as misses
// and left in the store until overwritten.
func (p *Pipeline) lookup(ctx context.Context, title, key string) (Poster, bool) {
	path, ok := p.cache.Get(ctx, key)
	if !ok {
		return Poster{}, false
	}
	result, err := p.readPoster(path)
	if err != nil {
		p.logger.Info("cached poster missing on disk; refetching",
			zap.String("cache_key", key),
			zap.String("path", path),
			zap.Error(err),
		)
		return Poster{}, false
	}
	result.Title = title
	result.CacheKey = key
	result.CacheHit = true
	p.logger.Info("found in cache", zap.String("cache_key", key), zap.String("path", path))
	return result, true
}

func (p *Pipeline) fetch(ctx context.Context, title, key string) (Poster, error) {
	if result, ok := p.lookup(ctx, title, key); ok {
		return result, nil
	}

	start := time.Now()
	sourceURL, err := p.resolver.Resolve(ctx, title)
	metrics.ObserveUpstream(metrics.StageResolve, time.Since(start))
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			return Poster{}, NewError(KindNotFound, MsgNotFound, err)
		}
		return Poster{}, classify(err)
	}
	p.logger.Info("found poster URL", zap.String("cache_key", key), zap.String("url", sourceURL))

	filename := SanitizeFilename(key, p.cfg.Extension)
	start = time.Now()
	path, err := p.images.Fetch(ctx, sourceURL, filename)
	metrics.ObserveUpstream(metrics.StageDownload, time.Since(start))
	if err != nil {
		return Poster{}, classify(err)
	}
	p.logger.Info("poster saved", zap.String("cache_key", key), zap.String("path", path))

	result, err := p.readPoster(path)
	if err != nil {
		return Poster{}, NewError(KindInternal, MsgFetchFailed, err)
	}
	p.cache.Put(ctx, key, path)
	metrics.SetCacheEntries(len(p.cache.Snapshot()))

	result.Title = title
	result.CacheKey = key
	result.SourceURL = sourceURL
	p.publishCached(ctx, result)
	return result, nil
}

func (p *Pipeline) readPoster(path string) (Poster, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Poster{}, fmt.Errorf("stat poster: %w", err)
	}
	if info.IsDir() {
		return Poster{}, fmt.Errorf("poster path %s is a directory", path)
	}
	// #nosec G304 -- paths come from the cache store or the downloads directory.
	data, err := os.ReadFile(path)
	if err != nil {
		return Poster{}, fmt.Errorf("read poster: %w", err)
	}
	result := Poster{
		Path:        path,
		Data:        data,
		ContentType: contentTypeFor(path, data),
		ModTime:     info.ModTime(),
	}
	if p.hasher != nil {
		sum, err := p.hasher.Hash(data)
		if err != nil {
			return Poster{}, fmt.Errorf("hash poster: %w", err)
		}
		result.ContentHash = sum
	}
	return result, nil
}

func (p *Pipeline) publishCached(ctx context.Context, result Poster) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	event := CachedEvent{
		Title:       result.Title,
		CacheKey:    result.CacheKey,
		SourceURL:   result.SourceURL,
		Path:        result.Path,
		ContentHash: result.ContentHash,
	}
	if p.clock != nil {
		event.CachedAt = p.clock.Now()
	}
	if p.idGen != nil {
		id, err := p.idGen.NewID()
		if err != nil {
			p.logger.Warn("event id generation failed", zap.Error(err))
		}
		event.ID = id
	}
	msgID, err := p.publisher.Publish(ctx, p.cfg.Topic, event)
	if err != nil {
		p.logger.Warn("publish cached event failed", zap.String("cache_key", result.CacheKey), zap.Error(err))
		return
	}
	p.logger.Debug("cached event published", zap.String("message_id", msgID))
}

func classify(err error) error {
	var perr *Error
	if errors.As(err, &perr) {
		return err
	}
	return NewError(KindInternal, MsgFetchFailed, err)
}

func contentTypeFor(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
