// Package server builds the poster-cache application and runs its HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/api"
	"github.com/JakeFAU/poster-cache/internal/clock/system"
	"github.com/JakeFAU/poster-cache/internal/config"
	"github.com/JakeFAU/poster-cache/internal/download"
	collyfetcher "github.com/JakeFAU/poster-cache/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/poster-cache/internal/fetcher/headless"
	"github.com/JakeFAU/poster-cache/internal/hash/sha256"
	"github.com/JakeFAU/poster-cache/internal/headless/detector"
	"github.com/JakeFAU/poster-cache/internal/id/uuid"
	"github.com/JakeFAU/poster-cache/internal/logging"
	"github.com/JakeFAU/poster-cache/internal/policy/ratelimit"
	"github.com/JakeFAU/poster-cache/internal/poster"
	gcppublisher "github.com/JakeFAU/poster-cache/internal/publisher/pubsub"
	"github.com/JakeFAU/poster-cache/internal/resolver/scrape"
	"github.com/JakeFAU/poster-cache/internal/resolver/tmdbapi"
	gcsstorage "github.com/JakeFAU/poster-cache/internal/storage/gcs"
	"github.com/JakeFAU/poster-cache/internal/storage/jsonfile"
	localstorage "github.com/JakeFAU/poster-cache/internal/storage/local"
	pgstore "github.com/JakeFAU/poster-cache/internal/storage/postgres"
	"github.com/JakeFAU/poster-cache/internal/submissions"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	cache        poster.CacheStore
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
	headless     *headlessfetcher.Fetcher
	readyChecks  map[string]api.ReadyCheck
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return buildWithLogger(ctx, cfg, logger)
}

func buildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		logger:      logger,
		readyChecks: map[string]api.ReadyCheck{},
	}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("resolver", cfg.Upstream.Resolver),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.HTTP.RateLimitRPS,
		Burst: cfg.HTTP.RateLimitBurst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
		Limiter:     limiter,
	})

	resolver, err := app.setupResolver(fetcher)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	images, err := app.setupDownloader(ctx, fetcher)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	if err := app.setupCache(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}

	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	clock := system.New()
	subs, err := submissions.New(submissions.Config{
		HTMLFile:       cfg.Submissions.HTMLFile,
		JSONFile:       cfg.Submissions.JSONFile,
		MaxFieldLength: cfg.Submissions.MaxFieldLength,
	}, clock, logger.Named("submissions"))
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("submission log init failed: %w", err)
	}

	pipeline := poster.NewPipeline(
		app.cache,
		resolver,
		images,
		publisher,
		sha256.New(),
		clock,
		uuid.New(),
		poster.Config{
			Extension: cfg.Storage.Extension,
			Topic:     cfg.PubSub.TopicName,
		},
		logger.Named("pipeline"),
	)

	app.apiServer = api.NewServer(pipeline, subs, app.cache, api.Options{
		RequestTimeout: cfg.RequestTimeout(),
		ReadyChecks:    app.readyChecks,
	}, logger.Named("api"))
	return app, nil
}

func (a *App) setupResolver(fetcher poster.Fetcher) (poster.Resolver, error) {
	upstream := a.cfg.Upstream
	if upstream.Resolver == config.ResolverAPI {
		r, err := tmdbapi.New(fetcher, tmdbapi.Config{
			APIKey:    upstream.APIKey,
			APIBase:   upstream.APIBase,
			ImageBase: upstream.ImageBase,
			Language:  upstream.Language,
		}, a.logger.Named("resolver"))
		if err != nil {
			return nil, fmt.Errorf("api resolver init failed: %w", err)
		}
		a.logger.Info("using api resolver", zap.String("api_base", upstream.APIBase))
		return r, nil
	}

	var opts []scrape.Option
	if a.cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
			WaitSelector:      a.cfg.Headless.WaitSelector,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			a.headless = headless
			opts = append(opts, scrape.WithHeadless(headless, detector.NewHeuristic(a.cfg.Headless.PromotionThresh)))
			a.logger.Info("headless fallback enabled", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
	}
	a.logger.Info("using scrape resolver", zap.String("search_url", upstream.SearchURL))
	return scrape.New(fetcher, scrape.Config{
		SearchURL:      upstream.SearchURL,
		Origin:         upstream.Origin,
		ResultSelector: upstream.ResultSelector,
		ImageSelector:  upstream.ImageSelector,
	}, a.logger.Named("resolver"), opts...), nil
}

func (a *App) setupDownloader(ctx context.Context, fetcher poster.Fetcher) (*download.Downloader, error) {
	blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.DownloadsDir})
	if err != nil {
		return nil, fmt.Errorf("downloads dir init failed: %w", err)
	}
	a.readyChecks["downloads"] = func(context.Context) error {
		info, err := os.Stat(blobs.BaseDir())
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", blobs.BaseDir())
		}
		return nil
	}
	a.logger.Debug("downloads directory", zap.String("path", blobs.BaseDir()))

	var opts []download.Option
	if a.cfg.Storage.GCSBucket != "" {
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		mirror, err := gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs mirror init failed: %w", err)
		}
		opts = append(opts, download.WithMirror(mirror))
		a.logger.Info("mirroring posters to GCS",
			zap.String("bucket", a.cfg.Storage.GCSBucket),
			zap.String("prefix", a.cfg.Storage.Prefix),
		)
	}
	return download.New(fetcher, blobs, a.logger.Named("download"), opts...), nil
}

func (a *App) setupCache(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case config.CacheBackendPostgres:
		store, err := pgstore.Open(ctx, pgstore.CacheStoreConfig{
			DSN:             a.cfg.DB.DSN,
			Table:           a.cfg.Cache.Table,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
			AutoMigrate:     a.cfg.DB.AutoMigrate,
		}, a.logger.Named("cache"))
		if err != nil {
			return fmt.Errorf("postgres cache init failed: %w", err)
		}
		a.cache = store
		a.readyChecks["postgres"] = store.Ping
		a.logger.Info("using postgres cache", zap.String("table", a.cfg.Cache.Table))
	default:
		store, err := jsonfile.Open(a.cfg.Cache.File, a.logger.Named("cache"))
		if err != nil {
			return fmt.Errorf("cache file init failed: %w", err)
		}
		a.cache = store
		a.logger.Info("using cache file", zap.String("path", a.cfg.Cache.File))
	}
	return nil
}

// setupPublisher returns a nil interface when no topic is configured so the pipeline
// skips event publishing.
func (a *App) setupPublisher(ctx context.Context) (poster.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, cache events disabled")
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx is canceled or a termination signal arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close(shutdownCtx)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close flushes the cache and releases every client. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.cache != nil {
		if err := a.cache.Close(ctx); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}
