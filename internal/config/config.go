// Package config loads and validates poster-cache configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cache backends.
const (
	CacheBackendFile     = "file"
	CacheBackendPostgres = "postgres"
)

// Resolver kinds.
const (
	ResolverScrape = "scrape"
	ResolverAPI    = "api"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Upstream    UpstreamConfig    `mapstructure:"upstream"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Storage     StorageConfig     `mapstructure:"storage"`
	DB          DBConfig          `mapstructure:"db"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Submissions SubmissionsConfig `mapstructure:"submissions"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// UpstreamConfig selects and configures the poster resolver.
type UpstreamConfig struct {
	Resolver       string `mapstructure:"resolver"`
	SearchURL      string `mapstructure:"search_url"`
	Origin         string `mapstructure:"origin"`
	ResultSelector string `mapstructure:"result_selector"`
	ImageSelector  string `mapstructure:"image_selector"`
	APIKey         string `mapstructure:"api_key"`
	APIBase        string `mapstructure:"api_base"`
	ImageBase      string `mapstructure:"image_base"`
	Language       string `mapstructure:"language"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	MaxParallel     int    `mapstructure:"max_parallel"`
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	WaitSelector    string `mapstructure:"wait_selector"`
	PromotionThresh int    `mapstructure:"promotion_threshold"`
}

// CacheConfig selects the cache store.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	File    string `mapstructure:"file"`
	Table   string `mapstructure:"table"`
}

// StorageConfig sets where downloaded posters are written and mirrored.
type StorageConfig struct {
	DownloadsDir string `mapstructure:"downloads_dir"`
	Extension    string `mapstructure:"extension"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for cache event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SubmissionsConfig locates the submission log files.
type SubmissionsConfig struct {
	HTMLFile       string `mapstructure:"html_file"`
	JSONFile       string `mapstructure:"json_file"`
	MaxFieldLength int    `mapstructure:"max_field_length"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional .env file, the environment and an optional
// config file. Environment variables use the POSTER_ prefix; PORT is honored for
// server.port.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("POSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "POSTER_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 2525)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("upstream.resolver", ResolverScrape)
	v.SetDefault("upstream.search_url", "https://www.themoviedb.org/search?query=")
	v.SetDefault("upstream.origin", "https://www.themoviedb.org")
	v.SetDefault("upstream.result_selector", ".card.v4.tight")
	v.SetDefault("upstream.image_selector", "img.poster")
	v.SetDefault("upstream.api_base", "https://api.themoviedb.org/3")
	v.SetDefault("upstream.image_base", "https://image.tmdb.org/t/p")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_body_bytes", 20*1024*1024)
	v.SetDefault("http.rate_limit_rps", 2)
	v.SetDefault("http.rate_limit_burst", 2)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.wait_selector", ".card.v4.tight")
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("cache.backend", CacheBackendFile)
	v.SetDefault("cache.file", "movie-cache.json")
	v.SetDefault("cache.table", "poster_cache")
	v.SetDefault("storage.downloads_dir", "downloads")
	v.SetDefault("storage.extension", ".jpg")
	v.SetDefault("storage.prefix", "posters")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("submissions.html_file", "submissions.html")
	v.SetDefault("submissions.json_file", "submissions.json")
	v.SetDefault("submissions.max_field_length", 25)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Upstream.Resolver {
	case ResolverScrape:
		if c.Upstream.SearchURL == "" || c.Upstream.ResultSelector == "" || c.Upstream.ImageSelector == "" {
			return fmt.Errorf("upstream.search_url, result_selector and image_selector are required for the scrape resolver")
		}
	case ResolverAPI:
		if c.Upstream.APIKey == "" {
			return fmt.Errorf("upstream.api_key must be set when upstream.resolver is %q", ResolverAPI)
		}
	default:
		return fmt.Errorf("upstream.resolver must be %q or %q", ResolverScrape, ResolverAPI)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Cache.Backend {
	case CacheBackendFile:
		if c.Cache.File == "" {
			return fmt.Errorf("cache.file is required for the file backend")
		}
	case CacheBackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when cache.backend is %q", CacheBackendPostgres)
		}
	default:
		return fmt.Errorf("cache.backend must be %q or %q", CacheBackendFile, CacheBackendPostgres)
	}
	if c.Storage.DownloadsDir == "" {
		return fmt.Errorf("storage.downloads_dir is required")
	}
	if c.Storage.Extension != "" && !strings.HasPrefix(c.Storage.Extension, ".") {
		return fmt.Errorf("storage.extension must start with a dot")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Submissions.MaxFieldLength <= 0 {
		return fmt.Errorf("submissions.max_field_length must be > 0")
	}
	return nil
}

// FetchTimeout returns the outbound request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds inbound request handling.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
