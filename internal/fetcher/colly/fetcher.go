// Package collyfetcher implements poster.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/poster-cache/internal/poster"
)

// DefaultUserAgent identifies as a desktop browser; the upstream rejects default client agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// ErrBodyTooLarge reports a response body that reached the configured MaxBodySize.
var ErrBodyTooLarge = errors.New("response body too large")

// Waiter throttles outbound requests per URL.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
	Limiter     Waiter
}

// Fetcher implements poster.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Clones of the base collector share one HTTP client, so the
// timeout and transport are set here once and never per request.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.UserAgent = cfg.UserAgent
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	c.SetRequestTimeout(timeout)
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly. Non-success statuses are reported as
// *poster.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request poster.FetchRequest) (poster.FetchResponse, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, request.URL); err != nil {
			return poster.FetchResponse{}, fmt.Errorf("colly fetch throttled: %w", err)
		}
	}
	var (
		result   poster.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &result, &fetchErr); err != nil {
		return poster.FetchResponse{}, err
	}
	// colly truncates at MaxBodySize without reporting it.
	if f.cfg.MaxBodySize > 0 && len(result.Body) >= f.cfg.MaxBodySize {
		return poster.FetchResponse{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, request.URL, f.cfg.MaxBodySize)
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request poster.FetchRequest,
	start time.Time,
	result *poster.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request poster.FetchRequest,
	start time.Time,
	result *poster.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = poster.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		*fetchErr = err
		if r != nil {
			result.StatusCode = r.StatusCode
		}
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	result *poster.FetchResponse,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err == nil {
			return nil
		}
		if *fetchErr != nil && result.StatusCode != 0 {
			return fmt.Errorf("colly response failed: %w", &poster.StatusError{URL: url, Code: result.StatusCode})
		}
		return fmt.Errorf("colly visit failed: %w", err)
	}
}

func (f *Fetcher) copyHeaders(request poster.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
