// Package headless renders upstream search pages in headless Chrome for the cases where
// the static markup carries no result cards.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/poster-cache/internal/poster"
)

const defaultNavTimeout = 30 * time.Second

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector is awaited before the DOM is captured; "body" when empty.
	WaitSelector string
	// Settle is an extra pause after WaitSelector for late client-side rendering.
	Settle time.Duration
}

// Fetcher implements poster.Fetcher using chromedp.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is started lazily
// on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser allocator down.
func (f *Fetcher) Close() {
	if f.allocCancel != nil {
		f.allocCancel()
	}
}

// Fetch navigates to the URL and returns the rendered DOM. Document statuses of 400 and
// above are reported as *poster.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, request poster.FetchRequest) (poster.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return poster.FetchResponse{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentStatus{}
	chromedp.ListenTarget(taskCtx, doc.captureEvent)

	start := time.Now()
	var html, finalURL string
	if err := chromedp.Run(taskCtx, f.actions(request, &html, &finalURL)...); err != nil {
		return poster.FetchResponse{}, fmt.Errorf("chromedp run: %w", err)
	}

	status := doc.statusOr(http.StatusOK)
	if status >= http.StatusBadRequest {
		return poster.FetchResponse{}, &poster.StatusError{URL: request.URL, Code: status}
	}
	if finalURL == "" {
		finalURL = request.URL
	}
	return poster.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) actions(request poster.FetchRequest, html, finalURL *string) []chromedp.Action {
	actions := []chromedp.Action{
		f.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(f.waitSelector(), chromedp.ByQuery),
	}
	if f.cfg.Settle > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.Settle))
	}
	return append(actions,
		chromedp.Location(finalURL),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
}

func (f *Fetcher) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

func (f *Fetcher) waitSelector() string {
	if f.cfg.WaitSelector != "" {
		return f.cfg.WaitSelector
	}
	return "body"
}

// documentStatus records the status of the top-level document response.
type documentStatus struct {
	mu     sync.Mutex
	status int
}

func (d *documentStatus) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	d.status = int(resp.Response.Status)
	d.mu.Unlock()
}

func (d *documentStatus) statusOr(fallback int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == 0 {
		return fallback
	}
	return d.status
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
