package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	collyfetcher "github.com/JakeFAU/poster-cache/internal/fetcher/colly"
	"github.com/JakeFAU/poster-cache/internal/poster"
)

const defaultProbeBaseURL = "http://localhost:2525"

var defaultProbeTitles = []string{
	"How To Train Your Dragon 1",
	"Last Crusade 169",
	"National Treasure",
	"Spider Man Into The Spider Verse",
}

type probeResult struct {
	Title       string
	Status      int
	ContentType string
	Size        int
	Latency     time.Duration
	Err         error
}

func (r probeResult) ok() bool {
	return r.Err == nil && r.Status == 200 && strings.HasPrefix(r.ContentType, "image/")
}

func newProbeCmd() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe [titles...]",
		Short: "Smoke-tests a running server",
		Long: `probe checks /healthz on a running server, then requests /poster once per
title and reports status, content type, size and latency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			titles := args
			if len(titles) == 0 {
				titles = defaultProbeTitles
			}
			fetcher := collyfetcher.New(collyfetcher.Config{Timeout: timeout})
			results, err := runProbe(cmd.Context(), cmd.OutOrStdout(), fetcher, baseURL, titles)
			if err != nil {
				return err
			}
			for _, r := range results {
				if !r.ok() {
					return errors.New("one or more probes failed")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", defaultProbeBaseURL, "server to probe")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "per-request timeout")
	return cmd
}

func runProbe(
	ctx context.Context,
	out io.Writer,
	fetcher poster.Fetcher,
	baseURL string,
	titles []string,
) ([]probeResult, error) {
	base := strings.TrimRight(baseURL, "/")
	if _, err := fetcher.Fetch(ctx, poster.FetchRequest{URL: base + "/healthz"}); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintf(out, "server healthy at %s\n", base)

	results := make([]probeResult, 0, len(titles))
	passed := 0
	for _, title := range titles {
		r := probeTitle(ctx, fetcher, base, title)
		results = append(results, r)
		if r.ok() {
			passed++
			fmt.Fprintf(out, "PASS %-40q status=%d type=%s size=%d latency=%s\n",
				title, r.Status, r.ContentType, r.Size, r.Latency.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(out, "FAIL %-40q status=%d latency=%s error=%v\n",
			title, r.Status, r.Latency.Round(time.Millisecond), r.Err)
	}
	fmt.Fprintf(out, "%d/%d posters fetched\n", passed, len(titles))
	return results, nil
}

func probeTitle(ctx context.Context, fetcher poster.Fetcher, base, title string) probeResult {
	start := time.Now()
	resp, err := fetcher.Fetch(ctx, poster.FetchRequest{URL: base + "/poster?movie=" + url.QueryEscape(title)})
	r := probeResult{Title: title, Latency: time.Since(start), Err: err}
	var statusErr *poster.StatusError
	if errors.As(err, &statusErr) {
		r.Status = statusErr.Code
		return r
	}
	if err != nil {
		return r
	}
	r.Status = resp.StatusCode
	r.ContentType = resp.ContentType()
	r.Size = len(resp.Body)
	if !strings.HasPrefix(r.ContentType, "image/") {
		r.Err = fmt.Errorf("unexpected content type %q", r.ContentType)
	}
	return r
}
