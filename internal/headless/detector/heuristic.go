// Package detector decides when a search page needs a headless render before it can be scraped.
package detector

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/poster-cache/internal/poster"
)

// Heuristic promotes pages that look client-rendered or challenge-gated.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var markers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("challenge-platform"),
	[]byte("cf-browser-verification"),
}

// ShouldPromote reports whether resp, a page without the expected result markup, is worth
// rendering in a browser. Error statuses are never promoted.
func (h *Heuristic) ShouldPromote(resp poster.FetchResponse) bool {
	if resp.StatusCode != 0 && resp.StatusCode != 200 {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range markers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	if len(body) >= h.BodyLengthThreshold {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return scriptDensityHigh(doc, len(body))
}

// scriptDensityHigh reports whether inline scripts make up at least a quarter of the
// document.
func scriptDensityHigh(doc *goquery.Document, total int) bool {
	if total == 0 {
		return false
	}
	coverage := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		html, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		coverage += len(html)
	})
	if coverage == 0 {
		return false
	}
	return coverage*100/total >= 25
}
