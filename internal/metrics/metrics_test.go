package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePosterRequest(t *testing.T) {
	before := testutil.ToFloat64(posterRequestsTotal.WithLabelValues(OutcomeHit))
	ObservePosterRequest(OutcomeHit)
	ObservePosterRequest(OutcomeHit)
	if got := testutil.ToFloat64(posterRequestsTotal.WithLabelValues(OutcomeHit)); got != before+2 {
		t.Errorf("expected hit counter to grow by 2, got %f -> %f", before, got)
	}
}

func TestSetCacheEntries(t *testing.T) {
	SetCacheEntries(7)
	if got := testutil.ToFloat64(posterCacheEntries); got != 7 {
		t.Errorf("expected cache entries gauge 7, got %f", got)
	}
}

func TestObserveUpstream(t *testing.T) {
	ObserveUpstream(StageResolve, 250*time.Millisecond)
	if n := testutil.CollectAndCount(posterUpstreamDurationSeconds); n <= 0 {
		t.Errorf("expected upstream histogram to be observed, got %d series", n)
	}
}

func TestObserveRateLimitDelay(t *testing.T) {
	ObserveRateLimitDelay("www.themoviedb.org", 120*time.Millisecond)
	if n := testutil.CollectAndCount(rateLimitDelaySeconds); n <= 0 {
		t.Errorf("expected rate limit histogram to be observed, got %d series", n)
	}
}

func TestObserveSubmission(t *testing.T) {
	before := testutil.ToFloat64(submissionsTotal.WithLabelValues("rejected"))
	ObserveSubmission("rejected")
	if got := testutil.ToFloat64(submissionsTotal.WithLabelValues("rejected")); got != before+1 {
		t.Errorf("expected rejected counter to grow by 1, got %f -> %f", before, got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObservePosterRequest(OutcomeMiss)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "poster_requests_total") {
		t.Error("expected poster_requests_total in exposition output")
	}
}
