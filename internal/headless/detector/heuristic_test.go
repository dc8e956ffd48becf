package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/poster-cache/internal/poster"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(poster.FetchResponse{StatusCode: 200, Body: []byte("  \n")}))
}

func TestHeuristic_ShouldPromote_Markers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(poster.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<div id="__next"></div>`),
	}))
	require.True(t, h.ShouldPromote(poster.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<script src="/cdn-cgi/challenge-platform/h/b/orchestrate"></script>`),
	}))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.ShouldPromote(poster.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;</script><p>t</p></html>`),
	}))
}

func TestHeuristic_ShouldPromote_PlainNoResults(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := `<html><body><div class="search_results"><p>There are no movies that matched your query.</p></div>` +
		strings.Repeat("<p>filler</p>", 20) + `</body></html>`
	require.False(t, h.ShouldPromote(poster.FetchResponse{StatusCode: 200, Body: []byte(body)}))
}

func TestHeuristic_ShouldPromote_DisabledForErrors(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(poster.FetchResponse{StatusCode: 404, Body: []byte("")}))
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2048, NewHeuristic(0).BodyLengthThreshold)
}
