package poster

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeKeyCollapsesCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	for _, title := range []string{"Inception", " inception ", "INCEPTION", "\tInCePtIoN\n"} {
		require.Equal(t, "inception", NormalizeKey(title), "title %q", title)
	}
	require.Equal(t, "the  matrix", NormalizeKey(" The  Matrix "), "inner whitespace is kept as-is")
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		title string
		ext   string
		want  string
	}{
		{title: "Spider-Man: Homecoming", want: "spider_man__homecoming.jpg"},
		{title: "inception", want: "inception.jpg"},
		{title: "Last Crusade 169", ext: ".png", want: "last_crusade_169.png"},
		{title: "Amélie", want: "am_lie.jpg"},
	}
	valid := regexp.MustCompile(`^[a-z0-9_]+\.[a-z]+$`)
	for _, tt := range tests {
		got := SanitizeFilename(tt.title, tt.ext)
		require.Equal(t, tt.want, got)
		require.Regexp(t, valid, got)
		require.Equal(t, got, SanitizeFilename(tt.title, tt.ext), "sanitization must be deterministic")
	}
}
