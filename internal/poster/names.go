package poster

import (
	"regexp"
	"strings"
)

// DefaultExtension is appended to sanitized poster filenames.
const DefaultExtension = ".jpg"

var disallowedFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// NormalizeKey lowercases and trims a title to form its cache key.
func NormalizeKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// SanitizeFilename maps a title to a filesystem-safe name using only [a-z0-9_].
func SanitizeFilename(title, ext string) string {
	if ext == "" {
		ext = DefaultExtension
	}
	return strings.ToLower(disallowedFilenameChars.ReplaceAllString(title, "_")) + ext
}
