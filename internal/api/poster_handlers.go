package api

import (
	"bytes"
	"errors"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/hash/sha256"
	"github.com/JakeFAU/poster-cache/internal/poster"
)

// getPoster handles GET /poster?movie=. Success serves the image bytes with the stored
// content type; failures are JSON {error, kind[, details]}.
func (s *Server) getPoster(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("movie")
	result, err := s.posters.Get(r.Context(), title)
	if err != nil {
		s.writePosterError(w, r, err)
		return
	}

	cacheState := "MISS"
	if result.CacheHit {
		cacheState = "HIT"
	}
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("X-Cache", cacheState)
	if tag := sha256.ETag(result.ContentHash); tag != "" {
		w.Header().Set("ETag", tag)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, filepath.Base(result.Path), result.ModTime, bytes.NewReader(result.Data))
}

func (s *Server) writePosterError(w http.ResponseWriter, r *http.Request, err error) {
	kind := poster.KindOf(err)
	status := statusForKind(kind)
	msg := poster.MsgFetchFailed
	var perr *poster.Error
	if errors.As(err, &perr) && perr.Message != "" && status != http.StatusInternalServerError {
		msg = perr.Message
	}
	body := map[string]any{"error": msg, "kind": string(kind)}
	if status == http.StatusInternalServerError {
		body["details"] = err.Error()
		s.logger.Error("poster request failed",
			zap.String("kind", string(kind)),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func statusForKind(kind poster.ErrorKind) int {
	switch kind {
	case poster.KindValidation:
		return http.StatusBadRequest
	case poster.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
