package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/submissions"
)

const viewPath = "/view"

// submit handles GET /submit?key=value&... Only the first value of a repeated key is kept.
func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fields := make(map[string]string, len(query))
	for key, values := range query {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	_, issues, err := s.submissions.Submit(fields)
	if err != nil {
		if errors.Is(err, submissions.ErrInvalid) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Invalid submission",
				"details": issues,
			})
			return
		}
		s.logger.Error("submission failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to save submission",
			"details": []string{err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Data saved successfully",
		"viewAt":  viewPath,
	})
}

func (s *Server) listSubmissions(w http.ResponseWriter, _ *http.Request) {
	records, err := s.submissions.List()
	if err != nil {
		s.logger.Error("list submissions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read submissions")
		return
	}
	if records == nil {
		records = []submissions.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":       len(records),
		"submissions": records,
	})
}

func (s *Server) deleteSubmissions(w http.ResponseWriter, _ *http.Request) {
	if err := s.submissions.Reset(); err != nil {
		s.logger.Error("reset submissions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete submissions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All submissions deleted",
	})
}

func (s *Server) viewSubmissions(w http.ResponseWriter, _ *http.Request) {
	page, err := s.submissions.View()
	if err != nil {
		s.logger.Error("render submissions view failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read submissions view")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(page); err != nil {
		s.logger.Warn("write submissions view failed", zap.Error(err))
	}
}
