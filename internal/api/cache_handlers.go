package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/poster"
)

const (
	defaultCacheLimit = 100
	maxCacheLimit     = 1000
)

// CacheHandler exposes a read-only view of the poster cache.
type CacheHandler struct {
	store  poster.CacheStore
	logger *zap.Logger
}

// NewCacheHandler wires the store and logger.
func NewCacheHandler(store poster.CacheStore, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{store: store, logger: logger}
}

type cacheEntryDTO struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

// List handles GET /cache?limit=&offset=. It returns {"total", "entries"} sorted by key,
// 400 for invalid paging, or 503 when no store is configured.
func (h *CacheHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "cache store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCacheLimit, maxCacheLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snapshot := h.store.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]cacheEntryDTO, 0, limit)
	for i := offset; i < len(keys) && len(entries) < limit; i++ {
		entries = append(entries, cacheEntryDTO{Key: keys[i], Path: snapshot[keys[i]]})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(keys),
		"entries": entries,
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
