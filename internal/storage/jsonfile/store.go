// Package jsonfile implements a poster cache store persisted as a single JSON file.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/poster-cache/internal/storage/local"
)

// Store keeps the cache map in memory and rewrites the whole file after every Put.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
	logger  *zap.Logger
}

// Open loads the cache file at path. A missing, unreadable or malformed file yields an
// empty store; the failure is logged and never returned.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:   path,
		logger: logger,
	}
	s.entries = s.Load()
	logger.Info("poster cache loaded", zap.String("path", path), zap.Int("entries", len(s.entries)))
	return s, nil
}

// Load reads the backing file and returns its mapping.
func (s *Store) Load() map[string]string {
	// #nosec G304 -- the cache path comes from operator configuration.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("error loading cache", zap.String("path", s.path), zap.Error(err))
		}
		return map[string]string{}
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Error("error loading cache", zap.String("path", s.path), zap.Error(err))
		return map[string]string{}
	}
	if entries == nil {
		entries = map[string]string{}
	}
	return entries
}

// Get returns the path stored under key.
func (s *Store) Get(_ context.Context, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.entries[key]
	return path, ok
}

// Put stores path under key and persists the full map. Persistence failures are logged;
// the in-memory entry is kept either way.
func (s *Store) Put(_ context.Context, key, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = path
	if err := s.save(); err != nil {
		s.logger.Error("error saving cache", zap.String("path", s.path), zap.Error(err))
	}
}

// Snapshot returns a copy of the current mapping.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Close flushes the mapping to disk.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	return nil
}

// save writes the whole map atomically. Callers must hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := local.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}
