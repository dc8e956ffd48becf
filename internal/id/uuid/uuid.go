// Package uuid generates identifiers for cache events and HTTP requests.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings, which sort by creation time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// MustID returns a UUID7 string, falling back to a random v4 when the v7 clock
// sequence cannot be read.
func (g Generator) MustID() string {
	if id, err := g.NewID(); err == nil {
		return id
	}
	return uuid.NewString()
}
