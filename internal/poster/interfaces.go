package poster

import (
	"context"
	"io"
	"time"
)

// Resolver turns a free-text title into an absolute poster image URL.
// Implementations return ErrNoMatch when the upstream has no result.
type Resolver interface {
	Resolve(ctx context.Context, title string) (string, error)
}

// ImageFetcher downloads an image and stores it under filename, returning the local path.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string, filename string) (string, error)
}

// CacheStore maps cache keys to local file paths.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key string, path string)
	Snapshot() map[string]string
	Close(ctx context.Context) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes cache events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
