// Package gcs provides a BlobStore backed by Google Cloud Storage, used to mirror posters.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

type objectWriterFactory func(ctx context.Context, bucket, object string) io.WriteCloser

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	newWriter objectWriterFactory
	bucket    string
	prefix    string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newWithWriter(func(ctx context.Context, bucket, object string) io.WriteCloser {
		return client.Bucket(bucket).Object(object).NewWriter(ctx)
	}, cfg)
}

func newWithWriter(factory objectWriterFactory, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		newWriter: factory,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := name
	if s.prefix != "" {
		object = path.Join(s.prefix, name)
	}
	writer := s.newWriter(ctx, s.bucket, object)
	if w, ok := writer.(*storage.Writer); ok && contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
