// Package assets stores digital-download content (the files attached to
// variants) in a blob bucket. The bucket URL decides the backend: file://
// for local disk, mem:// in tests.
package assets

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// Store wraps a blob bucket with the operations the variant asset commands
// need.
type Store struct {
	bucket *blob.Bucket
}

// NewStore wraps an already opened bucket.
func NewStore(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// OpenStore opens the bucket named by url. The caller must have imported
// the matching driver package.
func OpenStore(ctx context.Context, url string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset bucket %s: %w", url, err)
	}
	return &Store{bucket: bucket}, nil
}

// Upload writes data under key.
func (s *Store) Upload(ctx context.Context, key, contentType string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to open asset writer for %s: %w", key, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write asset %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish asset %s: %w", key, err)
	}
	return nil
}

// Download reads the content stored under key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the content stored under key. Deleting a missing key is
// an error from the underlying bucket.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key holds content.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

// Close releases the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
