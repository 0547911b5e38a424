// Package gcs persists the tracking snapshot as a single Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"cloud.google.com/go/storage"
)

const defaultObject = "tracking_data.json"

// Config captures the bucket and object holding the snapshot.
type Config struct {
	Bucket string
	Object string
}

// ObjectBackend reads and writes one JSON object in a bucket.
type ObjectBackend struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed tracking backend.
func New(client *storage.Client, cfg Config) (*ObjectBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	object := strings.Trim(cfg.Object, "/")
	if object == "" {
		object = defaultObject
	}
	return &ObjectBackend{
		client: client,
		bucket: cfg.Bucket,
		object: object,
	}, nil
}

// URI returns the gs:// location of the snapshot.
func (b *ObjectBackend) URI() string {
	return fmt.Sprintf("gs://%s/%s", b.bucket, b.object)
}

// Read downloads the snapshot. A missing object yields an error wrapping fs.ErrNotExist.
func (b *ObjectBackend) Read(ctx context.Context) ([]byte, error) {
	reader, err := b.client.Bucket(b.bucket).Object(b.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", b.URI(), fs.ErrNotExist)
		}
		return nil, fmt.Errorf("open %s: %w", b.URI(), err)
	}
	defer reader.Close() //nolint:errcheck // read-only stream

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.URI(), err)
	}
	return data, nil
}

// Write uploads the snapshot, replacing the previous generation. GCS object writes are
// atomic: readers see either the old or the new object.
func (b *ObjectBackend) Write(ctx context.Context, data []byte) error {
	writer := b.client.Bucket(b.bucket).Object(b.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
