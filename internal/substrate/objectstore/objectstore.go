// Package objectstore defines the object-store capability contract
// and a minio-go-backed implementation.
package objectstore

import (
	"context"
	"time"
)

// Store is the object-store capability: upload, download, delete and
// presign-get, each retriable on transient failure.
type Store interface {
	Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
