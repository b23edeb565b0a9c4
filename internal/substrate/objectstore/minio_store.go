package objectstore

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mailflow/internal/exterrors"
)

// MinioStore is the production Store backed by minio-go.
type MinioStore struct {
	cl *minio.Client
}

// NewMinioStore dials endpoint with static access-key credentials.
func NewMinioStore(endpoint, accessKey, secretKey string, secure bool) (*MinioStore, error) {
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindStorage, "failed to construct object store client", err)
	}
	return &MinioStore{cl: cl}, nil
}

func (s *MinioStore) Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.cl.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return exterrors.Wrap(exterrors.KindStorage, "object store upload failed", err)
	}
	return nil
}

func (s *MinioStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.cl.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapObjectError(err, "object store download failed")
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, wrapObjectError(err, "object store download failed")
	}
	return buf.Bytes(), nil
}

func (s *MinioStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.cl.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return exterrors.Wrap(exterrors.KindStorage, "object store delete failed", err)
	}
	return nil
}

func (s *MinioStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := s.cl.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", exterrors.Wrap(exterrors.KindStorage, "presigning failed", err)
	}
	return u.String(), nil
}

func wrapObjectError(err error, msg string) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return exterrors.Wrap(exterrors.KindStorage, msg+": not found", err)
	}
	return exterrors.Wrap(exterrors.KindStorage, msg, err)
}
