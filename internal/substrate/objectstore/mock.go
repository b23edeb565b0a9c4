package objectstore

import (
	"context"
	"sync"
	"time"

	"mailflow/internal/exterrors"
)

// Mock is an in-memory Store for tests.
type Mock struct {
	mu      sync.Mutex
	objects map[string][]byte

	FailUpload     error
	FailDownload   error
	FailDelete     error
	FailPresign    error
	PresignResult  string
}

func NewMock() *Mock {
	return &Mock{objects: map[string][]byte{}}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

func (m *Mock) Upload(_ context.Context, bucket, key string, body []byte, _ string) error {
	if m.FailUpload != nil {
		return m.FailUpload
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	m.objects[objKey(bucket, key)] = cp
	return nil
}

func (m *Mock) Download(_ context.Context, bucket, key string) ([]byte, error) {
	if m.FailDownload != nil {
		return nil, m.FailDownload
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[objKey(bucket, key)]
	if !ok {
		return nil, exterrors.New(exterrors.KindStorage, "object not found")
	}
	return body, nil
}

func (m *Mock) Delete(_ context.Context, bucket, key string) error {
	if m.FailDelete != nil {
		return m.FailDelete
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objKey(bucket, key))
	return nil
}

func (m *Mock) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	if m.FailPresign != nil {
		return "", m.FailPresign
	}
	if m.PresignResult != "" {
		return m.PresignResult, nil
	}
	return "https://mock.local/" + bucket + "/" + key, nil
}
