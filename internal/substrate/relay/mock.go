package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Mock is an in-memory Relay for tests.
type Mock struct {
	mu sync.Mutex

	Verified map[string]bool
	Quota    Quota
	Sent     []MockSend

	FailSend   error
	FailVerify error
	FailQuota  error
}

// MockSend records one SendRaw invocation for assertions.
type MockSend struct {
	Raw        []byte
	From       string
	Recipients []string
}

func NewMock() *Mock {
	return &Mock{Verified: map[string]bool{}}
}

func (m *Mock) SendRaw(_ context.Context, raw []byte, from string, recipients []string) (string, error) {
	if m.FailSend != nil {
		return "", m.FailSend
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, MockSend{Raw: raw, From: from, Recipients: recipients})
	return uuid.NewString(), nil
}

func (m *Mock) SendQuota(_ context.Context) (Quota, error) {
	if m.FailQuota != nil {
		return Quota{}, m.FailQuota
	}
	return m.Quota, nil
}

func (m *Mock) VerifySender(_ context.Context, address string) (bool, error) {
	if m.FailVerify != nil {
		return false, m.FailVerify
	}
	return m.Verified[address], nil
}
