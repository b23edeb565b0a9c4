package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Mock is an in-memory Queue for tests.
type Mock struct {
	mu       sync.Mutex
	queues   map[string][]Record
	existing map[string]bool
	Sent     []string // bodies sent via Send, in order, for assertions

	FailSend    error
	FailReceive error
	FailDelete  error
}

func NewMock() *Mock {
	return &Mock{queues: map[string][]Record{}, existing: map[string]bool{}}
}

// Declare marks url as an existing queue, for Exists.
func (m *Mock) Declare(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existing[url] = true
}

func (m *Mock) Send(_ context.Context, url, body string) (string, error) {
	if m.FailSend != nil {
		return "", m.FailSend
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.queues[url] = append(m.queues[url], Record{Body: body, ReceiptHandle: id})
	m.Sent = append(m.Sent, body)
	return id, nil
}

func (m *Mock) SendBatch(ctx context.Context, url string, bodies []string) ([]string, error) {
	ids := make([]string, len(bodies))
	for i, b := range bodies {
		id, err := m.Send(ctx, url, b)
		if err != nil {
			return ids, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (m *Mock) Receive(_ context.Context, url string, max int32, _ int32) ([]Record, error) {
	if m.FailReceive != nil {
		return nil, m.FailReceive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.queues[url]
	if int32(len(recs)) > max {
		recs = recs[:max]
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *Mock) Delete(_ context.Context, url, receiptHandle string) error {
	if m.FailDelete != nil {
		return m.FailDelete
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.queues[url]
	for i, r := range recs {
		if r.ReceiptHandle == receiptHandle {
			m.queues[url] = append(recs[:i], recs[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Mock) Exists(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[url], nil
}
