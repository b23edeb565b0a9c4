package ratelimit

import (
	"context"
	"strconv"
	"sync"
)

// Mock is an in-memory Limiter for tests.
type Mock struct {
	mu      sync.Mutex
	buckets map[string]int64 // "<sender>|<windowStart>" -> count
}

func NewMock() *Mock {
	return &Mock{buckets: map[string]int64{}}
}

func bucketKey(sender string, windowStart int64) string {
	return sender + "|" + strconv.FormatInt(windowStart, 10)
}

func (m *Mock) Increment(_ context.Context, sender string, windowStart, _ int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bucketKey(sender, windowStart)
	m.buckets[key]++
	return m.buckets[key], nil
}
