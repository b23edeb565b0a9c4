// Package idempotency implements a TTL-capable idempotency KV store:
// is-duplicate, record and the combined check-and-record.
package idempotency

import "context"

// Store is the idempotency KV capability. A record past its TTL behaves
// as absent (P11).
type Store interface {
	IsDuplicate(ctx context.Context, correlationID string) (bool, error)
	Record(ctx context.Context, correlationID string, ttlSeconds int64) error
}

// CheckAndRecord performs the combined check-and-record operation: if
// correlationID is already present and unexpired it returns true without
// writing; otherwise it records it and returns false. This is a plain
// composition over any Store rather than a store-specific primitive.
func CheckAndRecord(ctx context.Context, s Store, correlationID string, ttlSeconds int64) (bool, error) {
	dup, err := s.IsDuplicate(ctx, correlationID)
	if err != nil {
		return false, err
	}
	if dup {
		return true, nil
	}
	if err := s.Record(ctx, correlationID, ttlSeconds); err != nil {
		return false, err
	}
	return false, nil
}
