package ratelimit

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"mailflow/internal/exterrors"
)

// SQLiteLimiter is the production Limiter, sharing the sqlite embedding
// convention used by internal/substrate/idempotency.
type SQLiteLimiter struct {
	db *sql.DB
}

func OpenSQLiteLimiter(path string) (*SQLiteLimiter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindRateLimit, "failed to open rate-limit store", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS rate_buckets (
		sender       TEXT NOT NULL,
		window_start INTEGER NOT NULL,
		email_count  INTEGER NOT NULL DEFAULT 0,
		expires_at   INTEGER NOT NULL,
		PRIMARY KEY (sender, window_start)
	)`); err != nil {
		db.Close()
		return nil, exterrors.Wrap(exterrors.KindRateLimit, "failed to create rate_buckets table", err)
	}
	return &SQLiteLimiter{db: db}, nil
}

func (l *SQLiteLimiter) Close() error { return l.db.Close() }

// Increment performs an atomic ADD on email_count for (sender,
// window_start), creating the bucket with expires_at = ttlAt if absent.
func (l *SQLiteLimiter) Increment(ctx context.Context, sender string, windowStart, ttlAt int64) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, exterrors.Wrap(exterrors.KindRateLimit, "rate-limit transaction failed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO rate_buckets (sender, window_start, email_count, expires_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(sender, window_start) DO UPDATE SET email_count = email_count + 1`,
		sender, windowStart, ttlAt); err != nil {
		return 0, exterrors.Wrap(exterrors.KindRateLimit, "rate-limit increment failed", err)
	}

	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT email_count FROM rate_buckets WHERE sender = ? AND window_start = ?`, sender, windowStart).Scan(&count); err != nil {
		return 0, exterrors.Wrap(exterrors.KindRateLimit, "rate-limit read-back failed", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, exterrors.Wrap(exterrors.KindRateLimit, "rate-limit commit failed", err)
	}
	return count, nil
}
