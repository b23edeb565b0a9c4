package idempotency

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mailflow/internal/exterrors"
)

// SQLiteStore is the production Store, backed by mattn/go-sqlite3 for
// local durable state. now is injected for deterministic tests.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures the idempotency table exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, exterrors.Wrap(exterrors.KindIdempotency, "failed to open idempotency store", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS idempotency (
		correlation_id TEXT PRIMARY KEY,
		recorded_at    INTEGER NOT NULL,
		expires_at     INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, exterrors.Wrap(exterrors.KindIdempotency, "failed to create idempotency table", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// IsDuplicate reports whether correlationID has an unexpired record,
// expiring (deleting) it first if its TTL has passed, filtering by
// "exp > now" on every read rather than relying solely on a background
// sweep.
func (s *SQLiteStore) IsDuplicate(ctx context.Context, correlationID string) (bool, error) {
	now := s.now().Unix()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM idempotency WHERE correlation_id = ? AND expires_at <= ?`, correlationID, now); err != nil {
		return false, exterrors.Wrap(exterrors.KindIdempotency, "idempotency expiry sweep failed", err)
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM idempotency WHERE correlation_id = ?`, correlationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, exterrors.Wrap(exterrors.KindIdempotency, "idempotency lookup failed", err)
	}
	return true, nil
}

// Record writes correlationID with a TTL of ttlSeconds from now, replacing
// any existing (possibly expired) row for the same key.
func (s *SQLiteStore) Record(ctx context.Context, correlationID string, ttlSeconds int64) error {
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO idempotency (correlation_id, recorded_at, expires_at) VALUES (?, ?, ?)`,
		correlationID, now, now+ttlSeconds)
	if err != nil {
		return exterrors.Wrap(exterrors.KindIdempotency, "idempotency record failed", err)
	}
	return nil
}
