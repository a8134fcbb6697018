package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore はrate_limit_countersテーブルにカウンタを保持するStore。
// APIサーバーを複数台で動かす場合にカウンタを共有する。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get はカウンタを返す。存在しないか期限切れの場合は (nil, nil)。
func (s *PostgresStore) Get(ctx context.Context, key string) (*Counter, error) {
	c := &Counter{}
	err := s.db.QueryRowContext(ctx,
		`SELECT count, window_reset_at FROM rate_limit_counters
		 WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&c.Count, &c.WindowResetAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit counter: %w", err)
	}
	return c, nil
}

// Set はカウンタをTTL付きでUPSERTする。
func (s *PostgresStore) Set(ctx context.Context, key string, counter Counter, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_counters (key, count, window_reset_at, expires_at)
		 VALUES ($1, $2, $3, now() + $4::bigint * interval '1 microsecond')
		 ON CONFLICT (key) DO UPDATE
		 SET count = EXCLUDED.count,
		     window_reset_at = EXCLUDED.window_reset_at,
		     expires_at = EXCLUDED.expires_at`,
		key, counter.Count, counter.WindowResetAt, ttl.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to set rate limit counter: %w", err)
	}
	return nil
}

// Increment は1文のUPSERTでカウンタのリセットと加算を行う。
// 行ロックにより同一キーへの並行リクエストは直列化される。
func (s *PostgresStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Counter, error) {
	resetAt := now.Add(window)
	var c Counter
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO rate_limit_counters AS r (key, count, window_reset_at, expires_at)
		 VALUES ($1, 1, $3, $3)
		 ON CONFLICT (key) DO UPDATE
		 SET count = CASE WHEN $2 >= r.window_reset_at OR $2 >= r.expires_at THEN 1 ELSE r.count + 1 END,
		     window_reset_at = CASE WHEN $2 >= r.window_reset_at OR $2 >= r.expires_at THEN $3 ELSE r.window_reset_at END,
		     expires_at = $3
		 RETURNING count, window_reset_at`,
		key, now, resetAt,
	).Scan(&c.Count, &c.WindowResetAt)
	if err != nil {
		return Counter{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return c, nil
}

// DeleteExpired は期限切れのカウンタを削除し、削除件数を返す。
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rate limit counters: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var (
	_ Store       = (*PostgresStore)(nil)
	_ Incrementer = (*PostgresStore)(nil)
)
