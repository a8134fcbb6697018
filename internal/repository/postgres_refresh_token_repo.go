package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/runTech0704/Study-Savings/internal/model"
)

// PostgresRefreshTokenRepo はPostgreSQLを使用したリフレッシュトークン台帳。
type PostgresRefreshTokenRepo struct {
	db *sql.DB
}

// NewPostgresRefreshTokenRepo はPostgresRefreshTokenRepoを生成する。
func NewPostgresRefreshTokenRepo(db *sql.DB) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

// Create はトークンを台帳に登録する。
func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		token.ID, token.UserID, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// FindByID は有効期限内のトークンを取得する。見つからない場合はnilを返す。
func (r *PostgresRefreshTokenRepo) FindByID(ctx context.Context, id string) (*model.RefreshToken, error) {
	t := &model.RefreshToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at
		 FROM refresh_tokens
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&t.ID, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return t, nil
}

// DeleteByID はトークンを失効させる。
func (r *PostgresRefreshTokenRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return affected(result)
}

// DeleteExpired は期限切れのトークンを削除する。
func (r *PostgresRefreshTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

var _ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
