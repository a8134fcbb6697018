package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/runTech0704/Study-Savings/internal/model"
)

const identityColumns = `id, user_id, provider, provider_user_id, created_at`

// PostgresIdentityRepo はGoogleログインの紐付け（identities）を扱う。
// 作成はユーザー作成と同時にPostgresUserRepo.CreateWithIdentityが行う。
type PostgresIdentityRepo struct {
	db *sql.DB
}

func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

func scanIdentity(row rowScanner) (*model.Identity, error) {
	var id model.Identity
	if err := row.Scan(&id.ID, &id.UserID, &id.Provider, &id.ProviderUserID, &id.CreatedAt); err != nil {
		return nil, err
	}
	return &id, nil
}

// FindByProviderAndProviderUserID はIdP側のユーザーIDから紐付けを引く。未登録ならnil。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity %s: %w", provider, err)
	}
	return identity, nil
}

// ListProvidersByUserID はauth/checkのauthType判定に使うprovider名の一覧を返す。
func (r *PostgresIdentityRepo) ListProvidersByUserID(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT provider FROM identities WHERE user_id = $1 ORDER BY provider`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity providers: %w", err)
	}
	defer rows.Close()

	providers := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan identity provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
