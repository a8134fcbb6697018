package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/runTech0704/Study-Savings/internal/model"
)

const subjectColumns = `id, user_id, name, hourly_rate, created_at, updated_at`

// PostgresSubjectRepo はPostgreSQLを使用した科目リポジトリ。
type PostgresSubjectRepo struct {
	db *sql.DB
}

// NewPostgresSubjectRepo はPostgresSubjectRepoを生成する。
func NewPostgresSubjectRepo(db *sql.DB) *PostgresSubjectRepo {
	return &PostgresSubjectRepo{db: db}
}

func scanSubject(row rowScanner) (*model.Subject, error) {
	s := &model.Subject{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.HourlyRate, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// ListByUserID は科目を名前順で返す。
func (r *PostgresSubjectRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Subject, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE user_id = $1 ORDER BY name, created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	subjects := []*model.Subject{}
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// FindByID は指定ユーザーが所有する科目を取得する。見つからない場合はnilを返す。
func (r *PostgresSubjectRepo) FindByID(ctx context.Context, userID, id string) (*model.Subject, error) {
	s, err := scanSubject(r.db.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subject: %w", err)
	}
	return s, nil
}

// Create は科目を作成する。
func (r *PostgresSubjectRepo) Create(ctx context.Context, subject *model.Subject) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subjects (id, user_id, name, hourly_rate, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		subject.ID, subject.UserID, subject.Name, subject.HourlyRate, subject.CreatedAt, subject.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subject: %w", err)
	}
	return nil
}

// Update は科目名と時給を更新する。
func (r *PostgresSubjectRepo) Update(ctx context.Context, subject *model.Subject) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET name = $3, hourly_rate = $4, updated_at = $5
		 WHERE id = $1 AND user_id = $2`,
		subject.ID, subject.UserID, subject.Name, subject.HourlyRate, subject.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update subject: %w", err)
	}
	return affected(result)
}

// Delete は科目を削除する。
func (r *PostgresSubjectRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM subjects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete subject: %w", err)
	}
	return affected(result)
}

var _ SubjectRepository = (*PostgresSubjectRepo)(nil)
