package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/runTech0704/Study-Savings/internal/model"
)

// sessionDetailSelect はセッションに科目名と現在の時給を結合するSELECT句。
const sessionDetailSelect = `
	SELECT s.id, s.user_id, s.subject_id, s.start_time, s.end_time, s.duration_us, s.notes,
	       s.created_at, s.updated_at, sub.name, sub.hourly_rate
	FROM study_sessions s
	JOIN subjects sub ON sub.id = s.subject_id`

// PostgresStudySessionRepo はPostgreSQLを使用した学習セッションリポジトリ。
type PostgresStudySessionRepo struct {
	db *sql.DB
}

// NewPostgresStudySessionRepo はPostgresStudySessionRepoを生成する。
func NewPostgresStudySessionRepo(db *sql.DB) *PostgresStudySessionRepo {
	return &PostgresStudySessionRepo{db: db}
}

func scanSessionDetail(row rowScanner) (*model.StudySessionDetail, error) {
	d := &model.StudySessionDetail{}
	var endTime sql.NullTime
	var durationUS sql.NullInt64

	err := row.Scan(
		&d.ID, &d.UserID, &d.SubjectID, &d.StartTime, &endTime, &durationUS, &d.Notes,
		&d.CreatedAt, &d.UpdatedAt, &d.SubjectName, &d.HourlyRate,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		t := endTime.Time
		d.EndTime = &t
	}
	if durationUS.Valid {
		dur := time.Duration(durationUS.Int64) * time.Microsecond
		d.Duration = &dur
	}
	return d, nil
}

func findSessionDetail(ctx context.Context, q dbtx, query string, args ...any) (*model.StudySessionDetail, error) {
	d, err := scanSessionDetail(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find study session: %w", err)
	}
	return d, nil
}

func listSessionDetails(ctx context.Context, q dbtx, query string, args ...any) ([]*model.StudySessionDetail, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list study sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*model.StudySessionDetail{}
	for rows.Next() {
		d, err := scanSessionDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study session: %w", err)
		}
		sessions = append(sessions, d)
	}
	return sessions, rows.Err()
}

// CreateActive は進行中のセッションを作成する。
// 進行中セッションの一意性は部分ユニークインデックスで保証する。
func (r *PostgresStudySessionRepo) CreateActive(ctx context.Context, session *model.StudySession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO study_sessions (id, user_id, subject_id, start_time, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.UserID, session.SubjectID, session.StartTime, session.Notes,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrActiveSessionExists
		}
		return fmt.Errorf("failed to insert study session: %w", err)
	}
	return nil
}

// FindActiveByUserID は進行中のセッションを取得する。なければnilを返す。
func (r *PostgresStudySessionRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.StudySessionDetail, error) {
	return findSessionDetail(ctx, r.db,
		sessionDetailSelect+` WHERE s.user_id = $1 AND s.end_time IS NULL`, userID)
}

// FindByID は指定ユーザーが所有するセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresStudySessionRepo) FindByID(ctx context.Context, userID, id string) (*model.StudySessionDetail, error) {
	return findSessionDetail(ctx, r.db,
		sessionDetailSelect+` WHERE s.id = $1 AND s.user_id = $2`, id, userID)
}

// ListByUserID はセッションを開始時刻の降順で返す。
func (r *PostgresStudySessionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.StudySessionDetail, error) {
	return listSessionDetails(ctx, r.db,
		sessionDetailSelect+` WHERE s.user_id = $1 ORDER BY s.start_time DESC, s.id`, userID)
}

// ListCompletedSince はsince以降に開始した終了済みセッションを開始時刻の降順で返す。
func (r *PostgresStudySessionRepo) ListCompletedSince(ctx context.Context, userID string, since time.Time) ([]*model.StudySessionDetail, error) {
	if since.IsZero() {
		return listSessionDetails(ctx, r.db,
			sessionDetailSelect+` WHERE s.user_id = $1 AND s.end_time IS NOT NULL
			ORDER BY s.start_time DESC, s.id`, userID)
	}
	return listSessionDetails(ctx, r.db,
		sessionDetailSelect+` WHERE s.user_id = $1 AND s.end_time IS NOT NULL AND s.start_time >= $2
		ORDER BY s.start_time DESC, s.id`, userID, since)
}

// CountCompleted は終了済みセッションの件数を返す。
func (r *PostgresStudySessionRepo) CountCompleted(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM study_sessions WHERE user_id = $1 AND end_time IS NOT NULL`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed study sessions: %w", err)
	}
	return n, nil
}

// UpdateNotes はメモを更新する。
func (r *PostgresStudySessionRepo) UpdateNotes(ctx context.Context, userID, id, notes string, updatedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE study_sessions SET notes = $3, updated_at = $4 WHERE id = $1 AND user_id = $2`,
		id, userID, notes, updatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update study session notes: %w", err)
	}
	return affected(result)
}

// Delete はセッションを削除する。
func (r *PostgresStudySessionRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM study_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete study session: %w", err)
	}
	return affected(result)
}

var _ StudySessionRepository = (*PostgresStudySessionRepo)(nil)
