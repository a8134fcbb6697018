package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/runTech0704/Study-Savings/internal/model"
)

// PostgresLedgerStore は学習終了と貯金加算をまとめて確定するストア。
type PostgresLedgerStore struct {
	db *sql.DB
}

// NewPostgresLedgerStore はPostgresLedgerStoreを生成する。
func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

// RunInTx はユーザー単位のアドバイザリロックを取ったトランザクションでfnを実行する。
// ロックはトランザクション終了時に自動で解放される。
func (s *PostgresLedgerStore) RunInTx(ctx context.Context, userID string, fn func(tx LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return fmt.Errorf("failed to acquire ledger lock: %w", err)
	}

	if err := fn(&postgresLedgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresLedgerTx struct {
	tx *sql.Tx
}

func (t *postgresLedgerTx) FindSessionForUpdate(ctx context.Context, userID, id string) (*model.StudySessionDetail, error) {
	return findSessionDetail(ctx, t.tx,
		sessionDetailSelect+` WHERE s.id = $1 AND s.user_id = $2 FOR UPDATE OF s`, id, userID)
}

func (t *postgresLedgerTx) CompleteSession(ctx context.Context, session *model.StudySession) error {
	if session.EndTime == nil || session.Duration == nil {
		return fmt.Errorf("study session %s is not completed", session.ID)
	}

	// end_time IS NULL 条件で終了済みセッションの上書きを防ぐ
	result, err := t.tx.ExecContext(ctx,
		`UPDATE study_sessions SET end_time = $2, duration_us = $3, updated_at = $4
		 WHERE id = $1 AND end_time IS NULL`,
		session.ID, *session.EndTime, session.Duration.Microseconds(), session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete study session: %w", err)
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("study session %s is not active", session.ID)
	}
	return nil
}

func (t *postgresLedgerTx) FirstUnachievedGoalForUpdate(ctx context.Context, userID string) (*model.SavingsGoal, error) {
	g, err := scanGoal(t.tx.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals
		 WHERE user_id = $1 AND is_achieved = false
		 ORDER BY created_at, id
		 LIMIT 1
		 FOR UPDATE`,
		userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find unachieved savings goal: %w", err)
	}
	return g, nil
}

func (t *postgresLedgerTx) SaveGoalProgress(ctx context.Context, goal *model.SavingsGoal) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE savings_goals SET current_amount = $2, is_achieved = $3, updated_at = $4 WHERE id = $1`,
		goal.ID, goal.CurrentAmount, goal.IsAchieved, goal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save savings goal progress: %w", err)
	}
	return nil
}

var (
	_ LedgerStore = (*PostgresLedgerStore)(nil)
	_ LedgerTx    = (*postgresLedgerTx)(nil)
)
