package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/runTech0704/Study-Savings/internal/model"
)

const goalColumns = `id, user_id, title, target_amount, current_amount, deadline, is_achieved, created_at, updated_at`

// PostgresGoalRepo はPostgreSQLを使用した貯金目標リポジトリ。
type PostgresGoalRepo struct {
	db *sql.DB
}

// NewPostgresGoalRepo はPostgresGoalRepoを生成する。
func NewPostgresGoalRepo(db *sql.DB) *PostgresGoalRepo {
	return &PostgresGoalRepo{db: db}
}

func scanGoal(row rowScanner) (*model.SavingsGoal, error) {
	g := &model.SavingsGoal{}
	var deadline sql.NullTime
	err := row.Scan(&g.ID, &g.UserID, &g.Title, &g.TargetAmount, &g.CurrentAmount,
		&deadline, &g.IsAchieved, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if deadline.Valid {
		d := deadline.Time
		g.Deadline = &d
	}
	return g, nil
}

// ListByUserID は目標を作成日時の昇順で返す。
func (r *PostgresGoalRepo) ListByUserID(ctx context.Context, userID string) ([]*model.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list savings goals: %w", err)
	}
	defer rows.Close()

	goals := []*model.SavingsGoal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan savings goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// FindByID は指定ユーザーが所有する目標を取得する。見つからない場合はnilを返す。
func (r *PostgresGoalRepo) FindByID(ctx context.Context, userID, id string) (*model.SavingsGoal, error) {
	g, err := scanGoal(r.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find savings goal: %w", err)
	}
	return g, nil
}

// Create は目標を作成する。
func (r *PostgresGoalRepo) Create(ctx context.Context, goal *model.SavingsGoal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO savings_goals (id, user_id, title, target_amount, current_amount, deadline, is_achieved, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		goal.ID, goal.UserID, goal.Title, goal.TargetAmount, goal.CurrentAmount,
		goal.Deadline, goal.IsAchieved, goal.CreatedAt, goal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert savings goal: %w", err)
	}
	return nil
}

// Update は目標を更新する。
func (r *PostgresGoalRepo) Update(ctx context.Context, goal *model.SavingsGoal) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE savings_goals
		 SET title = $3, target_amount = $4, current_amount = $5, deadline = $6, is_achieved = $7, updated_at = $8
		 WHERE id = $1 AND user_id = $2`,
		goal.ID, goal.UserID, goal.Title, goal.TargetAmount, goal.CurrentAmount,
		goal.Deadline, goal.IsAchieved, goal.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update savings goal: %w", err)
	}
	return affected(result)
}

// Delete は目標を削除する。
func (r *PostgresGoalRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM savings_goals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete savings goal: %w", err)
	}
	return affected(result)
}

var _ GoalRepository = (*PostgresGoalRepo)(nil)
