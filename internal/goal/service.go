// Package goal は貯金目標の管理を提供する。
package goal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/repository"
	"github.com/runTech0704/Study-Savings/internal/security"
)

// CreateInput は目標作成の入力。
type CreateInput struct {
	Title         string
	TargetAmount  decimal.Decimal
	CurrentAmount *decimal.Decimal
	Deadline      *time.Time
}

// UpdateInput は目標更新の入力。nilの項目は変更しない。
// 期限はDeadlineSetがtrueの場合のみ反映し、Deadlineがnilなら期限なしにする。
type UpdateInput struct {
	Title         *string
	TargetAmount  *decimal.Decimal
	CurrentAmount *decimal.Decimal
	Deadline      *time.Time
	DeadlineSet   bool
}

// Service は貯金目標のCRUDを提供する。
// 書き込みのたびに達成判定を行い、達成フラグは一度立てたら戻さない。
type Service struct {
	repo      repository.GoalRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.GoalRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{repo: repo, sanitizer: sanitizer, now: time.Now}
}

// List はユーザーの目標一覧を作成順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.SavingsGoal, error) {
	goals, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	return goals, nil
}

// Get は目標を1件返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.SavingsGoal, error) {
	g, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find goal: %w", err)
	}
	if g == nil {
		return nil, model.NewGoalNotFoundError(id)
	}
	return g, nil
}

// Create は目標を作成する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.SavingsGoal, error) {
	now := s.now()
	g := &model.SavingsGoal{
		ID:            uuid.New().String(),
		UserID:        userID,
		Title:         s.sanitizer.Sanitize(in.Title),
		TargetAmount:  in.TargetAmount,
		CurrentAmount: decimal.Zero,
		Deadline:      dateOnly(in.Deadline),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.CurrentAmount != nil {
		g.CurrentAmount = *in.CurrentAmount
	}
	if err := validate(g); err != nil {
		return nil, err
	}
	g.RefreshAchieved()

	if err := s.repo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	slog.Info("savings goal created",
		slog.String("user_id", userID),
		slog.String("goal_id", g.ID),
		slog.String("target_amount", g.TargetAmount.StringFixed(2)),
	)
	return g, nil
}

// Update は目標を部分更新する。
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*model.SavingsGoal, error) {
	g, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		g.Title = s.sanitizer.Sanitize(*in.Title)
	}
	if in.TargetAmount != nil {
		g.TargetAmount = *in.TargetAmount
	}
	if in.CurrentAmount != nil {
		g.CurrentAmount = *in.CurrentAmount
	}
	if in.DeadlineSet {
		g.Deadline = dateOnly(in.Deadline)
	}
	if err := validate(g); err != nil {
		return nil, err
	}
	if g.RefreshAchieved() {
		slog.Info("savings goal achieved",
			slog.String("user_id", userID),
			slog.String("goal_id", g.ID),
		)
	}
	g.UpdatedAt = s.now()

	ok, err := s.repo.Update(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("failed to update goal: %w", err)
	}
	if !ok {
		return nil, model.NewGoalNotFoundError(id)
	}
	return g, nil
}

// Delete は目標を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	ok, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	if !ok {
		return model.NewGoalNotFoundError(id)
	}
	slog.Info("savings goal deleted",
		slog.String("user_id", userID),
		slog.String("goal_id", id),
	)
	return nil
}

func validate(g *model.SavingsGoal) error {
	if g.Title == "" {
		return model.NewValidationError("title は必須です")
	}
	if g.TargetAmount.IsNegative() {
		return model.NewValidationError("target_amount は0以上で入力してください")
	}
	if g.CurrentAmount.IsNegative() {
		return model.NewValidationError("current_amount は0以上で入力してください")
	}
	return nil
}

// dateOnly は期限を日付（UTCの0時）に揃える。
func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
