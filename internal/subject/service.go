// Package subject は学習科目の管理を提供する。
package subject

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

// CreateInput は科目作成の入力。HourlyRateがnilの場合は既定値を使う。
type CreateInput struct {
	Name       string
	HourlyRate *decimal.Decimal
}

// UpdateInput は科目更新の入力。nilの項目は変更しない。
type UpdateInput struct {
	Name       *string
	HourlyRate *decimal.Decimal
}

// Service は科目のCRUDを提供する。
type Service struct {
	repo      repository.SubjectRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.SubjectRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{repo: repo, sanitizer: sanitizer, now: time.Now}
}

// List はユーザーの科目一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Subject, error) {
	subjects, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return subjects, nil
}

// Get は科目を1件返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Subject, error) {
	subject, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find subject: %w", err)
	}
	if subject == nil {
		return nil, model.NewSubjectNotFoundError(id)
	}
	return subject, nil
}

// Create は科目を作成する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Subject, error) {
	rate := model.DefaultHourlyRate
	if in.HourlyRate != nil {
		rate = *in.HourlyRate
	}

	now := s.now()
	subject := &model.Subject{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       s.sanitizer.Sanitize(in.Name),
		HourlyRate: rate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := validate(subject); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, fmt.Errorf("failed to create subject: %w", err)
	}

	slog.Info("subject created",
		slog.String("user_id", userID),
		slog.String("subject_id", subject.ID),
	)
	return subject, nil
}

// Update は科目を部分更新する。時給の変更は過去のセッションの獲得額にも反映される。
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*model.Subject, error) {
	subject, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		subject.Name = s.sanitizer.Sanitize(*in.Name)
	}
	if in.HourlyRate != nil {
		subject.HourlyRate = *in.HourlyRate
	}
	if err := validate(subject); err != nil {
		return nil, err
	}
	subject.UpdatedAt = s.now()

	ok, err := s.repo.Update(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to update subject: %w", err)
	}
	if !ok {
		return nil, model.NewSubjectNotFoundError(id)
	}
	return subject, nil
}

// Delete は科目とその学習記録を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	ok, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete subject: %w", err)
	}
	if !ok {
		return model.NewSubjectNotFoundError(id)
	}
	slog.Info("subject deleted",
		slog.String("user_id", userID),
		slog.String("subject_id", id),
	)
	return nil
}

func validate(subject *model.Subject) error {
	if subject.Name == "" {
		return model.NewValidationError("name は必須です")
	}
	if subject.HourlyRate.IsNegative() {
		return model.NewValidationError("hourly_rate は0以上で入力してください")
	}
	return nil
}
