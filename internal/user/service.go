// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/repository"
	"github.com/runTech0704/Study-Savings/internal/security"
)

// ProfileInput はプロフィール更新の入力。nilの項目は変更しない。
type ProfileInput struct {
	Username  *string
	Email     *string
	FirstName *string
	LastName  *string
}

// Service はユーザー管理のサービス層。
// プロフィールの参照・更新と退会処理を提供する。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{userRepo: userRepo, sanitizer: sanitizer, now: time.Now}
}

// Get はユーザーを取得する。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile はプロフィールを部分更新する。
// ユーザー名・メールアドレスの重複はUSERNAME_TAKEN / EMAIL_TAKENを返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		user.Username = strings.TrimSpace(*in.Username)
		if user.Username == "" {
			return nil, model.NewValidationError("username は必須です")
		}
	}
	if in.Email != nil {
		user.Email = strings.TrimSpace(*in.Email)
	}
	if in.FirstName != nil {
		user.FirstName = s.sanitizer.Sanitize(*in.FirstName)
	}
	if in.LastName != nil {
		user.LastName = s.sanitizer.Sanitize(*in.LastName)
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, model.NewEmailTakenError()
		case errors.Is(err, repository.ErrUsernameTaken):
			return nil, model.NewUsernameTakenError()
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	slog.Info("プロフィールを更新しました", slog.String("user_id", userID))
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 科目・学習記録・目標・identity・リフレッシュトークンはusersからのCASCADEで削除される。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	slog.Info("退会処理を開始します", slog.String("user_id", userID))

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", userID))
	return nil
}
