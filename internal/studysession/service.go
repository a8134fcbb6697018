// Package studysession は学習セッションの開始・終了と、終了時の貯金目標への加算を提供する。
//
// セッションは進行中（Active）から終了済み（Completed）へ一方向にのみ遷移する。
// 進行中のセッションはユーザーごとに最大1件で、study_sessionsの部分一意インデックスで保証する。
// 終了時の獲得額の加算はユーザー単位のロックを取ったトランザクション内で行う。
package studysession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/repository"
	"github.com/runTech0704/Study-Savings/internal/security"
)

// Recorder は学習セッションのイベントを記録するインターフェース。
type Recorder interface {
	RecordSessionStarted()
	RecordSessionCompleted(earned decimal.Decimal)
	RecordGoalAchieved()
}

// CurrentResult は進行中セッションの照会結果。
// 進行中のセッションがない場合はActiveがfalseでSessionはnil。
type CurrentResult struct {
	Active  bool
	Session *model.StudySessionDetail
}

// StopResult はセッション終了の結果。
type StopResult struct {
	Session      *model.StudySessionDetail
	EarnedAmount decimal.Decimal

	// Goal は獲得額を加算した目標。未達成の目標がなかった場合はnil。
	Goal         *model.SavingsGoal
	GoalAchieved bool
}

// Service は学習セッションのビジネスロジックを提供する。
type Service struct {
	sessions  repository.StudySessionRepository
	subjects  repository.SubjectRepository
	ledger    repository.LedgerStore
	sanitizer security.TextSanitizer
	recorder  Recorder
	now       func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	sessions repository.StudySessionRepository,
	subjects repository.SubjectRepository,
	ledger repository.LedgerStore,
	sanitizer security.TextSanitizer,
	recorder Recorder,
) *Service {
	return &Service{
		sessions:  sessions,
		subjects:  subjects,
		ledger:    ledger,
		sanitizer: sanitizer,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Start は指定科目の学習セッションを開始する。
// 科目が存在しないか他ユーザーのものであればSUBJECT_NOT_FOUND、
// 進行中のセッションがあればACTIVE_SESSION_EXISTSを返す。
func (s *Service) Start(ctx context.Context, userID, subjectID string) (*model.StudySessionDetail, error) {
	subject, err := s.subjects.FindByID(ctx, userID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find subject: %w", err)
	}
	if subject == nil {
		return nil, model.NewSubjectNotFoundError(subjectID)
	}

	active, err := s.sessions.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	if active != nil {
		return nil, model.NewActiveSessionExistsError()
	}

	now := s.now()
	session := &model.StudySession{
		ID:        uuid.New().String(),
		UserID:    userID,
		SubjectID: subject.ID,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 確認後に別リクエストが開始した場合は一意インデックスで検出される
	if err := s.sessions.CreateActive(ctx, session); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, model.NewActiveSessionExistsError()
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordSessionStarted()
	}
	slog.Info("study session started",
		slog.String("user_id", userID),
		slog.String("session_id", session.ID),
		slog.String("subject_id", subject.ID),
	)

	return &model.StudySessionDetail{
		StudySession: *session,
		SubjectName:  subject.Name,
		HourlyRate:   subject.HourlyRate,
	}, nil
}

// Stop は学習セッションを終了し、獲得額を最も古い未達成の目標に加算する。
// 未達成の目標がない場合、獲得額はどこにも加算されない。
func (s *Service) Stop(ctx context.Context, userID, sessionID string) (*StopResult, error) {
	var result *StopResult

	err := s.ledger.RunInTx(ctx, userID, func(tx repository.LedgerTx) error {
		detail, err := tx.FindSessionForUpdate(ctx, userID, sessionID)
		if err != nil {
			return fmt.Errorf("failed to find session: %w", err)
		}
		if detail == nil {
			return model.NewSessionNotFoundError(sessionID)
		}
		if !detail.IsActive() {
			return model.NewSessionAlreadyCompletedError()
		}

		now := s.now()
		detail.Complete(now)
		if err := tx.CompleteSession(ctx, &detail.StudySession); err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}

		earned, _ := detail.EarnedAmount()
		result = &StopResult{Session: detail, EarnedAmount: earned}

		goal, err := tx.FirstUnachievedGoalForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to find unachieved goal: %w", err)
		}
		if goal == nil {
			return nil
		}

		result.GoalAchieved = goal.Accrue(earned)
		goal.UpdatedAt = now
		if err := tx.SaveGoalProgress(ctx, goal); err != nil {
			return fmt.Errorf("failed to save goal progress: %w", err)
		}
		result.Goal = goal
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.RecordSessionCompleted(result.EarnedAmount)
		if result.GoalAchieved {
			s.recorder.RecordGoalAchieved()
		}
	}

	attrs := []any{
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.Int64("duration_sec", int64(result.Session.Duration.Seconds())),
		slog.String("earned_amount", result.EarnedAmount.StringFixed(2)),
	}
	if result.Goal != nil {
		attrs = append(attrs, slog.String("goal_id", result.Goal.ID))
	}
	slog.Info("study session completed", attrs...)
	if result.GoalAchieved {
		slog.Info("savings goal achieved",
			slog.String("user_id", userID),
			slog.String("goal_id", result.Goal.ID),
		)
	}

	return result, nil
}

// Current は進行中のセッションを返す。何度呼んでも状態は変わらない。
func (s *Service) Current(ctx context.Context, userID string) (*CurrentResult, error) {
	active, err := s.sessions.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	if active == nil {
		return &CurrentResult{}, nil
	}
	return &CurrentResult{Active: true, Session: active}, nil
}

// List はユーザーのセッションを新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.StudySessionDetail, error) {
	sessions, err := s.sessions.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Get はセッションを1件返す。
func (s *Service) Get(ctx context.Context, userID, sessionID string) (*model.StudySessionDetail, error) {
	session, err := s.sessions.FindByID(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	return session, nil
}

// UpdateNotes はメモを更新する。開始・終了時刻など状態に関わる項目は変更できない。
func (s *Service) UpdateNotes(ctx context.Context, userID, sessionID, notes string) (*model.StudySessionDetail, error) {
	ok, err := s.sessions.UpdateNotes(ctx, userID, sessionID, s.sanitizer.Sanitize(notes), s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to update notes: %w", err)
	}
	if !ok {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	return s.Get(ctx, userID, sessionID)
}

// Delete はセッションを削除する。加算済みの貯金額は戻さない。
func (s *Service) Delete(ctx context.Context, userID, sessionID string) error {
	ok, err := s.sessions.Delete(ctx, userID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if !ok {
		return model.NewSessionNotFoundError(sessionID)
	}
	slog.Info("study session deleted",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)
	return nil
}
