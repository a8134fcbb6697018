// Package analysis は学習データをもとにAIによる学習分析を生成する。
//
// 外部のテキスト生成サービスの失敗はエラーとして返さず、
// 固定のフォールバックメッセージに置き換える。
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/runTech0704/Study-Savings/internal/metrics"
	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/repository"
	"github.com/runTech0704/Study-Savings/internal/stats"
)

const (
	// MinCompletedSessions は分析に必要な終了済みセッション数。
	MinCompletedSessions = 3

	// FallbackMessage は生成に失敗した場合の応答。
	FallbackMessage = "AI分析を生成できませんでした。後でもう一度お試しください。"

	// InsufficientDataMessage は学習記録が不足している場合の応答。
	InsufficientDataMessage = "学習分析を行うには、少なくとも3つの完了した勉強セッションが必要です。もう少し勉強記録を増やしてから再度お試しください。"

	recentSessionLimit = 15
	notesMaxRunes      = 100
	subjectWindow      = 30 * 24 * time.Hour
	noDeadline         = "未設定"
)

// TextGenerator はプロンプトからテキストを生成する外部サービス。
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder は分析結果の件数を記録する。
type Recorder interface {
	RecordAnalysis(outcome string)
}

// Result は分析結果。Generatedは実際にAIが生成した場合のみtrue。
type Result struct {
	Analysis  string
	Generated bool
}

// Service は学習分析を生成する。
type Service struct {
	sessions  repository.StudySessionRepository
	subjects  repository.SubjectRepository
	goals     repository.GoalRepository
	generator TextGenerator
	limiter   *rate.Limiter
	recorder  Recorder
	loc       *time.Location
	now       func() time.Time
}

// NewService はServiceを生成する。
// generatorがnilの場合は常にフォールバックメッセージを返す。
// requestsPerMinuteが0以下の場合は外部呼び出しを制限しない。
func NewService(
	sessions repository.StudySessionRepository,
	subjects repository.SubjectRepository,
	goals repository.GoalRepository,
	generator TextGenerator,
	requestsPerMinute int,
	recorder Recorder,
	loc *time.Location,
) *Service {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		sessions:  sessions,
		subjects:  subjects,
		goals:     goals,
		generator: generator,
		limiter:   limiter,
		recorder:  recorder,
		loc:       loc,
		now:       time.Now,
	}
}

// Analyze はユーザーの学習状況を分析する。
// 終了済みセッションが3件未満の場合は外部サービスを呼ばずに定型文を返す。
func (s *Service) Analyze(ctx context.Context, userID, purpose string) (*Result, error) {
	count, err := s.sessions.CountCompleted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed sessions: %w", err)
	}
	if count < MinCompletedSessions {
		s.record(metrics.AnalysisInsufficientData)
		return &Result{Analysis: InsufficientDataMessage}, nil
	}

	if s.generator == nil {
		s.record(metrics.AnalysisUnconfigured)
		return &Result{Analysis: FallbackMessage}, nil
	}

	summary, err := s.summarize(ctx, userID, purpose)
	if err != nil {
		return nil, err
	}
	prompt, err := BuildPrompt(summary)
	if err != nil {
		return nil, err
	}

	if !s.limiter.Allow() {
		slog.Warn("AI analysis throttled", slog.String("user_id", userID))
		s.record(metrics.AnalysisThrottled)
		return &Result{Analysis: FallbackMessage}, nil
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		slog.Error("AI analysis failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		s.record(metrics.AnalysisFailed)
		return &Result{Analysis: FallbackMessage}, nil
	}

	slog.Info("AI analysis generated", slog.String("user_id", userID))
	s.record(metrics.AnalysisGenerated)
	return &Result{Analysis: text, Generated: true}, nil
}

func (s *Service) summarize(ctx context.Context, userID, purpose string) (*LearningSummary, error) {
	now := s.now()
	monthStart := stats.MonthStart(now, s.loc)
	weekStart := stats.WeekStart(now, s.loc)
	windowStart := now.Add(-subjectWindow)

	// 月初と30日前の早い方から取れば、月・週・30日の集計を1回の取得で賄える。
	since := monthStart
	if windowStart.Before(since) {
		since = windowStart
	}
	completed, err := s.sessions.ListCompletedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed sessions: %w", err)
	}
	subjects, err := s.subjects.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	goals, err := s.goals.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}

	summary := &LearningSummary{
		Purpose:        purpose,
		SubjectHours:   []subjectHours{},
		RecentSessions: []sessionSummary{},
		Subjects:       make([]subjectRate, 0, len(subjects)),
		Goals:          make([]goalSummary, 0, len(goals)),
	}

	var month, week time.Duration
	perSubject := make(map[string]time.Duration)
	var order []string
	for _, session := range completed {
		d := *session.Duration
		if !session.StartTime.Before(monthStart) {
			month += d
		}
		if !session.StartTime.Before(weekStart) {
			week += d
		}
		if session.StartTime.Before(windowStart) {
			continue
		}

		if _, ok := perSubject[session.SubjectName]; !ok {
			order = append(order, session.SubjectName)
		}
		perSubject[session.SubjectName] += d

		if len(summary.RecentSessions) < recentSessionLimit {
			summary.RecentSessions = append(summary.RecentSessions, sessionSummary{
				Date:          session.StartTime.In(s.loc).Format("2006-01-02"),
				Subject:       session.SubjectName,
				DurationHours: hoursFloat(d),
				Notes:         truncateNotes(session.Notes),
			})
		}
	}
	summary.MonthHours = hoursFloat(month)
	summary.WeekHours = hoursFloat(week)

	for _, name := range order {
		summary.SubjectHours = append(summary.SubjectHours, subjectHours{Subject: name, Hours: hoursFloat(perSubject[name])})
	}
	for _, subject := range subjects {
		summary.Subjects = append(summary.Subjects, subjectRate{Name: subject.Name, HourlyRate: subject.HourlyRate.InexactFloat64()})
	}
	for _, goal := range goals {
		summary.Goals = append(summary.Goals, summarizeGoal(goal))
	}
	return summary, nil
}

func summarizeGoal(g *model.SavingsGoal) goalSummary {
	deadline := noDeadline
	if g.Deadline != nil {
		deadline = g.Deadline.UTC().Format("2006-01-02")
	}
	return goalSummary{
		Title:              g.Title,
		TargetAmount:       g.TargetAmount.InexactFloat64(),
		CurrentAmount:      g.CurrentAmount.InexactFloat64(),
		Deadline:           deadline,
		IsAchieved:         g.IsAchieved,
		ProgressPercentage: g.ProgressPercentage(),
	}
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordAnalysis(outcome)
	}
}

// hoursFloat はプロンプト表示用に時間数を小数第2位までのfloat64にする。
func hoursFloat(d time.Duration) float64 {
	return stats.RoundHours(d).InexactFloat64()
}

func truncateNotes(notes string) string {
	if utf8.RuneCountInString(notes) <= notesMaxRunes {
		return notes
	}
	return string([]rune(notes)[:notesMaxRunes]) + "..."
}
