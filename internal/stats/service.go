// Package stats は学習時間と獲得額の集計を提供する。
//
// 週は月曜0時、月は1日0時を起点とし、いずれもアプリケーションのタイムゾーンで判定する。
// 集計対象は終了済みのセッションのみ。
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/repository"
)

// SubjectStat は科目ごとの累計。
type SubjectStat struct {
	ID            string
	Name          string
	TotalHours    decimal.Decimal
	TotalEarnings decimal.Decimal
}

// Summary は学習状況の集計結果。時間は小数第2位に丸める。
type Summary struct {
	TotalHoursWeek  decimal.Decimal
	TotalHoursMonth decimal.Decimal
	TotalSavings    decimal.Decimal
	Subjects        []SubjectStat
}

// Service は学習状況の集計を行う。
type Service struct {
	sessions repository.StudySessionRepository
	subjects repository.SubjectRepository
	loc      *time.Location
	now      func() time.Time
}

// NewService はServiceを生成する。locがnilの場合はUTCで集計する。
func NewService(sessions repository.StudySessionRepository, subjects repository.SubjectRepository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{sessions: sessions, subjects: subjects, loc: loc, now: time.Now}
}

// Summary はユーザーの週・月の学習時間、総獲得額、科目別の累計を返す。
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	completed, err := s.sessions.ListCompletedSince(ctx, userID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed sessions: %w", err)
	}
	subjects, err := s.subjects.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}

	now := s.now()
	weekStart := WeekStart(now, s.loc)
	monthStart := MonthStart(now, s.loc)

	var week, month time.Duration
	total := decimal.Zero
	perSubject := make(map[string]*subjectTotal, len(subjects))

	for _, session := range completed {
		d := *session.Duration
		if !session.StartTime.Before(weekStart) {
			week += d
		}
		if !session.StartTime.Before(monthStart) {
			month += d
		}

		earned, _ := session.EarnedAmount()
		total = total.Add(earned)

		st, ok := perSubject[session.SubjectID]
		if !ok {
			st = &subjectTotal{earnings: decimal.Zero}
			perSubject[session.SubjectID] = st
		}
		st.duration += d
		st.earnings = st.earnings.Add(earned)
	}

	summary := &Summary{
		TotalHoursWeek:  RoundHours(week),
		TotalHoursMonth: RoundHours(month),
		TotalSavings:    total,
		Subjects:        make([]SubjectStat, 0, len(subjects)),
	}
	for _, subject := range subjects {
		st := perSubject[subject.ID]
		if st == nil {
			st = &subjectTotal{earnings: decimal.Zero}
		}
		summary.Subjects = append(summary.Subjects, SubjectStat{
			ID:            subject.ID,
			Name:          subject.Name,
			TotalHours:    RoundHours(st.duration),
			TotalEarnings: st.earnings,
		})
	}
	return summary, nil
}

type subjectTotal struct {
	duration time.Duration
	earnings decimal.Decimal
}

// WeekStart はtを含む週の月曜0時（loc基準）を返す。
func WeekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	return time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
}

// MonthStart はtを含む月の1日0時（loc基準）を返す。
func MonthStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

// RoundHours は時間を小数第2位に丸めた時間数にする。
func RoundHours(d time.Duration) decimal.Decimal {
	return model.Hours(d).Round(2)
}
