package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/runTech0704/Study-Savings/internal/model"
)

// dateLayout は期限日のJSON表現。
const dateLayout = "2006-01-02"

// money は金額を小数第2位までの文字列で出力する。
type money decimal.Decimal

// MarshalJSON は "1800.00" 形式で出力する。
func (m money) MarshalJSON() ([]byte, error) {
	return json.Marshal(decimal.Decimal(m).StringFixed(2))
}

// optionalDate は期限日の入力。キーの有無とnullを区別する。
type optionalDate struct {
	Set   bool
	Value *time.Time
}

// UnmarshalJSON は "YYYY-MM-DD" またはnullを受け付ける。
func (d *optionalDate) UnmarshalJSON(b []byte) error {
	d.Set = true
	if bytes.Equal(b, []byte("null")) {
		d.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Value = nil
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("deadline must be YYYY-MM-DD: %w", err)
	}
	d.Value = &t
	return nil
}

// --- レスポンス ---

type userResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

type subjectResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	HourlyRate money     `json:"hourly_rate"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSubjectResponse(s *model.Subject) subjectResponse {
	return subjectResponse{
		ID:         s.ID,
		Name:       s.Name,
		HourlyRate: money(s.HourlyRate),
		CreatedAt:  s.CreatedAt,
	}
}

type sessionResponse struct {
	ID              string     `json:"id"`
	Subject         string     `json:"subject"`
	SubjectName     string     `json:"subject_name"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	Duration        *int64     `json:"duration"`
	DurationDisplay *string    `json:"duration_display"`
	Notes           string     `json:"notes"`
	EarnedAmount    *money     `json:"earned_amount"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toSessionResponse(s *model.StudySessionDetail) sessionResponse {
	resp := sessionResponse{
		ID:          s.ID,
		Subject:     s.SubjectID,
		SubjectName: s.SubjectName,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Notes:       s.Notes,
		IsActive:    s.IsActive(),
		CreatedAt:   s.CreatedAt,
	}
	if s.Duration != nil {
		seconds := int64(s.Duration.Seconds())
		display := formatDuration(*s.Duration)
		resp.Duration = &seconds
		resp.DurationDisplay = &display
	}
	if earned, ok := s.EarnedAmount(); ok {
		m := money(earned)
		resp.EarnedAmount = &m
	}
	return resp
}

// formatDuration は学習時間を "HH:MM:SS" で表す。24時間を超えても時は繰り上げない。
func formatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

type currentSessionResponse struct {
	Active  bool             `json:"active"`
	Session *sessionResponse `json:"session,omitempty"`
}

type stopSessionResponse struct {
	sessionResponse
	Goal         *goalResponse `json:"goal"`
	GoalAchieved bool          `json:"goal_achieved"`
}

type goalResponse struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	TargetAmount       money     `json:"target_amount"`
	CurrentAmount      money     `json:"current_amount"`
	Deadline           *string   `json:"deadline"`
	IsAchieved         bool      `json:"is_achieved"`
	ProgressPercentage float64   `json:"progress_percentage"`
	CreatedAt          time.Time `json:"created_at"`
}

func toGoalResponse(g *model.SavingsGoal) goalResponse {
	resp := goalResponse{
		ID:                 g.ID,
		Title:              g.Title,
		TargetAmount:       money(g.TargetAmount),
		CurrentAmount:      money(g.CurrentAmount),
		IsAchieved:         g.IsAchieved,
		ProgressPercentage: g.ProgressPercentage(),
		CreatedAt:          g.CreatedAt,
	}
	if g.Deadline != nil {
		s := g.Deadline.UTC().Format(dateLayout)
		resp.Deadline = &s
	}
	return resp
}

type subjectStatResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	TotalHours    float64 `json:"total_hours"`
	TotalEarnings money   `json:"total_earnings"`
}

type statsResponse struct {
	TotalHoursWeek  float64               `json:"total_hours_week"`
	TotalHoursMonth float64               `json:"total_hours_month"`
	TotalSavings    money                 `json:"total_savings"`
	SubjectStats    []subjectStatResponse `json:"subject_stats"`
}

type analysisResponse struct {
	Error    bool   `json:"error"`
	Analysis string `json:"analysis"`
}
