package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHourlyRate は科目作成時に時給が省略された場合の既定値。
var DefaultHourlyRate = decimal.NewFromInt(1000)

// microsecondsPerHour は1時間あたりのマイクロ秒数。
var microsecondsPerHour = decimal.NewFromInt(int64(time.Hour / time.Microsecond))

// Subject は学習科目と、その学習1時間あたりの獲得額を表す。
type Subject struct {
	ID         string
	UserID     string
	Name       string
	HourlyRate decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StudySession は1回の学習記録を表す。
// EndTimeがnilの間は進行中（Active）、設定後は終了済み（Completed）。
// 終了済みから進行中へ戻る遷移は存在しない。
type StudySession struct {
	ID        string
	UserID    string
	SubjectID string
	StartTime time.Time
	EndTime   *time.Time
	Duration  *time.Duration
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive は進行中のセッションかどうかを返す。
func (s *StudySession) IsActive() bool {
	return s.EndTime == nil
}

// Complete はセッションを終了状態にする。
// 時刻の逆転で負の学習時間にならないよう0に丸める。
func (s *StudySession) Complete(end time.Time) {
	d := end.Sub(s.StartTime)
	if d < 0 {
		d = 0
	}
	s.EndTime = &end
	s.Duration = &d
	s.UpdatedAt = end
}

// StudySessionDetail は科目名と現在の時給を付与したセッション。
type StudySessionDetail struct {
	StudySession
	SubjectName string
	HourlyRate  decimal.Decimal
}

// EarnedAmount は終了済みセッションの獲得額を返す。
// 進行中のセッションはfalseを返す。
func (d *StudySessionDetail) EarnedAmount() (decimal.Decimal, bool) {
	if d.Duration == nil {
		return decimal.Zero, false
	}
	return EarnedAmount(d.HourlyRate, *d.Duration), true
}

// EarnedAmount は時給と学習時間から獲得額を算出する。
// マイクロ秒単位で十進演算し、小数第2位に丸める。
func EarnedAmount(hourlyRate decimal.Decimal, d time.Duration) decimal.Decimal {
	us := decimal.NewFromInt(d.Microseconds())
	return hourlyRate.Mul(us).Div(microsecondsPerHour).Round(2)
}

// Hours は学習時間を時間単位の小数で返す。
func Hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(d.Microseconds()).Div(microsecondsPerHour)
}
