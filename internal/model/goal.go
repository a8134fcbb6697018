package model

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SavingsGoal は学習による仮想貯金の目標を表す。
type SavingsGoal struct {
	ID            string
	UserID        string
	Title         string
	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal
	Deadline      *time.Time
	IsAchieved    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProgressPercentage は目標に対する進捗率（0から100）を返す。
// 目標額が0の場合は達成済みとみなし100を返す。
func (g *SavingsGoal) ProgressPercentage() float64 {
	if !g.TargetAmount.IsPositive() {
		return 100
	}
	p := g.CurrentAmount.Div(g.TargetAmount).Mul(hundred)
	if p.GreaterThan(hundred) {
		p = hundred
	}
	if p.IsNegative() {
		p = decimal.Zero
	}
	f, _ := p.Round(2).Float64()
	return f
}

// Accrue は獲得額を加算し、目標到達時に達成フラグを立てる。
// 今回の加算で初めて達成した場合にtrueを返す。
func (g *SavingsGoal) Accrue(amount decimal.Decimal) bool {
	g.CurrentAmount = g.CurrentAmount.Add(amount)
	return g.RefreshAchieved()
}

// RefreshAchieved は現在額が目標額以上なら達成済みにする。
// 達成フラグはfalseからtrueへのみ変化する。
func (g *SavingsGoal) RefreshAchieved() bool {
	if g.IsAchieved {
		return false
	}
	if g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount) {
		g.IsAchieved = true
		return true
	}
	return false
}
