package handler

import (
	"context"

	"github.com/runTech0704/Study-Savings/internal/analysis"
	"github.com/runTech0704/Study-Savings/internal/auth"
	"github.com/runTech0704/Study-Savings/internal/goal"
	"github.com/runTech0704/Study-Savings/internal/stats"
	"github.com/runTech0704/Study-Savings/internal/studysession"
	"github.com/runTech0704/Study-Savings/internal/subject"
	"github.com/runTech0704/Study-Savings/internal/user"
)

// StatsServiceAdapter は stats.Service を StatsServiceInterface に適合させるアダプタ。
type StatsServiceAdapter struct {
	svc *stats.Service
}

// NewStatsServiceAdapter はStatsServiceAdapterを生成する。
func NewStatsServiceAdapter(svc *stats.Service) *StatsServiceAdapter {
	return &StatsServiceAdapter{svc: svc}
}

// Summary は学習統計をhandlerレスポンス型で返す。
func (a *StatsServiceAdapter) Summary(ctx context.Context, userID string) (*statsResponse, error) {
	summary, err := a.svc.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := toStatsResponse(summary)
	return &resp, nil
}

// toStatsResponse はドメインの集計結果をhandlerのレスポンス型に変換する。
// 時間は小数第2位に丸め済みのためfloat64にしても誤差は表示に出ない。
func toStatsResponse(s *stats.Summary) statsResponse {
	subjects := make([]subjectStatResponse, len(s.Subjects))
	for i, st := range s.Subjects {
		subjects[i] = subjectStatResponse{
			ID:            st.ID,
			Name:          st.Name,
			TotalHours:    st.TotalHours.InexactFloat64(),
			TotalEarnings: money(st.TotalEarnings),
		}
	}
	return statsResponse{
		TotalHoursWeek:  s.TotalHoursWeek.InexactFloat64(),
		TotalHoursMonth: s.TotalHoursMonth.InexactFloat64(),
		TotalSavings:    money(s.TotalSavings),
		SubjectStats:    subjects,
	}
}

// AnalysisServiceAdapter は analysis.Service を AnalysisServiceInterface に適合させるアダプタ。
type AnalysisServiceAdapter struct {
	svc *analysis.Service
}

// NewAnalysisServiceAdapter はAnalysisServiceAdapterを生成する。
func NewAnalysisServiceAdapter(svc *analysis.Service) *AnalysisServiceAdapter {
	return &AnalysisServiceAdapter{svc: svc}
}

// Analyze は分析文を返す。生成できなかった場合も代替メッセージを返す。
func (a *AnalysisServiceAdapter) Analyze(ctx context.Context, userID, purpose string) (string, error) {
	result, err := a.svc.Analyze(ctx, userID, purpose)
	if err != nil {
		return "", err
	}
	return result.Analysis, nil
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*auth.Service)(nil)
var _ UserServiceInterface = (*user.Service)(nil)
var _ SubjectServiceInterface = (*subject.Service)(nil)
var _ SessionServiceInterface = (*studysession.Service)(nil)
var _ GoalServiceInterface = (*goal.Service)(nil)
var _ StatsServiceInterface = (*StatsServiceAdapter)(nil)
var _ AnalysisServiceInterface = (*AnalysisServiceAdapter)(nil)
