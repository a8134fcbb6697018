package handler

import (
	"context"
	"net/http"

	"github.com/runTech0704/Study-Savings/internal/validation"
)

// StatsServiceInterface は統計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	Summary(ctx context.Context, userID string) (*statsResponse, error)
}

// AnalysisServiceInterface は学習分析ハンドラーが必要とするサービスインターフェース。
// AI呼び出しの失敗はエラーにせず、代替メッセージを返す。
type AnalysisServiceInterface interface {
	Analyze(ctx context.Context, userID, purpose string) (string, error)
}

// StatsHandler は学習統計とAI分析のHTTPハンドラー。
type StatsHandler struct {
	stats     StatsServiceInterface
	analysis  AnalysisServiceInterface
	validator *validation.Validator
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(stats StatsServiceInterface, analysis AnalysisServiceInterface, v *validation.Validator) *StatsHandler {
	return &StatsHandler{stats: stats, analysis: analysis, validator: v}
}

type analyzeRequest struct {
	StudyPurpose string `json:"study_purpose" validate:"max=2000"`
}

// Stats は週・月の学習時間、累計貯金額、科目別の集計を返す。
// GET /api/stats
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	resp, err := h.stats.Summary(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// AnalyzeLearning は学習データからAIによる分析文を生成する。
// POST /api/analyze-learning
func (h *StatsHandler) AnalyzeLearning(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if err := decodeJSON(r, w, &req, true); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	text, err := h.analysis.Analyze(r.Context(), userID, req.StudyPurpose)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analysisResponse{Error: false, Analysis: text})
}
