package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/runTech0704/Study-Savings/internal/goal"
	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/validation"
)

// GoalServiceInterface は貯金目標ハンドラーが必要とするサービスインターフェース。
type GoalServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.SavingsGoal, error)
	Get(ctx context.Context, userID, id string) (*model.SavingsGoal, error)
	Create(ctx context.Context, userID string, in goal.CreateInput) (*model.SavingsGoal, error)
	Update(ctx context.Context, userID, id string, in goal.UpdateInput) (*model.SavingsGoal, error)
	Delete(ctx context.Context, userID, id string) error
}

// GoalHandler は貯金目標のHTTPハンドラー。
type GoalHandler struct {
	service   GoalServiceInterface
	validator *validation.Validator
}

// NewGoalHandler はGoalHandlerを生成する。
func NewGoalHandler(service GoalServiceInterface, v *validation.Validator) *GoalHandler {
	return &GoalHandler{service: service, validator: v}
}

type createGoalRequest struct {
	Title         string           `json:"title" validate:"required,max=200"`
	TargetAmount  *decimal.Decimal `json:"target_amount" validate:"required,dgte=0,dlte=9999999999.99,dscale=2"`
	CurrentAmount *decimal.Decimal `json:"current_amount" validate:"omitempty,dgte=0,dlte=9999999999.99,dscale=2"`
	Deadline      optionalDate     `json:"deadline"`
}

type updateGoalRequest struct {
	Title         *string          `json:"title" validate:"omitempty,max=200"`
	TargetAmount  *decimal.Decimal `json:"target_amount" validate:"omitempty,dgte=0,dlte=9999999999.99,dscale=2"`
	CurrentAmount *decimal.Decimal `json:"current_amount" validate:"omitempty,dgte=0,dlte=9999999999.99,dscale=2"`
	Deadline      optionalDate     `json:"deadline"`
}

// List は目標一覧を返す。
// GET /api/goals
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	goals, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]goalResponse, len(goals))
	for i, g := range goals {
		resp[i] = toGoalResponse(g)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は目標を作成する。
// POST /api/goals
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createGoalRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	g, err := h.service.Create(r.Context(), userID, goal.CreateInput{
		Title:         req.Title,
		TargetAmount:  *req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		Deadline:      req.Deadline.Value,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGoalResponse(g))
}

// Get は目標を取得する。
// GET /api/goals/{id}
func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewGoalNotFoundError)
	if !ok {
		return
	}

	g, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGoalResponse(g))
}

// Update は目標を更新する。PUTではタイトルと目標額を必須とする。
// PUT|PATCH /api/goals/{id}
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewGoalNotFoundError)
	if !ok {
		return
	}

	var req updateGoalRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if r.Method == http.MethodPut && (req.Title == nil || req.TargetAmount == nil) {
		handleServiceError(w, model.NewValidationError("title と target_amount は必須です"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	g, err := h.service.Update(r.Context(), userID, id, goal.UpdateInput{
		Title:         req.Title,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		Deadline:      req.Deadline.Value,
		DeadlineSet:   req.Deadline.Set,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGoalResponse(g))
}

// Delete は目標を削除する。
// DELETE /api/goals/{id}
func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewGoalNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
