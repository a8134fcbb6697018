package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/subject"
	"github.com/runTech0704/Study-Savings/internal/validation"
)

// SubjectServiceInterface は科目ハンドラーが必要とするサービスインターフェース。
type SubjectServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Subject, error)
	Get(ctx context.Context, userID, id string) (*model.Subject, error)
	Create(ctx context.Context, userID string, in subject.CreateInput) (*model.Subject, error)
	Update(ctx context.Context, userID, id string, in subject.UpdateInput) (*model.Subject, error)
	// Delete は科目と、その科目の学習記録をすべて削除する。
	Delete(ctx context.Context, userID, id string) error
}

// SubjectHandler は科目管理のHTTPハンドラー。
type SubjectHandler struct {
	service   SubjectServiceInterface
	validator *validation.Validator
}

// NewSubjectHandler はSubjectHandlerを生成する。
func NewSubjectHandler(service SubjectServiceInterface, v *validation.Validator) *SubjectHandler {
	return &SubjectHandler{service: service, validator: v}
}

type createSubjectRequest struct {
	Name       string           `json:"name" validate:"required,max=100"`
	HourlyRate *decimal.Decimal `json:"hourly_rate" validate:"omitempty,dgte=0,dlte=99999999.99,dscale=2"`
}

type updateSubjectRequest struct {
	Name       *string          `json:"name" validate:"omitempty,max=100"`
	HourlyRate *decimal.Decimal `json:"hourly_rate" validate:"omitempty,dgte=0,dlte=99999999.99,dscale=2"`
}

// List は科目一覧を返す。
// GET /api/subjects
func (h *SubjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	subjects, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]subjectResponse, len(subjects))
	for i, s := range subjects {
		resp[i] = toSubjectResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は科目を作成する。時給を省略した場合は1000円。
// POST /api/subjects
func (h *SubjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createSubjectRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	s, err := h.service.Create(r.Context(), userID, subject.CreateInput{
		Name:       req.Name,
		HourlyRate: req.HourlyRate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSubjectResponse(s))
}

// Get は科目を取得する。
// GET /api/subjects/{id}
func (h *SubjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewSubjectNotFoundError)
	if !ok {
		return
	}

	s, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubjectResponse(s))
}

// Update は科目を更新する。PUTでは名前を必須とし、PATCHでは指定した項目のみ変更する。
// PUT|PATCH /api/subjects/{id}
func (h *SubjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewSubjectNotFoundError)
	if !ok {
		return
	}

	var req updateSubjectRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if r.Method == http.MethodPut && req.Name == nil {
		handleServiceError(w, model.NewValidationError("name は必須です"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	s, err := h.service.Update(r.Context(), userID, id, subject.UpdateInput{
		Name:       req.Name,
		HourlyRate: req.HourlyRate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubjectResponse(s))
}

// Delete は科目を削除する。
// DELETE /api/subjects/{id}
func (h *SubjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewSubjectNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
