package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/studysession"
	"github.com/runTech0704/Study-Savings/internal/validation"
)

// SessionServiceInterface は学習セッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	Start(ctx context.Context, userID, subjectID string) (*model.StudySessionDetail, error)
	Stop(ctx context.Context, userID, sessionID string) (*studysession.StopResult, error)
	Current(ctx context.Context, userID string) (*studysession.CurrentResult, error)
	List(ctx context.Context, userID string) ([]*model.StudySessionDetail, error)
	Get(ctx context.Context, userID, sessionID string) (*model.StudySessionDetail, error)
	UpdateNotes(ctx context.Context, userID, sessionID, notes string) (*model.StudySessionDetail, error)
	Delete(ctx context.Context, userID, sessionID string) error
}

// SessionHandler は学習セッションのHTTPハンドラー。
type SessionHandler struct {
	service   SessionServiceInterface
	validator *validation.Validator
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface, v *validation.Validator) *SessionHandler {
	return &SessionHandler{service: service, validator: v}
}

type startSessionRequest struct {
	Subject string `json:"subject" validate:"required"`
}

// updateSessionRequest で変更できるのはメモのみ。開始・終了時刻はStart/Stopでしか変わらない。
type updateSessionRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=10000"`
}

// List は学習記録を新しい順に返す。
// GET /api/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		resp[i] = toSessionResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Start は学習を開始する。
// POST /api/sessions/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req startSessionRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}
	if _, err := uuid.Parse(req.Subject); err != nil {
		handleServiceError(w, model.NewSubjectNotFoundError(req.Subject))
		return
	}

	session, err := h.service.Start(r.Context(), userID, req.Subject)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Current は進行中のセッションを返す。なければ {"active": false}。
// GET /api/sessions/current
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	current, err := h.service.Current(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := currentSessionResponse{Active: current.Active}
	if current.Active {
		s := toSessionResponse(current.Session)
		resp.Session = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stop は学習を終了し、獲得額を貯金目標に加算する。
// POST /api/sessions/{id}/stop
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewSessionNotFoundError)
	if !ok {
		return
	}

	result, err := h.service.Stop(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := stopSessionResponse{
		sessionResponse: toSessionResponse(result.Session),
		GoalAchieved:    result.GoalAchieved,
	}
	if result.Goal != nil {
		g := toGoalResponse(result.Goal)
		resp.Goal = &g
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は学習記録を取得する。
// GET /api/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewSessionNotFoundError)
	if !ok {
		return
	}

	session, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Update は学習記録のメモを更新する。
// PUT|PATCH /api/sessions/{id}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewSessionNotFoundError)
	if !ok {
		return
	}

	var req updateSessionRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	var session *model.StudySessionDetail
	var err error
	if req.Notes == nil {
		session, err = h.service.Get(r.Context(), userID, id)
	} else {
		session, err = h.service.UpdateNotes(r.Context(), userID, id, *req.Notes)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Delete は学習記録を削除する。加算済みの貯金額は戻さない。
// DELETE /api/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, model.NewSessionNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
