package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/runTech0704/Study-Savings/internal/auth"
	"github.com/runTech0704/Study-Savings/internal/goal"
	"github.com/runTech0704/Study-Savings/internal/middleware"
	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/studysession"
	"github.com/runTech0704/Study-Savings/internal/subject"
	"github.com/runTech0704/Study-Savings/internal/user"
)

const (
	testUserID    = "0b6f3f0e-7f5a-4f59-9d4e-3f0b1f6a0001"
	testSubjectID = "0b6f3f0e-7f5a-4f59-9d4e-3f0b1f6a0002"
	testSessionID = "0b6f3f0e-7f5a-4f59-9d4e-3f0b1f6a0003"
	testGoalID    = "0b6f3f0e-7f5a-4f59-9d4e-3f0b1f6a0004"
)

// withUserID はテスト用にコンテキストへユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}

// decodeBody はレスポンスボディをmapにデコードする。
func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("failed to decode body %q: %v", string(body), err)
	}
	return m
}

// errorCode はエラーレスポンスのcodeを返す。
func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	code, _ := decodeBody(t, body)["code"].(string)
	return code
}

var errDB = errors.New("database unavailable")

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn          func(ctx context.Context, username, password string) (*auth.LoginResult, error)
	refreshFn        func(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	verifyFn         func(token string) error
	logoutFn         func(ctx context.Context, refreshToken string) error
	checkFn          func(ctx context.Context, userID string) (*auth.AuthStatus, error)
	oauthEnabled     bool
	getLoginURLFn    func(state string) (string, error)
	handleCallbackFn func(ctx context.Context, code string) (*auth.TokenPair, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.User{ID: testUserID, Username: in.Username}, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, model.NewInvalidTokenError()
}

func (m *mockAuthService) Verify(token string) error {
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return nil
}

func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, refreshToken)
	}
	return nil
}

func (m *mockAuthService) Check(ctx context.Context, userID string) (*auth.AuthStatus, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, userID)
	}
	return &auth.AuthStatus{IsAuthenticated: userID != ""}, nil
}

func (m *mockAuthService) OAuthEnabled() bool { return m.oauthEnabled }

func (m *mockAuthService) GetLoginURL(state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*auth.TokenPair, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return &auth.TokenPair{Access: "access-token", Refresh: "refresh-token"}, nil
}

// mockVerifier はAccessTokenVerifierのモック実装。tokensに含まれるトークンのみ有効とする。
type mockVerifier struct {
	tokens map[string]string
}

func (m *mockVerifier) VerifyAccessToken(token string) (string, error) {
	if id, ok := m.tokens[token]; ok {
		return id, nil
	}
	return "", model.NewInvalidTokenError()
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getFn      func(ctx context.Context, userID string) (*model.User, error)
	updateFn   func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Get(ctx context.Context, userID string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return &model.User{ID: userID, Username: "taro"}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, in)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// mockSubjectService はSubjectServiceInterfaceのモック実装。
type mockSubjectService struct {
	listFn   func(ctx context.Context, userID string) ([]*model.Subject, error)
	getFn    func(ctx context.Context, userID, id string) (*model.Subject, error)
	createFn func(ctx context.Context, userID string, in subject.CreateInput) (*model.Subject, error)
	updateFn func(ctx context.Context, userID, id string, in subject.UpdateInput) (*model.Subject, error)
	deleteFn func(ctx context.Context, userID, id string) error
}

func (m *mockSubjectService) List(ctx context.Context, userID string) ([]*model.Subject, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockSubjectService) Get(ctx context.Context, userID, id string) (*model.Subject, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, model.NewSubjectNotFoundError(id)
}

func (m *mockSubjectService) Create(ctx context.Context, userID string, in subject.CreateInput) (*model.Subject, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.Subject{ID: testSubjectID, UserID: userID, Name: in.Name, HourlyRate: model.DefaultHourlyRate}, nil
}

func (m *mockSubjectService) Update(ctx context.Context, userID, id string, in subject.UpdateInput) (*model.Subject, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, in)
	}
	return &model.Subject{ID: id, UserID: userID}, nil
}

func (m *mockSubjectService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

// mockSessionService はSessionServiceInterfaceのモック実装。
type mockSessionService struct {
	startFn       func(ctx context.Context, userID, subjectID string) (*model.StudySessionDetail, error)
	stopFn        func(ctx context.Context, userID, sessionID string) (*studysession.StopResult, error)
	currentFn     func(ctx context.Context, userID string) (*studysession.CurrentResult, error)
	listFn        func(ctx context.Context, userID string) ([]*model.StudySessionDetail, error)
	getFn         func(ctx context.Context, userID, sessionID string) (*model.StudySessionDetail, error)
	updateNotesFn func(ctx context.Context, userID, sessionID, notes string) (*model.StudySessionDetail, error)
	deleteFn      func(ctx context.Context, userID, sessionID string) error
}

func (m *mockSessionService) Start(ctx context.Context, userID, subjectID string) (*model.StudySessionDetail, error) {
	if m.startFn != nil {
		return m.startFn(ctx, userID, subjectID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSessionService) Stop(ctx context.Context, userID, sessionID string) (*studysession.StopResult, error) {
	if m.stopFn != nil {
		return m.stopFn(ctx, userID, sessionID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSessionService) Current(ctx context.Context, userID string) (*studysession.CurrentResult, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx, userID)
	}
	return &studysession.CurrentResult{}, nil
}

func (m *mockSessionService) List(ctx context.Context, userID string) ([]*model.StudySessionDetail, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockSessionService) Get(ctx context.Context, userID, sessionID string) (*model.StudySessionDetail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, sessionID)
	}
	return nil, model.NewSessionNotFoundError(sessionID)
}

func (m *mockSessionService) UpdateNotes(ctx context.Context, userID, sessionID, notes string) (*model.StudySessionDetail, error) {
	if m.updateNotesFn != nil {
		return m.updateNotesFn(ctx, userID, sessionID, notes)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSessionService) Delete(ctx context.Context, userID, sessionID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, sessionID)
	}
	return nil
}

// mockGoalService はGoalServiceInterfaceのモック実装。
type mockGoalService struct {
	listFn   func(ctx context.Context, userID string) ([]*model.SavingsGoal, error)
	getFn    func(ctx context.Context, userID, id string) (*model.SavingsGoal, error)
	createFn func(ctx context.Context, userID string, in goal.CreateInput) (*model.SavingsGoal, error)
	updateFn func(ctx context.Context, userID, id string, in goal.UpdateInput) (*model.SavingsGoal, error)
	deleteFn func(ctx context.Context, userID, id string) error
}

func (m *mockGoalService) List(ctx context.Context, userID string) ([]*model.SavingsGoal, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockGoalService) Get(ctx context.Context, userID, id string) (*model.SavingsGoal, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, model.NewGoalNotFoundError(id)
}

func (m *mockGoalService) Create(ctx context.Context, userID string, in goal.CreateInput) (*model.SavingsGoal, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.SavingsGoal{ID: testGoalID, UserID: userID, Title: in.Title, TargetAmount: in.TargetAmount}, nil
}

func (m *mockGoalService) Update(ctx context.Context, userID, id string, in goal.UpdateInput) (*model.SavingsGoal, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, in)
	}
	return &model.SavingsGoal{ID: id, UserID: userID}, nil
}

func (m *mockGoalService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

// mockStatsService はStatsServiceInterfaceのモック実装。
type mockStatsService struct {
	summaryFn func(ctx context.Context, userID string) (*statsResponse, error)
}

func (m *mockStatsService) Summary(ctx context.Context, userID string) (*statsResponse, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, userID)
	}
	return &statsResponse{SubjectStats: []subjectStatResponse{}}, nil
}

// mockAnalysisService はAnalysisServiceInterfaceのモック実装。
type mockAnalysisService struct {
	analyzeFn func(ctx context.Context, userID, purpose string) (string, error)
}

func (m *mockAnalysisService) Analyze(ctx context.Context, userID, purpose string) (string, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, userID, purpose)
	}
	return "よく頑張っています。", nil
}

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}
