// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/runTech0704/Study-Savings/internal/auth"
	"github.com/runTech0704/Study-Savings/internal/middleware"
	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/validation"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Verify(token string) error
	Logout(ctx context.Context, refreshToken string) error
	Check(ctx context.Context, userID string) (*auth.AuthStatus, error)
	OAuthEnabled() bool
	GetLoginURL(state string) (string, error)
	HandleCallback(ctx context.Context, code string) (*auth.TokenPair, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// FrontendURL はGoogleログイン後のリダイレクト先。
	FrontendURL  string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はJWT認証とGoogleログインのHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	verifier  middleware.AccessTokenVerifier
	validator *validation.Validator
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// verifierは認証状態の確認（任意認証）に使う。
func NewAuthHandler(service AuthServiceInterface, verifier middleware.AccessTokenVerifier, v *validation.Validator, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		verifier:  verifier,
		validator: v,
		config:    config,
	}
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
	Password  string `json:"password" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type loginResponse struct {
	tokenResponse
	User userResponse `json:"user"`
}

type authStatusResponse struct {
	IsAuthenticated bool     `json:"isAuthenticated"`
	Username        string   `json:"username"`
	AuthType        string   `json:"authType"`
	Providers       []string `json:"providers"`
}

// Register はユーザー登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), auth.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Password2: req.Password2,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login はユーザー名とパスワードでトークンを発行する。
// POST /api/auth/login, POST /api/auth/token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		tokenResponse: tokenResponse{Access: result.Tokens.Access, Refresh: result.Tokens.Refresh},
		User:          toUserResponse(result.User),
	})
}

// Refresh はリフレッシュトークンをローテーションして新しいトークンを発行する。
// POST /api/auth/token/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	tokens, err := h.service.Refresh(r.Context(), req.Refresh)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Access: tokens.Access, Refresh: tokens.Refresh})
}

// Verify はトークンが有効かどうかを検証する。
// POST /api/auth/token/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, w, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Verify(req.Token); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

// Logout はリフレッシュトークンを失効させる。トークンの有無にかかわらず200を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, w, &req, true); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Logout(r.Context(), req.Refresh); err != nil {
		// 失効に失敗してもクライアント側のログアウトは妨げない
		slog.Error("failed to logout", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": "ログアウトしました。"})
}

// Check は現在の認証状態を返す。
// Bearerトークンは任意で、無効なトークンは未認証として扱う。
// GET /api/auth/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	var userID string
	if token, ok := middleware.BearerToken(r); ok {
		if id, err := h.verifier.VerifyAccessToken(token); err == nil {
			userID = id
		}
	}

	status, err := h.service.Check(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authStatusResponse{
		IsAuthenticated: status.IsAuthenticated,
		Username:        status.Username,
		AuthType:        status.AuthType,
		Providers:       status.Providers,
	})
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /api/auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.service.OAuthEnabled() {
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewOAuthNotConfiguredError())
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setStateCookie(w, state, oauthStateMaxAge)
	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理し、トークン付きでフロントエンドへリダイレクトする。
// 失敗時は ?auth_error=<理由> を付けてリダイレクトする。
// GET /api/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.service.OAuthEnabled() {
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewOAuthNotConfiguredError())
		return
	}

	query := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.redirectToFrontend(w, r, url.Values{"auth_error": {"invalid_state"}})
		return
	}

	// stateクッキーを削除
	h.setStateCookie(w, "", -1)

	// 2. IdP側のエラー（同意拒否など）
	if reason := query.Get("error"); reason != "" {
		slog.Warn("oauth provider returned error", slog.String("error", reason))
		h.redirectToFrontend(w, r, url.Values{"auth_error": {reason}})
		return
	}

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		h.redirectToFrontend(w, r, url.Values{"auth_error": {"missing_code"}})
		return
	}

	// 4. 認証処理
	tokens, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectToFrontend(w, r, url.Values{"auth_error": {"authentication_failed"}})
		return
	}

	// 5. トークン付きでフロントエンドにリダイレクト
	h.redirectToFrontend(w, r, url.Values{
		"access_token":  {tokens.Access},
		"refresh_token": {tokens.Refresh},
	})
}

func (h *AuthHandler) redirectToFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, h.config.FrontendURL+"/?"+params.Encode(), http.StatusFound)
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
