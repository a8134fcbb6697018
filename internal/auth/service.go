// Package auth はJWTによるログイン、トークンの更新と失効、Googleログインを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/repository"
)

// ProviderGoogle はGoogleログインのprovider名。
const ProviderGoogle = "google"

const (
	maxUsernameLength = 150

	// usernameSuffixAttempts は連番で重複を回避する最大試行回数。
	usernameSuffixAttempts = 20
)

var usernameDisallowed = regexp.MustCompile(`[^A-Za-z0-9@.+_-]`)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	Provider       string
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Password2 string
	FirstName string
	LastName  string
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Tokens *TokenPair
	User   *model.User
}

// AuthStatus は認証状態の確認結果。
type AuthStatus struct {
	IsAuthenticated bool
	Username        string
	AuthType        string
	Providers       []string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth         OAuthProvider
	users         repository.UserRepository
	identities    repository.IdentityRepository
	refreshTokens repository.RefreshTokenRepository
	tokens        *TokenManager
	now           func() time.Time
}

// NewService はServiceを生成する。
// oauthがnilの場合、Googleログインは無効になる。
func NewService(
	oauth OAuthProvider,
	users repository.UserRepository,
	identities repository.IdentityRepository,
	refreshTokens repository.RefreshTokenRepository,
	tokens *TokenManager,
) *Service {
	return &Service{
		oauth:         oauth,
		users:         users,
		identities:    identities,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		now:           time.Now,
	}
}

// OAuthEnabled はGoogleログインが設定済みかどうかを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	if s.oauth == nil {
		return "", model.NewOAuthNotConfiguredError()
	}
	return s.oauth.GetLoginURL(state), nil
}

// Register はユーザー名とパスワードでユーザーを登録する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if in.Username == "" {
		return nil, model.NewValidationError("username は必須です")
	}
	if in.Password != in.Password2 {
		return nil, model.NewPasswordMismatchError()
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("password は%d文字以上で入力してください", MinPasswordLength))
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, mapDuplicateUserError(err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login はユーザー名とパスワードを検証し、トークンを発行する。
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("login failed", slog.String("username", user.Username))
		return nil, model.NewInvalidCredentialsError()
	}

	tokens, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &LoginResult{Tokens: tokens, User: user}, nil
}

// Refresh はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// 使用したリフレッシュトークンは失効させる（ローテーション）。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, model.NewInvalidTokenError()
	}

	// 先に削除することで同じトークンの同時使用でも発行は1回に限られる
	deleted, err := s.refreshTokens.DeleteByID(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !deleted {
		slog.Warn("refresh token reuse or revoked token", slog.String("user_id", claims.Subject))
		return nil, model.NewInvalidTokenError()
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidTokenError()
	}

	return s.issueTokens(ctx, user.ID)
}

// Verify はトークンの署名と有効期限を検証する。
func (s *Service) Verify(token string) error {
	if _, err := s.tokens.ParseAny(token); err != nil {
		return model.NewInvalidTokenError()
	}
	return nil
}

// Logout はリフレッシュトークンを失効させる。
// 不正なトークンや失効済みのトークンでもエラーにしない。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	if _, err := s.refreshTokens.DeleteByID(ctx, claims.ID); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	slog.Info("user logged out", slog.String("user_id", claims.Subject))
	return nil
}

// Check は認証状態を返す。userIDが空の場合は未認証。
func (s *Service) Check(ctx context.Context, userID string) (*AuthStatus, error) {
	unauthenticated := &AuthStatus{AuthType: "none", Providers: []string{}}
	if userID == "" {
		return unauthenticated, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return unauthenticated, nil
	}

	providers, err := s.identities.ListProvidersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	if providers == nil {
		providers = []string{}
	}

	return &AuthStatus{
		IsAuthenticated: true,
		Username:        user.Username,
		AuthType:        "jwt",
		Providers:       providers,
	}, nil
}

// HandleCallback はOAuthコールバックを処理し、トークンを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*TokenPair, error) {
	if s.oauth == nil {
		return nil, model.NewOAuthNotConfiguredError()
	}

	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string
	if identity != nil {
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", info.Provider),
		)
	} else {
		user, err := s.createOAuthUser(ctx, info)
		if err != nil {
			return nil, err
		}
		userID = user.ID
		slog.Info("new user created",
			slog.String("user_id", userID),
			slog.String("username", user.Username),
			slog.String("provider", info.Provider),
		)
	}

	return s.issueTokens(ctx, userID)
}

// createOAuthUser はOAuthユーザー情報からユーザーとidentityを作成する。
// メールアドレスが既存ユーザーと重複する場合はメールアドレスなしで作成する。
func (s *Service) createOAuthUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	username, err := s.availableUsername(ctx, usernameBase(info.Email))
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     info.Email,
		FirstName: info.FirstName,
		LastName:  info.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	err = s.users.CreateWithIdentity(ctx, user, identity)
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		user.Email = ""
		err = s.users.CreateWithIdentity(ctx, user, identity)
	case errors.Is(err, repository.ErrUsernameTaken):
		// 確認から作成までの間に同名ユーザーが作られた場合
		user.Username = withSuffix(username, uuid.New().String()[:8])
		err = s.users.CreateWithIdentity(ctx, user, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}
	return user, nil
}

// availableUsername はbaseを元に未使用のユーザー名を返す。
func (s *Service) availableUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; i < usernameSuffixAttempts+2; i++ {
		exists, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = withSuffix(base, strconv.Itoa(i))
	}
	return withSuffix(base, uuid.New().String()[:8]), nil
}

// usernameBase はメールアドレスのローカル部からユーザー名の候補を作る。
func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local = usernameDisallowed.ReplaceAllString(local, "")
	if local == "" {
		local = "user"
	}
	if len(local) > maxUsernameLength {
		local = local[:maxUsernameLength]
	}
	return local
}

func withSuffix(base, suffix string) string {
	if len(base)+len(suffix) > maxUsernameLength {
		base = base[:maxUsernameLength-len(suffix)]
	}
	return base + suffix
}

// issueTokens はトークンを発行し、リフレッシュトークンを台帳に登録する。
func (s *Service) issueTokens(ctx context.Context, userID string) (*TokenPair, error) {
	pair, err := s.tokens.Issue(userID)
	if err != nil {
		return nil, err
	}
	if err := s.refreshTokens.Create(ctx, &model.RefreshToken{
		ID:        pair.RefreshID,
		UserID:    userID,
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}
	return pair, nil
}

// mapDuplicateUserError はリポジトリの一意制約エラーをAPIErrorに変換する。
func mapDuplicateUserError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return model.NewEmailTakenError()
	case errors.Is(err, repository.ErrUsernameTaken):
		return model.NewUsernameTakenError()
	}
	return fmt.Errorf("failed to create user: %w", err)
}
