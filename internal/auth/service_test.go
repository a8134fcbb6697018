package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	findByUsernameFn     func(ctx context.Context, username string) (*model.User, error)
	usernameExistsFn     func(ctx context.Context, username string) (bool, error)
	createFn             func(ctx context.Context, user *model.User) error
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	if m.usernameExistsFn != nil {
		return m.usernameExistsFn(ctx, username)
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, _ *model.User) error { return nil }

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error { return nil }

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
	listProvidersFn  func(ctx context.Context, userID string) ([]string, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) ListProvidersByUserID(ctx context.Context, userID string) ([]string, error) {
	if m.listProvidersFn != nil {
		return m.listProvidersFn(ctx, userID)
	}
	return nil, nil
}

// memRefreshTokens はリフレッシュトークン台帳のインメモリ実装。
type memRefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*model.RefreshToken
}

func newMemRefreshTokens() *memRefreshTokens {
	return &memRefreshTokens{tokens: make(map[string]*model.RefreshToken)}
}

func (m *memRefreshTokens) Create(_ context.Context, token *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.ID] = token
	return nil
}

func (m *memRefreshTokens) FindByID(_ context.Context, id string) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[id], nil
}

func (m *memRefreshTokens) DeleteByID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[id]
	delete(m.tokens, id)
	return ok, nil
}

func (m *memRefreshTokens) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

func (m *memRefreshTokens) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.RefreshTokenRepository = (*memRefreshTokens)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

// --- ヘルパー ---

var testNow = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestService(oauth OAuthProvider, users *mockUserRepo, identities *mockIdentityRepo, refresh *memRefreshTokens) *Service {
	if users == nil {
		users = &mockUserRepo{}
	}
	if identities == nil {
		identities = &mockIdentityRepo{}
	}
	if refresh == nil {
		refresh = newMemRefreshTokens()
	}
	svc := NewService(oauth, users, identities, refresh, newTestTokenManager(testNow))
	svc.now = func() time.Time { return testNow }
	return svc
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("code = %q, want %q", apiErr.Code, code)
	}
}

func userWithPassword(t *testing.T, id, username, password string) *model.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &model.User{ID: id, Username: username, PasswordHash: hash}
}

// --- Register ---

func TestRegister_CreatesUserWithHashedPassword(t *testing.T) {
	var created *model.User
	users := &mockUserRepo{createFn: func(_ context.Context, u *model.User) error {
		created = u
		return nil
	}}
	svc := newTestService(nil, users, nil, nil)

	user, err := svc.Register(context.Background(), RegisterInput{
		Username:  " taro ",
		Email:     "taro@example.com",
		Password:  "password123",
		Password2: "password123",
		FirstName: "太郎",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if created == nil || created != user {
		t.Fatal("expected user to be passed to repository")
	}
	if user.Username != "taro" {
		t.Errorf("Username = %q, want trimmed taro", user.Username)
	}
	if user.ID == "" {
		t.Error("expected generated ID")
	}
	if ok, _ := CheckPassword(user.PasswordHash, "password123"); !ok {
		t.Error("stored hash does not match the password")
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
		code string
	}{
		{"パスワード不一致", RegisterInput{Username: "a", Password: "password123", Password2: "password124"}, model.ErrCodePasswordMismatch},
		{"短いパスワード", RegisterInput{Username: "a", Password: "short", Password2: "short"}, model.ErrCodeValidationFailed},
		{"ユーザー名なし", RegisterInput{Username: "  ", Password: "password123", Password2: "password123"}, model.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserRepo{createFn: func(context.Context, *model.User) error {
				t.Error("Create should not be called")
				return nil
			}}
			svc := newTestService(nil, users, nil, nil)

			_, err := svc.Register(context.Background(), tt.in)
			assertAPIErrorCode(t, err, tt.code)
		})
	}
}

func TestRegister_DuplicateMapsToConflictCodes(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		code    string
	}{
		{"ユーザー名重複", repository.ErrUsernameTaken, model.ErrCodeUsernameTaken},
		{"メール重複", repository.ErrEmailTaken, model.ErrCodeEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserRepo{createFn: func(context.Context, *model.User) error { return tt.repoErr }}
			svc := newTestService(nil, users, nil, nil)

			_, err := svc.Register(context.Background(), RegisterInput{
				Username: "taro", Password: "password123", Password2: "password123",
			})
			assertAPIErrorCode(t, err, tt.code)
		})
	}
}

// --- Login / Refresh / Logout ---

func TestLogin_IssuesTokensAndStoresRefresh(t *testing.T) {
	user := userWithPassword(t, "user-1", "taro", "password123")
	users := &mockUserRepo{findByUsernameFn: func(_ context.Context, username string) (*model.User, error) {
		if username == "taro" {
			return user, nil
		}
		return nil, nil
	}}
	refresh := newMemRefreshTokens()
	svc := newTestService(nil, users, nil, refresh)

	result, err := svc.Login(context.Background(), "taro", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.User.ID != "user-1" {
		t.Errorf("User.ID = %q", result.User.ID)
	}
	if got, err := svc.tokens.VerifyAccessToken(result.Tokens.Access); err != nil || got != "user-1" {
		t.Errorf("access token verify = (%q, %v)", got, err)
	}
	if stored, _ := refresh.FindByID(context.Background(), result.Tokens.RefreshID); stored == nil || stored.UserID != "user-1" {
		t.Errorf("refresh token not stored: %+v", stored)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	user := userWithPassword(t, "user-1", "taro", "password123")
	oauthOnly := &model.User{ID: "user-2", Username: "google-user"}

	users := &mockUserRepo{findByUsernameFn: func(_ context.Context, username string) (*model.User, error) {
		switch username {
		case "taro":
			return user, nil
		case "google-user":
			return oauthOnly, nil
		}
		return nil, nil
	}}
	svc := newTestService(nil, users, nil, nil)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"パスワード誤り", "taro", "wrong-password"},
		{"存在しないユーザー", "nobody", "password123"},
		{"パスワード未設定ユーザー", "google-user", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.username, tt.password)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
		})
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	user := &model.User{ID: "user-1", Username: "taro"}
	users := &mockUserRepo{findByIDFn: func(context.Context, string) (*model.User, error) { return user, nil }}
	refresh := newMemRefreshTokens()
	svc := newTestService(nil, users, nil, refresh)
	ctx := context.Background()

	first, err := svc.issueTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("issueTokens: %v", err)
	}

	second, err := svc.Refresh(ctx, first.Refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshID == first.RefreshID {
		t.Error("expected a new refresh token ID")
	}
	if refresh.Len() != 1 {
		t.Errorf("stored tokens = %d, want 1 after rotation", refresh.Len())
	}

	// 使用済みトークンの再利用は拒否する
	_, err = svc.Refresh(ctx, first.Refresh)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidToken)
}

func TestRefresh_RejectsAccessTokenAndGarbage(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	ctx := context.Background()

	pair, err := svc.issueTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("issueTokens: %v", err)
	}

	for _, token := range []string{pair.Access, "garbage", ""} {
		_, err := svc.Refresh(ctx, token)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidToken)
	}
}

func TestRefresh_DeletedUserRejected(t *testing.T) {
	svc := newTestService(nil, &mockUserRepo{}, nil, nil)
	ctx := context.Background()

	pair, err := svc.issueTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("issueTokens: %v", err)
	}

	_, err = svc.Refresh(ctx, pair.Refresh)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidToken)
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	users := &mockUserRepo{findByIDFn: func(context.Context, string) (*model.User, error) {
		return &model.User{ID: "user-1"}, nil
	}}
	refresh := newMemRefreshTokens()
	svc := newTestService(nil, users, nil, refresh)
	ctx := context.Background()

	pair, err := svc.issueTokens(ctx, "user-1")
	if err != nil {
		t.Fatalf("issueTokens: %v", err)
	}

	if err := svc.Logout(ctx, pair.Refresh); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if refresh.Len() != 0 {
		t.Errorf("stored tokens = %d, want 0", refresh.Len())
	}

	_, err = svc.Refresh(ctx, pair.Refresh)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidToken)

	// 不正なトークンや二重ログアウトもエラーにならない
	for _, token := range []string{pair.Refresh, "garbage", ""} {
		if err := svc.Logout(ctx, token); err != nil {
			t.Errorf("Logout(%q) error = %v", token, err)
		}
	}
}

func TestVerify(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)

	pair, err := svc.issueTokens(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issueTokens: %v", err)
	}

	if err := svc.Verify(pair.Access); err != nil {
		t.Errorf("Verify(access) error = %v", err)
	}
	if err := svc.Verify(pair.Refresh); err != nil {
		t.Errorf("Verify(refresh) error = %v", err)
	}
	assertAPIErrorCode(t, svc.Verify("garbage"), model.ErrCodeInvalidToken)
}

// --- Check ---

func TestCheck(t *testing.T) {
	users := &mockUserRepo{findByIDFn: func(_ context.Context, id string) (*model.User, error) {
		if id == "user-1" {
			return &model.User{ID: "user-1", Username: "taro"}, nil
		}
		return nil, nil
	}}
	identities := &mockIdentityRepo{listProvidersFn: func(context.Context, string) ([]string, error) {
		return []string{"google"}, nil
	}}
	svc := newTestService(nil, users, identities, nil)
	ctx := context.Background()

	status, err := svc.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !status.IsAuthenticated || status.Username != "taro" || status.AuthType != "jwt" {
		t.Errorf("status = %+v", status)
	}
	if len(status.Providers) != 1 || status.Providers[0] != "google" {
		t.Errorf("Providers = %v", status.Providers)
	}

	for _, id := range []string{"", "deleted-user"} {
		status, err := svc.Check(ctx, id)
		if err != nil {
			t.Fatalf("Check(%q) error = %v", id, err)
		}
		if status.IsAuthenticated || status.AuthType != "none" {
			t.Errorf("Check(%q) = %+v, want unauthenticated", id, status)
		}
	}
}

// --- Google ログイン ---

func TestGetLoginURL_NotConfigured(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)

	_, err := svc.GetLoginURL("state")
	assertAPIErrorCode(t, err, model.ErrCodeOAuthNotConfigured)

	_, err = svc.HandleCallback(context.Background(), "code")
	assertAPIErrorCode(t, err, model.ErrCodeOAuthNotConfigured)
}

func TestGetLoginURL_ReturnsOAuthURL(t *testing.T) {
	provider := &mockOAuthProvider{getLoginURLFn: func(state string) string {
		return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state
	}}
	svc := newTestService(provider, nil, nil, nil)

	url, err := svc.GetLoginURL("test-state")
	if err != nil {
		t.Fatalf("GetLoginURL() error = %v", err)
	}
	if url != "https://accounts.google.com/o/oauth2/v2/auth?state=test-state" {
		t.Errorf("GetLoginURL() = %q", url)
	}
}

func googleUser(email string) *mockOAuthProvider {
	return &mockOAuthProvider{exchangeCodeFn: func(context.Context, string) (*OAuthUserInfo, error) {
		return &OAuthUserInfo{
			Provider:       ProviderGoogle,
			ProviderUserID: "google-sub-1",
			Email:          email,
			FirstName:      "花子",
		}, nil
	}}
}

func TestHandleCallback_NewUser_CreatesUserAndIdentity(t *testing.T) {
	var createdUser *model.User
	var createdIdentity *model.Identity

	users := &mockUserRepo{
		usernameExistsFn: func(_ context.Context, username string) (bool, error) {
			return username == "hanako" || username == "hanako2", nil
		},
		createWithIdentityFn: func(_ context.Context, u *model.User, i *model.Identity) error {
			createdUser, createdIdentity = u, i
			return nil
		},
	}
	refresh := newMemRefreshTokens()
	svc := newTestService(googleUser("hanako@example.com"), users, &mockIdentityRepo{}, refresh)

	pair, err := svc.HandleCallback(context.Background(), "code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if createdUser == nil || createdIdentity == nil {
		t.Fatal("expected user and identity to be created")
	}
	if createdUser.Username != "hanako3" {
		t.Errorf("Username = %q, want hanako3", createdUser.Username)
	}
	if createdUser.Email != "hanako@example.com" || createdUser.FirstName != "花子" {
		t.Errorf("user = %+v", createdUser)
	}
	if createdUser.HasPassword() {
		t.Error("OAuth user must not have a password")
	}
	if createdIdentity.UserID != createdUser.ID || createdIdentity.ProviderUserID != "google-sub-1" {
		t.Errorf("identity = %+v", createdIdentity)
	}

	if got, _ := svc.tokens.VerifyAccessToken(pair.Access); got != createdUser.ID {
		t.Errorf("access token subject = %q, want %q", got, createdUser.ID)
	}
	if refresh.Len() != 1 {
		t.Errorf("stored tokens = %d, want 1", refresh.Len())
	}
}

func TestHandleCallback_ExistingUser_LogsIn(t *testing.T) {
	users := &mockUserRepo{createWithIdentityFn: func(context.Context, *model.User, *model.Identity) error {
		t.Error("CreateWithIdentity should not be called for existing user")
		return nil
	}}
	identities := &mockIdentityRepo{findByProviderFn: func(_ context.Context, provider, sub string) (*model.Identity, error) {
		if provider == ProviderGoogle && sub == "google-sub-1" {
			return &model.Identity{UserID: "existing-user"}, nil
		}
		return nil, nil
	}}
	svc := newTestService(googleUser("hanako@example.com"), users, identities, nil)

	pair, err := svc.HandleCallback(context.Background(), "code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if got, _ := svc.tokens.VerifyAccessToken(pair.Access); got != "existing-user" {
		t.Errorf("access token subject = %q, want existing-user", got)
	}
}

func TestHandleCallback_EmailTakenCreatesWithoutEmail(t *testing.T) {
	var calls []string
	users := &mockUserRepo{createWithIdentityFn: func(_ context.Context, u *model.User, _ *model.Identity) error {
		calls = append(calls, u.Email)
		if u.Email != "" {
			return repository.ErrEmailTaken
		}
		return nil
	}}
	svc := newTestService(googleUser("taken@example.com"), users, &mockIdentityRepo{}, nil)

	if _, err := svc.HandleCallback(context.Background(), "code"); err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if len(calls) != 2 || calls[0] != "taken@example.com" || calls[1] != "" {
		t.Errorf("create calls = %v", calls)
	}
}

func TestHandleCallback_OAuthError_ReturnsError(t *testing.T) {
	provider := &mockOAuthProvider{exchangeCodeFn: func(context.Context, string) (*OAuthUserInfo, error) {
		return nil, errors.New("oauth exchange failed")
	}}
	svc := newTestService(provider, nil, nil, nil)

	if _, err := svc.HandleCallback(context.Background(), "bad-code"); err == nil {
		t.Fatal("expected error when OAuth exchange fails")
	}
}

func TestUsernameBase(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"hanako@example.com", "hanako"},
		{"first.last+tag@example.com", "first.last+tag"},
		{"日本語@example.com", "user"},
		{"", "user"},
		{strings.Repeat("a", 200) + "@example.com", strings.Repeat("a", 150)},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := usernameBase(tt.email); got != tt.want {
				t.Errorf("usernameBase(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}
