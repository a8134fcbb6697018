package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	tokenIssuer = "study-savings"
)

// ErrInvalidToken はトークンの署名・種別・有効期限のいずれかが不正であることを示す。
var ErrInvalidToken = errors.New("invalid token")

// Claims はアクセストークンとリフレッシュトークンに共通するクレーム。
// SubjectにユーザーID、IDにjtiを格納する。
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair はログイン時に発行するトークンの組。
type TokenPair struct {
	Access  string
	Refresh string

	// RefreshID はリフレッシュトークンのjti。失効管理の台帳キーになる。
	RefreshID        string
	RefreshExpiresAt time.Time
}

// TokenManager はHS256で署名したJWTの発行と検証を行う。
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue はユーザーのアクセストークンとリフレッシュトークンを発行する。
func (m *TokenManager) Issue(userID string) (*TokenPair, error) {
	now := m.now()

	access, _, err := m.sign(userID, tokenTypeAccess, now, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, claims, err := m.sign(userID, tokenTypeRefresh, now, m.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		Access:           access,
		Refresh:          refresh,
		RefreshID:        claims.ID,
		RefreshExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (m *TokenManager) sign(userID, tokenType string, now time.Time, ttl time.Duration) (string, *Claims, error) {
	claims := &Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// VerifyAccessToken はアクセストークンを検証し、ユーザーIDを返す。
func (m *TokenManager) VerifyAccessToken(token string) (string, error) {
	claims, err := m.parse(token, tokenTypeAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ParseRefreshToken はリフレッシュトークンを検証し、クレームを返す。
// 台帳上の失効確認は呼び出し側で行う。
func (m *TokenManager) ParseRefreshToken(token string) (*Claims, error) {
	return m.parse(token, tokenTypeRefresh)
}

// ParseAny はトークン種別を問わず署名と有効期限を検証する。
func (m *TokenManager) ParseAny(token string) (*Claims, error) {
	return m.parse(token, "")
}

func (m *TokenManager) parse(token, wantType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if wantType != "" && claims.TokenType != wantType {
		return nil, fmt.Errorf("%w: token_type %q", ErrInvalidToken, claims.TokenType)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalidToken)
	}
	return claims, nil
}
