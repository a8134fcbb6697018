package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/ratelimit"
)

// RateLimitDecider はレート制限の判定を行うインターフェース。
// ratelimit.Limiterが実装する。
type RateLimitDecider interface {
	Allow(ctx context.Context, category ratelimit.Category, identity string) (ratelimit.Decision, error)
}

// RateLimitRecorder はレート制限による拒否を記録するインターフェース。
type RateLimitRecorder interface {
	RecordRateLimited(category string)
}

// rateLimitResponse は429レスポンスのボディ。統一エラーフォーマットにretry_afterを加える。
type rateLimitResponse struct {
	ErrorResponseBody
	RetryAfter int `json:"retry_after"`
}

// NewRateLimitMiddleware はパスの分類とクライアントIPに基づくレート制限ミドルウェアを返す。
// 分類対象外のパス（/health 等）は制限しない。
// カウンタストアの障害時はリクエストを通してエラーをログに残す。
// recorderはnilでもよい。
func NewRateLimitMiddleware(decider RateLimitDecider, classifier *ratelimit.Classifier, recorder RateLimitRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			category, ok := classifier.Classify(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := ClientIP(r)

			decision, err := decider.Allow(r.Context(), category, clientIP)
			if err != nil {
				slog.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("limit_type", string(category)),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				if recorder != nil {
					recorder.RecordRateLimited(string(category))
				}
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", clientIP),
					slog.String("limit_type", string(category)),
					slog.Int("count", decision.Count),
					slog.Int("limit", decision.Limit),
				)
				writeRateLimitResponse(w, decision.RetryAfterSeconds())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP はリクエスト元のクライアントIPを返す。
// X-Forwarded-For がある場合は先頭のアドレスを使う。
// ヘッダーの正当性は検証しないため、信頼できるプロキシの背後で使うこと。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには現在のウィンドウが終わるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfterSec int) {
	apiErr := model.NewRateLimitExceededError()

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(rateLimitResponse{
		ErrorResponseBody: newErrorBody(apiErr),
		RetryAfter:        retryAfterSec,
	})
}
