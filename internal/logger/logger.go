// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName はすべてのログに付与するサービス名。
const ServiceName = "study-savings"

const redacted = "[REDACTED]"

// sensitiveKeys は値をログに残さない属性キー（小文字）。
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"password2":     {},
	"access":        {},
	"refresh":       {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"jwt_secret":    {},
	"api_key":       {},
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// level未満のログは出力せず、DEBUGではソース位置を付与する。
// 認証情報を表すキーの値は常にマスクする。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: redactSensitive,
	})
	return slog.New(handler).With(slog.String("service", ServiceName))
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, level slog.Level) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, level))
}

func redactSensitive(groups []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}
