// Package ratelimit はクライアント単位・カテゴリ単位の固定ウィンドウ方式レート制限を提供する。
//
// カウンタは注入されたStoreに保存され、複数プロセス間で共有できる。
// ウィンドウ終了時刻以降の最初のリクエストでカウンタを0に戻し、新しいウィンドウを開始する。
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Category はレート制限の区分を表す。
type Category string

const (
	// CategoryAuth は認証関連エンドポイントの区分。
	CategoryAuth Category = "auth"
	// CategoryAPI はAPI全般の区分。
	CategoryAPI Category = "api"
)

// Rule はカテゴリごとのウィンドウ幅と最大リクエスト数。
type Rule struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultRules は認証 10 req/分、API全般 100 req/分の既定ルールを返す。
func DefaultRules() map[Category]Rule {
	return map[Category]Rule{
		CategoryAuth: {Window: time.Minute, MaxRequests: 10},
		CategoryAPI:  {Window: time.Minute, MaxRequests: 100},
	}
}

// Counter はウィンドウ内のリクエスト数とウィンドウ終了時刻。
type Counter struct {
	Count         int
	WindowResetAt time.Time
}

// Store はカウンタの保存先。
// Getはキーが存在しないか期限切れの場合に (nil, nil) を返す。
type Store interface {
	Get(ctx context.Context, key string) (*Counter, error)
	Set(ctx context.Context, key string, counter Counter, ttl time.Duration) error
}

// Incrementer は取得・リセット・加算・保存を1操作で行うStoreが実装する。
// 実装されている場合、Limiterは並行リクエスト間の読み書き競合を起こさずに加算できる。
type Incrementer interface {
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Counter, error)
}

// Decision はレート制限の判定結果。
type Decision struct {
	Allowed    bool
	Category   Category
	Count      int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds はRetry-Afterとして返す秒数（切り上げ、0以上）を返す。
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Option はLimiterの生成オプション。
type Option func(*Limiter)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter は固定ウィンドウ方式のレートリミッター。
// 状態はすべてStoreに置き、Limiter自身は不変なので並行利用できる。
type Limiter struct {
	store Store
	rules map[Category]Rule
	now   func() time.Time
}

// NewLimiter はLimiterを生成する。
func NewLimiter(store Store, rules map[Category]Rule, opts ...Option) *Limiter {
	copied := make(map[Category]Rule, len(rules))
	for c, r := range rules {
		copied[c] = r
	}
	l := &Limiter{
		store: store,
		rules: copied,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rule は指定カテゴリのルールを返す。
func (l *Limiter) Rule(category Category) (Rule, bool) {
	r, ok := l.rules[category]
	return r, ok
}

// Key はカウンタの保存キーを返す。カテゴリ間でカウンタは共有しない。
func Key(category Category, identity string) string {
	return "rate_limit_" + string(category) + "_" + identity
}

// Allow はリクエストを1件数え、上限内かどうかを判定する。
// 上限超過のリクエストもカウントに含める。
// ルールのないカテゴリは常に許可する。
// Storeのエラー時はAllowed=trueの判定とエラーを返し、扱いは呼び出し側に委ねる。
func (l *Limiter) Allow(ctx context.Context, category Category, identity string) (Decision, error) {
	rule, ok := l.rules[category]
	if !ok {
		return Decision{Allowed: true, Category: category}, nil
	}

	now := l.now()
	key := Key(category, identity)

	var (
		counter Counter
		err     error
	)
	if inc, ok := l.store.(Incrementer); ok {
		counter, err = inc.Increment(ctx, key, now, rule.Window)
	} else {
		counter, err = l.getAndSet(ctx, key, now, rule.Window)
	}
	if err != nil {
		return Decision{Allowed: true, Category: category, Limit: rule.MaxRequests},
			fmt.Errorf("failed to update rate limit counter %s: %w", key, err)
	}

	d := Decision{
		Allowed:  counter.Count <= rule.MaxRequests,
		Category: category,
		Count:    counter.Count,
		Limit:    rule.MaxRequests,
		ResetAt:  counter.WindowResetAt,
	}
	if !d.Allowed {
		d.RetryAfter = counter.WindowResetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d, nil
}

// getAndSet はGet/Setのみを提供するStore向けの加算処理。
func (l *Limiter) getAndSet(ctx context.Context, key string, now time.Time, window time.Duration) (Counter, error) {
	current, err := l.store.Get(ctx, key)
	if err != nil {
		return Counter{}, err
	}

	next := Advance(current, now, window)
	if err := l.store.Set(ctx, key, next, window); err != nil {
		return Counter{}, err
	}
	return next, nil
}

// Advance は既存カウンタに1件加算した結果を返す。
// カウンタが無いか、nowがウィンドウ終了時刻以降の場合は新しいウィンドウを開始する。
func Advance(current *Counter, now time.Time, window time.Duration) Counter {
	if current == nil || !now.Before(current.WindowResetAt) {
		return Counter{Count: 1, WindowResetAt: now.Add(window)}
	}
	return Counter{Count: current.Count + 1, WindowResetAt: current.WindowResetAt}
}
