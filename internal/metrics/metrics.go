// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(duration time.Duration)
	RecordRateLimited(category string)
	RecordSessionStarted()
	RecordSessionCompleted(earned decimal.Decimal)
	RecordGoalAchieved()
	RecordAnalysis(outcome string)
}

// 分析結果のoutcomeラベル値。
const (
	AnalysisGenerated        = "generated"
	AnalysisInsufficientData = "insufficient_data"
	AnalysisThrottled        = "throttled"
	AnalysisFailed           = "failed"
	AnalysisUnconfigured     = "unconfigured"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus        *prometheus.CounterVec
	httpLatency       prometheus.Histogram
	rateLimited       *prometheus.CounterVec
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	earnedAmount      prometheus.Counter
	goalsAchieved     prometheus.Counter
	analyses          *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_savings_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "study_savings_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_savings_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"limit_type"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "study_savings_sessions_started_total",
			Help: "開始された学習セッションの合計数",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "study_savings_sessions_completed_total",
			Help: "終了した学習セッションの合計数",
		}),
		earnedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "study_savings_earned_amount_yen_total",
			Help: "学習セッションで獲得した金額の合計（円）",
		}),
		goalsAchieved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "study_savings_goals_achieved_total",
			Help: "達成された貯金目標の合計数",
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_savings_analysis_total",
			Help: "学習分析リクエストの結果別の件数",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.httpLatency,
		c.rateLimited,
		c.sessionsStarted,
		c.sessionsCompleted,
		c.earnedAmount,
		c.goalsAchieved,
		c.analyses,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordHTTPLatency(duration time.Duration) {
	c.httpLatency.Observe(duration.Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(category string) {
	c.rateLimited.WithLabelValues(category).Inc()
}

// RecordSessionStarted は学習セッションの開始を記録する。
func (c *Collector) RecordSessionStarted() {
	c.sessionsStarted.Inc()
}

// RecordSessionCompleted は学習セッションの終了と獲得金額を記録する。
func (c *Collector) RecordSessionCompleted(earned decimal.Decimal) {
	c.sessionsCompleted.Inc()
	if earned.IsPositive() {
		c.earnedAmount.Add(earned.InexactFloat64())
	}
}

// RecordGoalAchieved は貯金目標の達成を記録する。
func (c *Collector) RecordGoalAchieved() {
	c.goalsAchieved.Inc()
}

// RecordAnalysis は学習分析の結果を記録する。
func (c *Collector) RecordAnalysis(outcome string) {
	c.analyses.WithLabelValues(outcome).Inc()
}

// Handler はPrometheusメトリクスを公開するHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
