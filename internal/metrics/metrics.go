// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値。
const (
	OutcomeLogin         = "login"          // 既知の連携でのログイン
	OutcomeNewAccount    = "new_account"    // 新規アカウント作成
	OutcomeAutoLink      = "auto_link"      // 検証済みメール一致による自動リンク
	OutcomeEmailConflict = "email_conflict" // 未検証メール衝突の拒否
	OutcomeError         = "error"          // その他の失敗
)

// セッション検証結果のラベル値。
const (
	SessionValid    = "valid"
	SessionExpired  = "expired"
	SessionNotFound = "not_found"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(provider string, outcome string)
	RecordSessionValidation(result string)
	RecordSessionsCleaned(count int64)
	RecordAvatarFetchFailure()
	RecordCallbackLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins            *prometheus.CounterVec
	sessionValidation *prometheus.CounterVec
	sessionsCleaned   prometheus.Counter
	avatarFetchFail   prometheus.Counter
	callbackLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playscore_login_total",
			Help: "プロバイダー・結果別のログイン試行数",
		}, []string{"provider", "outcome"}),
		sessionValidation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playscore_session_validation_total",
			Help: "結果別のセッション検証数",
		}, []string{"result"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playscore_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
		avatarFetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playscore_avatar_fetch_fail_total",
			Help: "アバター画像取得失敗の合計数",
		}),
		callbackLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playscore_callback_latency_seconds",
			Help:    "OAuthコールバック処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.sessionValidation,
		c.sessionsCleaned,
		c.avatarFetchFail,
		c.callbackLatency,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(provider string, outcome string) {
	c.logins.WithLabelValues(provider, outcome).Inc()
}

// RecordSessionValidation はセッション検証の結果を記録する。
func (c *Collector) RecordSessionValidation(result string) {
	c.sessionValidation.WithLabelValues(result).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// RecordAvatarFetchFailure はアバター画像取得の失敗を記録する。
func (c *Collector) RecordAvatarFetchFailure() {
	c.avatarFetchFail.Inc()
}

// RecordCallbackLatency はコールバック処理のレイテンシを記録する。
func (c *Collector) RecordCallbackLatency(duration time.Duration) {
	c.callbackLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
