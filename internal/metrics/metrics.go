// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthCollector は認証メトリクス収集のインターフェース。
// サービス層から利用する。
type AuthCollector interface {
	RecordLoginSuccess(tier string)
	RecordLoginFailure(tier string)
	RecordResetIssued()
	RecordResetConsumed(result string)
	RecordPasswordRotation()
	RecordHashLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess     *prometheus.CounterVec
	loginFail        *prometheus.CounterVec
	resetIssued      prometheus.Counter
	resetConsumed    *prometheus.CounterVec
	passwordRotation prometheus.Counter
	hashLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberauth_login_success_total",
			Help: "ログイン成功の合計数（エントリポイント別）",
		}, []string{"tier"}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberauth_login_fail_total",
			Help: "ログイン失敗の合計数（エントリポイント別）",
		}, []string{"tier"}),
		resetIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberauth_reset_tokens_issued_total",
			Help: "発行されたパスワード再設定トークンの合計数",
		}),
		resetConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memberauth_reset_tokens_consumed_total",
			Help: "消費されたパスワード再設定トークンの合計数（結果別）",
		}, []string{"result"}),
		passwordRotation: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memberauth_password_rotations_total",
			Help: "完了した強制パスワード変更の合計数",
		}),
		hashLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "memberauth_hash_latency_seconds",
			Help:    "パスワードハッシュ計算のレイテンシ（秒）",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8, 1.6},
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.resetIssued,
		c.resetConsumed,
		c.passwordRotation,
		c.hashLatency,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess(tier string) {
	c.loginSuccess.WithLabelValues(tier).Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(tier string) {
	c.loginFail.WithLabelValues(tier).Inc()
}

// RecordResetIssued はトークン発行を記録する。
func (c *Collector) RecordResetIssued() {
	c.resetIssued.Inc()
}

// RecordResetConsumed はトークン消費を結果別に記録する。
// resultは success / not_found / expired のいずれか。
func (c *Collector) RecordResetConsumed(result string) {
	c.resetConsumed.WithLabelValues(result).Inc()
}

// RecordPasswordRotation は強制パスワード変更の完了を記録する。
func (c *Collector) RecordPasswordRotation() {
	c.passwordRotation.Inc()
}

// RecordHashLatency はハッシュ計算のレイテンシを記録する。
func (c *Collector) RecordHashLatency(duration time.Duration) {
	c.hashLatency.Observe(duration.Seconds())
}

// compile-time interface check
var _ AuthCollector = (*Collector)(nil)

// NopCollector は何も記録しないAuthCollector実装。テスト用。
type NopCollector struct{}

func (NopCollector) RecordLoginSuccess(string)       {}
func (NopCollector) RecordLoginFailure(string)       {}
func (NopCollector) RecordResetIssued()              {}
func (NopCollector) RecordResetConsumed(string)      {}
func (NopCollector) RecordPasswordRotation()         {}
func (NopCollector) RecordHashLatency(time.Duration) {}

var _ AuthCollector = NopCollector{}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
