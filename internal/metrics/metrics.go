// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordCheck(domain string)
	RecordCheckError(domain string)
	RecordStatusTransition(fromStatus, toStatus string)
	RecordCheckLatency(duration time.Duration)
	RecordNotification(channelType string, success bool)
	RecordRegistration(adapter string, success bool)
	RecordSweepDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	checksTotal       prometheus.Counter
	checkErrors       prometheus.Counter
	statusTransitions *prometheus.CounterVec
	checkLatency      prometheus.Histogram
	notifications     *prometheus.CounterVec
	registrations     *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "namedrop_checks_total",
			Help: "ドメインチェック実行の合計数",
		}),
		checkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "namedrop_check_errors_total",
			Help: "ドメインチェック失敗の合計数",
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "namedrop_status_transitions_total",
			Help: "ドメイン状態遷移の合計数",
		}, []string{"from_status", "to_status"}),
		checkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "namedrop_check_latency_seconds",
			Help:    "ドメインチェックのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "namedrop_notifications_total",
			Help: "チャネル種別・結果別の通知送信数",
		}, []string{"channel_type", "result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "namedrop_registrations_total",
			Help: "アダプタ・結果別の登録試行数",
		}, []string{"adapter", "result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "namedrop_sweep_duration_seconds",
			Help:    "スケジューラスイープ1回の所要時間（秒）",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
	}

	reg.MustRegister(
		c.checksTotal,
		c.checkErrors,
		c.statusTransitions,
		c.checkLatency,
		c.notifications,
		c.registrations,
		c.sweepDuration,
	)

	return c
}

// RecordCheck はドメインチェックの実行を記録する。
func (c *Collector) RecordCheck(domain string) {
	c.checksTotal.Inc()
}

// RecordCheckError はドメインチェックの失敗を記録する。
func (c *Collector) RecordCheckError(domain string) {
	c.checkErrors.Inc()
}

// RecordStatusTransition は状態遷移を記録する。
func (c *Collector) RecordStatusTransition(fromStatus, toStatus string) {
	c.statusTransitions.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordCheckLatency はチェックのレイテンシを記録する。
func (c *Collector) RecordCheckLatency(duration time.Duration) {
	c.checkLatency.Observe(duration.Seconds())
}

// RecordNotification は通知送信の結果を記録する。
func (c *Collector) RecordNotification(channelType string, success bool) {
	c.notifications.WithLabelValues(channelType, resultLabel(success)).Inc()
}

// RecordRegistration は登録試行の結果を記録する。
func (c *Collector) RecordRegistration(adapter string, success bool) {
	c.registrations.WithLabelValues(adapter, resultLabel(success)).Inc()
}

// RecordSweepDuration はスイープ1回の所要時間を記録する。
func (c *Collector) RecordSweepDuration(duration time.Duration) {
	c.sweepDuration.Observe(duration.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
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
