// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordLogin()
	RecordActivityCreated(category string)
	RecordJoin(outcome string)
	RecordMessagePosted()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins            prometheus.Counter
	activitiesCreated *prometheus.CounterVec
	joins             *prometheus.CounterVec
	messagesPosted    prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsudoi_logins_total",
			Help: "ログイン成功の合計数",
		}),
		activitiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsudoi_activities_created_total",
			Help: "作成されたアクティビティのカテゴリ別合計数",
		}, []string{"category"}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsudoi_joins_total",
			Help: "参加操作の結果別合計数",
		}, []string{"outcome"}),
		messagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsudoi_messages_posted_total",
			Help: "投稿されたチャットメッセージの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsudoi_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsudoi_http_request_duration_seconds",
			Help:    "HTTPリクエスト処理時間の分布（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.activitiesCreated,
		c.joins,
		c.messagesPosted,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordActivityCreated はアクティビティ作成を記録する。
func (c *Collector) RecordActivityCreated(category string) {
	c.activitiesCreated.WithLabelValues(category).Inc()
}

// RecordJoin は参加操作の結果を記録する。
// outcomeは"joined", "rejoined", "rejected"等。
func (c *Collector) RecordJoin(outcome string) {
	c.joins.WithLabelValues(outcome).Inc()
}

// RecordMessagePosted はチャットメッセージの投稿を記録する。
func (c *Collector) RecordMessagePosted() {
	c.messagesPosted.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
