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
// セッションストア、ドキュメントゲートウェイ、HTTP層から利用する。
type MetricsCollector interface {
	RecordSessionChange(signedIn bool)
	RecordListenerFailure(listener string)
	RecordGatewayOp(op string, failed bool, duration time.Duration)
	RecordPostMutation(kind string)
	RecordIdentityEvent(event string, failed bool)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionChanges   *prometheus.CounterVec
	listenerFailures *prometheus.CounterVec
	gatewayOps       *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	postMutations    *prometheus.CounterVec
	identityEvents   *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postboard_session_changes_total",
			Help: "セッション変更通知の合計数",
		}, []string{"state"}),
		listenerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postboard_listener_failures_total",
			Help: "セッションリスナー失敗の合計数",
		}, []string{"listener"}),
		gatewayOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postboard_gateway_operations_total",
			Help: "ドキュメントゲートウェイ操作の合計数",
		}, []string{"op", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postboard_gateway_latency_seconds",
			Help:    "ドキュメントゲートウェイ操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		postMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postboard_post_mutations_total",
			Help: "投稿の作成・更新・削除の合計数",
		}, []string{"kind"}),
		identityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postboard_identity_events_total",
			Help: "認証イベントの合計数",
		}, []string{"event", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.sessionChanges,
		c.listenerFailures,
		c.gatewayOps,
		c.gatewayLatency,
		c.postMutations,
		c.identityEvents,
		c.httpStatus,
	)

	return c
}

func outcome(failed bool) string {
	if failed {
		return "failure"
	}
	return "success"
}

// RecordSessionChange はセッション変更通知を記録する。
func (c *Collector) RecordSessionChange(signedIn bool) {
	state := "signed_out"
	if signedIn {
		state = "signed_in"
	}
	c.sessionChanges.WithLabelValues(state).Inc()
}

// RecordListenerFailure はリスナーの失敗を記録する。
func (c *Collector) RecordListenerFailure(listener string) {
	c.listenerFailures.WithLabelValues(listener).Inc()
}

// RecordGatewayOp はゲートウェイ操作の結果とレイテンシを記録する。
func (c *Collector) RecordGatewayOp(op string, failed bool, duration time.Duration) {
	c.gatewayOps.WithLabelValues(op, outcome(failed)).Inc()
	c.gatewayLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPostMutation は投稿の変更を記録する。kindはcreate/update/delete。
func (c *Collector) RecordPostMutation(kind string) {
	c.postMutations.WithLabelValues(kind).Inc()
}

// RecordIdentityEvent は認証イベント（register, login, logout等）を記録する。
func (c *Collector) RecordIdentityEvent(event string, failed bool) {
	c.identityEvents.WithLabelValues(event, outcome(failed)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集に一部失敗しても取得できたメトリクスは返し、Acceptに応じてOpenMetrics形式でも応答する。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
