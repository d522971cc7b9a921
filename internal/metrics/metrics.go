package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/rpcpool/internal/event"
)

const namespace = "rpcpool"

// Sink records lifecycle and selection events into Prometheus collectors.
// It never blocks and never fails; it satisfies the event sink contract.
type Sink struct {
	attempts    *prometheus.CounterVec
	dialSeconds *prometheus.HistogramVec
	disconnects *prometheus.CounterVec
	uptime      prometheus.Histogram
	channelGet  prometheus.Histogram
	poolGet     *prometheus.HistogramVec
	expected    prometheus.Gauge
	live        prometheus.Gauge
}

var _ event.Sink = (*Sink)(nil)

// NewSink creates a Sink and registers its collectors with reg.
func NewSink(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)

	return &Sink{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts by slot and result.",
		}, []string{"slot", "result"}),
		dialSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Connect attempt duration by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Connection losses by slot.",
		}, []string{"slot"}),
		uptime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_uptime_seconds",
			Help:      "How long connections lived before loss.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		channelGet: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_get_duration_seconds",
			Help:      "Channel Get latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 10, 8),
		}),
		poolGet: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_get_duration_seconds",
			Help:      "Pool GetChannel latency by result.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 10, 8),
		}, []string{"result"}),
		expected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_channels_expected",
			Help:      "Configured pool size.",
		}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_channels_live",
			Help:      "Slots currently holding a live connection.",
		}),
	}
}

// ConnectSucceeded counts a successful dial.
func (s *Sink) ConnectSucceeded(e event.ConnectEvent) {
	s.attempts.WithLabelValues(strconv.Itoa(e.Slot), "ok").Inc()
	s.dialSeconds.WithLabelValues("ok").Observe(e.Duration.Seconds())
}

// ConnectFailed counts a failed dial.
func (s *Sink) ConnectFailed(e event.ConnectFailureEvent) {
	s.attempts.WithLabelValues(strconv.Itoa(e.Slot), "error").Inc()
	s.dialSeconds.WithLabelValues("error").Observe(e.Duration.Seconds())
}

// Disconnected counts a connection loss and its uptime.
func (s *Sink) Disconnected(e event.DisconnectEvent) {
	s.disconnects.WithLabelValues(strconv.Itoa(e.Slot)).Inc()
	s.uptime.Observe(e.Uptime.Seconds())
}

// ChannelGet observes a channel selection.
func (s *Sink) ChannelGet(e event.GetEvent) {
	s.channelGet.Observe(e.Latency.Seconds())
}

// PoolGet observes a pool selection.
func (s *Sink) PoolGet(e event.PoolGetEvent) {
	result := "hit"
	if !e.Connected {
		result = "miss"
	}
	s.poolGet.WithLabelValues(result).Observe(e.Latency.Seconds())
}

// PoolStatus updates the size gauges.
func (s *Sink) PoolStatus(e event.StatusEvent) {
	s.expected.Set(float64(e.Expected))
	s.live.Set(float64(e.Current))
}

// Handler returns the scrape handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
