package httpserver

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func promHandler() http.Handler { return promhttp.Handler() }

// Metrics is the ambient /metrics surface spec.md §1 scopes out in detail
// ("concrete Prometheus wire format is out of scope") but which every
// sibling service in this fabric's retrieval pack exposes in the same
// shape: connection counts, queue depth proxies, and drop counters.
// Grounded on adred-codev-ws_poc/go-server/internal/metrics/metrics.go's
// promauto-registered counter/gauge set, trimmed to what this fabric's
// C4/C6 actually track.
type Metrics struct {
	connectionsTotal    prometheus.Counter
	connectionsActive   prometheus.Gauge
	connectionsRejected *prometheus.CounterVec
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// NewMetrics registers the counter/gauge family against the default
// Prometheus registry via promauto, as every metrics.go file in the
// retrieval pack does. Registration happens on the first call only; later
// calls return the same *Metrics, since the default registry rejects a
// second registration of the same metric names.
func NewMetrics() *Metrics {
	sharedMetricsOnce.Do(func() { sharedMetrics = newMetrics() })
	return sharedMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notify_connections_total",
			Help: "Total push connections accepted across SSE and WebSocket transports.",
		}),
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "notify_connections_active",
			Help: "Currently open push connections.",
		}),
		connectionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_connections_rejected_total",
			Help: "Connection attempts rejected before a connector was registered.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) ConnectionOpened() { m.connectionsTotal.Inc(); m.connectionsActive.Inc() }
func (m *Metrics) ConnectionClosed() { m.connectionsActive.Dec() }
func (m *Metrics) ConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}
