package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docchat-go/internal/rag"
)

const (
	// namespace prefixes every metric name.
	namespace = "docchat"
	// labelHandler is the "handler" label used to partition metrics by the
	// registered route pattern rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// Collectors register against the registry passed to newServerMetrics so
// tests can use an isolated prometheus.Registry.
type serverMetrics struct {
	// askRequestsTotal counts completed /ask requests by outcome: "ok",
	// "timeout", or the error kind.
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records /ask latency by outcome.
	askDurationSeconds *prometheus.HistogramVec

	// indexRebuildsTotal counts refresh and ingest rebuilds by trigger and outcome.
	indexRebuildsTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests by method, route and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg. entries reports
// the size of the active index for the docchat_index_entries gauge.
func newServerMetrics(reg prometheus.Registerer, entries func() float64) *serverMetrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "entries",
		Help:      "Number of chunks in the active index.",
	}, entries)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /ask requests.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		indexRebuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total number of index rebuild attempts, partitioned by trigger and outcome.",
		}, []string{"trigger", "outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

func (m *serverMetrics) observeAsk(outcome string, d time.Duration) {
	m.askRequestsTotal.WithLabelValues(outcome).Inc()
	m.askDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *serverMetrics) observeRebuild(trigger string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(rag.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.indexRebuildsTotal.WithLabelValues(trigger, outcome).Inc()
}

// instrument records request count and latency per matched route. The mux
// sets r.Pattern on the request it is handed, which is read after it returns.
func (m *serverMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)

		handler := r.Pattern
		if handler == "" {
			handler = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
