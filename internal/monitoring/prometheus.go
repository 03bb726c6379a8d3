package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/searchd/internal/logging"
)

// PrometheusReporter exposes core events as Prometheus metrics. Register it
// alongside the LogReporter via MultiReporter; serve the registry with
// ServeMetrics.
type PrometheusReporter struct {
	registry *prometheus.Registry

	queries          *prometheus.CounterVec
	queryErrors      prometheus.Counter
	queryDuration    prometheus.Histogram
	openConnections  prometheus.Gauge
	totalConnections prometheus.Counter
	securityFailures prometheus.Counter
	corpusReloads    prometheus.Counter
	corpusLines      prometheus.Gauge
}

// NewPrometheusReporter creates a reporter with its own registry.
func NewPrometheusReporter() *PrometheusReporter {
	registry := prometheus.NewRegistry()

	r := &PrometheusReporter{
		registry: registry,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "searchd_queries_total",
			Help: "Queries processed, partitioned by result.",
		}, []string{"result"}),
		queryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchd_query_errors_total",
			Help: "Queries that failed with an ERROR response.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_query_duration_seconds",
			Help:    "Query processing time from frame read to response write.",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchd_open_connections",
			Help: "Currently open client connections.",
		}),
		totalConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchd_connections_total",
			Help: "Accepted client connections.",
		}),
		securityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchd_security_failures_total",
			Help: "Failed TLS handshakes and pre-shared key rejections.",
		}),
		corpusReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchd_corpus_reloads_total",
			Help: "Corpus snapshot replacements.",
		}),
		corpusLines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "searchd_corpus_lines",
			Help: "Line count of the most recently published snapshot.",
		}),
	}

	registry.MustRegister(
		r.queries,
		r.queryErrors,
		r.queryDuration,
		r.openConnections,
		r.totalConnections,
		r.securityFailures,
		r.corpusReloads,
		r.corpusLines,
	)

	return r
}

// Registry returns the underlying registry for serving or test scraping.
func (r *PrometheusReporter) Registry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusReporter) ConnectionOpened(sessionID, remote string) {
	r.totalConnections.Inc()
	r.openConnections.Inc()
}

func (r *PrometheusReporter) ConnectionClosed(sessionID, remote string, duration time.Duration) {
	r.openConnections.Dec()
}

func (r *PrometheusReporter) QueryProcessed(sessionID, remote, query string, found bool, elapsed time.Duration) {
	result := "not_found"
	if found {
		result = "exists"
	}
	r.queries.WithLabelValues(result).Inc()
	r.queryDuration.Observe(elapsed.Seconds())
}

func (r *PrometheusReporter) QueryFailed(sessionID, remote string, err error) {
	r.queryErrors.Inc()
}

func (r *PrometheusReporter) SecurityFailure(remote string, err error) {
	r.securityFailures.Inc()
}

func (r *PrometheusReporter) CorpusReloaded(path string, lines int, fingerprint uint64) {
	r.corpusReloads.Inc()
	r.corpusLines.Set(float64(lines))
}

// MetricsServer serves the /metrics endpoint on its own listener, separate
// from the search port.
type MetricsServer struct {
	server *http.Server
	logger logging.Logger
}

// NewMetricsServer creates an HTTP server exposing the reporter's registry.
func NewMetricsServer(addr string, reporter *PrometheusReporter, logger logging.Logger) *MetricsServer {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reporter.Registry(), promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger.WithComponent("metrics"),
	}
}

// Start serves until Shutdown is called. Blocking.
func (m *MetricsServer) Start() error {
	m.logger.Info(context.Background(), "metrics endpoint listening", "addr", m.server.Addr)
	if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the metrics endpoint.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
