package observability

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loomtrack"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	ingestTotal     *prometheus.CounterVec
	ingestLatency   prometheus.Histogram
	stateChanges    prometheus.Counter
	stopTransitions *prometheus.CounterVec
	creditedSeconds *prometheus.CounterVec
	mqttMessages    *prometheus.CounterVec

	subscribers prometheus.Gauge
	backendInfo *prometheus.GaugeVec
}

// NewMetrics builds a private registry with process and runtime collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_inflight_requests",
			Help: "Requests currently being served.",
		}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingest_total",
			Help: "Loom reports by source and result.",
		}, []string{"source", "result"}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ingest_duration_seconds",
			Help:    "Time to apply and persist one report.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		stateChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "state_changes_total",
			Help: "Reports whose active state differed from the previous one.",
		}),
		stopTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stop_transitions_total",
			Help: "Counted transitions into a stop state.",
		}, []string{"reason"}),
		creditedSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "credited_seconds_total",
			Help: "State seconds credited to the totals.",
		}, []string{"state"}),
		mqttMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "mqtt_messages_total",
			Help: "MQTT messages received by result.",
		}, []string{"result"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sse_subscribers",
			Help: "Connected live stream subscribers.",
		}),
		backendInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "storage_backend_info",
			Help: "Active storage backend.",
		}, []string{"backend"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.ingestTotal, m.ingestLatency, m.stateChanges, m.stopTransitions, m.creditedSeconds,
		m.mqttMessages, m.subscribers, m.backendInfo,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Subscribers() prometheus.Gauge { return m.subscribers }

// RegisterDB exports connection pool stats of the relational backend.
func (m *Metrics) RegisterDB(db *sql.DB, name string) {
	if m == nil || db == nil {
		return
	}
	_ = m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

func (m *Metrics) SetBackend(kind string) {
	if m == nil {
		return
	}
	m.backendInfo.Reset()
	m.backendInfo.WithLabelValues(kind).Set(1)
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveIngest(source, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(source, result).Inc()
	if result == "ok" {
		m.ingestLatency.Observe(dur.Seconds())
	}
}

func (m *Metrics) IncStateChange() {
	if m != nil {
		m.stateChanges.Inc()
	}
}

func (m *Metrics) IncStopTransition(reason string) {
	if m != nil {
		m.stopTransitions.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) AddCredited(state string, seconds int64) {
	if m == nil || seconds <= 0 {
		return
	}
	m.creditedSeconds.WithLabelValues(state).Add(float64(seconds))
}

func (m *Metrics) IncMQTTMessage(result string) {
	if m != nil {
		m.mqttMessages.WithLabelValues(result).Inc()
	}
}
