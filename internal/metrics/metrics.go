package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wisefido-vitalrisk/internal/models"
)

// Metrics 服务指标，注册在独立 Registry 上
type Metrics struct {
	registry *prometheus.Registry

	classifications     *prometheus.CounterVec
	classificationErrs  *prometheus.CounterVec
	alerts              *prometheus.CounterVec
	modelReloads        *prometheus.CounterVec
	modelTrained        prometheus.Gauge
	streamMessages      *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New 创建并注册全部指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalrisk_classifications_total",
			Help: "Classified readings by strategy and resulting label",
		}, []string{"strategy", "label"}),
		classificationErrs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalrisk_classification_errors_total",
			Help: "Rejected classifications by strategy and error kind",
		}, []string{"strategy", "kind"}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalrisk_alerts_total",
			Help: "Risk alerts raised by level",
		}, []string{"level"}),
		modelReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalrisk_model_reloads_total",
			Help: "Gaussian statistics reload attempts by source and status",
		}, []string{"source", "status"}),
		modelTrained: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vitalrisk_gaussian_trained",
			Help: "1 when the gaussian classifier holds statistics",
		}),
		streamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalrisk_stream_messages_total",
			Help: "Raw stream messages by processing outcome",
		}, []string{"outcome"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalrisk_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitalrisk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path"}),
	}
}

// Registry 底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordClassification(strategy models.Strategy, label models.RiskLabel) {
	m.classifications.WithLabelValues(string(strategy), label.String()).Inc()
}

// RecordClassificationError kind: validation / untrained / unknown_strategy / internal
func (m *Metrics) RecordClassificationError(strategy models.Strategy, kind string) {
	m.classificationErrs.WithLabelValues(string(strategy), kind).Inc()
}

func (m *Metrics) RecordAlert(level string) {
	m.alerts.WithLabelValues(level).Inc()
}

func (m *Metrics) RecordModelReload(source string, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.modelReloads.WithLabelValues(source, status).Inc()
}

func (m *Metrics) SetModelTrained(trained bool) {
	if trained {
		m.modelTrained.Set(1)
		return
	}
	m.modelTrained.Set(0)
}

// RecordStreamMessage outcome: processed / invalid / failed
func (m *Metrics) RecordStreamMessage(outcome string) {
	m.streamMessages.WithLabelValues(outcome).Inc()
}

// Middleware 记录请求数与耗时，route 负责把路径归一化为低基数标签
func (m *Metrics) Middleware(route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := route(r)
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
