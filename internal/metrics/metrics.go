package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 采集流水线的 Prometheus 指标；nil 接收者上的方法均为空操作，方便测试
type Metrics struct {
	fetchRequests *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	imageOps      *prometheus.CounterVec
	runs          *prometheus.CounterVec
}

// New 创建并注册指标；reg 为 nil 时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lingonews",
			Name:      "fetch_requests_total",
			Help:      "HTTP fetches by kind and status class.",
		}, []string{"kind", "status"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lingonews",
			Name:      "fetch_duration_seconds",
			Help:      "HTTP fetch latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lingonews",
			Name:      "ingest_outcomes_total",
			Help:      "Persistor outcomes per source.",
		}, []string{"source", "outcome"}),
		imageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lingonews",
			Name:      "image_operations_total",
			Help:      "Image materializations and cleanups.",
		}, []string{"op", "result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lingonews",
			Name:      "runs_total",
			Help:      "Completed ingestion runs by exit status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.fetchRequests, m.fetchDuration, m.outcomes, m.imageOps, m.runs)
	return m
}

func (m *Metrics) ObserveFetch(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchRequests.WithLabelValues(kind, status).Inc()
	m.fetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveOutcome(source, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(source, outcome).Inc()
}

// AddOutcomes 一次记录多条同类结果，n<=0 时忽略
func (m *Metrics) AddOutcomes(source, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outcomes.WithLabelValues(source, outcome).Add(float64(n))
}

func (m *Metrics) ObserveImage(op, result string) {
	if m == nil {
		return
	}
	m.imageOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// StatusClass 将 HTTP 状态码归类为 2xx/3xx/4xx/5xx，0 表示传输错误
func StatusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
