package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder 基于独立 Registry 的 Prometheus 指标
type PrometheusRecorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
	evaluationsRuns *prometheus.CounterVec
	disagreements   *prometheus.CounterVec
	evaluationScore *prometheus.GaugeVec
}

// NewPrometheusRecorder 创建 Prometheus 指标记录器
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	if namespace == "" {
		namespace = "llm_governance"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Total number of gateway requests",
		}, []string{"env", "provider", "model", "status", "error_code"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"env", "provider", "model"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_tokens_total",
			Help:      "Total number of tokens",
		}, []string{"provider", "model", "type"}),
		costTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_cost_usd_total",
			Help:      "Accumulated cost in USD",
		}, []string{"env", "provider", "model"}),
		evaluationsRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_runs_total",
			Help:      "Total number of evaluation runs",
		}, []string{"dataset", "status", "regression"}),
		disagreements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_judge_disagreements_total",
			Help:      "Judge disagreements observed in evaluation runs",
		}, []string{"dataset"}),
		evaluationScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evaluation_last_avg_score",
			Help:      "Average score of the most recent completed run",
		}, []string{"dataset"}),
	}
}

// RecordRequest 实现 Recorder
func (p *PrometheusRecorder) RecordRequest(m RequestMetrics) {
	p.requestsTotal.WithLabelValues(m.Env, m.Provider, m.Model, m.Status, m.ErrorCode).Inc()
	p.requestLatency.WithLabelValues(m.Env, m.Provider, m.Model).Observe(float64(m.LatencyMs) / 1000)
	p.tokensTotal.WithLabelValues(m.Provider, m.Model, "input").Add(float64(m.TokensIn))
	p.tokensTotal.WithLabelValues(m.Provider, m.Model, "output").Add(float64(m.TokensOut))
	if m.CostUSD > 0 {
		p.costTotal.WithLabelValues(m.Env, m.Provider, m.Model).Add(m.CostUSD)
	}
}

// RecordEvaluation 实现 Recorder
func (p *PrometheusRecorder) RecordEvaluation(m EvaluationMetrics) {
	p.evaluationsRuns.WithLabelValues(m.Dataset, m.Status, strconv.FormatBool(m.IsRegression)).Inc()
	if m.DisagreementCount > 0 {
		p.disagreements.WithLabelValues(m.Dataset).Add(float64(m.DisagreementCount))
	}
	if m.Status == "completed" {
		p.evaluationScore.WithLabelValues(m.Dataset).Set(m.AvgScore)
	}
}

// Registry 返回底层 Registry
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler /metrics 处理器
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
