// Package telemetry 指标与追踪，均为尽力而为，不影响调用结果
package telemetry

import (
	"github.com/rs/zerolog"
)

// RequestMetrics 一次网关调用的指标
type RequestMetrics struct {
	Env       string
	Provider  string
	Model     string
	Status    string // success, error
	ErrorCode string
	LatencyMs int64
	TokensIn  int
	TokensOut int
	CostUSD   float64
}

// EvaluationMetrics 一次评估运行的指标
type EvaluationMetrics struct {
	Dataset           string
	Status            string // completed, failed
	IsRegression      bool
	DisagreementCount int
	AvgScore          float64
}

// Recorder 指标记录器
type Recorder interface {
	RecordRequest(m RequestMetrics)
	RecordEvaluation(m EvaluationMetrics)
}

// Nop 不做任何记录
type Nop struct{}

func (Nop) RecordRequest(RequestMetrics)       {}
func (Nop) RecordEvaluation(EvaluationMetrics) {}

// safeRecorder 捕获内部 panic，指标故障永远不外溢
type safeRecorder struct {
	next Recorder
	log  zerolog.Logger
}

// Safe 包装任意 Recorder
func Safe(next Recorder, log zerolog.Logger) Recorder {
	if next == nil {
		next = Nop{}
	}
	return &safeRecorder{next: next, log: log.With().Str("component", "telemetry").Logger()}
}

func (s *safeRecorder) RecordRequest(m RequestMetrics) {
	defer s.recover("record_request")
	s.next.RecordRequest(m)
}

func (s *safeRecorder) RecordEvaluation(m EvaluationMetrics) {
	defer s.recover("record_evaluation")
	s.next.RecordEvaluation(m)
}

func (s *safeRecorder) recover(op string) {
	if r := recover(); r != nil {
		s.log.Error().Interface("panic", r).Str("op", op).Msg("telemetry recorder failed")
	}
}
