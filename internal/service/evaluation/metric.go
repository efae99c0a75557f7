// Package evaluation 数据集评估编排与汇总指标
package evaluation

import (
	"encoding/json"
)

// PassThreshold 总分不低于此值视为通过
const PassThreshold = 3.0

// 评委打分维度
var dimensionNames = []string{"relevance", "accuracy", "clarity", "hallucination_risk"}

// CaseScore 单个用例的评分
type CaseScore struct {
	TestCaseID string
	Score      float64
	// Failed 候选生成或主评委失败，得分记为 0
	Failed       bool
	Dimensions   map[string]float64
	Disagreement bool
}

// Metric 指标接口
type Metric interface {
	Compute(cases []CaseScore) float64
	Name() string
}

// ========== 平均分 ==========

// AverageScoreMetric 平均分，失败用例按 0 计入
type AverageScoreMetric struct{}

// NewAverageScoreMetric 创建平均分指标
func NewAverageScoreMetric() *AverageScoreMetric {
	return &AverageScoreMetric{}
}

// Compute 计算平均分
func (m *AverageScoreMetric) Compute(cases []CaseScore) float64 {
	if len(cases) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, c := range cases {
		sum += c.Score
	}
	return sum / float64(len(cases))
}

// Name 返回指标名称
func (m *AverageScoreMetric) Name() string {
	return "avg_score"
}

// ========== 通过率 ==========

// PassRateMetric 通过率
// PassRate = 得分 >= threshold 的用例数 / 用例总数
type PassRateMetric struct {
	threshold float64
}

// NewPassRateMetric 创建通过率指标
func NewPassRateMetric(threshold float64) *PassRateMetric {
	return &PassRateMetric{threshold: threshold}
}

// Compute 计算通过率
func (m *PassRateMetric) Compute(cases []CaseScore) float64 {
	if len(cases) == 0 {
		return 0.0
	}
	return float64(m.count(cases)) / float64(len(cases))
}

func (m *PassRateMetric) count(cases []CaseScore) int {
	n := 0
	for _, c := range cases {
		if !c.Failed && c.Score >= m.threshold {
			n++
		}
	}
	return n
}

// Name 返回指标名称
func (m *PassRateMetric) Name() string {
	return "pass_rate"
}

// ========== 维度均值 ==========

// DimensionMetric 单个评分维度的均值，只统计已评分的用例
type DimensionMetric struct {
	dimension string
}

// NewDimensionMetric 创建维度指标
func NewDimensionMetric(dimension string) *DimensionMetric {
	return &DimensionMetric{dimension: dimension}
}

// Compute 计算维度均值
func (m *DimensionMetric) Compute(cases []CaseScore) float64 {
	sum, n := 0.0, 0
	for _, c := range cases {
		v, ok := c.Dimensions[m.dimension]
		if !ok {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0.0
	}
	return sum / float64(n)
}

// Name 返回指标名称
func (m *DimensionMetric) Name() string {
	return m.dimension
}

// ========== 汇总 ==========

// Summary 运行汇总
type Summary struct {
	Total             int                `json:"total"`
	Failed            int                `json:"failed"`
	AvgScore          float64            `json:"avg_score"`
	PassCount         int                `json:"pass_count"`
	PassRate          float64            `json:"pass_rate"`
	DimensionAverages map[string]float64 `json:"dimension_averages"`
	Disagreements     int                `json:"disagreements"`
	Regression        *RegressionInfo    `json:"regression"`
	RegressionError   string             `json:"regression_error,omitempty"`
}

// DefaultMetrics 运行汇总使用的指标：平均分、通过率及各维度均值
func DefaultMetrics() []Metric {
	metrics := []Metric{NewAverageScoreMetric(), NewPassRateMetric(PassThreshold)}
	for _, d := range dimensionNames {
		metrics = append(metrics, NewDimensionMetric(d))
	}
	return metrics
}

// Summarize 汇总全部用例评分
func Summarize(cases []CaseScore) *Summary {
	s := &Summary{
		Total:             len(cases),
		DimensionAverages: make(map[string]float64, len(dimensionNames)),
	}
	for _, m := range DefaultMetrics() {
		v := m.Compute(cases)
		switch mm := m.(type) {
		case *AverageScoreMetric:
			s.AvgScore = v
		case *PassRateMetric:
			s.PassRate = v
			s.PassCount = mm.count(cases)
		default:
			s.DimensionAverages[m.Name()] = v
		}
	}
	for _, c := range cases {
		if c.Failed {
			s.Failed++
		}
		if c.Disagreement {
			s.Disagreements++
		}
	}
	return s
}

// Map 转为可存储的 map
func (s *Summary) Map() map[string]any {
	b, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"total": s.Total, "avg_score": s.AvgScore}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}
