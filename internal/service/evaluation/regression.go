package evaluation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/repository"
)

const (
	// maxScore 评分上限，阈值百分比以此换算为分差
	maxScore = 5.0
	// DefaultRegressionPercentage 未配置时的默认阈值
	DefaultRegressionPercentage = 5.0

	policyScoreDrop    = "overall_score_drop_percentage"
	policyDisagreement = "disagreement_delta"
)

// RegressionInfo 与基线运行的比较
type RegressionInfo struct {
	BaselineRunID       string  `json:"baseline_run_id"`
	BaselineScore       float64 `json:"baseline_score"`
	Delta               float64 `json:"delta"`
	ThresholdPercentage float64 `json:"threshold_percentage"`
	ThresholdUsed       float64 `json:"threshold_used"`
	IsRegression        bool    `json:"is_regression"`
}

// RegressionCheckError 基线查询或计算失败，运行照常完成
type RegressionCheckError struct {
	RunID string
	Err   error
}

func (e *RegressionCheckError) Error() string {
	return fmt.Sprintf("regression check for run %s: %v", e.RunID, e.Err)
}

func (e *RegressionCheckError) Unwrap() error { return e.Err }

// CheckRegression 平均分下降超过 thresholdPercent% 满分即为回归
func CheckRegression(avg, baseline, thresholdPercent float64) (delta, maxDrop float64, isRegression bool) {
	delta = avg - baseline
	maxDrop = thresholdPercent / 100 * maxScore
	return delta, maxDrop, delta < -maxDrop
}

// RegressionAnalyzer 回归分析
type RegressionAnalyzer struct {
	runs           repository.EvaluationRepository
	defaultPercent float64
}

// NewRegressionAnalyzer 创建回归分析器
func NewRegressionAnalyzer(runs repository.EvaluationRepository, defaultPercent float64) *RegressionAnalyzer {
	if defaultPercent <= 0 {
		defaultPercent = DefaultRegressionPercentage
	}
	return &RegressionAnalyzer{runs: runs, defaultPercent: defaultPercent}
}

// ThresholdPercent 数据集策略优先于全局配置
func (a *RegressionAnalyzer) ThresholdPercent(ds *model.Dataset) float64 {
	if v, ok := ds.PolicyFloat(policyScoreDrop); ok && v > 0 {
		return v
	}
	return a.defaultPercent
}

// Analyze 与同数据集最近一次其它已完成运行比较；没有基线时返回 nil
func (a *RegressionAnalyzer) Analyze(ctx context.Context, run *model.EvaluationRun, ds *model.Dataset, avg float64) (*RegressionInfo, error) {
	baseline, err := a.runs.LatestCompletedRun(ctx, run.DatasetID, run.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &RegressionCheckError{RunID: run.ID, Err: err}
	}
	if baseline.Score == nil {
		return nil, nil
	}

	pct := a.ThresholdPercent(ds)
	delta, maxDrop, isRegression := CheckRegression(avg, *baseline.Score, pct)
	return &RegressionInfo{
		BaselineRunID:       baseline.ID,
		BaselineScore:       *baseline.Score,
		Delta:               delta,
		ThresholdPercentage: pct,
		ThresholdUsed:       maxDrop,
		IsRegression:        isRegression,
	}, nil
}
