// Package cost 按供应商定价计算调用成本
package cost

import (
	"math"

	"github.com/ashwinyue/llm-governance/internal/config"
)

const defaultPrecision = 6

// Calculator 成本计算器，无副作用，可并发使用
type Calculator struct {
	cfg config.CostConfig
}

// NewCalculator 创建成本计算器
func NewCalculator(cfg config.CostConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Cost 计算一次调用的成本（美元）
func (c *Calculator) Cost(provider, model string, tokensIn, tokensOut float64) float64 {
	if !c.cfg.Enabled {
		return 0
	}

	rate := c.Rate(provider, model)
	total := tokensIn/1000*rate.InputCostPer1KTokens + tokensOut/1000*rate.OutputCostPer1KTokens

	if c.cfg.Rounding.Enabled {
		precision := c.cfg.Rounding.Precision
		if precision <= 0 {
			precision = defaultPrecision
		}
		total = round(total, precision)
	}
	return total
}

// Rate 解析单价：静态模型表 -> 供应商估算默认值 -> 全局默认值
func (c *Calculator) Rate(provider, model string) config.RateConfig {
	pricing, ok := c.cfg.Providers[provider]
	if !ok {
		return c.cfg.Default
	}
	if pricing.PricingSource != "estimated" {
		if rate, ok := pricing.Models[model]; ok {
			return rate
		}
	}
	if pricing.Defaults != nil {
		return *pricing.Defaults
	}
	return c.cfg.Default
}

func round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}
