package judge

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kaptinlin/jsonrepair"
)

// Result 单个评委的评分，各维度取值 [1,5]
type Result struct {
	Relevance         float64 `json:"relevance"`
	Accuracy          float64 `json:"accuracy"`
	Clarity           float64 `json:"clarity"`
	HallucinationRisk float64 `json:"hallucination_risk"`
	OverallScore      float64 `json:"overall_score"`
	Reasoning         string  `json:"reasoning,omitempty"`
}

// Dimensions 各维度得分
func (r Result) Dimensions() map[string]float64 {
	return map[string]float64{
		"relevance":          r.Relevance,
		"accuracy":           r.Accuracy,
		"clarity":            r.Clarity,
		"hallucination_risk": r.HallucinationRisk,
		"overall_score":      r.OverallScore,
	}
}

// rawResult 解码用，指针区分缺失与零值
type rawResult struct {
	Relevance         *float64 `json:"relevance" validate:"required,gte=1,lte=5"`
	Accuracy          *float64 `json:"accuracy" validate:"required,gte=1,lte=5"`
	Clarity           *float64 `json:"clarity" validate:"required,gte=1,lte=5"`
	HallucinationRisk *float64 `json:"hallucination_risk" validate:"required,gte=1,lte=5"`
	OverallScore      *float64 `json:"overall_score" validate:"required,gte=1,lte=5"`
	Reasoning         string   `json:"reasoning"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseResult 从评委回复中提取并校验评分 JSON
func ParseResult(content string) (*Result, error) {
	obj, ok := extractObject(content)
	if !ok {
		return nil, &ParseError{Reason: "no JSON object found", Content: content}
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(obj)
		if rerr != nil {
			return nil, &ParseError{Reason: "invalid JSON", Content: content, Err: err}
		}
		raw = rawResult{}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, &ParseError{Reason: "invalid JSON after repair", Content: content, Err: err}
		}
	}

	if err := validate.Struct(raw); err != nil {
		return nil, &ParseError{Reason: "score out of schema", Content: content, Err: err}
	}

	return &Result{
		Relevance:         *raw.Relevance,
		Accuracy:          *raw.Accuracy,
		Clarity:           *raw.Clarity,
		HallucinationRisk: *raw.HallucinationRisk,
		OverallScore:      *raw.OverallScore,
		Reasoning:         raw.Reasoning,
	}, nil
}

// extractObject 返回第一个括号配平的 {...}，忽略字符串内的括号
// 从某个 { 起扫描到结尾仍未配平时，从下一个 { 重新开始
func extractObject(s string) (string, bool) {
	for from := 0; from < len(s); {
		off := strings.IndexByte(s[from:], '{')
		if off < 0 {
			return "", false
		}
		start := from + off
		if end, ok := balancedEnd(s, start); ok {
			return s[start : end+1], true
		}
		from = start + 1
	}
	return "", false
}

// balancedEnd 返回与 s[start] 处 { 配对的 } 下标
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
