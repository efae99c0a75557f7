package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ashwinyue/llm-governance/internal/service/provider"
)

// Render 将 {{key}} 替换为变量的字面值，不做转义；缺失的变量保持原样
func Render(template string, vars map[string]any) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	content := template
	for _, k := range keys {
		content = strings.ReplaceAll(content, "{{"+k+"}}", literal(vars[k]))
	}
	return content
}

func literal(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// EstimateTokens 按序列化长度估算 token 数
func EstimateTokens(messages []provider.Message) float64 {
	b, err := json.Marshal(messages)
	if err != nil {
		return 0
	}
	return float64(len(b)) / 4
}
