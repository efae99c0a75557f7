package provider

import "encoding/json"

// 常用生成参数名
const (
	ParamTemperature = "temperature"
	ParamMaxTokens   = "max_tokens"
	ParamTopP        = "top_p"
	ParamStop        = "stop"
)

// Float 读取数值参数，兼容 JSON 解码后的 float64 与 json.Number
func Float(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Int 读取整数参数
func Int(params map[string]any, key string) (int, bool) {
	f, ok := Float(params, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Strings 读取字符串列表参数
func Strings(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
