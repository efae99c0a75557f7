package judge

import "fmt"

// ParseError 评委响应无法解析为合法评分
type ParseError struct {
	Reason  string
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse judge response: %s: %v", e.Reason, e.Err)
	}
	return "parse judge response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// JudgeError 主评委失败，该用例无法评分
type JudgeError struct {
	Role     string
	Provider string
	Err      error
}

func (e *JudgeError) Error() string {
	return fmt.Sprintf("%s judge (%s) failed: %v", e.Role, e.Provider, e.Err)
}

func (e *JudgeError) Unwrap() error { return e.Err }
