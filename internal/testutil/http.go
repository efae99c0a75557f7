package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"
)

// HTTPRoundTripper 将 SDK 发往真实供应商的请求改写到测试服务器
type HTTPRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

// RoundTrip 实现 http.RoundTripper 接口
func (t *HTTPRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.URL.Scheme = t.base.Scheme
	cloned.URL.Host = t.base.Host
	cloned.Host = t.base.Host
	return t.next.RoundTrip(cloned)
}

// NewTestClient 创建测试用 HTTP 客户端
// 自动将请求重定向到测试服务器
func NewTestClient(ts *httptest.Server) *http.Client {
	u, _ := url.Parse(ts.URL)
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: &HTTPRoundTripper{base: u, next: http.DefaultTransport},
	}
}
