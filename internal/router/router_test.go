package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/handler"
	"github.com/ashwinyue/llm-governance/internal/service"
	"github.com/ashwinyue/llm-governance/internal/service/provider"
	"github.com/ashwinyue/llm-governance/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	cfg := &config.Config{}
	cfg.Persistence = config.PersistenceConfig{Enabled: true, QueueName: "request-logs", BufferSize: 16, Sink: "postgres"}
	cfg.Evaluation.QueueName = "evaluation-jobs"
	cfg.Evaluation.Judges.Primary = config.JudgeConfig{Provider: "judge"}
	cfg.Telemetry = config.TelemetryConfig{MetricsEnabled: true, Namespace: "router_test"}

	reg := provider.NewRegistry()
	reg.Register("openai", testutil.NewMockProvider("hello", nil))
	reg.Register("judge", testutil.NewMockProvider(testutil.JudgeJSON(4), nil))

	svcs, err := service.NewServices(context.Background(), cfg, testutil.NewMemoryRepositories(),
		service.NewQueues(cfg, nil), zerolog.Nop(), service.WithRegistry(reg))
	require.NoError(t, err)
	svcs.Start(context.Background())
	t.Cleanup(svcs.Close)

	return SetupRouter(handler.NewHandlers(svcs, nil), Options{
		JWTSecret: secret,
		Metrics:   svcs.Metrics.Handler(),
	}, zerolog.Nop())
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_GatewayAndMetrics(t *testing.T) {
	r := newTestEngine(t, "")

	w := do(r, http.MethodPost, "/llm/v1/chat/completions", `{"input":{"text":"hi"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"content":"hello"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(r, http.MethodPost, "/llm/v1/chat/completions", `{"input":{"text":"hi"},"config":{"provider":"nope"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNKNOWN_PROVIDER")

	w = do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "router_test_")
}

func TestRouter_AuthGuardsAPI(t *testing.T) {
	r := newTestEngine(t, "secret")

	w := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/datasets", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/llm/v1/chat/completions", `{"input":{"text":"hi"}}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_EvaluationFlow(t *testing.T) {
	r := newTestEngine(t, "")

	w := do(r, http.MethodPost, "/api/v1/datasets/import",
		`{"dataset_id":"smoke","version":"1","samples":[{"id":"a","input":{"text":"q"}}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/api/v1/evaluations", `{"dataset_id":"smoke"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/api/v1/evaluations", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/evaluations/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
