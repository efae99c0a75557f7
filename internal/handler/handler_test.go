package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/repository"
	"github.com/ashwinyue/llm-governance/internal/service/dataset"
	"github.com/ashwinyue/llm-governance/internal/service/evaluation"
	"github.com/ashwinyue/llm-governance/internal/service/gateway"
	"github.com/ashwinyue/llm-governance/internal/service/prompt"
	"github.com/ashwinyue/llm-governance/internal/service/provider"
	"github.com/ashwinyue/llm-governance/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeExecutor struct {
	got      *gateway.Request
	resp     *provider.Response
	err      error
	rejected []error
}

func (f *fakeExecutor) Execute(ctx context.Context, req *gateway.Request) (*provider.Response, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeExecutor) Reject(ctx context.Context, requestID string, cause error) error {
	f.rejected = append(f.rejected, cause)
	return &gateway.ValidationError{Code: gateway.CodeValidation, Message: "malformed request body", Err: cause}
}

func perform(r http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"gateway validation", &gateway.ValidationError{Code: gateway.CodeEmptyInput, Message: "empty"}, http.StatusBadRequest},
		{"provider failure", &gateway.ProviderError{Code: gateway.CodeProviderError, Provider: "openai", Message: "down"}, http.StatusBadGateway},
		{"dataset document", &dataset.ValidationError{Issues: []string{"samples: required"}}, http.StatusBadRequest},
		{"not found", fmt.Errorf("get run x: %w", repository.ErrNotFound), http.StatusNotFound},
		{"no binding", fmt.Errorf("%w: p@prod", prompt.ErrNoBinding), http.StatusNotFound},
		{"foreign version", fmt.Errorf("%w: v", prompt.ErrVersionMismatch), http.StatusBadRequest},
		{"run not pending", evaluation.ErrRunNotPending, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestGatewayHandler_ChatCompletions(t *testing.T) {
	exec := &fakeExecutor{resp: &provider.Response{Content: "hi there", Provider: "openai", Model: "gpt-4"}}
	r := gin.New()
	r.POST("/chat", NewGatewayHandler(exec).ChatCompletions)

	w := perform(r, http.MethodPost, "/chat", "application/json",
		`{"request_id":"r-1","prompt_id":"greet","input":{"name":"Ada"},"config":{"provider":"openai","model":"gpt-4"}}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, exec.got)
	assert.Equal(t, "r-1", exec.got.RequestID)
	assert.Equal(t, "greet", exec.got.PromptID)
	assert.Equal(t, "Ada", exec.got.Input.Vars()["name"])
	assert.Equal(t, "gpt-4", exec.got.Config.Model)

	body := decode(t, w)
	data := body["data"].(map[string]any)
	assert.Equal(t, "r-1", data["request_id"])
	assert.Equal(t, "hi there", data["response"].(map[string]any)["content"])
}

func TestGatewayHandler_ErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &gateway.ValidationError{Code: gateway.CodeUnknownProvider, Message: "unknown provider"}, http.StatusBadRequest, gateway.CodeUnknownProvider},
		{"provider", &gateway.ProviderError{Code: gateway.CodeProviderError, Provider: "openai", Message: "timeout"}, http.StatusBadGateway, gateway.CodeProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/chat", NewGatewayHandler(&fakeExecutor{err: tt.err}).ChatCompletions)

			w := perform(r, http.MethodPost, "/chat", "application/json", `{"input":{"text":"x"}}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["error"])
		})
	}
}

func TestGatewayHandler_MalformedBody(t *testing.T) {
	exec := &fakeExecutor{}
	r := gin.New()
	r.POST("/chat", NewGatewayHandler(exec).ChatCompletions)

	for _, body := range []string{`{"input":`, `{"input":"hi"}`} {
		w := perform(r, http.MethodPost, "/chat", "application/json", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, gateway.CodeValidation, decode(t, w)["error"], body)
	}
	assert.Nil(t, exec.got)
	assert.Len(t, exec.rejected, 2)
}

func TestGatewayHandler_MalformedBodyWritesErrorLog(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("mock", testutil.NewMockProvider("ok", nil))
	logs := &testutil.RecordingLogs{}
	pipeline := gateway.NewPipeline(reg, testutil.ZeroCost{}, &testutil.RecordingTelemetry{}, logs, zerolog.Nop())

	r := gin.New()
	r.POST("/chat", NewGatewayHandler(pipeline).ChatCompletions)

	w := perform(r, http.MethodPost, "/chat", "application/json", `{"input":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	last := logs.Last()
	require.NotNil(t, last)
	assert.Equal(t, model.RequestStatusError, last.Status)
	assert.Equal(t, gateway.CodeValidation, last.ErrorCode)
	assert.NotEmpty(t, last.RequestID)
}

func newDatasetRouter() (*gin.Engine, *testutil.MemoryDatasetRepository) {
	repo := testutil.NewMemoryDatasetRepository()
	h := NewDatasetHandler(dataset.NewService(repo, zerolog.Nop()))
	r := gin.New()
	r.POST("/datasets/import", h.ImportDataset)
	r.GET("/datasets", h.ListDatasets)
	r.GET("/datasets/:id", h.GetDataset)
	return r, repo
}

func TestDatasetHandler_ImportJSONAndGet(t *testing.T) {
	r, _ := newDatasetRouter()

	w := perform(r, http.MethodPost, "/datasets/import", "application/json",
		`{"dataset_id":"qa","version":"1","samples":[{"id":"s1","input":{"text":"a"}},{"id":"s2","input":{"text":"b"}}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["data"].(map[string]any)["test_cases"])

	w = perform(r, http.MethodGet, "/datasets/qa", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "qa", data["name"])

	w = perform(r, http.MethodGet, "/datasets?page=1&size=10", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["data"].(map[string]any)["items"].([]any)
	assert.Len(t, items, 1)
}

func TestDatasetHandler_ImportYAML(t *testing.T) {
	r, _ := newDatasetRouter()

	doc := "dataset_id: faq\nversion: \"2\"\nsamples:\n  - id: one\n    input:\n      text: hello\n"
	w := perform(r, http.MethodPost, "/datasets/import", "application/x-yaml", doc)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestDatasetHandler_InvalidDocumentNoWrites(t *testing.T) {
	r, repo := newDatasetRouter()

	w := perform(r, http.MethodPost, "/datasets/import", "application/json", `{"dataset_id":"qa","samples":[{"input":{}}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decode(t, w)["details"])

	list, err := repo.List(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDatasetHandler_NotFound(t *testing.T) {
	r, _ := newDatasetRouter()
	w := perform(r, http.MethodGet, "/datasets/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPromptHandler_Lifecycle(t *testing.T) {
	h := NewPromptHandler(prompt.NewService(testutil.NewMemoryPromptRepository()))
	r := gin.New()
	r.POST("/prompts", h.CreatePrompt)
	r.POST("/prompts/:id/versions", h.CreateVersion)
	r.PUT("/prompts/:id/environments/:env", h.BindEnvironment)
	r.GET("/prompts/:id/resolve", h.ResolvePrompt)

	w := perform(r, http.MethodPost, "/prompts", "application/json", `{"name":"greeting"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = perform(r, http.MethodPost, "/prompts/greeting/versions", "application/json", `{"version":"v1","template":"Hi {{name}}"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	versionID := decode(t, w)["data"].(map[string]any)["id"].(string)

	w = perform(r, http.MethodGet, "/prompts/greeting/resolve?env=staging", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(r, http.MethodPut, "/prompts/greeting/environments/staging", "application/json", `{"version_id":"`+versionID+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = perform(r, http.MethodGet, "/prompts/greeting/resolve?env=staging", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "Hi {{name}}", data["template"])
	assert.Equal(t, "v1", data["version"])
}

func TestPromptHandler_BindRequiresVersion(t *testing.T) {
	h := NewPromptHandler(prompt.NewService(testutil.NewMemoryPromptRepository()))
	r := gin.New()
	r.PUT("/prompts/:id/environments/:env", h.BindEnvironment)

	w := perform(r, http.MethodPut, "/prompts/x/environments/prod", "application/json", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSystemHandler_Health(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("openai", testutil.NewMockProvider("x", nil))
	r := gin.New()
	r.GET("/health", NewSystemHandler(reg, nil).Health)

	w := perform(r, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, []any{"openai"}, data["providers"])
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestSystemHandler_HealthDatabaseDown(t *testing.T) {
	db := pingerFunc(func(ctx context.Context) error { return errors.New("connection refused") })
	r := gin.New()
	r.GET("/health", NewSystemHandler(provider.NewRegistry(), db).Health)

	w := perform(r, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, "connection refused", data["database"])
}
