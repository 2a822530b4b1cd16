package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/pipeline"
	"github.com/redflow/redflow/pkg/resilience"
	"github.com/redflow/redflow/pkg/web"
)

type stubRunner struct {
	processResult *models.WorkflowResult
	processErr    error
	previewCalls  int
	processCalls  int
	snapshots     []resilience.BreakerSnapshot
	active        []string
}

func (s *stubRunner) Process(_ context.Context, _ pipeline.Request) (*models.WorkflowResult, error) {
	s.processCalls++

	return s.processResult, s.processErr
}

func (s *stubRunner) Preview(_ context.Context, _ pipeline.Request) (*models.WorkflowResult, error) {
	s.previewCalls++

	return s.processResult, s.processErr
}

func (s *stubRunner) BreakerSnapshots() []resilience.BreakerSnapshot {
	return s.snapshots
}

func (s *stubRunner) ActiveRuns() []string {
	return s.active
}

func setupTestApp(runner *stubRunner) *fiber.App {
	app := fiber.New()
	web.RegisterRoutes(app, web.NewAPIHandlers(runner))

	return app
}

func completedResult() *models.WorkflowResult {
	result := models.NewWorkflowResult("run_20260825_120000_0001")
	result.Publication = &models.Publication{VideoID: "vid-1", URL: "https://youtu.be/vid-1"}
	result.MarkCompleted()

	return result
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	return resp
}

func TestCreateRun(t *testing.T) {
	runner := &stubRunner{processResult: completedResult()}
	app := setupTestApp(runner)

	resp := postJSON(t, app, "/runs/", `{"source_url": "https://www.reddit.com/r/golang/comments/abc123/"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, runner.processCalls)
	assert.Zero(t, runner.previewCalls)

	var result models.WorkflowResult

	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "run_20260825_120000_0001", result.ID)
	assert.Equal(t, models.StatusCompleted, result.Status)
}

func TestPreviewRun(t *testing.T) {
	runner := &stubRunner{processResult: completedResult()}
	app := setupTestApp(runner)

	resp := postJSON(t, app, "/runs/preview", `{"source_url": "https://www.reddit.com/r/golang/comments/abc123/"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, runner.previewCalls)
	assert.Zero(t, runner.processCalls)
}

func TestCreateRunHonorsPreviewFlag(t *testing.T) {
	runner := &stubRunner{processResult: completedResult()}
	app := setupTestApp(runner)

	resp := postJSON(t, app, "/runs/",
		`{"source_url": "https://www.reddit.com/r/golang/comments/abc123/", "preview": true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, runner.previewCalls)
	assert.Zero(t, runner.processCalls)
}

func TestCreateRunRejectsBadPayload(t *testing.T) {
	runner := &stubRunner{}
	app := setupTestApp(runner)

	resp := postJSON(t, app, "/runs/", `{"annotation": "missing url"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, runner.processCalls)
}

func TestCreateRunErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "already in progress", err: errs.New(errs.KindAlreadyInProgress, "busy"), status: http.StatusConflict},
		{name: "invalid input", err: errs.New(errs.KindInvalidInput, "bad url"), status: http.StatusBadRequest},
		{name: "not found", err: errs.New(errs.KindNotFound, "no post"), status: http.StatusNotFound},
		{name: "empty content", err: errs.New(errs.KindEmptyContent, "nothing there"), status: http.StatusUnprocessableEntity},
		{name: "transient", err: errs.New(errs.KindTransient, "reddit down"), status: http.StatusBadGateway},
		{name: "generation failure", err: errs.New(errs.KindGenerationFailure, "render failed"), status: http.StatusBadGateway},
		{name: "timeout", err: errs.New(errs.KindTimeout, "too slow"), status: http.StatusGatewayTimeout},
		{name: "circuit open", err: errs.New(errs.KindCircuitOpen, "open"), status: http.StatusServiceUnavailable},
		{name: "unexpected", err: errs.New(errs.KindUnexpected, "boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{processErr: tt.err}
			app := setupTestApp(runner)

			resp := postJSON(t, app, "/runs/", `{"source_url": "https://www.reddit.com/r/golang/comments/abc123/"}`)
			assert.Equal(t, tt.status, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.err.Error())
		})
	}
}

func TestGetCircuits(t *testing.T) {
	now := time.Now()
	runner := &stubRunner{
		snapshots: []resilience.BreakerSnapshot{
			{Name: "fetch_content", State: resilience.BreakerOpen, ConsecutiveFailures: 5, LastFailureAt: &now},
		},
	}
	app := setupTestApp(runner)

	req := httptest.NewRequest(http.MethodGet, "/circuits", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "fetch_content")
	assert.Contains(t, string(body), string(resilience.BreakerOpen))
}

func TestHealthCheck(t *testing.T) {
	runner := &stubRunner{active: []string{"user-1"}}
	app := setupTestApp(runner)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"active_runs":1`)
}
