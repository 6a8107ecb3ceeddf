package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/testutil/fixtures"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 🧪 RunHandler 测试
// =============================================================================

func postRun(t *testing.T, h *RunHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	h.HandleRun(w, r)
	return w
}

func decodeRun(t *testing.T, w *httptest.ResponseRecorder) api.RunResponse {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    api.RunResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.True(t, env.Success)
	return env.Data
}

func TestRunHandler_Completes(t *testing.T) {
	engine := plannerCoder(t)
	h := NewRunHandler(engine, zap.NewNop())

	w := postRun(t, h, `{"input":"build a CLI"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRun(t, w)
	assert.NotEmpty(t, resp.ThreadID)
	assert.Equal(t, agent.StatusCompleted, resp.Status)
	assert.Equal(t, 2, resp.Steps)
	assert.Equal(t, "Coder", resp.ActiveAgent)
	assert.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.Duration)

	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Equal(t, "build a CLI", resp.Messages[0].Content)
	assert.Equal(t, "Planner", resp.Messages[1].Name)
	assert.Equal(t, "Coder", resp.Messages[2].Name)
	assert.Contains(t, resp.Messages[2].Content, "TASK COMPLETE")

	// 检查点已持久化
	history, err := engine.LoadHistory(t.Context(), resp.ThreadID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRunHandler_AgentFailureIsNotHTTPError(t *testing.T) {
	engine := newTestEngine(t, fixtures.Fail("Broken", errors.New("model timeout")))
	h := NewRunHandler(engine, nil)

	w := postRun(t, h, `{"input":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeRun(t, w)
	assert.Equal(t, agent.StatusError, resp.Status)
	assert.Contains(t, resp.Error, "model timeout")
	assert.Equal(t, 1, resp.Steps)
}

func TestRunHandler_EmptyRegistryDegrades(t *testing.T) {
	engine := newTestEngine(t)
	h := NewRunHandler(engine, nil)

	w := postRun(t, h, `{"input":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, agent.StatusError, decodeRun(t, w).Status)
}

func TestRunHandler_InvalidRequests(t *testing.T) {
	h := NewRunHandler(plannerCoder(t), zap.NewNop())

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing input", `{}`, http.StatusBadRequest},
		{"blank input", `{"input":"   "}`, http.StatusBadRequest},
		{"unknown field", `{"input":"x","model":"gpt"}`, http.StatusBadRequest},
		{"malformed", `{"input":`, http.StatusBadRequest},
		{"too long", `{"input":"` + strings.Repeat("a", maxInputLength+1) + `"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postRun(t, h, tt.body)
			assert.Equal(t, tt.status, w.Code)

			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
		})
	}
}

func TestRunHandler_RequiresJSON(t *testing.T) {
	h := NewRunHandler(plannerCoder(t), nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(`{"input":"x"}`))
	r.Header.Set("Content-Type", "text/plain")
	h.HandleRun(w, r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRunHandler_CompilationFailure(t *testing.T) {
	h := NewRunHandler(failingEngine{err: types.NewError(types.ErrGraphCompilation, "graph compilation panicked")}, nil)

	w := postRun(t, h, `{"input":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrGraphCompilation), resp.Error.Code)
}
