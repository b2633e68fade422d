package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graflow/graflow/internal/domain/runner"
	graflowhttp "github.com/graflow/graflow/internal/infrastructure/http"
	"github.com/graflow/graflow/internal/infrastructure/http/dto"
	"github.com/graflow/graflow/internal/infrastructure/monitoring"
	"github.com/graflow/graflow/internal/infrastructure/registry"
	"github.com/graflow/graflow/internal/infrastructure/transport"
)

// testNamespace derives a Prometheus-safe, per-test namespace so repeated
// monitoring.New calls across test functions in this package don't try to
// register the same collector names against the default registerer twice.
func testNamespace(t *testing.T) string {
	ns := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, t.Name())
	return "graflow_" + ns
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	metrics := monitoring.New(testNamespace(t))
	bridge := transport.NewBridge(nil)
	reg := registry.New(registry.Config{
		StateDir:      t.TempDir(),
		QueueCapacity: 16,
		IdleGrace:     time.Second,
		LogMaxBytes:   1 << 20,
	}, metrics, bridge)
	t.Cleanup(func() { reg.Shutdown(context.Background()) })

	return graflowhttp.New(reg, bridge, metrics, runner.NewRegistry(), graflowhttp.Config{
		Version:      "test",
		MutationWait: 2 * time.Second,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthAndInfo(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/info", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_OpenThenGetGraphAddNodeAndRun(t *testing.T) {
	h := newTestRouter(t)
	graphPath := filepath.Join(t.TempDir(), "graph.json")

	rec := doJSON(t, h, http.MethodPost, "/workspace/open", map[string]string{"path": graphPath})
	require.Equal(t, http.StatusOK, rec.Code)
	var opened dto.ClientConnectResponse
	var openResp struct {
		WorkspaceID string `json:"workspace_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &openResp))
	require.NotEmpty(t, openResp.WorkspaceID)
	wsID := openResp.WorkspaceID

	rec = doJSON(t, h, http.MethodGet, "/workspace/"+wsID+"/get-graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var graph dto.GraphResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	assert.Empty(t, graph.Nodes)

	rec = doJSON(t, h, http.MethodPost, "/workspace/"+wsID+"/add-node",
		dto.AddNodeRequest{ID: "a", Label: "echo hi", X: "0", Y: "0"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/workspace/"+wsID+"/run", dto.RunRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	var run dto.RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.NotEmpty(t, run.RunID)
	assert.Contains(t, run.Nodes, "a")

	rec = doJSON(t, h, http.MethodPost, "/workspace/"+wsID+"/client-connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opened))
	assert.Equal(t, 1, opened.Clients)
}

func TestRouter_UnknownWorkspaceReturns404(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodGet, "/workspace/does-not-exist/get-graph", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RunnerRegisterHeartbeatAndList(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/runner/register",
		dto.RunnerRegisterRequest{ID: "r1", MaxConcurrentNodes: 4})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/runner/heartbeat",
		dto.RunnerHeartbeatRequest{ID: "r1", Status: "busy", ActiveNodes: 2})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/runner/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list dto.RunnerListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runners, 1)
	assert.Equal(t, "r1", list.Runners[0].ID)
	assert.Equal(t, "busy", list.Runners[0].Status)
	assert.Equal(t, 2, list.Runners[0].ActiveNodes)

	rec = doJSON(t, h, http.MethodPost, "/runner/deregister", map[string]string{"runner_id": "r1"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/runner/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Runners)
}

func TestRouter_RunnerHeartbeatForUnknownRunnerReturns404(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/runner/heartbeat",
		dto.RunnerHeartbeatRequest{ID: "ghost", Status: "ready"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_OpenWithEmptyPathReturns400(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/workspace/open", map[string]string{"path": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_InvalidEdgeTypeReturns400(t *testing.T) {
	h := newTestRouter(t)
	graphPath := filepath.Join(t.TempDir(), "graph.json")

	rec := doJSON(t, h, http.MethodPost, "/workspace/open", map[string]string{"path": graphPath})
	require.Equal(t, http.StatusOK, rec.Code)
	var openResp struct {
		WorkspaceID string `json:"workspace_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &openResp))
	wsID := openResp.WorkspaceID

	doJSON(t, h, http.MethodPost, "/workspace/"+wsID+"/add-node", dto.AddNodeRequest{ID: "a"})
	doJSON(t, h, http.MethodPost, "/workspace/"+wsID+"/add-node", dto.AddNodeRequest{ID: "b"})

	rec = doJSON(t, h, http.MethodPost, "/workspace/"+wsID+"/add-edge",
		dto.AddEdgeRequest{Source: "a", Target: "b", EdgeType: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
