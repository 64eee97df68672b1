package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpulse/dispatch-monitor/internal/alerts"
	"github.com/fieldpulse/dispatch-monitor/internal/cache"
	"github.com/fieldpulse/dispatch-monitor/internal/handler"
	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/internal/poller"
	"github.com/fieldpulse/dispatch-monitor/internal/router"
	"github.com/fieldpulse/dispatch-monitor/internal/rules"
)

// 集成测试环境
type testEnv struct {
	engine *gin.Engine
	store  *alerts.Store
	source *staticSource
}

// staticSource 固定批次的数据源
type staticSource struct {
	jobs []*model.JobSnapshot
}

func (s *staticSource) FetchJobs(_ context.Context, _, _ string) ([]*model.JobSnapshot, error) {
	return s.jobs, nil
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := alerts.NewStore(cache.NewMemoryDedupCache(5*time.Minute), 100)
	source := &staticSource{}

	p := poller.New(poller.Options{
		Source:   source,
		Cache:    cache.NewSnapshotCache(100, time.Hour),
		Engine:   rules.NewEngine(),
		Store:    store,
		Interval: 30 * time.Second,
	})

	engine := gin.New()
	router.SetupRouter(engine, &router.Handlers{
		Alert:   handler.NewAlertHandler(store),
		Monitor: handler.NewMonitorHandler(p, store),
		Health:  handler.NewHealthHandler(nil, p),
	})

	return &testEnv{engine: engine, store: store, source: source}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) submitAlert(t *testing.T, ruleID, jobID string, severity model.Severity) *model.Alert {
	t.Helper()
	outcome, alert, err := e.store.Submit(context.Background(), &rules.TriggerResult{
		RuleID:   ruleID,
		RuleName: ruleID,
		Severity: severity,
		Message:  ruleID + " fired",
		JobID:    jobID,
	})
	require.NoError(t, err)
	require.Equal(t, alerts.OutcomeCreated, outcome)
	return alert
}

func TestAlertList(t *testing.T) {
	env := setupTestEnv(t)
	env.submitAlert(t, "rule-a", "J-1", model.SeverityLow)
	env.submitAlert(t, "rule-b", "J-2", model.SeverityCritical)

	w := env.request(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int            `json:"code"`
		Data []*model.Alert `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	// 优先级顺序: CRITICAL 在前
	assert.Equal(t, model.SeverityCritical, resp.Data[0].Severity)
}

func TestAlertList_SeverityFilter(t *testing.T) {
	env := setupTestEnv(t)
	env.submitAlert(t, "rule-a", "J-1", model.SeverityLow)
	env.submitAlert(t, "rule-b", "J-2", model.SeverityCritical)

	w := env.request(t, http.MethodGet, "/api/v1/alerts?severity=CRITICAL", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*model.Alert `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "J-2", resp.Data[0].JobID)

	w = env.request(t, http.MethodGet, "/api/v1/alerts?severity=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertAcknowledge(t *testing.T) {
	env := setupTestEnv(t)
	alert := env.submitAlert(t, "rule-a", "J-1", model.SeverityHigh)

	w := env.request(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge",
		map[string]string{"actor": "ops-1"})
	require.Equal(t, http.StatusOK, w.Code)

	listed := env.store.List(nil)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Acknowledged)
}

func TestAlertAcknowledge_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/alerts/bogus/acknowledge",
		map[string]string{"actor": "ops-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertAcknowledge_MissingActor(t *testing.T) {
	env := setupTestEnv(t)
	alert := env.submitAlert(t, "rule-a", "J-1", model.SeverityHigh)

	w := env.request(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge",
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertBulkDismiss(t *testing.T) {
	env := setupTestEnv(t)
	a1 := env.submitAlert(t, "rule-a", "J-1", model.SeverityHigh)
	a2 := env.submitAlert(t, "rule-a", "J-2", model.SeverityHigh)

	w := env.request(t, http.MethodPost, "/api/v1/alerts/dismiss", map[string]interface{}{
		"alert_ids": []string{a1.ID, "bogus", a2.ID},
		"actor":     "ops-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data alerts.BulkResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Success)
	assert.Equal(t, 1, resp.Data.Failed)
}

func TestAlertHistory(t *testing.T) {
	env := setupTestEnv(t)
	env.submitAlert(t, "rule-a", "J-1", model.SeverityHigh)
	env.store.ResolveMissing(map[string]struct{}{})

	w := env.request(t, http.MethodGet, "/api/v1/alerts/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*model.Alert `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.True(t, resp.Data[0].Resolved)
}

func TestMonitorStatus(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/v1/monitor/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data poller.Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.IsRunning)
}

func TestMonitorTrigger(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/monitor/trigger", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestMonitorStats(t *testing.T) {
	env := setupTestEnv(t)
	env.submitAlert(t, "rule-a", "J-1", model.SeverityHigh)

	w := env.request(t, http.MethodGet, "/api/v1/monitor/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data alerts.Statistics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Active)
	assert.Equal(t, 1, resp.Data.BySeverity["HIGH"])
}

func TestHealthEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	w := env.request(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
