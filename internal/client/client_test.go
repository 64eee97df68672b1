package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

func TestDispatchClient_FetchJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs", r.URL.Path)
		assert.Equal(t, "2026-08-30", r.URL.Query().Get("date_from"))
		assert.Equal(t, "2026-08-30", r.URL.Query().Get("date_to"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobs": [
			{"job_id": "J-1", "scheduled_date": "2026-08-30", "status": "SCHEDULED",
			 "site_id": "S-1", "job_value": "1200.50", "scheduled_start_at": 1787000000000,
			 "extra": {"crew": "north"}},
			{"job_id": "J-2", "scheduled_date": "2026-08-30", "status": "IN_PROGRESS",
			 "assignee_id": "tech-7", "started_at": 1787000100000}
		]}`))
	}))
	defer server.Close()

	c := NewDispatchClient(server.URL, "secret", 5*time.Second)
	jobs, err := c.FetchJobs(context.Background(), "2026-08-30", "2026-08-30")
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "J-1", jobs[0].JobID)
	assert.Equal(t, model.JobStatusScheduled, jobs[0].Status)
	assert.Equal(t, "1200.5", jobs[0].JobValue.String())
	assert.Equal(t, "north", jobs[0].Raw["crew"])
	assert.Positive(t, jobs[0].FetchedAt)

	assert.Equal(t, "tech-7", jobs[1].AssigneeID)
	require.NotNil(t, jobs[1].StartedAt)
	assert.Equal(t, int64(1787000100000), *jobs[1].StartedAt)
}

func TestDispatchClient_SkipsMalformedRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jobs": [
			{"job_id": "", "scheduled_date": "2026-08-30", "status": "SCHEDULED"},
			{"job_id": "J-2", "scheduled_date": "not-a-date", "status": "SCHEDULED"},
			{"job_id": "J-3", "scheduled_date": "2026-08-30", "status": "SCHEDULED", "job_value": "abc"},
			{"job_id": "J-4", "scheduled_date": "2026-08-30", "status": "SCHEDULED"}
		]}`))
	}))
	defer server.Close()

	c := NewDispatchClient(server.URL, "", 5*time.Second)
	jobs, err := c.FetchJobs(context.Background(), "2026-08-30", "2026-08-30")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "J-4", jobs[0].JobID)
}

func TestDispatchClient_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewDispatchClient(server.URL, "", 5*time.Second)
	_, err := c.FetchJobs(context.Background(), "2026-08-30", "2026-08-30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDispatchClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"jobs": []}`))
	}))
	defer server.Close()

	c := NewDispatchClient(server.URL, "", 20*time.Millisecond)
	_, err := c.FetchJobs(context.Background(), "2026-08-30", "2026-08-30")
	assert.Error(t, err)
}

func TestTelemetryClient_FetchFixes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/fixes/latest", r.URL.Path)
		assert.Equal(t, "tech-1,tech-2", r.URL.Query().Get("assignees"))

		_, _ = w.Write([]byte(`{"fixes": [
			{"assignee_id": "tech-1", "latitude": 31.2, "longitude": 121.5, "recorded_at": 1787000000000},
			{"assignee_id": "", "latitude": 0, "longitude": 0, "recorded_at": 1}
		]}`))
	}))
	defer server.Close()

	c := NewTelemetryClient(server.URL, "", 5*time.Second)
	fixes, err := c.FetchFixes(context.Background(), []string{"tech-1", "tech-2"})
	require.NoError(t, err)

	require.Len(t, fixes, 1)
	require.Contains(t, fixes, "tech-1")
	assert.Equal(t, int64(1787000000000), fixes["tech-1"].RecordedAt)
	assert.NotContains(t, fixes, "tech-2")
}

func TestTelemetryClient_EmptyAssignees(t *testing.T) {
	c := NewTelemetryClient("http://unused", "", time.Second)
	fixes, err := c.FetchFixes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, fixes)
}
