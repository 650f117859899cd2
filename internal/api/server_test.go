package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setevik/autoheal/internal/engine"
	"github.com/setevik/autoheal/internal/fault"
	"github.com/setevik/autoheal/internal/metrics"
	"github.com/setevik/autoheal/internal/store"
)

type staticStatus engine.Status

func (s staticStatus) Status() engine.Status { return engine.Status(s) }

type fakeHistory struct {
	rows   []*store.Remediation
	err    error
	filter store.QueryFilter
}

func (f *fakeHistory) Query(filter store.QueryFilter) ([]*store.Remediation, error) {
	f.filter = filter
	return f.rows, f.err
}

func newTestServer(t *testing.T, st engine.Status, history History) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New()
	m.OperationStarted()
	m.OperationSucceeded()
	require.NoError(t, metrics.Register(reg, metrics.NewCollector(m, metrics.Gauges{})))
	return NewServer("127.0.0.1:0", staticStatus(st), history, reg)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	running := newTestServer(t, engine.Status{State: "running", IsRunning: true}, nil)
	rec := get(t, running, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running"`)

	stopped := newTestServer(t, engine.Status{State: "stopping"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, stopped, "/healthz").Code)
}

func TestStatus(t *testing.T) {
	st := engine.Status{
		State:            "running",
		IsRunning:        true,
		ConcurrencyLimit: 3,
		CacheEntries:     7,
		ActiveTasks: []engine.TaskInfo{
			{ID: "t1", Kind: fault.KindConnectionRefused, Signal: "ECONNREFUSED", Status: "running"},
		},
		Metrics: metrics.Snapshot{TotalOperations: 4, SuccessfulOperations: 3, FailedOperations: 1},
	}
	s := newTestServer(t, st, nil)

	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["isRunning"])
	assert.EqualValues(t, 7, got["cacheEntries"])
	m := got["metrics"].(map[string]interface{})
	assert.EqualValues(t, 4, m["totalOperations"])
	assert.EqualValues(t, 1, m["failedOperations"])
	assert.Len(t, got["activeTasks"], 1)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, engine.Status{}, nil)
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `autoheal_operations_total{outcome="success"} 1`)
}

func TestHistory(t *testing.T) {
	h := &fakeHistory{rows: []*store.Remediation{{
		Task: fault.Task{
			ID:         "abc",
			Kind:       fault.KindTimeout,
			Signal:     fault.Signal{Text: "ETIMEDOUT", Source: "app"},
			FinishedAt: time.Now(),
			Status:     fault.StatusFailed,
			Result:     fault.Result{Message: "exit status 1"},
		},
	}}}
	s := newTestServer(t, engine.Status{}, h)

	rec := get(t, s, "/history?kind=timeout&limit=5&since=1h")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "timeout", h.filter.Kind)
	assert.Equal(t, 5, h.filter.Limit)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), h.filter.Since, time.Minute)

	var items []historyItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "abc", items[0].ID)
	assert.Equal(t, "failed", items[0].Status)
	assert.Equal(t, "exit status 1", items[0].Message)
}

func TestHistoryBadParams(t *testing.T) {
	s := newTestServer(t, engine.Status{}, &fakeHistory{})
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/history?limit=-1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/history?since=yesterday").Code)
}

func TestHistoryError(t *testing.T) {
	s := newTestServer(t, engine.Status{}, &fakeHistory{err: errors.New("db closed")})
	rec := get(t, s, "/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "db closed"))
}

func TestHistoryDisabled(t *testing.T) {
	s := newTestServer(t, engine.Status{}, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/history").Code)
}
