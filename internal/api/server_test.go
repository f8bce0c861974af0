package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudger/internal/domain"
	"nudger/internal/feed"
	"nudger/internal/queue"
	"nudger/internal/storage"
	"nudger/internal/tasks"
)

type testEnv struct {
	h    http.Handler
	repo queue.Store
	feed *feed.SQLFeed
}

func newTestEnv(t *testing.T, gate Gate) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, queue.EnsureSchema(ctx, db))
	require.NoError(t, feed.EnsureSchema(ctx, db))

	repo := queue.NewRepo(db)
	f := feed.NewSQLFeed(db)
	return &testEnv{h: NewServer(repo, tasks.NewFactory(repo), f, gate), repo: repo, feed: f}
}

func (e *testEnv) do(method, path, actor, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func createdID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp createResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestCreateAndGetPlannedTask(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := e.do("POST", "/v1/tasks/planned", "", `{
		"owner": "u1",
		"startDate": "2025-02-01T09:00:00Z",
		"steps": [{"dayOffset": 1, "title": {"key": "Welcome", "pure": true}}, {"dayOffset": 4, "title": {"key": "text.remind-daily-flow"}}],
		"extra": {"planId": "p7"}
	}`)
	id := createdID(t, rec)

	rec = e.do("GET", "/v1/tasks/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got taskResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.KindPlanned, got.Kind)
	assert.Equal(t, domain.StatusScheduled, got.Status)
	assert.Equal(t, "2025-02-02T09:00:00Z", got.PerformAt)
	assert.Equal(t, "p7", got.Extra["planId"])
	assert.Empty(t, got.ErrorMessages)

	assert.Equal(t, http.StatusNotFound, e.do("GET", "/v1/tasks/tsk_nope", "", "").Code)
}

func TestCreateValidation(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"bad json", "/v1/tasks/one-time", `{`, 400},
		{"missing title", "/v1/tasks/one-time", `{"owner":"u1","performAt":"2025-01-01T00:00:00Z"}`, 400},
		{"empty owner is a no-op", "/v1/tasks/one-time", `{"owner":"","title":{"key":"x","pure":true}}`, 204},
		{"no steps", "/v1/tasks/planned", `{"owner":"u1","startDate":"2025-01-01T00:00:00Z","steps":[]}`, 400},
		{"bad pace", "/v1/tasks/recurring", `{"owner":"u1","firstPerformAt":"2025-01-01T00:00:00Z","title":{"key":"x"},"interval":1,"pace":"year"}`, 400},
		{"bad interval", "/v1/tasks/recurring", `{"owner":"u1","firstPerformAt":"2025-01-01T00:00:00Z","title":{"key":"x"},"interval":0,"pace":"day"}`, 400},
		{"recurring ok", "/v1/tasks/recurring", `{"owner":"u1","firstPerformAt":"2025-01-01T00:00:00Z","title":{"key":"x"},"interval":2,"pace":"week"}`, 202},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do("POST", tt.path, "", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestGateGuardsCreation(t *testing.T) {
	e := newTestEnv(t, NewOperators([]string{"ops"}))
	body := `{"owner":"u1","performAt":"2025-01-01T00:00:00Z","title":{"key":"hi","pure":true}}`

	assert.Equal(t, http.StatusForbidden, e.do("POST", "/v1/tasks/one-time", "", body).Code)
	assert.Equal(t, http.StatusForbidden, e.do("POST", "/v1/tasks/one-time", "u2", body).Code)
	createdID(t, e.do("POST", "/v1/tasks/one-time", "u1", body))
	createdID(t, e.do("POST", "/v1/tasks/one-time", "ops", body))
}

func TestCancelTask(t *testing.T) {
	e := newTestEnv(t, nil)
	id := createdID(t, e.do("POST", "/v1/tasks/one-time", "", `{"owner":"u1","performAt":"2030-01-01T00:00:00Z","title":{"key":"later","pure":true}}`))

	rec := e.do("POST", "/v1/tasks/"+id+"/cancel", "", `{"reason":"user left group"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := e.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, []string{"user left group"}, got.ErrorMessages)

	assert.Equal(t, http.StatusConflict, e.do("POST", "/v1/tasks/"+id+"/cancel", "", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do("POST", "/v1/tasks/tsk_nope/cancel", "", "").Code)
}

func TestFeedFixtures(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	assert.Equal(t, http.StatusNoContent, e.do("POST", "/v1/users", "", `{"uid":"ann","name":"Ann","language":"es"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do("POST", "/v1/users", "", `{"name":"x"}`).Code)

	rec := e.do("POST", "/v1/groups/g1/actions", "", `{"type":"prayer","creator":"ann","viewerIds":["u9"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	u, err := e.feed.User(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, "es", u.Language)

	actions, err := e.feed.RecentActions(ctx, "g1", time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].ViewedBy("u9"))
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t, nil)
	createdID(t, e.do("POST", "/v1/tasks/one-time", "", `{"owner":"u1","performAt":"2030-01-01T00:00:00Z","title":{"key":"x","pure":true}}`))

	assert.Equal(t, "ok", e.do("GET", "/health", "", "").Body.String())

	rec := e.do("GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nudger_tasks{status="scheduled"} 1`)
	assert.Contains(t, rec.Body.String(), `nudger_tasks{status="error"} 0`)

	rec = e.do("GET", "/v1/tasks?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []taskResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}
