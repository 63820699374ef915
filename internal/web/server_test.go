package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdemo/internal/categorize"
	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/identity"
	"github.com/tgienger/taskdemo/internal/logging"
	"github.com/tgienger/taskdemo/internal/metrics"
	"github.com/tgienger/taskdemo/internal/quota"
	"github.com/tgienger/taskdemo/internal/service"
	"github.com/tgienger/taskdemo/internal/views"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	handler http.Handler
	db      *db.DB
	cookie  *http.Cookie
}

func newTestServer(t *testing.T, categorizerURL string) *testServer {
	t.Helper()

	database, err := db.Open(db.Options{
		Path:        filepath.Join(t.TempDir(), "web.db"),
		BusyTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	logger := logging.Discard()
	m := metrics.New()
	cache := views.NewCache(time.Minute)

	srv := NewServer(Options{
		Resolver:    identity.NewResolver(database, logger, m),
		Service:     service.New(database, logger, m, cache),
		Views:       views.NewReader(database, cache),
		Categorizer: categorize.NewClient(categorizerURL, time.Second),
		Metrics:     m,
		Logger:      logger,
		Cookie:      identity.DefaultCookieConfig(),
	})
	return &testServer{handler: srv.Handler(), db: database}
}

// do sends a request, carrying the session cookie from earlier responses
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if ts.cookie != nil {
		req.AddCookie(ts.cookie)
	}

	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == identity.DefaultCookieName {
			ts.cookie = c
		}
	}
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type sessionResponse struct {
	Session struct {
		ID              string `json:"id"`
		TaskCreateCount int    `json:"taskCreateCount"`
	} `json:"session"`
	Limits quota.Limits `json:"limits"`
	Usage  views.Usage  `json:"usage"`
}

func TestHealthz_NoSession(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, ts.cookie, "health checks do not mint sessions")

	count, err := ts.db.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	ts.do(t, http.MethodGet, "/api/session", nil)

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "taskdemo_sessions_created_total 1")
}

func TestSession_CreatedSeededAndStable(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ts.cookie)

	first := decode[sessionResponse](t, w)
	assert.Equal(t, ts.cookie.Value, first.Session.ID)
	assert.Equal(t, quota.Default(), first.Limits)
	assert.Equal(t, len(identity.DefaultTasks), first.Usage.Tasks)
	assert.Equal(t, len(identity.DefaultTags), first.Usage.Tags)

	second := decode[sessionResponse](t, ts.do(t, http.MethodGet, "/api/session", nil))
	assert.Equal(t, first.Session.ID, second.Session.ID)

	count, err := ts.db.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTasks_CreateUpdateDelete(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"title":    "  Write tests  ",
		"dueDate":  "2026-12-01",
		"priority": "HIGH",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[service.Result](t, w)
	require.True(t, created.Success)

	w = ts.do(t, http.MethodGet, "/api/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "Write tests", got["title"])
	assert.Equal(t, "NOT_STARTED", got["status"])

	w = ts.do(t, http.MethodPatch, "/api/tasks/"+created.ID+"/status", map[string]string{"status": "DONE"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPatch, "/api/tasks/"+created.ID+"/priority", map[string]string{"priority": "LOW"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPut, "/api/tasks/"+created.ID, map[string]any{"title": "Renamed", "status": "IN_PROGRESS"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	session := decode[sessionResponse](t, ts.do(t, http.MethodGet, "/api/session", nil))
	assert.Equal(t, 1, session.Session.TaskCreateCount)

	w = ts.do(t, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, service.KindNotFound, decode[service.Result](t, w).Kind)
}

func TestTasks_BadRequests(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"missing title", http.MethodPost, "/api/tasks", map[string]any{"title": "   "}, http.StatusBadRequest},
		{"bad due date", http.MethodPost, "/api/tasks", map[string]any{"title": "x", "dueDate": "next tuesday"}, http.StatusBadRequest},
		{"bad priority", http.MethodPost, "/api/tasks", map[string]any{"title": "x", "priority": "MEH"}, http.StatusBadRequest},
		{"bad status value", http.MethodPatch, "/api/tasks/whatever/status", map[string]string{"status": "LATER"}, http.StatusBadRequest},
		{"missing status", http.MethodPatch, "/api/tasks/whatever/status", map[string]string{}, http.StatusBadRequest},
		{"unknown task", http.MethodGet, "/api/tasks/does-not-exist", nil, http.StatusNotFound},
		{"unknown task update", http.MethodPut, "/api/tasks/does-not-exist", map[string]any{"title": "x"}, http.StatusNotFound},
		{"bad filter", http.MethodGet, "/api/tasks?status=SOMEDAY", nil, http.StatusBadRequest},
		{"long query", http.MethodGet, "/api/tasks?q=" + strings.Repeat("a", 121), nil, http.StatusBadRequest},
		{"bad sort", http.MethodGet, "/api/tasks?sort=title", nil, http.StatusBadRequest},
		{"bad sort dir", http.MethodGet, "/api/tasks?sort=priority&dir=up", nil, http.StatusBadRequest},
		{"foreign tag", http.MethodPost, "/api/tasks", map[string]any{"title": "x", "tagIds": []string{"not-mine"}}, http.StatusBadRequest},
		{"bad tag color", http.MethodPost, "/api/tags", map[string]any{"name": "x", "color": "red"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestTasks_QuotaIs429(t *testing.T) {
	ts := newTestServer(t, "")

	// The seeded tasks already occupy part of the alive cap
	room := quota.TaskAliveLimit - len(identity.DefaultTasks)
	for i := 0; i < room; i++ {
		w := ts.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "filler"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := ts.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "one more"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	r := decode[service.Result](t, w)
	assert.False(t, r.Success)
	assert.Equal(t, service.KindQuota, r.Kind)
	assert.Equal(t, quota.CodeTaskAlive, r.Code)
	assert.NotEmpty(t, r.Error)
}

func TestTasks_ListSortedAndFiltered(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/tasks?sort=priority&dir=asc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[views.TaskList](t, w)
	require.Len(t, list.Tasks, len(identity.DefaultTasks))
	assert.Equal(t, "URGENT", string(list.Tasks[0].Priority))
	assert.Len(t, list.Tags, len(identity.DefaultTags))

	w = ts.do(t, http.MethodGet, "/api/tasks?status=DONE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[views.TaskList](t, w).Tasks)

	w = ts.do(t, http.MethodGet, "/api/tasks?q="+url.QueryEscape("expense"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[views.TaskList](t, w).Tasks, 1)
}

func TestTags_CRUD(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/api/tags", map[string]any{"name": "Urgent", "color": "#EF4444"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[service.Result](t, w).ID

	w = ts.do(t, http.MethodPut, "/api/tags/"+id, map[string]any{"name": "Critical", "color": "#EF4444"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/tags", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string][]map[string]any](t, w)
	assert.Len(t, body["tags"], len(identity.DefaultTags)+1)

	w = ts.do(t, http.MethodDelete, "/api/tags/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPut, "/api/tags/"+id, map[string]any{"name": "Gone", "color": "#EF4444"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_AreIsolated(t *testing.T) {
	alice := newTestServer(t, "")
	w := alice.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "alice only"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[service.Result](t, w).ID

	// Same server and store, no cookie: a different visitor
	bob := &testServer{handler: alice.handler, db: alice.db}
	w = bob.do(t, http.MethodGet, "/api/tasks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = bob.do(t, http.MethodDelete, "/api/tasks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = alice.do(t, http.MethodGet, "/api/tasks/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestViews(t *testing.T) {
	ts := newTestServer(t, "")

	for _, path := range []string{"/api/dashboard", "/api/reports", "/api/calendar", "/api/activity"} {
		t.Run(path, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		})
	}

	d := decode[views.Dashboard](t, ts.do(t, http.MethodGet, "/api/dashboard", nil))
	assert.Len(t, d.Overdue, 1, "the seeded expense report is past due")
}

func TestCategorize_LocalRules(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/api/ai/categorize", map[string]string{"text": "pay rent asap"})
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[categorize.Suggestion](t, w)
	assert.Equal(t, []string{"finance"}, s.Tags)
	assert.Equal(t, "URGENT", string(s.Priority))

	form := url.Values{"text": {"buy milk"}}
	req := httptest.NewRequest(http.MethodPost, "/api/ai/categorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"errand"}, decode[categorize.Suggestion](t, rec).Tags)

	w = ts.do(t, http.MethodPost, "/api/ai/categorize", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/ai/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCategorize_UpstreamFailureIs502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	ts := newTestServer(t, upstream.URL)

	w := ts.do(t, http.MethodPost, "/api/ai/categorize", map[string]string{"text": "anything"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"ML service error"}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/ai/health", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
