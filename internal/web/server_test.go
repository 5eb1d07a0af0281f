package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/scheduler"
)

type stubUsers struct {
	username string
	hash     string
}

func (u *stubUsers) Create(ctx context.Context, username, passwordBcrypt string) error {
	return nil
}

func (u *stubUsers) Lookup(ctx context.Context, username string) (int64, string, error) {
	if username != u.username {
		return 0, "", db.ErrNotFound
	}
	return 7, u.hash, nil
}

type fakeTasks struct {
	submitted  []booking.Intent
	submitErr  error
	pending    []scheduler.TaskSummary
	cancelled  []string
	cancelOK   bool
	nextTaskID string
}

func (f *fakeTasks) Submit(intent booking.Intent) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	if err := intent.Validate(); err != nil {
		return "", err
	}
	f.submitted = append(f.submitted, intent)
	return f.nextTaskID, nil
}

func (f *fakeTasks) ListPending() []scheduler.TaskSummary { return f.pending }

func (f *fakeTasks) Cancel(id string) bool {
	f.cancelled = append(f.cancelled, id)
	return f.cancelOK
}

func newTestServer(t *testing.T, tasks *fakeTasks) *httptest.Server {
	t.Helper()

	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	store := auth.NewStore(&stubUsers{username: "alice", hash: hash},
		[]byte(strings.Repeat("h", 32)), []byte(strings.Repeat("b", 32)))

	srv := &Server{
		Auth:  store,
		Tasks: tasks,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func login(t *testing.T, ts *httptest.Server, username, password string) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	res, err := http.Post(ts.URL+"/api/login", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, res.Cookies())
	return res.Cookies()[0]
}

func doJSON(t *testing.T, method, url string, cookie *http.Cookie, payload any) (*http.Response, map[string]any) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res, decoded
}

func validTaskPayload() map[string]any {
	return map[string]any{
		"slots": []map[string]string{{
			"resourceId": "GYMQ012",
			"startTime":  "17:00",
			"endTime":    "18:00",
		}},
		"targetDate":    "2026-09-02",
		"triggerAt":     time.Now().Add(time.Hour).Format(time.RFC3339),
		"notifyAddress": "player@example.com",
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, &fakeTasks{})

	t.Run("valid credentials set a session cookie", func(t *testing.T) {
		cookie := login(t, ts, "alice", "hunter2")
		assert.Equal(t, "courtsched_session", cookie.Name)
		assert.NotEmpty(t, cookie.Value)
	})

	t.Run("wrong password", func(t *testing.T) {
		res, body := doJSON(t, http.MethodPost, ts.URL+"/api/login", nil,
			map[string]string{"username": "alice", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
		assert.Equal(t, "invalid username or password", body["error"])
	})

	t.Run("unknown user", func(t *testing.T) {
		res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/login", nil,
			map[string]string{"username": "mallory", "password": "hunter2"})
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})
}

func TestTaskEndpointsRequireAuth(t *testing.T) {
	ts := newTestServer(t, &fakeTasks{})

	res, _ := doJSON(t, http.MethodGet, ts.URL+"/api/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/api/tasks", nil, validTaskPayload())
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/tasks/task_1_abc", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestCreateTask(t *testing.T) {
	tasks := &fakeTasks{nextTaskID: "task_99_feed"}
	ts := newTestServer(t, tasks)
	cookie := login(t, ts, "alice", "hunter2")

	res, body := doJSON(t, http.MethodPost, ts.URL+"/api/tasks", cookie, validTaskPayload())
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "task_99_feed", body["id"])

	require.Len(t, tasks.submitted, 1)
	assert.Equal(t, "GYMQ012", tasks.submitted[0].Slots[0].ResourceID)
	assert.Equal(t, "player@example.com", tasks.submitted[0].NotifyAddress)
}

func TestCreateTaskValidation(t *testing.T) {
	tasks := &fakeTasks{nextTaskID: "task_99_feed"}
	ts := newTestServer(t, tasks)
	cookie := login(t, ts, "alice", "hunter2")

	t.Run("bad target date", func(t *testing.T) {
		payload := validTaskPayload()
		payload["targetDate"] = "02/09/2026"
		res, body := doJSON(t, http.MethodPost, ts.URL+"/api/tasks", cookie, payload)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "targetDate must be YYYY-MM-DD", body["error"])
	})

	t.Run("no slots", func(t *testing.T) {
		payload := validTaskPayload()
		payload["slots"] = []map[string]string{}
		res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/tasks", cookie, payload)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("scheduler unavailable", func(t *testing.T) {
		tasks.submitErr = scheduler.ErrStopped
		defer func() { tasks.submitErr = nil }()
		res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/tasks", cookie, validTaskPayload())
		assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	})
}

func TestListTasks(t *testing.T) {
	trigger := time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC)
	tasks := &fakeTasks{pending: []scheduler.TaskSummary{
		{ID: "task_1_abc", Name: "Court booking 2026-09-02 11:00", TriggerAt: trigger},
	}}
	ts := newTestServer(t, tasks)
	cookie := login(t, ts, "alice", "hunter2")

	res, body := doJSON(t, http.MethodGet, ts.URL+"/api/tasks", cookie, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	list, ok := body["tasks"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	entry := list[0].(map[string]any)
	assert.Equal(t, "task_1_abc", entry["id"])
	assert.Equal(t, "Court booking 2026-09-02 11:00", entry["name"])
}

func TestCancelTask(t *testing.T) {
	tasks := &fakeTasks{cancelOK: true}
	ts := newTestServer(t, tasks)
	cookie := login(t, ts, "alice", "hunter2")

	res, body := doJSON(t, http.MethodDelete, ts.URL+"/api/tasks/task_1_abc", cookie, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, body["cancelled"])
	assert.Equal(t, []string{"task_1_abc"}, tasks.cancelled)

	tasks.cancelOK = false
	res, body = doJSON(t, http.MethodDelete, ts.URL+"/api/tasks/task_1_abc", cookie, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, false, body["cancelled"])
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t, &fakeTasks{})

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// nil venue session disables the probe
	res, body := doJSON(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ready", body["status"])
}
