package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanban/internal/manager"
	"kanban/internal/models"
	"kanban/internal/snapshot"
)

type recordingSink struct {
	mu      sync.Mutex
	saved   []snapshot.Snapshot
	ctxErrs []error
	err     error
}

func (r *recordingSink) Save(ctx context.Context, snap snapshot.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, snap)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func (r *recordingSink) last() snapshot.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[len(r.saved)-1]
}

type recordingBackup struct {
	recordingSink
	versions []string
}

func (r *recordingBackup) Versions(context.Context) ([]string, error) {
	return r.versions, nil
}

type harness struct {
	handler http.Handler
	manager *manager.Manager
	sink    *recordingSink
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := &recordingSink{}
	if opts.Persist == nil {
		opts.Persist = sink
	}
	m := manager.New(logger)
	srv := New(m, logger, opts)
	return &harness{handler: srv.Handler(), manager: m, sink: sink}
}

func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (h *harness) create(t *testing.T, target string, body any) int64 {
	t.Helper()
	rec := h.do(t, http.MethodPost, target, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct {
		ID int64 `json:"id"`
	}](t, rec).ID
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, Options{})
	rec := h.do(t, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTaskLifecycle(t *testing.T) {
	h := newHarness(t, Options{})

	id := h.create(t, "/api/tasks", map[string]any{
		"title":           "Write report",
		"description":     "quarterly",
		"startTime":       "2022-01-01T10:00:00Z",
		"durationMinutes": 30,
	})
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 1, h.sink.count())

	rec := h.do(t, http.MethodGet, "/api/tasks/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Task snapshot.Record `json:"task"`
	}](t, rec).Task
	assert.Equal(t, "Write report", got.Title)
	assert.EqualValues(t, "NEW", got.Status)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, "2022-01-01T10:30:00Z", got.EndTime.Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, []int64{1}, h.sink.last().History, "lookups are persisted")

	rec = h.do(t, http.MethodPut, "/api/tasks/1", map[string]any{"title": "Write report", "status": "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	task, ok := h.manager.TaskByID(1)
	require.True(t, ok)
	assert.EqualValues(t, "DONE", task.Status)
	assert.Nil(t, task.StartTime, "update replaces the whole task")

	rec = h.do(t, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct {
		Tasks []snapshot.Record `json:"tasks"`
	}](t, rec).Tasks, 1)

	rec = h.do(t, http.MethodDelete, "/api/tasks/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/tasks/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskValidation(t *testing.T) {
	h := newHarness(t, Options{})

	cases := []struct {
		name string
		body any
	}{
		{name: "empty body", body: nil},
		{name: "missing title", body: map[string]any{"description": "x"}},
		{name: "bad status", body: map[string]any{"title": "x", "status": "BLOCKED"}},
		{name: "negative duration", body: map[string]any{"title": "x", "durationMinutes": -1}},
		{name: "malformed json", body: "{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/tasks", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/tasks/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/tasks/0", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPut, "/api/tasks/9", map[string]any{"title": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/api/tasks/9", nil).Code)
	assert.Zero(t, h.sink.count(), "rejected requests are not persisted")
}

func TestTimeConflictReturns409(t *testing.T) {
	h := newHarness(t, Options{})
	first := h.create(t, "/api/tasks", map[string]any{"title": "a", "startTime": "2022-01-01T10:00:00Z", "durationMinutes": 60})

	rec := h.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "b", "startTime": "2022-01-01T10:30:00Z", "durationMinutes": 60})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, first, body["conflictId"])

	h.create(t, "/api/tasks", map[string]any{"title": "c", "startTime": "2022-01-01T11:00:00Z", "durationMinutes": 60})
}

func TestEpicAndSubtasks(t *testing.T) {
	h := newHarness(t, Options{})

	rec := h.do(t, http.MethodPost, "/api/epics", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "epic not created")

	epicID := h.create(t, "/api/epics", map[string]any{"title": "Release"})
	subID := h.create(t, "/api/subtasks", map[string]any{
		"title": "Build", "epicId": epicID, "status": "DONE",
		"startTime": "2022-01-01T09:00:00Z", "durationMinutes": 30,
	})

	rec = h.do(t, http.MethodPost, "/api/subtasks", map[string]any{"title": "Orphan", "epicId": 99})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/subtasks", map[string]any{"title": "No parent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/epics/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	epic := decode[struct {
		Epic snapshot.Record `json:"epic"`
	}](t, rec).Epic
	assert.EqualValues(t, "DONE", epic.Status)
	assert.EqualValues(t, 30, epic.DurationMinutes)

	rec = h.do(t, http.MethodGet, "/api/epics/1/subtasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subs := decode[struct {
		Subtasks []snapshot.Record `json:"subtasks"`
	}](t, rec).Subtasks
	require.Len(t, subs, 1)
	assert.Equal(t, subID, subs[0].ID)
	require.NotNil(t, subs[0].ParentID)
	assert.Equal(t, epicID, *subs[0].ParentID)

	otherEpic := h.create(t, "/api/epics", map[string]any{"title": "Other"})
	rec = h.do(t, http.MethodPut, "/api/subtasks/2", map[string]any{"title": "Build", "epicId": otherEpic})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "subtasks cannot move between epics")

	rec = h.do(t, http.MethodPut, "/api/epics/1", map[string]any{"title": "Renamed", "status": "NEW"})
	require.Equal(t, http.StatusOK, rec.Code)
	got, ok := h.manager.EpicByID(epicID)
	require.True(t, ok)
	assert.Equal(t, "Renamed", got.Title)
	assert.EqualValues(t, "DONE", got.Status, "epic status stays derived")

	rec = h.do(t, http.MethodDelete, "/api/epics/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.manager.Contains(models.KindSubtask, subID))
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/api/epics/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/epics/1/subtasks", nil).Code)
}

func TestDeleteAll(t *testing.T) {
	h := newHarness(t, Options{})
	epicID := h.create(t, "/api/epics", map[string]any{"title": "E"})
	h.create(t, "/api/subtasks", map[string]any{"title": "S", "epicId": epicID})
	h.create(t, "/api/tasks", map[string]any{"title": "T"})

	require.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/api/subtasks", nil).Code)
	assert.Empty(t, h.manager.Subtasks())
	assert.Len(t, h.manager.Epics(), 1)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/api/tasks", nil).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/api/epics", nil).Code)
	assert.Empty(t, h.manager.Tasks())
	assert.Empty(t, h.manager.Epics())
}

func TestHistoryAndPrioritized(t *testing.T) {
	h := newHarness(t, Options{})
	late := h.create(t, "/api/tasks", map[string]any{"title": "late", "startTime": "2022-01-01T12:00:00Z", "durationMinutes": 10})
	early := h.create(t, "/api/tasks", map[string]any{"title": "early", "startTime": "2022-01-01T08:00:00Z", "durationMinutes": 10})
	h.create(t, "/api/tasks", map[string]any{"title": "undated"})

	h.do(t, http.MethodGet, "/api/tasks/1", nil)
	h.do(t, http.MethodGet, "/api/tasks/2", nil)
	h.do(t, http.MethodGet, "/api/tasks/1", nil)

	rec := h.do(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		History []snapshot.Record `json:"history"`
	}](t, rec).History
	require.Len(t, history, 2)
	assert.Equal(t, []int64{early, late}, []int64{history[0].ID, history[1].ID})

	rec = h.do(t, http.MethodGet, "/api/prioritized", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prioritized := decode[struct {
		Prioritized []snapshot.Record `json:"prioritized"`
	}](t, rec).Prioritized
	require.Len(t, prioritized, 2)
	assert.Equal(t, []int64{early, late}, []int64{prioritized[0].ID, prioritized[1].ID})
}

func TestBackupEndpoints(t *testing.T) {
	h := newHarness(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodPost, "/api/backup", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodGet, "/api/backup", nil).Code)

	backup := &recordingBackup{versions: []string{"01H0000000000000000000000A"}}
	h = newHarness(t, Options{Backup: backup})
	h.create(t, "/api/tasks", map[string]any{"title": "T"})
	assert.Equal(t, 1, backup.count(), "mutations are also backed up")

	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/tasks/1", nil).Code)
	assert.Equal(t, 2, h.sink.count(), "lookups are persisted")
	assert.Equal(t, 1, backup.count(), "lookups do not create backup versions")

	rec := h.do(t, http.MethodPost, "/api/backup", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, backup.count())
	assert.Len(t, backup.last().Records, 1)

	rec = h.do(t, http.MethodGet, "/api/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"versions":["01H0000000000000000000000A"]}`, rec.Body.String())
}

func TestPersistFailureDoesNotFailRequest(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	h := newHarness(t, Options{Persist: sink})
	h.create(t, "/api/tasks", map[string]any{"title": "T"})
	assert.Equal(t, 1, sink.count())
	assert.Len(t, h.manager.Tasks(), 1)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, Options{CORSOrigins: []string{"http://example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, Options{})
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/nope", nil).Code)
}

func TestInvalidDurationReturns400(t *testing.T) {
	h := newHarness(t, Options{})
	h.create(t, "/api/tasks", map[string]any{"title": "a", "startTime": "2022-01-01T10:00:00Z", "durationMinutes": 60})

	for _, minutes := range []int64{200_000_000, models.MaxDurationMinutes + 1} {
		rec := h.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "b", "startTime": "2022-01-01T09:00:00Z", "durationMinutes": minutes})
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		rec = h.do(t, http.MethodPut, "/api/tasks/1", map[string]any{"title": "a", "startTime": "2022-01-01T09:00:00Z", "durationMinutes": minutes})
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}
	assert.Len(t, h.manager.Prioritized(), 1)

	epicID := h.create(t, "/api/epics", map[string]any{"title": "E"})
	rec := h.do(t, http.MethodPost, "/api/subtasks", map[string]any{"title": "s", "epicId": epicID, "durationMinutes": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForInvalidDuration(t *testing.T) {
	_, err := manager.New(nil).CreateTask(&models.Task{Title: "t", DurationMinutes: -1})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, statusFor(err))
}

func TestPersistOutlivesCanceledRequest(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewBufferString(`{"title":"t"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, h.sink.count())
	assert.NoError(t, h.sink.ctxErrs[0])
}
