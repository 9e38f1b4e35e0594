package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "schedules", "tasks.json"))
}

func TestStoreAddAssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Add("", "consolidator", "0 3 * * *", "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "consolidator-task-1", first.Name)
	assert.True(t, first.Enabled)
	assert.NotEmpty(t, first.Created)

	second, err := s.Add("nightly-ingest", "librarian", "0 2 * * *", "/srv/docs", true)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, "nightly-ingest", second.Name)

	tasks, err := s.List()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestStoreRejectsInvalidCron(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add("", "consolidator", "every day at dawn", "", true)
	assert.ErrorIs(t, err, ErrInvalidCron)

	_, err = s.Add("", "consolidator", "0 3 * *", "", true)
	assert.ErrorIs(t, err, ErrInvalidCron, "four fields rejected")
}

func TestStoreEnableDisableRemove(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Add("", "deleter", "*/5 * * * *", "old drafts", true)
	require.NoError(t, err)

	require.NoError(t, s.SetEnabled(task.ID, false))
	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, s.Remove(task.ID))
	_, err = s.Get(task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, s.Remove(task.ID), ErrTaskNotFound)
}

func TestStoreTouchRecordsLastRun(t *testing.T) {
	s := newTestStore(t)
	pinned := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	s.now = func() time.Time { return pinned }

	task, err := s.Add("", "consolidator", "0 3 * * *", "", true)
	require.NoError(t, err)
	require.NoError(t, s.Touch(task.ID))

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14T09:26:53Z", got.LastRun)
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	first := NewStore(path)
	_, err := first.Add("", "librarian", "0 */6 * * *", "/docs", true)
	require.NoError(t, err)

	second := NewStore(path)
	tasks, err := second.List()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "librarian", tasks[0].Agent)
}

func TestDescribe(t *testing.T) {
	cases := map[string]string{
		"0 */6 * * *":  "Cada 6 horas",
		"*/15 * * * *": "Cada 15 minutos",
		"0 * * * *":    "Cada hora",
		"0 3 * * *":    "Cada día a las 3:00",
		"30 14 * * *":  "Cada día a las 14:30",
		"0 9 * * 1":    "Cada lunes a las 9:00",
		"15 18 * * 0":  "Cada domingo a las 18:15",
		"0 8 * * 1-5":  "Días laborales a las 8:00",
		"0 10 * * 0,6": "Fines de semana a las 10:00",
		"0 9 1 * *":    "Día 1 de cada mes a las 9:00",
		"whatever":     "whatever",
		"1 2 3 4 5 6":  "1 2 3 4 5 6",
	}
	for expr, want := range cases {
		assert.Equal(t, want, Describe(expr), expr)
	}
}

type recordingAgents struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recordingAgents) Run(_ context.Context, name string, args []string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.err != nil {
		return nil, r.err
	}
	return map[string]any{"status": "success"}, nil
}

func TestRunnerRunTask(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Add("", "consolidator", "0 3 * * *", "", true)
	require.NoError(t, err)

	agents := &recordingAgents{}
	logs := filepath.Join(t.TempDir(), "schedules")
	r := NewRunner(s, agents, logs, nil)

	require.NoError(t, r.RunTask(context.Background(), task.ID))
	require.Len(t, agents.calls, 1)
	assert.Equal(t, []string{"consolidator"}, agents.calls[0])

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.LastRun)

	log, err := r.ReadLog(task.ID)
	require.NoError(t, err)
	assert.Contains(t, log, "agent=consolidator")
	assert.Contains(t, log, "status=ok")
}

func TestRunnerPassesTaskArgs(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Add("", "librarian", "0 2 * * *", "/srv/docs", true)
	require.NoError(t, err)

	agents := &recordingAgents{}
	r := NewRunner(s, agents, t.TempDir(), nil)
	require.NoError(t, r.RunTask(context.Background(), task.ID))

	require.Len(t, agents.calls, 1)
	assert.Equal(t, []string{"librarian", "/srv/docs"}, agents.calls[0])
}

func TestRunnerLogsFailures(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Add("", "deleter", "0 4 * * *", "temp", true)
	require.NoError(t, err)

	agents := &recordingAgents{err: errors.New("engine unreachable")}
	r := NewRunner(s, agents, t.TempDir(), nil)

	err = r.RunTask(context.Background(), task.ID)
	require.Error(t, err)

	log, readErr := r.ReadLog(task.ID)
	require.NoError(t, readErr)
	assert.Contains(t, log, "status=error")
	assert.Contains(t, log, "engine unreachable")
}

func TestRunnerRunTaskUnknownID(t *testing.T) {
	r := NewRunner(newTestStore(t), &recordingAgents{}, t.TempDir(), nil)
	err := r.RunTask(context.Background(), 42)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRunnerStartMountsOnlyEnabled(t *testing.T) {
	s := newTestStore(t)
	enabled, err := s.Add("", "consolidator", "0 3 * * *", "", true)
	require.NoError(t, err)
	disabled, err := s.Add("", "deleter", "0 4 * * *", "", false)
	require.NoError(t, err)

	r := NewRunner(s, &recordingAgents{}, t.TempDir(), nil)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	r.mu.Lock()
	_, enabledMounted := r.entries[enabled.ID]
	_, disabledMounted := r.entries[disabled.ID]
	r.mu.Unlock()
	assert.True(t, enabledMounted)
	assert.False(t, disabledMounted)
}
