package main

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanban/internal/config"
	"kanban/internal/manager"
	"kanban/internal/models"
	"kanban/internal/snapshot"
	"kanban/internal/storage/sqlite"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnv(t *testing.T) *config.Env {
	t.Helper()
	env := &config.Env{}
	env.DBPath = filepath.Join(t.TempDir(), "kanban.db")
	env.LogLevel = "debug"
	env.RestoreFrom = config.RestoreSQLite
	env.BackupEnv.Type = config.BackupLocal
	env.Dir = filepath.Join(t.TempDir(), "backup")
	env.Key = "kanban"
	env.Format = "yaml"
	env.Keep = 3
	require.NoError(t, env.Validate())
	return env
}

func populated(t *testing.T) *manager.Manager {
	t.Helper()
	m := manager.New(discard())
	epicID, err := m.CreateEpic(models.NewEpic("Epic", ""))
	require.NoError(t, err)
	_, err = m.CreateSubtask(models.NewSubtask("Sub", "", epicID))
	require.NoError(t, err)
	m.EpicByID(epicID)
	return m
}

func TestNewLoggerFormat(t *testing.T) {
	env := &config.Env{}
	env.LogFormat = "json"
	var buf bytes.Buffer
	newLogger(env, &buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	env.LogFormat = "text"
	env.LogLevel = "warn"
	logger := newLogger(env, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestRestoreFromSQLite(t *testing.T) {
	env := testEnv(t)
	store, err := sqlite.Open(env.DBPath, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	src := populated(t)
	require.NoError(t, store.Save(t.Context(), snapshot.Capture(src)))

	dst := manager.New(discard())
	require.NoError(t, restore(t.Context(), config.RestoreSQLite, dst, store, nil, discard()))
	if diff := cmp.Diff(snapshot.Capture(src), snapshot.Capture(dst)); diff != "" {
		t.Fatalf("restored state mismatch (-want +got):\n%s", diff)
	}
}

func TestRestoreFromBackup(t *testing.T) {
	env := testEnv(t)
	store, err := sqlite.Open(env.DBPath, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bk, err := openBackup(t.Context(), env, discard())
	require.NoError(t, err)
	require.NotNil(t, bk)

	empty := manager.New(discard())
	require.NoError(t, restore(t.Context(), config.RestoreBackup, empty, store, bk, discard()), "missing backup starts empty")
	assert.Empty(t, empty.Epics())

	src := populated(t)
	require.NoError(t, bk.Save(t.Context(), snapshot.Capture(src)))

	dst := manager.New(discard())
	require.NoError(t, restore(t.Context(), config.RestoreBackup, dst, store, bk, discard()))
	if diff := cmp.Diff(snapshot.Capture(src), snapshot.Capture(dst)); diff != "" {
		t.Fatalf("restored state mismatch (-want +got):\n%s", diff)
	}
}

func TestRestoreNoneAndMissingBackup(t *testing.T) {
	m := manager.New(discard())
	require.NoError(t, restore(t.Context(), config.RestoreNone, m, nil, nil, discard()))
	assert.Error(t, restore(t.Context(), config.RestoreBackup, m, nil, nil, discard()))
}

func TestOpenBackupDisabled(t *testing.T) {
	env := &config.Env{}
	env.BackupEnv.Type = config.BackupNone
	bk, err := openBackup(t.Context(), env, discard())
	require.NoError(t, err)
	assert.Nil(t, bk)
}
