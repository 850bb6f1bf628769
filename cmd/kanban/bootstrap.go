package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"kanban/internal/backup"
	"kanban/internal/config"
	"kanban/internal/manager"
	"kanban/internal/snapshot"
	"kanban/internal/storage/sqlite"
)

func newLogger(env *config.Env, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: env.SlogLevel()}
	if strings.EqualFold(env.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openBackup returns nil when no backup transport is configured.
func openBackup(ctx context.Context, env *config.Env, logger *slog.Logger) (*backup.Backup, error) {
	if !env.BackupEnabled() {
		return nil, nil
	}
	format, err := snapshot.ParseFormat(env.Format)
	if err != nil {
		return nil, err
	}

	var storage backup.Storage
	switch env.BackupEnv.Type {
	case config.BackupLocal:
		storage, err = backup.NewLocalStorage(env.Dir)
	case config.BackupS3:
		storage, err = backup.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		return nil, fmt.Errorf("unsupported backup type %q", env.BackupEnv.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open backup storage: %w", err)
	}
	logger.Info("backup enabled", slog.String("type", env.BackupEnv.Type), slog.String("key", env.Key), slog.String("format", string(format)))
	return backup.New(storage, env.Key, format, env.Keep, logger), nil
}

// restore loads the startup state into mgr. A missing backup leaves mgr empty.
func restore(ctx context.Context, from string, mgr *manager.Manager, store *sqlite.Store, bk *backup.Backup, logger *slog.Logger) error {
	var (
		snap snapshot.Snapshot
		err  error
	)
	switch from {
	case config.RestoreNone:
		return nil
	case config.RestoreSQLite:
		snap, err = store.Load(ctx)
	case config.RestoreBackup:
		if bk == nil {
			return fmt.Errorf("restore from backup: backup is not configured")
		}
		snap, err = bk.Load(ctx, "")
		if errors.Is(err, backup.ErrNotFound) {
			logger.Warn("no backup found, starting empty")
			return nil
		}
	default:
		return fmt.Errorf("unknown restore source %q", from)
	}
	if err != nil {
		return fmt.Errorf("restore from %s: %w", from, err)
	}
	if err := snapshot.Restore(mgr, snap); err != nil {
		return fmt.Errorf("restore from %s: %w", from, err)
	}
	logger.Info("state restored", slog.String("source", from), slog.Int("items", len(snap.Records)))
	return nil
}
