package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"kanban/internal/config"
	"kanban/internal/manager"
	"kanban/internal/server"
	"kanban/internal/storage/sqlite"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fs := flag.NewFlagSet("kanban", flag.ExitOnError)
	fs.StringVar(&env.Addr, "addr", env.Addr, "HTTP listen address")
	fs.StringVar(&env.DBPath, "db", env.DBPath, "Path to sqlite database file")
	fs.StringVar(&env.RestoreFrom, "restore-from", env.RestoreFrom, "Startup state source: sqlite, backup or none")
	_ = fs.Parse(os.Args[1:])
	if err := env.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(env, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("kanban task manager", slog.String("addr", env.Addr), slog.String("db", env.DBPath))

	if err := run(env, logger); err != nil {
		logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(env *config.Env, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(env.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	bk, err := openBackup(ctx, env, logger)
	if err != nil {
		return err
	}

	mgr := manager.New(logger)
	if err := restore(ctx, env.RestoreFrom, mgr, store, bk, logger); err != nil {
		return err
	}

	opts := server.Options{Persist: store, CORSOrigins: env.CORSOrigins}
	if bk != nil {
		opts.Backup = bk
	}
	srv := server.New(mgr, logger, opts)

	httpServer := &http.Server{
		Addr:              env.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	return nil
}
