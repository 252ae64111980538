// Package main provides the utapi binary entry point that serves utilization
// metrics over HTTP. It loads configuration from an optional JSON file and
// environment variables, validates it, connects the configured backing store
// and answers signed ListMetrics queries.
//
// The application flow:
//  1. Load and validate configuration.
//  2. Install the process logger at the configured level.
//  3. Open the backing store (Redis, SQLite or in-memory).
//  4. Start the background store health monitor.
//  5. Mount the query routes and probes, serve until SIGINT/SIGTERM, drain.
//
// It exits with a non-zero status code on configuration errors or fatal
// server errors.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/voxisys/utapi/datastore"
	"github.com/voxisys/utapi/internal/config"
	"github.com/voxisys/utapi/internal/health"
	"github.com/voxisys/utapi/internal/httpx"
	"github.com/voxisys/utapi/internal/lister"
)

// shutdownTimeout bounds how long in-flight queries may hold up an exit.
const shutdownTimeout = 10 * time.Second

// newLogger builds the process-wide JSON logger at the configured level and
// installs it as the slog default.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log, nil
}

// openStore connects the configured backing store. With neither Redis nor
// SQLite enabled the metrics live in process memory and vanish on restart,
// which is only good for trying the service out.
func openStore(cfg *config.Config, log *slog.Logger) (datastore.Store, error) {
	switch {
	case cfg.Redis.Enabled():
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
		log.Info("using redis store", "addr", cfg.Redis.Addr())
		return datastore.NewRedisStore(client), nil
	case cfg.SQLite.Enabled():
		db, err := sql.Open("sqlite3", cfg.SQLite.DSN())
		if err != nil {
			return nil, err
		}
		s, err := datastore.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		log.Info("using sqlite store", "path", cfg.SQLite.Path)
		return s, nil
	default:
		log.Warn("no backing store configured, metrics are not persisted")
		return datastore.NewMemoryStore(), nil
	}
}

// buildHandler wires the query dispatcher, signature verifier and probes
// into the HTTP handler.
func buildHandler(cfg *config.Config, store datastore.Store, monitor *health.Monitor, log *slog.Logger) (http.Handler, error) {
	dump, err := config.ParseLevel(cfg.Log.DumpLevel)
	if err != nil {
		return nil, err
	}
	dispatcher := lister.NewDispatcher(lister.Config{
		Store:     store,
		Component: cfg.Component,
		Workers:   cfg.Workers,
		Logger:    log,
		DumpLevel: dump,
	})
	h := httpx.New(dispatcher, httpx.NewSigV4Verifier(cfg.Credentials), monitor.Ready, log)
	return h.Router(), nil
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := health.New(store, health.Config{Logger: log})
	monitor.Start(ctx)
	defer monitor.Stop()

	handler, err := buildHandler(cfg, store, monitor, log)
	if err != nil {
		return err
	}
	srv := newServer(cfg, handler)

	log.Info("starting server",
		"addr", cfg.Addr,
		"component", cfg.Component,
		"levels", cfg.Levels(),
		"pid", os.Getpid(),
	)

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "reason", "signal")
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return err
	}
	return <-errCh
}

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
