package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fleetify/api/internal/app"
	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/internal/db"
	"github.com/fleetify/api/internal/progress"
	"github.com/fleetify/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	logger := cfg.NewLogger()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	pg := store.NewPostgres(pool)
	im, err := app.NewImporter(cfg, pg, logger)
	if err != nil {
		logger.Error("build importer", "error", err)
		os.Exit(1)
	}
	deps := app.Deps{Store: pg, Tokens: pg, Importer: im, Progress: progress.NewMemory()}

	// Without Redis the API still serves synchronous imports.
	redisOpts := app.RedisOptions(cfg)
	if rdb, err := db.ConnectRedis(ctx, redisOpts); err != nil {
		logger.Warn("redis_unavailable", "addr", cfg.RedisAddr, "error", err)
	} else {
		defer rdb.Close()
		queue := asynq.NewClient(redisOpts.AsynqOpt())
		defer queue.Close()
		deps.Progress = progress.NewRedis(rdb, cfg.ProgressTTL)
		deps.Queue = queue
	}

	router, err := app.NewRouter(cfg, deps, logger)
	if err != nil {
		logger.Error("build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		logger.Info("api_started", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("api_stopped")
}
