package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fleetify/api/internal/app"
	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/internal/db"
	"github.com/fleetify/api/internal/jobs"
	"github.com/fleetify/api/internal/progress"
	"github.com/fleetify/api/internal/runs"
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

	redisOpts := app.RedisOptions(cfg)
	rdb, err := db.ConnectRedis(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	pg := store.NewPostgres(pool)
	im, err := app.NewImporter(cfg, pg, logger)
	if err != nil {
		logger.Error("build importer", "error", err)
		os.Exit(1)
	}
	repo := runs.NewRepository(pg)
	executor := runs.NewExecutor(repo, im, progress.NewRedis(rdb, cfg.ProgressTTL), logger)

	srv := asynq.NewServer(redisOpts.AsynqOpt(), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{jobs.QueueImports: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task_failed", "type", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	jobs.Register(mux, jobs.NewHandler(repo, executor, logger))

	go func() {
		<-ctx.Done()
		logger.Info("worker_stopping")
		srv.Shutdown()
	}()

	logger.Info("worker_started", "concurrency", cfg.WorkerConcurrency, "queue", jobs.QueueImports)
	if err := srv.Run(mux); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}
