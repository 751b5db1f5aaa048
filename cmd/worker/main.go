// Package main runs the sync worker: it consumes sync jobs enqueued by the API and the CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-events/ticketsync/config"
	"github.com/aura-events/ticketsync/internal/app"
	"github.com/aura-events/ticketsync/internal/realtime"
	"github.com/aura-events/ticketsync/internal/runlog"
	"github.com/aura-events/ticketsync/internal/scheduler"
	"github.com/aura-events/ticketsync/internal/worker"
	"github.com/aura-events/ticketsync/pkg/database"
	"github.com/aura-events/ticketsync/pkg/queue"
	"github.com/aura-events/ticketsync/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// The periodic scheduler runs in the server; the worker only serves queued jobs.
	// Both take the organizer's Redis run lock, so they never sync it at the same time.
	syncer, err := app.NewSync(ctx, cfg, pool, nil, app.Hooks{
		Notifier: scheduler.Notifiers{
			runlog.NewRecorder(runlog.NewRepository(pool), logger),
			realtime.NewPublisher(rdb.Client, logger),
		},
		Locker: redis.NewRunLock(rdb.Client, cfg.Sync.RunLockTTL, logger),
	}, logger)
	if err != nil {
		logger.Fatal("sync", zap.Error(err))
	}
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewSyncProcessor(syncer.Manager, jobQueue, cfg.Sync.RetryBackoff, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	syncer.Manager.CancelAll()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
