// Package main runs the ticketsync admin API and the periodic sync scheduler.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-events/ticketsync/config"
	"github.com/aura-events/ticketsync/internal/app"
	"github.com/aura-events/ticketsync/internal/auth"
	"github.com/aura-events/ticketsync/internal/middleware"
	"github.com/aura-events/ticketsync/internal/mirror"
	"github.com/aura-events/ticketsync/internal/organizers"
	"github.com/aura-events/ticketsync/internal/realtime"
	"github.com/aura-events/ticketsync/internal/redaction"
	"github.com/aura-events/ticketsync/internal/runlog"
	"github.com/aura-events/ticketsync/internal/scheduler"
	"github.com/aura-events/ticketsync/pkg/database"
	"github.com/aura-events/ticketsync/pkg/queue"
	"github.com/aura-events/ticketsync/pkg/redis"
	"github.com/aura-events/ticketsync/pkg/response"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	runs := runlog.NewRepository(pool)
	notifier := scheduler.Notifiers{runlog.NewRecorder(runs, logger), realtime.NewPublisher(rdb.Client, logger)}
	syncer, err := app.NewSync(ctx, cfg, pool, reg, app.Hooks{
		Notifier: notifier,
		Locker:   redis.NewRunLock(rdb.Client, cfg.Sync.RunLockTTL, logger),
	}, logger)
	if err != nil {
		logger.Fatal("sync", zap.Error(err))
	}
	jobQueue := queue.NewQueue(rdb.Client, logger)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	organizerHandler := organizers.NewHandler(syncer.Organizers, syncer.Manager, jobQueue, logger)
	ticketHandler := mirror.NewHandler(syncer.Mirror, logger)
	consentHandler := redaction.NewHandler(syncer.Redactions, logger)
	runHandler := runlog.NewHandler(runs)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	router.Use(middleware.Logger(logger, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// Live sync status (token in query; browsers cannot set headers on WebSocket upgrades)
	hub := realtime.NewHub(logger)
	router.GET("/ws", realtime.ServeWs(hub, jwtService, cfg.Server.AllowedOrigins(), logger))

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		operators := api.Group("", middleware.RequireRole(auth.RoleAdmin, auth.RoleOperator))
		operators.GET("/organizers", organizerHandler.List)
		operators.POST("/organizers/:id/sync", organizerHandler.Enqueue)
		operators.POST("/organizers/:id/run", organizerHandler.Run)
		operators.POST("/organizers/:id/cancel", organizerHandler.Cancel)
		operators.GET("/organizers/:id/runs", runHandler.List)
		operators.POST("/tickets/:id/checkin", ticketHandler.CheckIn)

		api.PATCH("/organizers/:id", middleware.RequireRole(auth.RoleAdmin), organizerHandler.Update)

		// Consent callback from the sign-in service.
		api.POST("/users/consent", middleware.RequireRole(auth.RoleService, auth.RoleAdmin), consentHandler.Consent)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	eventsCtx, eventsCancel := context.WithCancel(context.Background())
	defer eventsCancel()
	go func() {
		if err := realtime.Subscribe(eventsCtx, rdb.Client, hub, logger); err != nil {
			logger.Error("sync event subscription", zap.Error(err))
		}
	}()

	if err := syncer.Manager.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	eventsCancel()
	if err := syncer.Manager.Stop(); err != nil {
		logger.Error("scheduler shutdown", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
