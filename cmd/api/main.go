package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appconfig "civicfund/config"
	"civicfund/internal/bootstrap"
	"civicfund/internal/cache"
	"civicfund/internal/handler"
	"civicfund/internal/httpserver"
	"civicfund/internal/scheduler"
	"civicfund/pkg/circuitbreaker"
	"civicfund/pkg/logger"
	"civicfund/pkg/mq"
	"civicfund/pkg/otel"
	"civicfund/pkg/outbox"
	redisclient "civicfund/pkg/redis"
)

func main() {
	cfg := appconfig.Load()

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Development)
	defer log.Sync()
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting civicfund api...",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("port", cfg.Server.Port),
	)

	shutdownOtel, err := otel.Init(cfg.OTel, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer stores.Close()

	services := bootstrap.NewServices(cfg, stores, log)
	readiness := map[string]httpserver.ReadinessCheck{"db": stores.Ping}

	// Redis（推荐列表缓存）
	if cfg.Redis.Addr != "" {
		rdb := redisclient.NewClient(cfg.Redis)
		defer rdb.Close()
		if err := redisclient.Ping(ctx, rdb); err != nil {
			log.Warn("Redis unavailable at startup, featured cache will trip its breaker", zap.Error(err))
		}
		services.Featured.WithCache(cache.NewFeaturedCache(rdb, cfg.Funding.FeaturedCacheTTL,
			circuitbreaker.New(circuitbreaker.DefaultConfig()), log))
	}

	// MQ publisher + outbox（仅 postgres 模式）
	var adminHandler *handler.AdminHandler
	if stores.Outbox != nil && cfg.MQ.URL != "" {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		readiness["mq"] = func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher connection closed")
			}
			return nil
		}

		dispatcher := outbox.NewDispatcher(stores.Outbox, publisher, log).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries).
			WithLease(cfg.Outbox.Lease)
		go dispatcher.Start(ctx)
		log.Info("Outbox dispatcher started")

		adminHandler = handler.NewAdminHandler(outbox.NewReplayService(stores.Outbox, publisher, log), log)
	}

	// Scheduler
	if cfg.Scheduler.Enabled {
		jobs, err := scheduler.NewManager(log)
		if err != nil {
			log.Fatal("Failed to init scheduler", zap.Error(err))
		}
		for _, job := range []scheduler.Job{
			scheduler.NewFeaturedWarmJob(services.Featured, cfg.Scheduler.FeaturedWarmInterval),
			scheduler.NewGoalSweepJob(services.Projects, cfg.Scheduler.SystemUserID, cfg.Scheduler.GoalSweepInterval, log),
		} {
			if err := jobs.Register(job); err != nil {
				log.Fatal("Failed to register job", zap.Error(err))
			}
		}
		jobs.Start()
		defer jobs.Stop()
	}

	// HTTP Server
	router := httpserver.NewRouter(httpserver.Handlers{
		Project:   handler.NewProjectHandler(services.Projects, log),
		Milestone: handler.NewMilestoneHandler(services.Milestone, log),
		Pledge:    handler.NewPledgeHandler(services.Ledger, log),
		Featured:  handler.NewFeaturedHandler(services.Featured, log),
		Admin:     adminHandler,
	}, httpserver.Options{
		JWTSecret: cfg.JWT.Secret,
		Readiness: readiness,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down civicfund api gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("civicfund api shutdown complete")
}
