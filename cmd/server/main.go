// Package main is the entrypoint for the interview API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/intervue/internal/api"
	"github.com/kiranshivaraju/intervue/internal/api/handler"
	mw "github.com/kiranshivaraju/intervue/internal/api/middleware"
	"github.com/kiranshivaraju/intervue/internal/cache"
	"github.com/kiranshivaraju/intervue/internal/config"
	"github.com/kiranshivaraju/intervue/internal/interview"
	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/kiranshivaraju/intervue/internal/metrics"
	"github.com/kiranshivaraju/intervue/internal/rtc"
	"github.com/kiranshivaraju/intervue/internal/signaling"
	"github.com/kiranshivaraju/intervue/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck
	log.Info("config loaded",
		zap.String("env", cfg.Server.Env),
		zap.Bool("distributed_signaling", cfg.Signaling.DistributedMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	log.Info("redis connected")

	// 5. Services
	pgStore := store.NewPostgresStore(pool)
	svc := interview.NewService(pgStore, redisCache, log)
	broker := newBroker(cfg.Signaling, redisCache.Client(), log)
	relay := signaling.NewRelay(svc, broker, signaling.RelayConfig{
		PingInterval:   cfg.Signaling.PingInterval,
		AllowedOrigins: cfg.Signaling.AllowedOrigins,
	}, log)

	// 6. Build router with dependencies
	router := newRouter(cfg, svc, relay, pgStore, redisCache, log)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown does not wait for hijacked signaling sockets.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// newBroker picks the signaling transport. Redis lets several API instances
// serve the two ends of one call; the in-process broker is for a single node.
func newBroker(cfg config.SignalingConfig, client *redis.Client, log *zap.Logger) signaling.Channel {
	if cfg.DistributedMode {
		return signaling.NewRedisBroker(client, signaling.RedisBrokerConfig{
			PeerWait:    cfg.PeerWait,
			PresenceTTL: cfg.PresenceTTL,
			MaxLen:      cfg.StreamMaxLen,
			ReadBlock:   cfg.ReadBlock,
		}, log)
	}
	return signaling.NewMemoryBroker(cfg.PeerWait)
}

func newRouter(cfg *config.Config, svc handler.InterviewService, relay handler.SignalRelay, db handler.Pinger, c cache.Cache, log *zap.Logger) http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth.JWTSecret),
		RateLimit: mw.NewRateLimit(c, cfg.RateLimit.RequestsPerMinute),
		Logger:    log,

		HealthHandler:       handler.NewHealthHandler(db, c),
		MetricsHandler:      metrics.Handler(),
		ScheduleHandler:     handler.NewScheduleHandler(svc),
		ListInterviews:      handler.NewListInterviewsHandler(svc),
		GetInterview:        handler.NewGetInterviewHandler(svc),
		SetStatusHandler:    handler.NewSetStatusHandler(svc),
		SubmitFeedback:      handler.NewSubmitFeedbackHandler(svc),
		MyFeedback:          handler.NewMyFeedbackHandler(svc),
		SignalHandler:       handler.NewSignalHandler(relay),
		WebRTCConfigHandler: handler.NewWebRTCConfigHandler(rtc.Config(cfg.WebRTC)),
	})
}
