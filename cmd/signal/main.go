package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/middleware"
	"github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/monitoring"
	redisrepo "github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/repositories/redis"
	relay "github.com/YelllowSunray/xsimwink-sub000/internal/infrastructure/signal"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/config"
	apperrors "github.com/YelllowSunray/xsimwink-sub000/pkg/errors"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/logger"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/tracing"
)

var configPaths = []string{
	"configs/config.yaml",
	"config.yaml",
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("XSIMWINK_CONFIG"); path != "" {
		return config.Load(path)
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	return config.Load("")
}

func relayConfig(cfg *config.Config) relay.ServerConfig {
	sc := relay.DefaultServerConfig()
	sc.PingInterval = cfg.Signal.PingInterval
	sc.PongTimeout = cfg.Signal.PongTimeout
	sc.WriteTimeout = cfg.Server.WriteTimeout
	sc.MaxMessageSize = cfg.Signal.MaxMessageSizeBytes
	if cfg.RateLimiting.Enabled {
		sc.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		sc.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	return sc
}

func main() {
	startTime := time.Now()
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		zap.NewExample().Sugar().Fatalw("failed to load config", "error", err)
	}

	zapLogger, err := logger.FromConfig(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		zap.NewExample().Sugar().Fatalw("failed to create logger", "error", err)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(cfg.Tracing)
	if err != nil {
		log.Fatalw("failed to init tracing", "error", err)
	}

	health := monitoring.NewHealthChecker()
	opts := []relay.ServerOption{}

	if cfg.Monitoring.PrometheusEnabled {
		opts = append(opts, relay.WithRelayMetrics(monitoring.NewPrometheusCollector(nil)))
	}

	var redisClose func() error
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := redisrepo.NewClient(ctx, redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, log)
		cancel()
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		redisClose = func() error { return redisrepo.Close(client) }

		rooms := redisrepo.NewRoomRepository(client, cfg.Redis.SignalTTL)
		opts = append(opts, relay.WithRoomMirror(rooms))
		health.AddRedisCheck(rooms, 30*time.Second, 2*time.Second)
	}

	server := relay.NewServer(relayConfig(cfg), log.With("component", "relay"), opts...)
	health.AddRelayCheck(server.Stats, 0, 30*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	var guard gin.HandlerFunc
	if cfg.Auth.Required {
		guard = middleware.RelayAuthMiddleware([]byte(cfg.Auth.JWTSecret))
		log.Info("Relay tokens required")
	}
	server.RegisterRoutes(router, guard)
	router.NoRoute(func(c *gin.Context) {
		_ = c.Error(apperrors.NewNotFoundError(c.Request.URL.Path))
	})

	router.GET("/ready", health.ReadinessHandler)
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uptime": time.Since(startTime).String()})
	})
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	checksCtx, stopChecks := context.WithCancel(context.Background())
	defer stopChecks()
	health.StartBackgroundChecks(checksCtx)

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting signaling relay", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// hijacked websocket connections are not tracked by http.Server
	server.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}
	if redisClose != nil {
		if err := redisClose(); err != nil {
			log.Errorw("Error closing redis", "error", err)
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error flushing traces", "error", err)
	}
	log.Info("Signaling relay stopped")
}
