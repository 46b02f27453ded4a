package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/token-ledger/config"
	"github.com/ErlanBelekov/token-ledger/internal/health"
	"github.com/ErlanBelekov/token-ledger/internal/infrastructure"
	"github.com/ErlanBelekov/token-ledger/internal/infrastructure/redis"
	"github.com/ErlanBelekov/token-ledger/internal/janitor"
	ctxlog "github.com/ErlanBelekov/token-ledger/internal/log"
	"github.com/ErlanBelekov/token-ledger/internal/metrics"
	"github.com/ErlanBelekov/token-ledger/internal/ratelimit"
	httptransport "github.com/ErlanBelekov/token-ledger/internal/transport/http"
	"github.com/ErlanBelekov/token-ledger/internal/transport/http/handler"
	"github.com/ErlanBelekov/token-ledger/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())
	slog.SetDefault(logger)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, err := infrastructure.Open(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	deps := map[string]health.Pinger{cfg.DBDriver: store}

	var obf usecase.Obfuscator
	if cfg.TokenIDSecret != "" {
		obf = usecase.NewKeyedObfuscator([]byte(cfg.TokenIDSecret))
	}
	ids, err := usecase.NewTokenIDGenerator(cfg.NodeID, obf)
	if err != nil {
		stop()
		log.Fatalf("token ids: %v", err)
	}

	opts := []usecase.Option{
		usecase.WithReader(store),
		usecase.WithLogger(logger),
		usecase.WithErrorThreshold(cfg.ErrorThreshold),
		usecase.WithMaxAttempts(cfg.MaxTxAttempts),
	}

	// Stats are best effort; the service runs without redis.
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, outcome stats disabled", "error", err)
		} else {
			defer rdb.Close()
			stats := redis.NewStatsRecorder(rdb)
			opts = append(opts, usecase.WithRecorder(stats))
			deps["redis"] = stats
		}
	}

	tokenUsecase := usecase.NewTokenUsecase(store, ids, opts...)
	tokenHandler := handler.NewTokenHandler(tokenUsecase, logger)

	routerCfg := httptransport.RouterConfig{JWTKey: []byte(cfg.JWTSecret)}
	if cfg.RateLimitEnabled() {
		limiter := ratelimit.NewStore(cfg.RateLimitRPS, cfg.RateLimitBurst)
		go limiter.Run(ctx)
		routerCfg.Limiter = limiter
	}

	jan, err := janitor.New(store, logger, cfg.JanitorSchedule, cfg.TxnRetention)
	if err != nil {
		stop()
		log.Fatalf("janitor: %v", err)
	}
	go jan.Start(ctx)

	metrics.Register()
	checker := health.NewChecker(deps, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, tokenHandler, routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "driver", cfg.DBDriver, "auth", cfg.JWTSecret != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
