package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduling/internal/account"
	"github.com/clinicore/clinic-scheduling/internal/api"
	"github.com/clinicore/clinic-scheduling/internal/auth"
	"github.com/clinicore/clinic-scheduling/internal/booking"
	"github.com/clinicore/clinic-scheduling/internal/config"
	"github.com/clinicore/clinic-scheduling/internal/db"
	"github.com/clinicore/clinic-scheduling/internal/logger"
	"github.com/clinicore/clinic-scheduling/internal/redisclient"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zlog, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	zlog.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
	)

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		zlog.Fatal("invalid clinic timezone", zap.String("tz", cfg.Timezone), zap.Error(err))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zlog.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zlog.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		zlog.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zlog.Warn("error closing redis", zap.Error(err))
		}
	}()
	zlog.Info("connected to Redis")

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	ledger := redisclient.NewRedisIntentLedger(rdb, cfg.IntentTTL)

	schedSvc := scheduling.NewService(
		scheduling.NewPgRepository(pgPool),
		locker,
		scheduling.DefaultWorkingHours(),
		zlog,
	)
	accountSvc := account.NewService(account.NewPgRepository(pgPool), zlog)
	orchestrator := booking.NewOrchestrator(schedSvc, accountSvc, ledger, zlog)
	sessions := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)

	router := api.NewRouter(api.RouterConfig{
		Scheduling:  schedSvc,
		Bookings:    orchestrator,
		Accounts:    accountSvc,
		Sessions:    sessions,
		Location:    location,
		Logger:      zlog,
		PgPool:      pgPool,
		Redis:       rdb,
		Env:         cfg.Env,
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()
	zlog.Info("api-server listening", zap.String("addr", server.Addr))

	<-rootCtx.Done()
	zlog.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
