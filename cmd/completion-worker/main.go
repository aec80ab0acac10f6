package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduling/internal/config"
	"github.com/clinicore/clinic-scheduling/internal/db"
	"github.com/clinicore/clinic-scheduling/internal/logger"
	"github.com/clinicore/clinic-scheduling/internal/redisclient"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

// The completion sweep is the only writer of the confirme -> termine
// transition: it is never user-triggerable, only time drives it.
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

	zlog.Info("completion-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("schedule", cfg.SweepSchedule),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zlog.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zlog.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		zlog.Fatal("redis connection error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	svc := scheduling.NewService(
		scheduling.NewPgRepository(pgPool),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		scheduling.DefaultWorkingHours(),
		zlog,
	)

	// Catch up immediately, then follow the schedule.
	runOnce(rootCtx, svc, zlog)

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		runOnce(rootCtx, svc, zlog)
	}); err != nil {
		zlog.Fatal("invalid sweep schedule", zap.String("schedule", cfg.SweepSchedule), zap.Error(err))
	}
	c.Start()

	<-rootCtx.Done()
	zlog.Info("shutdown signal received, stopping completion worker")

	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func runOnce(ctx context.Context, svc *scheduling.Service, zlog *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompletePastConfirmed(runCtx)
	if err != nil {
		zlog.Error("completion sweep error", zap.Error(err))
		return
	}
	zlog.Info("completion sweep done",
		zap.Int("completed", n),
		zap.Duration("took", time.Since(start)),
	)
}
