package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/zachsimson/Lockedin/internal/config"
	"github.com/zachsimson/Lockedin/internal/database"
	"github.com/zachsimson/Lockedin/internal/lock"
	"github.com/zachsimson/Lockedin/internal/logger"
	"github.com/zachsimson/Lockedin/internal/middleware"
	"github.com/zachsimson/Lockedin/internal/notify"
	"github.com/zachsimson/Lockedin/internal/ratelimit"
	"github.com/zachsimson/Lockedin/internal/realtime"
	"github.com/zachsimson/Lockedin/internal/router"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if cfg.Database.Driver == "sqlite" {
		if err := ensureDir(filepath.Dir(cfg.Database.Path)); err != nil {
			log.Fatalf("create data dir: %v", err)
		}
	}
	if cfg.Log.Output == "file" {
		if err := ensureDir(filepath.Dir(cfg.Log.File)); err != nil {
			log.Fatalf("create log dir: %v", err)
		}
	}

	appLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Init(cfg.Database)
	if err != nil {
		appLogger.Fatal("init database failed", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	if err := database.AutoMigrate(db); err != nil {
		appLogger.Fatal("migrate database failed", zap.Error(err))
	}
	if err := database.Seed(db, cfg); err != nil {
		appLogger.Fatal("seed database failed", zap.Error(err))
	}

	auth := middleware.NewAuthenticator(cfg.JWT.Secret, db)
	hub := realtime.NewHub(db, auth.UserFromToken, appLogger.Named("ws"))

	events := notify.NewMulti().Add("log", notify.NewLogSink(appLogger.Named("events")))
	var limiter *ratelimit.Limiter

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("connect redis failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}

		redisSink := notify.NewRedisSink(rdb, cfg.Redis.Channel, appLogger.Named("events"))
		if err := redisSink.Subscribe(ctx, hub.Deliver); err != nil {
			appLogger.Fatal("subscribe events failed", zap.Error(err))
		}
		events.Add("redis", redisSink)
		hub.SetSink(redisSink)

		limiter = ratelimit.New(rdb, "lockedin:ratelimit", cfg.Lock.RequestRate, cfg.Lock.RequestBurst)
	} else {
		appLogger.Info("redis disabled; events stay on this instance and unlock requests are not rate limited")
		events.Add("ws", hub)
		hub.SetSink(hub)
	}

	ctrl := lock.NewController(lock.NewGormStore(db), lock.Options{
		Cooldown:  cfg.Lock.Cooldown,
		ReasonMin: cfg.Lock.ReasonMin,
		ReasonMax: cfg.Lock.ReasonMax,
		Logger:    appLogger.Named("lock"),
	})

	r := router.SetupRouter(router.Deps{
		Config:  cfg,
		DB:      db,
		Logger:  appLogger,
		Lock:    ctrl,
		Sink:    events,
		Limiter: limiter,
		Hub:     hub,
		Auth:    auth,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("server listening", zap.String("addr", cfg.Addr()),
			zap.Duration("unlock_cooldown", ctrl.Cooldown()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", zap.Error(err))
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
