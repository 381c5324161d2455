package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/content"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/engine"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/schedule"
	"github.com/ignite/campaign-dispatch/internal/store"
	"github.com/ignite/campaign-dispatch/internal/tracking"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.Info("starting dispatch engine")

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	logger.Info("connected to database")

	st := store.New(db)

	var limiter dispatch.Limiter
	if cfg.Redis.Enabled {
		rl, err := dispatch.NewRedisLimiterFromURL(cfg.Redis.URL, cfg.Engine.SendsPerSecond)
		if err != nil {
			log.Fatalf("redis limiter: %v", err)
		}
		defer rl.Close()
		limiter = rl
		logger.Info("cross-process send pacing enabled")
	}

	dialer := dispatch.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Timeout())
	pipeline := dispatch.NewPipeline(st, dialer, limiter,
		cfg.Engine.SendsPerSecond, cfg.Engine.ReconnectBudget, cfg.Engine.ErrorBudget, cfg.Engine.MonitorPoll())

	selector := schedule.NewSelector(st, cfg.Engine.Tick(), cfg.Engine.PreviewLead())
	resolver := content.NewResolver(cfg.Engine.FetchTimeout())
	codec := tracking.NewCodec(cfg.Tracking.Secret, cfg.Tracking.BaseURL)

	eng := engine.New(st, selector, resolver, codec, pipeline, dialer, cfg.Engine.Tick())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutdown signal received")
		cancel()
	}()

	eng.Run(ctx)
}
