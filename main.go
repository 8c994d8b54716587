package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/database/db_client"
	"chatrelay/internal/database/schema"
	"chatrelay/internal/http/http_server"
	"chatrelay/internal/redis/redis_client"
	"chatrelay/internal/services/session"
	"chatrelay/internal/syncmetrics"
	"chatrelay/internal/ws"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Session service: registry, rooms, metrics, message log
	sessionSvc := session.NewService(cfg.ServerTag)
	sessionSvc.StartResourceSampler(ctx, time.Duration(cfg.MetricsSampleSeconds)*time.Second)

	// 4. Postgres: declared schema only, never on the hot path.
	// Unreachable storage degrades to a warning; only the listener is fatal.
	if pgDb, err := db_client.Open(ctx, cfg.PostgresHost, cfg.PostgresPort,
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb); err != nil {
		Log.Warn("pg-open", zap.Error(err))
	} else {
		defer pgDb.Close()
		if err := schema.Ensure(ctx, pgDb); err != nil {
			Log.Warn("pg-schema", zap.Error(err))
		}
	}

	// 5. Redis metrics mirror
	if redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort)); err != nil {
		Log.Warn("redis-open", zap.Error(err))
	} else {
		defer redisClient.Close()
		syncmetrics.Run(ctx, redisClient, sessionSvc, time.Duration(cfg.MetricsMirrorSeconds)*time.Second)
	}

	// 6. WebSockets hub + event handlers
	hub := ws.NewHub(sessionSvc)
	wsSrv := ws.NewWsServer(hub, sessionSvc)
	wsSrv.StartMetricsBroadcast(ctx, time.Duration(cfg.MetricsBroadcastSeconds)*time.Second)

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, sessionSvc)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
