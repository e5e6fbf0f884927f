package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/souschef-platform/souschef/internal/api"
	"github.com/souschef-platform/souschef/internal/config"
	"github.com/souschef-platform/souschef/internal/embedding"
	"github.com/souschef-platform/souschef/internal/engine"
	"github.com/souschef-platform/souschef/internal/events"
	"github.com/souschef-platform/souschef/internal/generate"
	"github.com/souschef-platform/souschef/internal/index"
	"github.com/souschef-platform/souschef/internal/line"
	"github.com/souschef-platform/souschef/internal/metrics"
	"github.com/souschef-platform/souschef/internal/middleware"
	iredis "github.com/souschef-platform/souschef/internal/redis"
	"github.com/souschef-platform/souschef/internal/server"
	"github.com/souschef-platform/souschef/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx := context.Background()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var publisher *events.Publisher
	var natsHealthy func() bool
	if cfg.NATS.URL != "" {
		natsClient, err := events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = events.NewPublisher(natsClient.JetStream())
		natsHealthy = natsClient.Healthy
	}

	// Dialogue engine
	store := session.NewRedisStore(redisClient)
	encoder := embedding.NewClient(cfg.Embedding, cfg.Index.Dimension)
	caller := generate.NewResilientCaller(generate.NewClient(cfg.Generation), cfg.Generation)
	eng := engine.New(store, encoder, caller, cfg.Engine, cfg.Generation.MaxTokens)
	eng.SetEvents(publisher)

	// The index loads in the background so the server comes up immediately;
	// retrieval turns answer with a warming-up message until it resolves.
	go loadIndex(eng, cfg.Index)

	// Channel
	lineClient := line.NewClient(cfg.Line)
	webhook := line.NewWebhookHandler(eng, lineClient, cfg.Line.ChannelSecret)

	// Router
	routerCfg := api.RouterConfig{CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins}
	if cfg.Server.RateLimitMax > 0 {
		limiter := middleware.NewRateLimiter(redisClient, cfg.Server.RateLimitMax, cfg.Server.RateLimitWindowSec)
		routerCfg.WebhookRateLimiter = limiter.Middleware
	}
	router := api.NewRouter(eng, api.Health{
		RedisPing:   func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		NATSHealthy: natsHealthy,
	}, routerCfg, webhook)

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func loadIndex(eng *engine.Engine, cfg config.IndexConfig) {
	start := time.Now()
	ix, err := index.Load(cfg.Path, cfg.MetadataPath)
	if err != nil {
		slog.Error("loading index", "error", err, "path", cfg.Path)
		eng.SetFailed(err)
		return
	}
	eng.SetReady(ix)
	metrics.IndexSize.Set(float64(ix.Len()))
	slog.Info("index loaded",
		"records", ix.Len(),
		"dimension", ix.Dimension(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
