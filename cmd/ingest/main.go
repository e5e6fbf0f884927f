package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/souschef-platform/souschef/internal/config"
	"github.com/souschef-platform/souschef/internal/embedding"
	"github.com/souschef-platform/souschef/internal/events"
	"github.com/souschef-platform/souschef/internal/index"
	"github.com/souschef-platform/souschef/internal/ingest"
)

func main() {
	force := flag.Bool("force", false, "rebuild even if a valid index pair already exists")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if cfg.Ingest.Source == "" {
		slog.Error("INGEST_SOURCE is required (dataset URL or local CSV path)")
		os.Exit(1)
	}

	// A valid published pair is kept unless the rebuild is forced.
	if !*force {
		if ix, err := index.Load(cfg.Index.Path, cfg.Index.MetadataPath); err == nil {
			slog.Info("valid index pair already exists, nothing to do",
				"records", ix.Len(), "path", cfg.Index.Path)
			return
		} else if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("existing index pair unusable, rebuilding", "error", err)
		}
	}

	ctx := context.Background()
	encoder := embedding.NewClient(cfg.Embedding, cfg.Index.Dimension)
	builder := ingest.NewBuilder(encoder, cfg.Ingest).WithProgress()

	start := time.Now()
	result, err := builder.Run(ctx, cfg.Ingest.Source, cfg.Index.Path, cfg.Index.MetadataPath)
	if err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}

	if cfg.NATS.URL != "" {
		publishBuildEvent(ctx, cfg, result)
	}

	slog.Info("ingest finished",
		"records", result.Records,
		"skipped", result.Skipped,
		"elapsed", time.Since(start).Round(time.Second),
	)
}

func publishBuildEvent(ctx context.Context, cfg *config.Config, result *ingest.Result) {
	client, err := events.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Warn("connecting to NATS, skipping build event", "error", err)
		return
	}
	defer client.Close()

	err = events.NewPublisher(client.JetStream()).PublishIndexBuild(ctx, events.IndexBuildEvent{
		Source:    cfg.Ingest.Source,
		Records:   result.Records,
		Skipped:   result.Skipped,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("publishing build event", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	if cfg.Level == "debug" {
		opts.Level = slog.LevelDebug
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
