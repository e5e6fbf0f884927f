package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// LINE channel credentials
	if c.Line.ChannelSecret == "" {
		errs = append(errs, "LINE_CHANNEL_SECRET is required")
	}
	if c.Line.ChannelToken == "" {
		errs = append(errs, "LINE_CHANNEL_TOKEN is required")
	}

	// Generation backend
	if c.Generation.APIKey == "" {
		errs = append(errs, "GENERATION_API_KEY is required")
	}
	if c.Generation.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("GENERATION_MAX_ATTEMPTS must be at least 1, got %d", c.Generation.MaxAttempts))
	}

	// Index geometry
	if c.Index.Dimension < 1 {
		errs = append(errs, fmt.Sprintf("INDEX_DIMENSION must be positive, got %d", c.Index.Dimension))
	}
	if c.Engine.TopK < 1 {
		errs = append(errs, fmt.Sprintf("ENGINE_TOP_K must be at least 1, got %d", c.Engine.TopK))
	}
	if c.Engine.TranscriptCap < 2 {
		errs = append(errs, fmt.Sprintf("ENGINE_TRANSCRIPT_CAP must hold at least one turn, got %d", c.Engine.TranscriptCap))
	}

	// Ingestion budget
	if c.Ingest.ChunkSize < 1 {
		errs = append(errs, fmt.Sprintf("INGEST_CHUNK_SIZE must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.MaxRecords < 1 {
		errs = append(errs, fmt.Sprintf("INGEST_MAX_RECORDS must be positive, got %d", c.Ingest.MaxRecords))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Embedding key: warn only, local OpenAI-compatible backends accept any key
	if c.Embedding.APIKey == "" {
		slog.Warn("EMBEDDING_API_KEY is empty, assuming a local embeddings backend")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
