package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Index:  IndexConfig{Path: "data/recipes.index", MetadataPath: "data/recipes_metadata.csv", Dimension: 384},
		Ingest: IngestConfig{Source: "dataset.csv", ChunkSize: 500, MaxRecords: 2000},
		Generation: GenerationConfig{
			APIKey:          "sk-test",
			Model:           "gpt-3.5-turbo",
			MaxTokens:       200,
			MaxAttempts:     5,
			OverloadBackoff: 10 * time.Second,
			RetryBackoff:    5 * time.Second,
		},
		Engine: EngineConfig{TopK: 3, TranscriptCap: 20, ResetPhrases: []string{"change preference"}},
		Line:   LineConfig{ChannelSecret: "secret", ChannelToken: "token", MaxReplyChars: 4000},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingLineCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Line.ChannelSecret = ""
	cfg.Line.ChannelToken = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !strings.Contains(err.Error(), "LINE_CHANNEL_SECRET") {
		t.Errorf("expected LINE_CHANNEL_SECRET error in: %v", err)
	}
	if !strings.Contains(err.Error(), "LINE_CHANNEL_TOKEN") {
		t.Errorf("expected LINE_CHANNEL_TOKEN error in: %v", err)
	}
}

func TestValidate_MissingGenerationKey(t *testing.T) {
	cfg := validConfig()
	cfg.Generation.APIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "GENERATION_API_KEY") {
		t.Fatalf("expected GENERATION_API_KEY error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Redis.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "REDIS_PORT") {
		t.Errorf("expected REDIS_PORT error in: %v", err)
	}
}

func TestValidate_InvalidEngineSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.TopK = 0
	cfg.Engine.TranscriptCap = 1
	cfg.Index.Dimension = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected engine validation errors")
	}
	for _, substr := range []string{"ENGINE_TOP_K", "ENGINE_TRANSCRIPT_CAP", "INDEX_DIMENSION"} {
		if !strings.Contains(err.Error(), substr) {
			t.Errorf("expected %q in error: %v", substr, err)
		}
	}
}
