package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Index      IndexConfig
	Ingest     IngestConfig
	Embedding  EmbeddingConfig
	Generation GenerationConfig
	Engine     EngineConfig
	Line       LineConfig
	NATS       NATSConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string

	// Webhook rate limiting; zero max disables it.
	RateLimitMax       int
	RateLimitWindowSec int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IndexConfig locates the persisted index pair: the bbolt vector artifact and
// its row-aligned metadata CSV. The pair is only usable together.
type IndexConfig struct {
	Path         string
	MetadataPath string
	Dimension    int
}

type IngestConfig struct {
	Source     string
	ChunkSize  int
	MaxRecords int
}

type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type GenerationConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	MaxTokens       int
	MaxAttempts     int
	OverloadBackoff time.Duration
	RetryBackoff    time.Duration
	Timeout         time.Duration
}

type EngineConfig struct {
	TopK          int
	TranscriptCap int
	ResetPhrases  []string
}

type LineConfig struct {
	ChannelSecret string
	ChannelToken  string
	APIBaseURL    string
	MaxReplyChars int
}

type NATSConfig struct {
	URL string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: splitList(k.String("server.cors.allowed.origins")),
			RateLimitMax:       k.Int("server.ratelimit.max"),
			RateLimitWindowSec: k.Int("server.ratelimit.window.sec"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		Index: IndexConfig{
			Path:         k.String("index.path"),
			MetadataPath: k.String("index.metadata.path"),
			Dimension:    k.Int("index.dimension"),
		},
		Ingest: IngestConfig{
			Source:     k.String("ingest.source"),
			ChunkSize:  k.Int("ingest.chunk.size"),
			MaxRecords: k.Int("ingest.max.records"),
		},
		Embedding: EmbeddingConfig{
			BaseURL: k.String("embedding.base.url"),
			APIKey:  k.String("embedding.api.key"),
			Model:   k.String("embedding.model"),
		},
		Generation: GenerationConfig{
			BaseURL:     k.String("generation.base.url"),
			APIKey:      k.String("generation.api.key"),
			Model:       k.String("generation.model"),
			MaxTokens:   k.Int("generation.max.tokens"),
			MaxAttempts: k.Int("generation.max.attempts"),
		},
		Engine: EngineConfig{
			TopK:          k.Int("engine.top.k"),
			TranscriptCap: k.Int("engine.transcript.cap"),
			ResetPhrases:  splitList(k.String("engine.reset.phrases")),
		},
		Line: LineConfig{
			ChannelSecret: k.String("line.channel.secret"),
			ChannelToken:  k.String("line.channel.token"),
			APIBaseURL:    k.String("line.api.base.url"),
			MaxReplyChars: k.Int("line.max.reply.chars"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitMax > 0 && cfg.Server.RateLimitWindowSec == 0 {
		cfg.Server.RateLimitWindowSec = 60
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "data/recipes.index"
	}
	if cfg.Index.MetadataPath == "" {
		cfg.Index.MetadataPath = "data/recipes_metadata.csv"
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = 384
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 500
	}
	if cfg.Ingest.MaxRecords == 0 {
		cfg.Ingest.MaxRecords = 2000
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-3.5-turbo"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 200
	}
	if cfg.Generation.MaxAttempts == 0 {
		cfg.Generation.MaxAttempts = 5
	}
	if cfg.Engine.TopK == 0 {
		cfg.Engine.TopK = 3
	}
	if cfg.Engine.TranscriptCap == 0 {
		cfg.Engine.TranscriptCap = 20
	}
	if len(cfg.Engine.ResetPhrases) == 0 {
		cfg.Engine.ResetPhrases = []string{"change preference", "modify diet", "update preference"}
	}
	if cfg.Line.APIBaseURL == "" {
		cfg.Line.APIBaseURL = "https://api.line.me"
	}
	if cfg.Line.MaxReplyChars == 0 {
		cfg.Line.MaxReplyChars = 4000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.Embedding.Timeout, err = parseDuration(k, "embedding.timeout", "60s")
	if err != nil {
		return nil, err
	}
	cfg.Generation.Timeout, err = parseDuration(k, "generation.timeout", "60s")
	if err != nil {
		return nil, err
	}
	cfg.Generation.OverloadBackoff, err = parseDuration(k, "generation.overload.backoff", "10s")
	if err != nil {
		return nil, err
	}
	cfg.Generation.RetryBackoff, err = parseDuration(k, "generation.retry.backoff", "5s")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitList parses a comma-separated env value; phrases may contain spaces.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
