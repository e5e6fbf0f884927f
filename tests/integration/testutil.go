//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/souschef-platform/souschef/internal/api"
	"github.com/souschef-platform/souschef/internal/config"
	"github.com/souschef-platform/souschef/internal/engine"
	"github.com/souschef-platform/souschef/internal/generate"
	"github.com/souschef-platform/souschef/internal/index"
	"github.com/souschef-platform/souschef/internal/ingest"
	"github.com/souschef-platform/souschef/internal/line"
	"github.com/souschef-platform/souschef/internal/session"
)

const (
	channelSecret = "test-channel-secret"
	embedDim      = 8
)

// TestEnv wires the full HTTP stack over miniredis, a real index pair
// built on disk, and scripted embedding/generation backends.
type TestEnv struct {
	Server      *httptest.Server
	Engine      *engine.Engine
	RedisClient *redis.Client
	Generator   *ScriptedGenerator
	LineAPI     *LineRecorder
}

// ScriptedGenerator stands in for the chat backend and records the
// message lists it was given.
type ScriptedGenerator struct {
	mu    sync.Mutex
	Reply string
	Calls [][]session.Message
}

func (g *ScriptedGenerator) Generate(_ context.Context, messages []session.Message, _ int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, append([]session.Message(nil), messages...))
	return g.Reply, nil
}

func (g *ScriptedGenerator) LastCall(t *testing.T) []session.Message {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.Calls, "generator was never called")
	return g.Calls[len(g.Calls)-1]
}

// stubEncoder embeds text by hashing characters into a fixed-size vector;
// identical text always lands on the same point.
type stubEncoder struct{}

func (stubEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embedDim)
	for i, r := range text {
		vec[i%embedDim] += float32(r % 17)
	}
	return vec, nil
}

func (e stubEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Encode(ctx, t)
	}
	return out, nil
}

func (stubEncoder) Dimension() int { return embedDim }

// LineRecorder fakes the channel's messaging API and records deliveries.
type LineRecorder struct {
	mu         sync.Mutex
	Server     *httptest.Server
	deliveries []Delivery
}

type Delivery struct {
	Kind   string // "reply" or "push"
	Target string
	Text   string
}

func NewLineRecorder(t *testing.T) *LineRecorder {
	t.Helper()
	rec := &LineRecorder{}
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			ReplyToken string `json:"replyToken"`
			To         string `json:"to"`
			Messages   []struct {
				Text string `json:"text"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		d := Delivery{Text: payload.Messages[0].Text}
		if strings.HasSuffix(r.URL.Path, "/reply") {
			d.Kind, d.Target = "reply", payload.ReplyToken
		} else {
			d.Kind, d.Target = "push", payload.To
		}
		rec.mu.Lock()
		rec.deliveries = append(rec.deliveries, d)
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rec.Server.Close)
	return rec
}

func (r *LineRecorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// SetupTestEnv builds an index pair from sample recipes, loads it, and
// starts the full router. ready=false leaves the engine warming up.
func SetupTestEnv(t *testing.T, ready bool) *TestEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "recipes.index")
	metaPath := filepath.Join(dir, "recipes_metadata.csv")
	buildSampleIndex(t, indexPath, metaPath)

	gen := &ScriptedGenerator{Reply: "Here is a recipe suggestion."}
	caller := generate.NewResilientCaller(gen, config.GenerationConfig{MaxAttempts: 1, MaxTokens: 200})

	engineCfg := config.EngineConfig{
		TopK:          3,
		TranscriptCap: 20,
		ResetPhrases:  []string{"change preference", "modify diet", "update preference"},
	}
	eng := engine.New(session.NewRedisStore(redisClient), stubEncoder{}, caller, engineCfg, 200)

	if ready {
		ix, err := index.Load(indexPath, metaPath)
		require.NoError(t, err)
		eng.SetReady(ix)
	}

	lineAPI := NewLineRecorder(t)
	lineClient := line.NewClient(config.LineConfig{
		ChannelSecret: channelSecret,
		ChannelToken:  "test-token",
		APIBaseURL:    lineAPI.Server.URL,
		MaxReplyChars: 4000,
	})
	webhook := line.NewWebhookHandler(eng, lineClient, channelSecret)

	router := api.NewRouter(eng, api.Health{
		RedisPing: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, api.RouterConfig{}, webhook)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestEnv{
		Server:      srv,
		Engine:      eng,
		RedisClient: redisClient,
		Generator:   gen,
		LineAPI:     lineAPI,
	}
}

func buildSampleIndex(t *testing.T, indexPath, metaPath string) {
	t.Helper()
	dataset := filepath.Join(filepath.Dir(indexPath), "dataset.csv")
	rows := []string{
		"title,ingredients,directions",
		`Vegan Chili,"beans, tomatoes, chili powder","Simmer everything for an hour."`,
		`Tofu Stir Fry,"tofu, soy sauce, broccoli","Fry tofu, add vegetables."`,
		`Beef Stew,"beef, carrots, potatoes","Braise for three hours."`,
		`Lentil Soup,"lentils, onion, cumin","Simmer 30 minutes."`,
	}
	require.NoError(t, os.WriteFile(dataset, []byte(strings.Join(rows, "\n")+"\n"), 0o644))

	builder := ingest.NewBuilder(stubEncoder{}, config.IngestConfig{ChunkSize: 2, MaxRecords: 2000})
	_, err := builder.Run(context.Background(), dataset, indexPath, metaPath)
	require.NoError(t, err)
}

// SendText posts a signed text-message webhook event and returns the
// response status code.
func (env *TestEnv) SendText(t *testing.T, userID, text, replyToken string) int {
	t.Helper()
	body, err := json.Marshal(line.WebhookRequest{
		Destination: "bot",
		Events: []line.Event{{
			Type:       "message",
			ReplyToken: replyToken,
			Source:     line.Source{Type: "user", UserID: userID},
			Message:    line.Message{Type: "text", ID: "m", Text: text},
		}},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/webhook", strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("X-Line-Signature", line.Sign(channelSecret, body))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

// Get issues a GET against the test server and decodes the JSON envelope.
func (env *TestEnv) Get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		out = nil
	}
	return resp.StatusCode, out
}
