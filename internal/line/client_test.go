package line

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souschef-platform/souschef/internal/config"
)

func lineConfig(baseURL string, maxChars int) config.LineConfig {
	return config.LineConfig{
		ChannelSecret: testSecret,
		ChannelToken:  "channel-token",
		APIBaseURL:    baseURL,
		MaxReplyChars: maxChars,
	}
}

func TestClient_Reply(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody replyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(lineConfig(srv.URL, 4000))
	require.NoError(t, c.Reply(context.Background(), "tok-9", "hello"))

	assert.Equal(t, "/v2/bot/message/reply", gotPath)
	assert.Equal(t, "Bearer channel-token", gotAuth)
	assert.Equal(t, "tok-9", gotBody.ReplyToken)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, textMessage{Type: "text", Text: "hello"}, gotBody.Messages[0])
}

func TestClient_Push(t *testing.T) {
	var gotPath string
	var gotBody pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(lineConfig(srv.URL, 4000))
	require.NoError(t, c.Push(context.Background(), "U7", "hi"))

	assert.Equal(t, "/v2/bot/message/push", gotPath)
	assert.Equal(t, "U7", gotBody.To)
}

func TestClient_TruncatesLongReplies(t *testing.T) {
	var gotBody pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	c := NewClient(lineConfig(srv.URL, 10))
	require.NoError(t, c.Push(context.Background(), "U1", strings.Repeat("a", 25)))
	assert.Equal(t, strings.Repeat("a", 10), gotBody.Messages[0].Text)

	// Rune-based cap: multibyte text is cut between characters.
	require.NoError(t, c.Push(context.Background(), "U1", strings.Repeat("é", 25)))
	assert.Equal(t, strings.Repeat("é", 10), gotBody.Messages[0].Text)
}

func TestClient_SurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer srv.Close()

	c := NewClient(lineConfig(srv.URL, 4000))
	err := c.Push(context.Background(), "U1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	assert.True(t, ValidSignature("secret", body, Sign("secret", body)))
	assert.False(t, ValidSignature("secret", body, Sign("other", body)))
	assert.False(t, ValidSignature("secret", body, "not-base64!!!"))
	assert.False(t, ValidSignature("secret", []byte("tampered"), Sign("secret", body)))
}
