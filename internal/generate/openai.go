package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/souschef-platform/souschef/internal/config"
	"github.com/souschef-platform/souschef/internal/session"
)

// Client is an OpenAI-compatible chat-completions client.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

type chatRequest struct {
	Model     string            `json:"model"`
	Messages  []session.Message `json:"messages"`
	MaxTokens int               `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient creates a chat-completions client for the configured backend.
func NewClient(cfg config.GenerationConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Generate sends the transcript to the backend and returns the generated
// text. Failures are classified: ErrOverloaded for an explicit overload
// signal, ErrBadFormat for an OK response with no text, StatusError for any
// other non-success status.
func (c *Client) Generate(ctx context.Context, messages []session.Message, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}

	var parsed chatResponse
	// Non-JSON bodies on error statuses are expected; classification below
	// falls through to the status code.
	_ = json.Unmarshal(data, &parsed)

	switch {
	case resp.StatusCode == http.StatusOK:
		if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
			return "", ErrBadFormat
		}
		return parsed.Choices[0].Message.Content, nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return "", ErrOverloaded
	case parsed.Error != nil && parsed.Error.Type == "overloaded":
		return "", ErrOverloaded
	default:
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(data, 200)}
	}
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
