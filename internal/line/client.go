package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/souschef-platform/souschef/internal/config"
)

// Client delivers text messages through the LINE Messaging API.
type Client struct {
	baseURL       string
	channelToken  string
	maxReplyChars int
	http          *http.Client
}

// NewClient creates a messaging client from config.
func NewClient(cfg config.LineConfig) *Client {
	return &Client{
		baseURL:       cfg.APIBaseURL,
		channelToken:  cfg.ChannelToken,
		maxReplyChars: cfg.MaxReplyChars,
		http:          &http.Client{Timeout: 30 * time.Second},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// Reply sends text on a webhook event's reply token.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	return c.post(ctx, "/v2/bot/message/reply", replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: c.truncate(text)}},
	})
}

// Push sends text directly to a user, outside a reply window.
func (c *Client) Push(ctx context.Context, userID, text string) error {
	return c.post(ctx, "/v2/bot/message/push", pushRequest{
		To:       userID,
		Messages: []textMessage{{Type: "text", Text: c.truncate(text)}},
	})
}

// truncate caps text at the channel's message limit, counting runes so a
// multibyte character is never split.
func (c *Client) truncate(text string) string {
	if c.maxReplyChars <= 0 || utf8.RuneCountInString(text) <= c.maxReplyChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:c.maxReplyChars])
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("message API returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
