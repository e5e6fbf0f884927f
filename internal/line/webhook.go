package line

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/souschef-platform/souschef/internal/api"
)

// MsgGenerating acknowledges a retrieval turn before the slow generation
// call so the user is not left staring at a silent channel.
const MsgGenerating = "Generating your recipe, please wait..."

// turnTimeout bounds one background dialogue turn, retries included.
const turnTimeout = 2 * time.Minute

// Dialoguer runs dialogue turns; *engine.Engine satisfies it.
type Dialoguer interface {
	HandleMessage(ctx context.Context, userID, text string) string
	IsRetrievalTurn(ctx context.Context, userID, text string) bool
}

// Messenger delivers replies back to the channel; *Client satisfies it.
type Messenger interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, userID, text string) error
}

// WebhookRequest is the channel's event envelope.
type WebhookRequest struct {
	Destination string `json:"destination"`
	// Verification requests arrive with an empty events array; that is valid.
	Events []Event `json:"events" validate:"dive"`
}

// Event is a single webhook event. Only text message events are handled;
// the rest (follow, unfollow, stickers) are acknowledged and dropped.
type Event struct {
	Type       string  `json:"type" validate:"required"`
	ReplyToken string  `json:"replyToken"`
	Source     Source  `json:"source"`
	Message    Message `json:"message"`
}

type Source struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type Message struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

// WebhookHandler verifies, parses, and dispatches channel webhooks.
type WebhookHandler struct {
	engine        Dialoguer
	client        Messenger
	channelSecret string
	validate      *validator.Validate
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(engine Dialoguer, client Messenger, channelSecret string) *WebhookHandler {
	return &WebhookHandler{
		engine:        engine,
		client:        client,
		channelSecret: channelSecret,
		validate:      validator.New(),
	}
}

// ServeHTTP handles POST /webhook. The channel expects a fast 200; turns
// run in the background and replies go out via the messaging API.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if !ValidSignature(h.channelSecret, body, r.Header.Get("X-Line-Signature")) {
		slog.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	for _, event := range req.Events {
		if event.Type != "message" || event.Message.Type != "text" || event.Source.UserID == "" {
			slog.Debug("ignoring webhook event", "type", event.Type, "message_type", event.Message.Type)
			continue
		}
		h.dispatch(r.Context(), event)
	}

	api.JSONMessage(w, http.StatusOK, "ok")
}

// dispatch acknowledges a retrieval turn on the reply token, then runs the
// turn in the background and pushes the result.
func (h *WebhookHandler) dispatch(ctx context.Context, event Event) {
	userID := event.Source.UserID

	ack := false
	if event.ReplyToken != "" && h.engine.IsRetrievalTurn(ctx, userID, event.Message.Text) {
		if err := h.client.Reply(ctx, event.ReplyToken, MsgGenerating); err != nil {
			slog.Warn("sending acknowledgment", "error", err, "user_id", userID)
		} else {
			ack = true
		}
	}

	go func() {
		turnCtx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()

		reply := h.engine.HandleMessage(turnCtx, userID, event.Message.Text)

		// The reply token is single use: once spent on the acknowledgment,
		// the final reply goes out as a push. A failed reply-token send
		// also falls back to a push.
		var err error
		if !ack && event.ReplyToken != "" {
			if err = h.client.Reply(turnCtx, event.ReplyToken, reply); err == nil {
				return
			}
			slog.Warn("reply token delivery failed, pushing instead", "error", err, "user_id", userID)
		}
		if err = h.client.Push(turnCtx, userID, reply); err != nil {
			slog.Error("delivering reply", "error", err, "user_id", userID)
		}
	}()
}
