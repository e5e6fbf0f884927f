package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/souschef-platform/souschef/internal/config"
	"github.com/souschef-platform/souschef/internal/embedding"
	"github.com/souschef-platform/souschef/internal/events"
	"github.com/souschef-platform/souschef/internal/index"
	"github.com/souschef-platform/souschef/internal/metrics"
	"github.com/souschef-platform/souschef/internal/session"
)

// Fixed user-facing replies for the state machine's degraded paths.
const (
	MsgAskNewPreference = "Please enter your new dietary preferences (e.g., 'I am vegetarian' or 'I avoid beef and pork')."
	MsgWarmingUp        = "I'm still warming up the recipe library, please try again in a moment."
	MsgRetrievalDown    = "Sorry, recipe search is currently unavailable. Please try again later."
	MsgNoRecipes        = "Sorry, I couldn't find any relevant recipes for your request."
	MsgCouldNotSave     = "Sorry, I couldn't save your preference right now. Please try again."
)

// Searcher is the retrieval contract the engine needs; *index.Index
// satisfies it.
type Searcher interface {
	Search(query []float32, k int) ([]index.Result, error)
}

// Caller produces displayable generated text; *generate.ResilientCaller
// satisfies it. The boolean reports whether the text was generated rather
// than a fallback.
type Caller interface {
	Call(ctx context.Context, messages []session.Message, maxTokens int) (string, bool)
}

// Engine runs the preference-gating state machine: one invocation per
// inbound user message. Turns for the same user are serialized; turns for
// different users run in parallel.
type Engine struct {
	store     session.Store
	encoder   embedding.Encoder
	caller    Caller
	locker    *session.Locker
	events    *events.Publisher
	maxTokens int

	topK          int
	transcriptCap int
	resetPhrases  map[string]struct{}

	mu       sync.RWMutex
	state    Readiness
	searcher Searcher
	loadErr  error
}

// New constructs an engine in the NotReady state. SetReady or SetFailed is
// expected once the background index load resolves.
func New(store session.Store, encoder embedding.Encoder, caller Caller, cfg config.EngineConfig, maxTokens int) *Engine {
	reset := make(map[string]struct{}, len(cfg.ResetPhrases))
	for _, p := range cfg.ResetPhrases {
		reset[normalize(p)] = struct{}{}
	}
	return &Engine{
		store:         store,
		encoder:       encoder,
		caller:        caller,
		locker:        session.NewLocker(),
		maxTokens:     maxTokens,
		topK:          cfg.TopK,
		transcriptCap: cfg.TranscriptCap,
		resetPhrases:  reset,
	}
}

// SetEvents attaches an event publisher; nil leaves events disabled.
func (e *Engine) SetEvents(pub *events.Publisher) {
	e.events = pub
}

// SetReady installs the loaded index and moves the retrieval path to Ready.
func (e *Engine) SetReady(s Searcher) {
	e.mu.Lock()
	e.searcher = s
	e.state = Ready
	e.loadErr = nil
	e.mu.Unlock()
	metrics.IndexReady.Set(1)
}

// SetFailed records a failed index load. Retrieval turns report
// unavailability; everything else keeps working.
func (e *Engine) SetFailed(err error) {
	e.mu.Lock()
	e.state = Failed
	e.loadErr = err
	e.mu.Unlock()
	metrics.IndexReady.Set(0)
}

// Readiness returns the retrieval path's current state.
func (e *Engine) Readiness() Readiness {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LoadError returns the index load failure, if any.
func (e *Engine) LoadError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadErr
}

// IsRetrievalTurn reports whether handling text for userID would reach the
// retrieval path. Transports use it to acknowledge before a slow
// generation turn; it is advisory, not a lock.
func (e *Engine) IsRetrievalTurn(ctx context.Context, userID, text string) bool {
	if e.Readiness() != Ready {
		return false
	}
	if _, ok := e.resetPhrases[normalize(text)]; ok {
		return false
	}
	sess, err := e.store.Get(ctx, userID)
	if err != nil {
		return false
	}
	return sess.HasPreference()
}

// HandleMessage runs one dialogue turn and returns the reply text. Every
// failure path degrades to a user-visible message; the turn never errors.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) string {
	unlock := e.locker.Lock(userID)
	defer unlock()

	utterance := normalize(text)

	sess, err := e.store.Get(ctx, userID)
	if err != nil {
		// Degrade to an empty snapshot: the user is treated as having no
		// preference on file rather than failing the turn.
		slog.Warn("reading session, continuing with empty snapshot", "error", err, "user_id", userID)
		sess = session.Session{UserID: userID}
	}

	// Reset phrases win over everything else, whatever the current state.
	if _, ok := e.resetPhrases[utterance]; ok {
		if err := e.store.ClearPreference(ctx, userID); err != nil {
			slog.Error("clearing preference", "error", err, "user_id", userID)
			e.finishTurn(ctx, userID, "store_error", 0)
			return MsgCouldNotSave
		}
		e.finishTurn(ctx, userID, "preference_reset", 0)
		return MsgAskNewPreference
	}

	// Preference collection: the first non-reset utterance becomes the
	// stored preference, and no retrieval happens on this turn.
	if !sess.HasPreference() {
		if err := e.store.SetPreference(ctx, userID, utterance); err != nil {
			slog.Error("storing preference", "error", err, "user_id", userID)
			e.finishTurn(ctx, userID, "store_error", 0)
			return MsgCouldNotSave
		}
		e.finishTurn(ctx, userID, "preference_set", 0)
		return fmt.Sprintf("Thanks! I've noted your dietary preferences: %s. Now you can ask for recipe recommendations!", utterance)
	}

	return e.retrievalTurn(ctx, sess, utterance)
}

func (e *Engine) retrievalTurn(ctx context.Context, sess session.Session, utterance string) string {
	e.mu.RLock()
	state, searcher := e.state, e.searcher
	e.mu.RUnlock()

	switch state {
	case NotReady:
		e.finishTurn(ctx, sess.UserID, "warming_up", 0)
		return MsgWarmingUp
	case Failed:
		e.finishTurn(ctx, sess.UserID, "retrieval_down", 0)
		return MsgRetrievalDown
	}

	query, err := e.encoder.Encode(ctx, utterance)
	if err != nil {
		slog.Warn("encoding query", "error", err, "user_id", sess.UserID)
		e.finishTurn(ctx, sess.UserID, "encode_error", 0)
		return MsgNoRecipes
	}

	metrics.RetrievalsTotal.Inc()
	results, err := searcher.Search(query, e.topK)
	if err != nil || len(results) == 0 {
		if err != nil {
			slog.Warn("searching index", "error", err, "user_id", sess.UserID)
		}
		e.finishTurn(ctx, sess.UserID, "no_results", 0)
		return MsgNoRecipes
	}

	// The grounding instruction is rebuilt every turn so it always reflects
	// the current preference and this turn's retrieval, never a stale one
	// baked in on turn one.
	transcript := make([]session.Message, 0, len(sess.Transcript)+3)
	transcript = append(transcript, session.Message{
		Role:    session.RoleSystem,
		Content: buildSystemPrompt(sess.Preference, results),
	})
	for _, msg := range sess.Transcript {
		if msg.Role == session.RoleSystem {
			continue
		}
		transcript = append(transcript, msg)
	}
	transcript = append(transcript, session.Message{Role: session.RoleUser, Content: utterance})

	reply, generated := e.caller.Call(ctx, transcript, e.maxTokens)
	transcript = append(transcript, session.Message{Role: session.RoleAssistant, Content: reply})

	// Single write-back per turn, after generation resolved.
	if err := e.store.SetTranscript(ctx, sess.UserID, transcript, e.transcriptCap); err != nil {
		slog.Warn("persisting transcript", "error", err, "user_id", sess.UserID)
	}

	if generated {
		e.finishTurn(ctx, sess.UserID, "ok", len(results))
	} else {
		e.finishTurn(ctx, sess.UserID, "generation_fallback", len(results))
	}
	return reply
}

// finishTurn records the turn outcome on the metric and, when a publisher
// is attached, as an operational event. Event delivery is best effort.
func (e *Engine) finishTurn(ctx context.Context, userID, outcome string, retrieved int) {
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	err := e.events.PublishTurn(ctx, events.TurnEvent{
		RequestID: uuid.NewString(),
		UserID:    userID,
		Outcome:   outcome,
		Retrieved: retrieved,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("publishing turn event", "error", err, "outcome", outcome)
	}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
