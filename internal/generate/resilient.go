package generate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/souschef-platform/souschef/internal/config"
	"github.com/souschef-platform/souschef/internal/metrics"
	"github.com/souschef-platform/souschef/internal/session"
)

// User-safe fallback replies. Raw transport errors never reach the caller.
const (
	MsgUnavailable = "Sorry, the AI is currently unavailable. Please try again later."
	MsgBadFormat   = "Sorry, I couldn't generate a recipe at the moment. Please try again later!"
)

// ResilientCaller wraps a Generator with fixed-interval retries. Overload
// signals wait the longer interval, any other failure the shorter one;
// exhausted attempts and non-retryable format errors degrade to a fixed
// user-safe message.
type ResilientCaller struct {
	gen             Generator
	maxAttempts     int
	overloadBackoff time.Duration
	retryBackoff    time.Duration

	// sleep is ctx-aware and replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResilientCaller wraps gen with the configured retry policy.
func NewResilientCaller(gen Generator, cfg config.GenerationConfig) *ResilientCaller {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ResilientCaller{
		gen:             gen,
		maxAttempts:     maxAttempts,
		overloadBackoff: cfg.OverloadBackoff,
		retryBackoff:    cfg.RetryBackoff,
		sleep:           sleepCtx,
	}
}

// Call invokes the generator with retries and always returns displayable
// text. The boolean reports whether the text was actually generated rather
// than a fallback.
func (c *ResilientCaller) Call(ctx context.Context, messages []session.Message, maxTokens int) (string, bool) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		metrics.GenerationAttemptsTotal.Inc()

		text, err := c.gen.Generate(ctx, messages, maxTokens)
		if err == nil {
			return text, true
		}

		if errors.Is(err, ErrBadFormat) {
			slog.Warn("generation returned malformed response, not retrying")
			metrics.GenerationFailuresTotal.WithLabelValues("format").Inc()
			return MsgBadFormat, false
		}

		backoff := c.retryBackoff
		reason := "error"
		if errors.Is(err, ErrOverloaded) {
			backoff = c.overloadBackoff
			reason = "overloaded"
		}
		slog.Warn("generation attempt failed",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"reason", reason,
			"error", err,
		)

		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, backoff); err != nil {
			slog.Warn("generation retry abandoned", "error", err)
			break
		}
	}

	metrics.GenerationFailuresTotal.WithLabelValues("exhausted").Inc()
	return MsgUnavailable, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
