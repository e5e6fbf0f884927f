package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souschef-platform/souschef/internal/config"
	"github.com/souschef-platform/souschef/internal/session"
)

// scriptedGenerator returns its scripted errors in order, then succeeds.
type scriptedGenerator struct {
	errs  []error
	calls int
	text  string
}

func (g *scriptedGenerator) Generate(_ context.Context, _ []session.Message, _ int) (string, error) {
	g.calls++
	if g.calls <= len(g.errs) {
		return "", g.errs[g.calls-1]
	}
	return g.text, nil
}

func newCaller(gen Generator, maxAttempts int) (*ResilientCaller, *[]time.Duration) {
	c := NewResilientCaller(gen, config.GenerationConfig{
		MaxAttempts:     maxAttempts,
		OverloadBackoff: 10 * time.Second,
		RetryBackoff:    5 * time.Second,
	})
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestCall_SuccessFirstAttempt(t *testing.T) {
	gen := &scriptedGenerator{text: "Try a tomato tart."}
	caller, slept := newCaller(gen, 5)

	text, ok := caller.Call(context.Background(), nil, 200)
	assert.True(t, ok)
	assert.Equal(t, "Try a tomato tart.", text)
	assert.Equal(t, 1, gen.calls)
	assert.Empty(t, *slept)
}

func TestCall_AlwaysOverloadedStopsAfterMaxAttempts(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{
		ErrOverloaded, ErrOverloaded, ErrOverloaded, ErrOverloaded, ErrOverloaded,
		ErrOverloaded, ErrOverloaded, // would succeed on call 8, never reached
	}}
	caller, slept := newCaller(gen, 5)

	text, ok := caller.Call(context.Background(), nil, 200)
	assert.False(t, ok)
	assert.Equal(t, MsgUnavailable, text)
	assert.Equal(t, 5, gen.calls, "exactly maxAttempts attempts")
	require.Len(t, *slept, 4, "no sleep after the final attempt")
	for _, d := range *slept {
		assert.Equal(t, 10*time.Second, d, "overload waits the longer interval")
	}
}

func TestCall_GenericErrorUsesShorterBackoff(t *testing.T) {
	gen := &scriptedGenerator{
		errs: []error{&StatusError{Code: 500}, ErrOverloaded},
		text: "ok",
	}
	caller, slept := newCaller(gen, 5)

	text, ok := caller.Call(context.Background(), nil, 200)
	assert.True(t, ok)
	assert.Equal(t, "ok", text)
	require.Len(t, *slept, 2)
	assert.Equal(t, 5*time.Second, (*slept)[0])
	assert.Equal(t, 10*time.Second, (*slept)[1])
}

func TestCall_FormatErrorNotRetried(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{ErrBadFormat}, text: "never"}
	caller, slept := newCaller(gen, 5)

	text, ok := caller.Call(context.Background(), nil, 200)
	assert.False(t, ok)
	assert.Equal(t, MsgBadFormat, text)
	assert.Equal(t, 1, gen.calls)
	assert.Empty(t, *slept)
}

func TestCall_ContextCancelledDuringBackoff(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{ErrOverloaded, ErrOverloaded}, text: "late"}
	caller, _ := newCaller(gen, 5)
	caller.sleep = func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	}

	text, ok := caller.Call(context.Background(), nil, 200)
	assert.False(t, ok)
	assert.Equal(t, MsgUnavailable, text)
	assert.Equal(t, 1, gen.calls)
}

func TestCall_NeverReturnsRawError(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{
		errors.New("connection refused"),
		errors.New("connection refused"),
	}}
	caller, _ := newCaller(gen, 2)

	text, _ := caller.Call(context.Background(), nil, 200)
	assert.NotContains(t, text, "connection refused")
	assert.Equal(t, MsgUnavailable, text)
}
