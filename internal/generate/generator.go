package generate

import (
	"context"
	"errors"
	"fmt"

	"github.com/souschef-platform/souschef/internal/session"
)

// Generator produces a natural-language reply from an ordered message
// transcript. Implementations talk to an external service and may fail
// transiently; callers wanting resilience wrap one in a ResilientCaller.
type Generator interface {
	Generate(ctx context.Context, messages []session.Message, maxTokens int) (string, error)
}

// ErrOverloaded marks the backend's explicit overload/unavailable signal.
// Retries after this wait longer than after generic failures.
var ErrOverloaded = errors.New("generation backend overloaded")

// ErrBadFormat marks a response the backend claims succeeded but that lacks
// the generated text. Retrying cannot help, so it is surfaced immediately.
var ErrBadFormat = errors.New("unexpected generation response format")

// StatusError is any other non-success status from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation backend returned status %d: %s", e.Code, e.Body)
}
