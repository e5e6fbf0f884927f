package session

import "context"

// Store is the per-user session document store. Writes have merge semantics:
// updating the preference leaves the transcript untouched and vice versa.
type Store interface {
	// Get returns the session snapshot for userID. A user with no stored
	// fields yields a zero-valued session, not an error.
	Get(ctx context.Context, userID string) (Session, error)

	// SetPreference stores the dietary preference verbatim.
	SetPreference(ctx context.Context, userID, preference string) error

	// ClearPreference removes the stored preference, returning the user to
	// the preference-collection step.
	ClearPreference(ctx context.Context, userID string) error

	// SetTranscript replaces the stored transcript, keeping at most maxLen
	// entries (oldest dropped first).
	SetTranscript(ctx context.Context, userID string, transcript []Message, maxLen int) error
}
