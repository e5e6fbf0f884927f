package events

import "time"

// Stream name.
const StreamEvents = "SOUSCHEF_EVENTS"

// Subject constants.
const (
	SubjectTurn       = "souschef.events.turn"
	SubjectIndexBuild = "souschef.events.index_build"
)

// TurnEvent is published after each handled user turn. Outcome carries the
// same label the turn counter metric uses.
type TurnEvent struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Outcome   string    `json:"outcome"`
	Retrieved int       `json:"retrieved"`
	Timestamp time.Time `json:"timestamp"`
}

// IndexBuildEvent is published when an offline index build completes.
type IndexBuildEvent struct {
	Source    string    `json:"source"`
	Records   int       `json:"records"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}
