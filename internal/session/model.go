package session

// Message roles, matching the chat-completions wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a snapshot of one user's dialogue state. Preference is the
// user's dietary preference stored verbatim; empty means not yet collected.
// Sessions are created implicitly on first contact and never destroyed.
type Session struct {
	UserID     string
	Preference string
	Transcript []Message
}

// HasPreference reports whether the preference-collection step is complete.
func (s Session) HasPreference() bool {
	return s.Preference != ""
}
