package domain

import "time"

// Message roles.
const (
	// RoleUser marks a message authored by the user.
	RoleUser = "user"

	// RoleAssistant marks a message authored by the assistant.
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	// Role is one of RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is when the message was appended.
	Timestamp time.Time `json:"timestamp"`
}

// Session is the server-side state for one ongoing conversation.
// Its message sequence is capped; the oldest exchanges are dropped first so
// the most recent turns always survive.
type Session struct {
	// ID is globally unique.
	ID string `json:"session_id"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActivity is updated on every read or write touch.
	LastActivity time.Time `json:"last_activity"`

	// Messages are the conversation turns, oldest first.
	Messages []Message `json:"messages"`

	// DocIDs are the documents this conversation has referenced. These are
	// weak references: deleting a document does not touch sessions that
	// mention it.
	DocIDs []string `json:"doc_ids"`

	// Metadata carries free-form key-value pairs.
	Metadata map[string]any `json:"metadata"`
}

// SessionSummary is the listing view of a session, without message bodies.
type SessionSummary struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
	DocIDs       []string  `json:"doc_ids"`
}
