package driving

import (
	"time"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

// SessionManager manages conversation sessions.
//
// The store is capacity-bounded with LRU eviction and holds sessions in
// memory only; an evicted session and its history are discarded. Returned
// sessions are snapshots: all mutation goes through the manager so
// concurrent callers never share a mutable session value.
type SessionManager interface {
	// Create makes a new session with a fresh unique identifier, evicting
	// the least-recently-used session first if the store is at capacity.
	Create() *domain.Session

	// Get returns a snapshot of a session, touching its recency.
	// Returns domain.ErrNotFound for unknown identifiers.
	Get(sessionID string) (*domain.Session, error)

	// GetOrCreate returns the session for sessionID if the store owns it,
	// otherwise creates a new session. It never creates a session under a
	// caller-supplied identifier it does not already own.
	GetOrCreate(sessionID string) *domain.Session

	// AppendMessage appends a conversation turn, updating last activity
	// and enforcing the message cap by dropping the oldest exchanges.
	AppendMessage(sessionID, role, content string) error

	// AddDocID records a document reference on the session.
	AddDocID(sessionID, docID string) error

	// Delete removes a session. Returns false for unknown identifiers.
	Delete(sessionID string) bool

	// List returns summaries of all resident sessions.
	List() []domain.SessionSummary

	// SweepIdle removes sessions whose last activity precedes now-maxAge
	// and returns how many were removed. Independent of LRU order.
	SweepIdle(maxAge time.Duration) int
}
