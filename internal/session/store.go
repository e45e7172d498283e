// Package session provides a capacity-bounded, LRU-evicting in-memory store
// for conversation sessions.
//
// Sessions live in memory only. Eviction discards the session and its
// history outright; there is no write-back. The store owns all session
// state: callers receive snapshots and mutate through store methods, so
// concurrent access never races on a shared session value.
package session

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ramble-labs/lectern/internal/core/domain"
	"github.com/ramble-labs/lectern/internal/core/ports/driving"
	"github.com/ramble-labs/lectern/internal/logger"
)

// Ensure Store implements the interface.
var _ driving.SessionManager = (*Store)(nil)

// DefaultMaxSessions is the default session capacity.
const DefaultMaxSessions = 100

// DefaultMaxMessages is the default per-session message cap.
// It is even so the cap always holds whole user/assistant exchanges.
const DefaultMaxMessages = 20

// entry pairs a session with its recency-list element.
type entry struct {
	session *domain.Session
	element *list.Element
}

// Store is an LRU session store with a fixed capacity.
type Store struct {
	mu          sync.Mutex
	maxSessions int
	maxMessages int
	entries     map[string]*entry
	recency     *list.List // front = least recently used, values are session IDs
	clock       func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithMaxSessions sets the session capacity.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		s.maxSessions = n
	}
}

// WithMaxMessages sets the per-session message cap.
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		s.maxMessages = n
	}
}

// withClock overrides the time source. Test hook.
func withClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates a session store, validating the configuration.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		maxSessions: DefaultMaxSessions,
		maxMessages: DefaultMaxMessages,
		entries:     make(map[string]*entry),
		recency:     list.New(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.maxSessions <= 0 {
		return nil, fmt.Errorf("%w: session capacity must be positive, got %d", domain.ErrInvalidConfig, s.maxSessions)
	}
	if s.maxMessages <= 0 {
		return nil, fmt.Errorf("%w: message cap must be positive, got %d", domain.ErrInvalidConfig, s.maxMessages)
	}

	return s, nil
}

// Create makes a new session with a fresh unique identifier.
// If the store is at capacity the least-recently-used session is evicted
// before insertion, so the store never exceeds its capacity even
// transiently.
func (s *Store) Create() *domain.Session {
	now := s.clock().UTC()
	sess := &domain.Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastActivity: now,
		Metadata:     make(map[string]any),
	}

	s.mu.Lock()
	for len(s.entries) >= s.maxSessions {
		s.evictLRU()
	}
	e := &entry{session: sess}
	e.element = s.recency.PushBack(sess.ID)
	s.entries[sess.ID] = e
	s.mu.Unlock()

	logger.Debug("session %s created", sess.ID)
	return snapshot(sess)
}

// Get returns a snapshot of the session, touching its recency.
func (s *Store) Get(sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.recency.MoveToBack(e.element)
	e.session.LastActivity = s.clock().UTC()
	return snapshot(e.session), nil
}

// GetOrCreate returns the session for sessionID if the store owns it,
// otherwise creates a new one. A caller-supplied identifier the store does
// not own is never adopted: that would let one client squat on another's
// future session ID.
func (s *Store) GetOrCreate(sessionID string) *domain.Session {
	if sessionID != "" {
		if sess, err := s.Get(sessionID); err == nil {
			return sess
		}
	}
	return s.Create()
}

// AppendMessage appends a conversation turn and enforces the message cap.
// Trimming removes messages from the front two at a time so a user message
// is never left without its paired assistant reply.
func (s *Store) AppendMessage(sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return domain.ErrNotFound
	}

	now := s.clock().UTC()
	e.session.Messages = append(e.session.Messages, domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	e.session.LastActivity = now
	s.recency.MoveToBack(e.element)

	for len(e.session.Messages) > s.maxMessages {
		drop := 2
		if drop > len(e.session.Messages) {
			drop = len(e.session.Messages)
		}
		e.session.Messages = append([]domain.Message(nil), e.session.Messages[drop:]...)
	}

	return nil
}

// AddDocID records a document reference on the session, once.
func (s *Store) AddDocID(sessionID, docID string) error {
	if docID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, id := range e.session.DocIDs {
		if id == docID {
			return nil
		}
	}
	e.session.DocIDs = append(e.session.DocIDs, docID)
	return nil
}

// Delete removes a session. Unknown identifiers report false.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return false
	}
	s.recency.Remove(e.element)
	delete(s.entries, sessionID)
	logger.Debug("session %s deleted", sessionID)
	return true
}

// List returns summaries of all resident sessions, least recently used
// first. Listing does not touch recency.
func (s *Store) List() []domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]domain.SessionSummary, 0, len(s.entries))
	for el := s.recency.Front(); el != nil; el = el.Next() {
		e := s.entries[el.Value.(string)]
		summaries = append(summaries, domain.SessionSummary{
			ID:           e.session.ID,
			CreatedAt:    e.session.CreatedAt,
			LastActivity: e.session.LastActivity,
			MessageCount: len(e.session.Messages),
			DocIDs:       append([]string(nil), e.session.DocIDs...),
		})
	}
	return summaries
}

// Len returns the number of resident sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// SweepIdle removes sessions whose last activity precedes now-maxAge.
// This is an explicit maintenance operation, independent of LRU order.
func (s *Store) SweepIdle(maxAge time.Duration) int {
	cutoff := s.clock().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.session.LastActivity.Before(cutoff) {
			s.recency.Remove(e.element)
			delete(s.entries, id)
			removed++
		}
	}

	if removed > 0 {
		logger.Info("swept %d idle session(s)", removed)
	}
	return removed
}

// evictLRU removes the least-recently-used session. Caller holds the lock.
func (s *Store) evictLRU() {
	front := s.recency.Front()
	if front == nil {
		return
	}
	id := front.Value.(string)
	s.recency.Remove(front)
	delete(s.entries, id)
	logger.Debug("session %s evicted (LRU)", id)
}

// snapshot deep-copies a session so callers never share mutable state with
// the store.
func snapshot(sess *domain.Session) *domain.Session {
	cp := *sess
	cp.Messages = append([]domain.Message(nil), sess.Messages...)
	cp.DocIDs = append([]string(nil), sess.DocIDs...)
	cp.Metadata = make(map[string]any, len(sess.Metadata))
	for k, v := range sess.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}
