package core

import (
	"sync"
	"time"
)

// Session is a conversational container owned by a SessionService. It tracks
// the effective key/value state plus an ordered, append-only event history.
//
// Contract:
//   - State is the *effective* view: session-local values overlaid with the
//     current app-scoped and user-scoped values at read time. Scoped values
//     are never copied into session-local storage.
//   - The engine mutates a session only through SessionService.AppendEvent.
//   - GetEvents returns a defensive copy to avoid external mutation.
type Session struct {
	ID             string         `json:"id"`
	AppName        string         `json:"app_name"`
	UserID         string         `json:"user_id"`
	State          map[string]any `json:"state"`
	Events         []Event        `json:"events"`
	LastUpdateTime time.Time      `json:"last_update_time"`

	mu sync.RWMutex
}

// NewSession creates an empty session owned by the given app and user.
func NewSession(appName, userID, id string) *Session {
	return &Session{
		ID:             id,
		AppName:        appName,
		UserID:         userID,
		State:          map[string]any{},
		Events:         []Event{},
		LastUpdateTime: time.Now().UTC(),
	}
}

// GetState returns the value and existence flag for a state key from the
// effective state view.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// ApplyStateDelta merges key/value pairs into the effective state view and
// bumps LastUpdateTime. Service implementations use this when folding an
// appended event's state delta into a live snapshot.
func (s *Session) ApplyStateDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.State[k] = v
	}
	s.LastUpdateTime = time.Now().UTC()
}

// AddEvent appends an event to the history updating LastUpdateTime.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.LastUpdateTime = ev.Timestamp
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:             s.ID,
		AppName:        s.AppName,
		UserID:         s.UserID,
		State:          make(map[string]any, len(s.State)),
		Events:         make([]Event, len(s.Events)),
		LastUpdateTime: s.LastUpdateTime,
	}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	return clone
}

// GetSessionConfig restricts what Get loads for a session. Zero values mean
// "no restriction".
type GetSessionConfig struct {
	// NumRecentEvents limits the history to the N most recent events.
	NumRecentEvents int
	// AfterTimestamp drops events at or before the given instant.
	AfterTimestamp time.Time
}

// SessionService persists sessions and their evolving state and event
// history. Implementations must apply the state scoping rule when appending
// events: "app:"-prefixed delta keys update app-wide state, "user:"-prefixed
// keys update per-user state, everything else stays session-local. Get must
// return *ErrSessionNotFound* (via errors.Is) for absent sessions.
type SessionService interface {
	// Create registers a new session. An empty sessionID asks the service to
	// generate one. Providing the id of an existing session is a
	// ConfigurationError.
	Create(appName, userID, sessionID string, state map[string]any) (*Session, error)

	// Get loads a session with its effective state view, optionally
	// restricted by cfg (nil means full history).
	Get(appName, userID, sessionID string, cfg *GetSessionConfig) (*Session, error)

	// List returns the user's sessions without event bodies.
	List(appName, userID string) ([]*Session, error)

	// Delete removes a session. Deleting an absent session is a no-op.
	Delete(appName, userID, sessionID string) error

	// AppendEvent persists the event, folds its state delta into the scoped
	// stores, updates LastUpdateTime, and mirrors the change into the passed
	// session snapshot. It returns the stored event.
	AppendEvent(sess *Session, ev Event) (Event, error)
}
