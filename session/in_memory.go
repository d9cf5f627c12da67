// Package session provides core.SessionService implementations. State is
// stored once per scope: app and user scoped values live outside any single
// session and are overlaid into the effective view a session exposes.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// InMemoryService is a volatile SessionService storing sessions in process
// local maps. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Each returned session is a snapshot; internal
// state is never shared with callers.
type InMemoryService struct {
	mu sync.RWMutex
	// app -> user -> session id. Stored sessions carry session-local state
	// only; scoped state lives in the maps below.
	sessions  map[string]map[string]map[string]*core.Session
	appState  map[string]map[string]any
	userState map[string]map[string]map[string]any
}

// NewInMemoryService constructs an empty in-memory session service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		sessions:  make(map[string]map[string]map[string]*core.Session),
		appState:  make(map[string]map[string]any),
		userState: make(map[string]map[string]map[string]any),
	}
}

// Create registers a new session, splitting any initial state into its
// scopes. An empty sessionID asks the service to generate one.
func (s *InMemoryService) Create(appName, userID, sessionID string, state map[string]any) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		sessionID = core.NewID()
	}

	users, ok := s.sessions[appName]
	if !ok {
		users = make(map[string]map[string]*core.Session)
		s.sessions[appName] = users
	}
	byID, ok := users[userID]
	if !ok {
		byID = make(map[string]*core.Session)
		users[userID] = byID
	}
	if _, exists := byID[sessionID]; exists {
		return nil, core.NewConfigurationError("session %q already exists for user %q", sessionID, userID)
	}

	sess := core.NewSession(appName, userID, sessionID)
	if len(state) > 0 {
		app, user, local := core.SplitStateDelta(state)
		s.mergeAppStateLocked(appName, app)
		s.mergeUserStateLocked(appName, userID, user)
		sess.ApplyStateDelta(local)
	}
	byID[sessionID] = sess

	return s.snapshotLocked(sess, nil), nil
}

// Get loads a session with its effective state view. Absent sessions yield
// core.ErrSessionNotFound.
func (s *InMemoryService) Get(appName, userID, sessionID string, cfg *core.GetSessionConfig) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.lookupLocked(appName, userID, sessionID)
	if err != nil {
		return nil, err
	}

	return s.snapshotLocked(sess, cfg), nil
}

// List returns the user's sessions without event bodies.
func (s *InMemoryService) List(appName, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Session
	for _, sess := range s.sessions[appName][userID] {
		snap := s.snapshotLocked(sess, nil)
		snap.Events = nil
		out = append(out, snap)
	}
	return out, nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (s *InMemoryService) Delete(appName, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions[appName][userID], sessionID)
	return nil
}

// AppendEvent persists the event, folds its state delta into the scoped
// stores and mirrors the change into the caller's snapshot.
func (s *InMemoryService) AppendEvent(sess *core.Session, ev core.Event) (core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.lookupLocked(sess.AppName, sess.UserID, sess.ID)
	if err != nil {
		return core.Event{}, err
	}

	now := time.Now()

	if len(ev.Actions.StateDelta) > 0 {
		app, user, local := core.SplitStateDelta(ev.Actions.StateDelta)
		s.mergeAppStateLocked(sess.AppName, app)
		s.mergeUserStateLocked(sess.AppName, sess.UserID, user)
		stored.ApplyStateDelta(local)
	}
	stored.AddEvent(ev)
	stored.LastUpdateTime = now

	// Keep the caller's snapshot coherent with what was just persisted.
	sess.AddEvent(ev)
	sess.ApplyStateDelta(ev.Actions.StateDelta)
	sess.LastUpdateTime = now

	return ev, nil
}

func (s *InMemoryService) lookupLocked(appName, userID, sessionID string) (*core.Session, error) {
	sess, ok := s.sessions[appName][userID][sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s/%s/%s: %w", appName, userID, sessionID, core.ErrSessionNotFound)
	}
	return sess, nil
}

// snapshotLocked clones the stored session and overlays app and user scoped
// state into the effective view.
func (s *InMemoryService) snapshotLocked(sess *core.Session, cfg *core.GetSessionConfig) *core.Session {
	snap := sess.Clone()

	for k, v := range s.appState[sess.AppName] {
		snap.State[k] = v
	}
	for k, v := range s.userState[sess.AppName][sess.UserID] {
		snap.State[k] = v
	}

	if cfg != nil {
		snap.Events = filterEvents(snap.Events, cfg)
	}

	return snap
}

func (s *InMemoryService) mergeAppStateLocked(appName string, delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	state, ok := s.appState[appName]
	if !ok {
		state = make(map[string]any)
		s.appState[appName] = state
	}
	for k, v := range delta {
		state[k] = v
	}
}

func (s *InMemoryService) mergeUserStateLocked(appName, userID string, delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	users, ok := s.userState[appName]
	if !ok {
		users = make(map[string]map[string]any)
		s.userState[appName] = users
	}
	state, ok := users[userID]
	if !ok {
		state = make(map[string]any)
		users[userID] = state
	}
	for k, v := range delta {
		state[k] = v
	}
}

func filterEvents(events []core.Event, cfg *core.GetSessionConfig) []core.Event {
	if !cfg.AfterTimestamp.IsZero() {
		kept := events[:0:0]
		for _, ev := range events {
			if ev.Timestamp.After(cfg.AfterTimestamp) {
				kept = append(kept, ev)
			}
		}
		events = kept
	}
	if cfg.NumRecentEvents > 0 && len(events) > cfg.NumRecentEvents {
		events = events[len(events)-cfg.NumRecentEvents:]
	}
	return events
}
