package testutil

import (
	"github.com/hupe1980/agentrun/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").State("k", "v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	appName string
	userID  string
	id      string
	state   map[string]any
	events  []core.Event
}

// NewSessionBuilder creates a new builder for a session with the given id,
// scoped under app "test-app" and user "test-user".
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{appName: "test-app", userID: "test-user", id: id, state: map[string]any{}}
}

// App overrides the owning app name.
func (b *SessionBuilder) App(name string) *SessionBuilder { b.appName = name; return b }

// User overrides the owning user id.
func (b *SessionBuilder) User(id string) *SessionBuilder { b.userID = id; return b }

// State sets or overwrites a state key/value pair on the resulting session.
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Event appends a single event to the session history.
func (b *SessionBuilder) Event(ev core.Event) *SessionBuilder {
	b.events = append(b.events, ev)
	return b
}

// Events appends multiple events to the session history.
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with pre-populated state and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.appName, b.userID, b.id)

	for k, v := range b.state {
		s.State[k] = v
	}

	s.Events = append(s.Events, b.events...)

	return s
}
