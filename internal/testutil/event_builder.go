package testutil

import (
	"github.com/hupe1980/agentrun/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Author("agent").Invocation("inv-1").AssistantText("hello").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	author        string
	invocationID  string
	id            string
	role          string
	textParts     []string
	funcCalls     []core.FunctionCall
	funcResponses []core.FunctionResponse
	partial       *bool
	turnComplete  *bool
	customParts   []core.Part
	actions       core.EventActions
	branch        *string
	longRunning   []string
}

// NewEventBuilder creates a builder with default author "agent".
func NewEventBuilder() *EventBuilder { return &EventBuilder{author: "agent"} }

// Author sets the author name for the event.
func (b *EventBuilder) Author(a string) *EventBuilder { b.author = a; return b }

// Invocation sets the invocation ID associated with the event.
func (b *EventBuilder) Invocation(id string) *EventBuilder { b.invocationID = id; return b }

// ID overrides the auto-generated event ID for tests where determinism matters.
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// Branch sets the branch pointer for forked conversation paths.
func (b *EventBuilder) Branch(br string) *EventBuilder { b.branch = &br; return b }

// Partial marks the event as a streaming fragment.
func (b *EventBuilder) Partial(p bool) *EventBuilder { b.partial = &p; return b }

// TurnComplete sets the TurnComplete flag.
func (b *EventBuilder) TurnComplete(c bool) *EventBuilder { b.turnComplete = &c; return b }

// UserText appends a user role text part and sets role to user.
func (b *EventBuilder) UserText(t string) *EventBuilder {
	b.role = "user"
	b.textParts = append(b.textParts, t)
	return b
}

// AssistantText appends an assistant role text part and sets role to assistant.
func (b *EventBuilder) AssistantText(t string) *EventBuilder {
	b.role = "assistant"
	b.textParts = append(b.textParts, t)
	return b
}

// AddPart appends a custom content part.
func (b *EventBuilder) AddPart(p core.Part) *EventBuilder {
	b.customParts = append(b.customParts, p)
	return b
}

// FunctionCall adds a function call part with the provided id, name and JSON
// argument string.
func (b *EventBuilder) FunctionCall(id, name, args string) *EventBuilder {
	b.funcCalls = append(b.funcCalls, core.FunctionCall{ID: id, Name: name, Arguments: args})
	return b
}

// FunctionResponse adds a function response part representing tool execution
// output. The content role becomes "user" per the function response convention.
func (b *EventBuilder) FunctionResponse(id, name string, response map[string]any) *EventBuilder {
	b.role = "user"
	b.funcResponses = append(b.funcResponses, core.FunctionResponse{ID: id, Name: name, Response: response})
	return b
}

// StateDelta sets a state delta key on the event actions.
func (b *EventBuilder) StateDelta(key string, val any) *EventBuilder {
	if b.actions.StateDelta == nil {
		b.actions.StateDelta = map[string]any{}
	}
	b.actions.StateDelta[key] = val
	return b
}

// SkipSummarization sets the SkipSummarization action flag.
func (b *EventBuilder) SkipSummarization() *EventBuilder {
	t := true
	b.actions.SkipSummarization = &t
	return b
}

// Escalate sets the Escalate action flag.
func (b *EventBuilder) Escalate() *EventBuilder { t := true; b.actions.Escalate = &t; return b }

// Transfer sets the target agent for a transfer action.
func (b *EventBuilder) Transfer(to string) *EventBuilder { b.actions.TransferToAgent = &to; return b }

// LongRunning registers one or more long-running tool IDs on the event.
func (b *EventBuilder) LongRunning(ids ...string) *EventBuilder {
	b.longRunning = append(b.longRunning, ids...)
	return b
}

// Build constructs the core.Event value.
func (b *EventBuilder) Build() core.Event {
	ev := core.NewEvent(b.invocationID, b.author)
	if b.id != "" {
		ev.ID = b.id
	}
	if b.branch != nil {
		ev.Branch = b.branch
	}
	if b.partial != nil {
		ev.Partial = b.partial
	}
	if b.turnComplete != nil {
		ev.TurnComplete = b.turnComplete
	}
	if len(b.longRunning) > 0 {
		ev.LongRunningToolIDs = append([]string{}, b.longRunning...)
	}
	ev.Actions = b.actions

	parts := make([]core.Part, 0, len(b.textParts)+len(b.funcCalls)+len(b.funcResponses)+len(b.customParts))
	for _, t := range b.textParts {
		parts = append(parts, core.TextPart{Text: t})
	}
	for _, fc := range b.funcCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}
	for _, fr := range b.funcResponses {
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: fr})
	}
	parts = append(parts, b.customParts...)
	if len(parts) > 0 {
		role := b.role
		if role == "" {
			role = "assistant"
		}
		ev.Content = &core.Content{Role: role, Parts: parts}
	}
	return ev
}
