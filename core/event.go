package core

import (
	"time"

	"github.com/google/uuid"
)

// UserAuthor is the literal author name used for events carrying end-user input.
const UserAuthor = "user"

// Event is the primary unit of communication between agents, the runner and
// external clients. After emission it must be treated as immutable; the
// session keeps events as an ordered, append-only log. It captures:
//   - Correlation (InvocationID, ID, Author, Branch)
//   - Conversational content (optional role-based Parts)
//   - Declared side effects (Actions)
//   - Long-running tool hints (LongRunningToolIDs)
//   - High precision UTC timestamp
//
// Content may be nil for control or error-only events.
type Event struct {
	ID                 string       `json:"id"`
	InvocationID       string       `json:"invocation_id"`
	Author             string       `json:"author"`
	Branch             *string      `json:"branch,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
	Content            *Content     `json:"content,omitempty"`
	Actions            EventActions `json:"actions"`
	LongRunningToolIDs []string     `json:"long_running_tool_ids,omitempty"`
	Partial            *bool        `json:"partial,omitempty"`
	TurnComplete       *bool        `json:"turn_complete,omitempty"`
	ErrorCode          *string      `json:"error_code,omitempty"`
	ErrorMessage       *string      `json:"error_message,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to an invocation.
// Prefer helper constructors for common semantic categories.
func NewEvent(invocationID, author string) Event {
	return Event{
		ID:           NewID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
		Actions:      EventActions{},
	}
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(invocationID, message string) Event {
	e := NewEvent(invocationID, UserAuthor)
	c := NewTextContent("user", message)
	e.Content = &c
	return e
}

// NewUserContentEvent creates a user-authored event with arbitrary Content.
func NewUserContentEvent(invocationID string, content *Content) Event {
	e := NewEvent(invocationID, UserAuthor)
	e.Content = content
	return e
}

// NewMessageEvent creates an agent-authored assistant message event with a
// single text part.
func NewMessageEvent(invocationID, author, message string) Event {
	e := NewEvent(invocationID, author)
	c := NewTextContent("assistant", message)
	e.Content = &c
	return e
}

// NewFunctionResponseEvent records the completion result of a tool/function
// invocation. By convention the content role is "user": the model sees tool
// results as incoming conversation input on its next turn.
func NewFunctionResponseEvent(invocationID, author, callID, functionName string, response map[string]any) Event {
	e := NewEvent(invocationID, author)
	e.Content = &Content{
		Role: "user",
		Parts: []Part{FunctionResponsePart{
			FunctionResponse: FunctionResponse{ID: callID, Name: functionName, Response: response},
		}},
	}
	return e
}

// NewID generates a new UUID-based identifier used for events and invocations.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment that will be
// followed by additional events composing the final turn.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns any FunctionResponse parts contained within the
// event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse implements the heuristic used by flows to decide when an
// assistant turn is complete: no pending tool calls or responses, not partial,
// or explicitly forced final via SkipSummarization / long-running markers.
func (e Event) IsFinalResponse() bool {
	if (e.Actions.SkipSummarization != nil && *e.Actions.SkipSummarization) || len(e.LongRunningToolIDs) > 0 {
		return true
	}
	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.IsPartial()
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
