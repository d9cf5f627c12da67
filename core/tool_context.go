package core

import (
	"context"

	"github.com/hupe1980/agentrun/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked during function-call dispatch. It is derived from
// the invocation context plus the function call id, and accumulates
// EventActions (state deltas, artifact diffs, auth / confirmation requests,
// transfer and escalation signals) without directly mutating the session. The
// accumulated actions are attached to the resulting function-response event.
type ToolContext struct {
	ictx           *InvocationContext
	functionCallID string
	actions        EventActions
}

// NewToolContext constructs a tool context bound to a parent invocation
// context and unique functionCallID.
func NewToolContext(ictx *InvocationContext, functionCallID string) *ToolContext {
	return &ToolContext{
		ictx:           ictx,
		functionCallID: functionCallID,
		actions:        EventActions{},
	}
}

// Context returns the ambient context of the invocation.
func (tc *ToolContext) Context() context.Context { return tc.ictx.Context }

// InvocationID returns the turn's invocation id.
func (tc *ToolContext) InvocationID() string { return tc.ictx.InvocationID }

// FunctionCallID returns the id correlating this call with its response.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent that requested the call.
func (tc *ToolContext) AgentName() string { return tc.ictx.Agent.Name() }

// Logger returns the invocation's logger.
func (tc *ToolContext) Logger() logging.Logger { return tc.ictx.Logger() }

// Actions returns the event actions accumulated so far.
func (tc *ToolContext) Actions() *EventActions { return &tc.actions }

// GetState reads a key from the session's effective state view.
func (tc *ToolContext) GetState(k string) (any, bool) {
	if v, ok := tc.actions.StateDelta[k]; ok {
		return v, true
	}
	return tc.ictx.GetState(k)
}

// SetState records a state mutation in the local delta. Scope prefixes
// ("app:", "user:") are honored when the resulting event is appended to the
// session.
func (tc *ToolContext) SetState(k string, v any) {
	if tc.actions.StateDelta == nil {
		tc.actions.StateDelta = map[string]any{}
	}
	tc.actions.StateDelta[k] = v
}

// SkipSummarization requests that post-processing summarization be bypassed
// for the originating event.
func (tc *ToolContext) SkipSummarization() {
	b := true
	tc.actions.SkipSummarization = &b
}

// TransferToAgent signals orchestration to hand control to another agent.
func (tc *ToolContext) TransferToAgent(name string) {
	tc.actions.TransferToAgent = &name
	tc.ictx.LogInfo("tool.transfer.request",
		"from_agent", tc.AgentName(),
		"to_agent", name,
		"function_call_id", tc.functionCallID,
	)
}

// Escalate requests escalation to a higher-level agent or human.
func (tc *ToolContext) Escalate() {
	b := true
	tc.actions.Escalate = &b
}

// RequestAuthConfig records an authentication requirement for this call,
// keyed by function call id so the client can satisfy and resume it.
func (tc *ToolContext) RequestAuthConfig(cfg any) {
	if tc.actions.RequestedAuthConfigs == nil {
		tc.actions.RequestedAuthConfigs = map[string]any{}
	}
	tc.actions.RequestedAuthConfigs[tc.functionCallID] = cfg
}

// RequestConfirmation records a human-in-the-loop confirmation requirement
// for this call, keyed by function call id.
func (tc *ToolContext) RequestConfirmation(c any) {
	if tc.actions.RequestedToolConfirmations == nil {
		tc.actions.RequestedToolConfirmations = map[string]any{}
	}
	tc.actions.RequestedToolConfirmations[tc.functionCallID] = c
}

// SaveArtifact persists artifact bytes and records the new version in the
// artifact delta for emission.
func (tc *ToolContext) SaveArtifact(name string, data []byte) error {
	if tc.ictx.ArtifactService == nil {
		return NewConfigurationError("artifact service not configured")
	}
	version, err := tc.ictx.ArtifactService.Save(tc.ictx.AppName, tc.ictx.UserID, tc.ictx.Session.ID, name, data)
	if err != nil {
		return err
	}
	if tc.actions.ArtifactDelta == nil {
		tc.actions.ArtifactDelta = map[string]int{}
	}
	tc.actions.ArtifactDelta[name] = version
	return nil
}

// LoadArtifact retrieves a persisted artifact by name.
func (tc *ToolContext) LoadArtifact(name string) ([]byte, error) {
	if tc.ictx.ArtifactService == nil {
		return nil, NewConfigurationError("artifact service not configured")
	}
	return tc.ictx.ArtifactService.Get(tc.ictx.AppName, tc.ictx.UserID, tc.ictx.Session.ID, name)
}

// ListArtifacts returns artifact names stored for the session.
func (tc *ToolContext) ListArtifacts() ([]string, error) {
	if tc.ictx.ArtifactService == nil {
		return nil, NewConfigurationError("artifact service not configured")
	}
	return tc.ictx.ArtifactService.List(tc.ictx.AppName, tc.ictx.UserID, tc.ictx.Session.ID)
}

// SearchMemory performs a recall query against the configured MemoryStore.
func (tc *ToolContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if tc.ictx.MemoryService == nil {
		return nil, NewConfigurationError("memory service not configured")
	}
	return tc.ictx.MemoryService.Search(tc.ictx.Session.ID, q, limit)
}

// StoreMemory appends new content to the session's memory store.
func (tc *ToolContext) StoreMemory(content string, md map[string]any) error {
	if tc.ictx.MemoryService == nil {
		return NewConfigurationError("memory service not configured")
	}
	return tc.ictx.MemoryService.Store(tc.ictx.Session.ID, content, md)
}
