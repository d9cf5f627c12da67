package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/session"
)

type stubAgent struct{ name string }

func (a *stubAgent) Name() string                      { return a.name }
func (a *stubAgent) Description() string               { return "" }
func (a *stubAgent) Run(*core.InvocationContext) error { return nil }
func (a *stubAgent) SetSubAgents(...core.Agent) error  { return nil }
func (a *stubAgent) SubAgents() []core.Agent           { return nil }
func (a *stubAgent) Parent() core.Agent                { return nil }
func (a *stubAgent) FindAgent(string) core.Agent       { return nil }
func (a *stubAgent) DisallowTransferToParent() bool    { return false }

type stubTool struct{ name string }

func (t *stubTool) Name() string               { return t.name }
func (t *stubTool) Description() string        { return "stub" }
func (t *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (t *stubTool) IsLongRunning() bool        { return false }
func (t *stubTool) Run(*core.ToolContext, map[string]any) (any, error) {
	return map[string]any{"ok": true}, nil
}

func newInvocationContext(t *testing.T) *core.InvocationContext {
	t.Helper()

	svc := session.NewInMemoryService()
	sess, err := svc.Create("test-app", "test-user", "sess-1", nil)
	require.NoError(t, err)

	return core.NewInvocationContext(core.InvocationContextParams{
		Context:        context.Background(),
		InvocationID:   "inv-1",
		AppName:        "test-app",
		UserID:         "test-user",
		Agent:          &stubAgent{name: "Agent"},
		Session:        sess,
		SessionService: svc,
	})
}

func TestLoggingPlugin_NeverTakesAPosition(t *testing.T) {
	p := NewLoggingPlugin(nil)
	ictx := newInvocationContext(t)
	tc := core.NewToolContext(ictx, "fc1")
	tool := &stubTool{name: "lookup"}

	msg, err := p.OnUserMessage(ictx, &core.Content{Role: "user"})
	assert.Nil(t, msg)
	assert.NoError(t, err)

	ev := core.NewEvent("inv-1", "Agent")
	replaced, err := p.OnEvent(ictx, &ev)
	assert.Nil(t, replaced)
	assert.NoError(t, err)

	result, err := p.BeforeTool(tool, tc, map[string]any{"q": "x"})
	assert.Nil(t, result)
	assert.NoError(t, err)

	result, err = p.OnToolError(tool, tc, nil, errors.New("boom"))
	assert.Nil(t, result)
	assert.NoError(t, err)

	assert.NoError(t, p.AfterRun(ictx))
	assert.Equal(t, "logging", p.Name())
}

func TestToolConfirmationPlugin_UnguardedPassesThrough(t *testing.T) {
	p := NewToolConfirmationPlugin(nil, "delete_account")
	tc := core.NewToolContext(newInvocationContext(t), "fc1")

	result, err := p.BeforeTool(&stubTool{name: "lookup"}, tc, nil)
	assert.Nil(t, result)
	assert.NoError(t, err)
	assert.Nil(t, tc.Actions().RequestedToolConfirmations)
}

func TestToolConfirmationPlugin_ApprovedProceeds(t *testing.T) {
	confirm := func(*core.ToolContext, string, map[string]any) (bool, error) { return true, nil }
	p := NewToolConfirmationPlugin(confirm, "delete_account")
	tc := core.NewToolContext(newInvocationContext(t), "fc1")

	result, err := p.BeforeTool(&stubTool{name: "delete_account"}, tc, nil)
	assert.Nil(t, result)
	assert.NoError(t, err)
	assert.Nil(t, tc.Actions().RequestedToolConfirmations)
}

func TestToolConfirmationPlugin_DeniedShortCircuits(t *testing.T) {
	confirm := func(*core.ToolContext, string, map[string]any) (bool, error) { return false, nil }
	p := NewToolConfirmationPlugin(confirm, "delete_account")
	tc := core.NewToolContext(newInvocationContext(t), "fc1")

	args := map[string]any{"account": "42"}
	result, err := p.BeforeTool(&stubTool{name: "delete_account"}, tc, args)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"error": "tool call requires user confirmation"}, result)

	pending, ok := tc.Actions().RequestedToolConfirmations["fc1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "delete_account", pending["tool"])
	assert.Equal(t, args, pending["args"])
}

func TestToolConfirmationPlugin_NilConfirmDeniesGuarded(t *testing.T) {
	p := NewToolConfirmationPlugin(nil, "delete_account")
	tc := core.NewToolContext(newInvocationContext(t), "fc1")

	result, err := p.BeforeTool(&stubTool{name: "delete_account"}, tc, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"error": "tool call requires user confirmation"}, result)
}

func TestToolConfirmationPlugin_DecisionErrorPropagates(t *testing.T) {
	boom := errors.New("policy service down")
	confirm := func(*core.ToolContext, string, map[string]any) (bool, error) { return false, boom }
	p := NewToolConfirmationPlugin(confirm, "delete_account")
	tc := core.NewToolContext(newInvocationContext(t), "fc1")

	_, err := p.BeforeTool(&stubTool{name: "delete_account"}, tc, nil)
	assert.ErrorIs(t, err, boom)
}
