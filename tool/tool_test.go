package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/session"
)

// stubAgent satisfies core.Agent for contexts that only need a name.
type stubAgent struct{ name string }

func (a *stubAgent) Name() string                      { return a.name }
func (a *stubAgent) Description() string               { return "" }
func (a *stubAgent) Run(*core.InvocationContext) error { return nil }
func (a *stubAgent) SetSubAgents(...core.Agent) error  { return nil }
func (a *stubAgent) SubAgents() []core.Agent           { return nil }
func (a *stubAgent) Parent() core.Agent                { return nil }
func (a *stubAgent) FindAgent(string) core.Agent       { return nil }
func (a *stubAgent) DisallowTransferToParent() bool    { return false }

func dummyInvocationContext(t *testing.T) *core.InvocationContext {
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

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	tc := core.NewToolContext(dummyInvocationContext(t), "fc1")
	result, err := sumTool.Run(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})

	tc := core.NewToolContext(dummyInvocationContext(t), "fc2")
	_, err := tTool.Run(tc, map[string]any{})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Equal(t, "test", toolErr.Tool)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	tc := core.NewToolContext(dummyInvocationContext(t), "fc3")
	_, err := execTool.Run(tc, map[string]any{})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ToolErrorPassthrough(t *testing.T) {
	custom := NewToolError("quota", "rate limited", "RATE_LIMITED")
	failTool := NewFunctionTool("quota", "Quota", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, custom
		})

	tc := core.NewToolContext(dummyInvocationContext(t), "fc4")
	_, err := failTool.Run(tc, map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "RATE_LIMITED", toolErr.Code)
}

func TestFunctionTool_LongRunningOption(t *testing.T) {
	longTool := NewFunctionTool("bg", "Background work", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil },
		func(o *FunctionToolOptions) { o.LongRunning = true },
	)
	assert.True(t, longTool.IsLongRunning())

	plain := NewFunctionTool("fg", "Foreground", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil })
	assert.False(t, plain.IsLongRunning())
}

type echoArgs struct {
	Message string `json:"message" description:"Text to echo"`
	Times   int    `json:"times,omitempty"`
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	echo := NewFunctionToolFromStruct("echo", "Echo a message", echoArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["message"], nil
		})

	params := echo.Parameters()
	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "message")
	assert.Contains(t, props, "times")

	req, _ := params["required"].([]string)
	assert.ElementsMatch(t, []string{"message"}, req)

	tc := core.NewToolContext(dummyInvocationContext(t), "fc5")
	out, err := echo.Run(tc, map[string]any{"message": "hi"})
	assert.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestTransferToAgentTool(t *testing.T) {
	transfer := NewTransferToAgentTool()
	assert.Equal(t, "transfer_to_agent", transfer.Name())
	assert.False(t, transfer.IsLongRunning())

	tc := core.NewToolContext(dummyInvocationContext(t), "fc6")
	out, err := transfer.Run(tc, map[string]any{"agent": "BillingAgent"})
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "BillingAgent", m["agent"])
	assert.Equal(t, true, m["transferred"])

	require.NotNil(t, tc.Actions().TransferToAgent)
	assert.Equal(t, "BillingAgent", *tc.Actions().TransferToAgent)
}

func TestTransferToAgentTool_MissingAgentArg(t *testing.T) {
	transfer := NewTransferToAgentTool()
	tc := core.NewToolContext(dummyInvocationContext(t), "fc7")
	_, err := transfer.Run(tc, map[string]any{})
	assert.Error(t, err)
}

func TestToolError_Format(t *testing.T) {
	err := NewToolError("lookup", "not found", "NOT_FOUND")
	assert.Contains(t, err.Error(), "lookup")
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Contains(t, err.Error(), "not found")
}
