package plugin

import (
	"github.com/hupe1980/agentrun/core"
)

// ConfirmationFunc decides whether a tool call may proceed. Implementations
// typically consult earlier user approval recorded in session state or an
// external policy service.
type ConfirmationFunc func(toolCtx *core.ToolContext, toolName string, args map[string]any) (approved bool, err error)

// ToolConfirmationPlugin gates selected tools behind an approval decision.
// A denied call short-circuits beforeTool with a refusal payload and records
// a confirmation request in the event actions, so clients can surface the
// pending approval and resume the call later.
type ToolConfirmationPlugin struct {
	core.BasePlugin
	guarded map[string]struct{}
	confirm ConfirmationFunc
}

// NewToolConfirmationPlugin guards the named tools with the given decision
// function. A nil confirm denies every guarded call.
func NewToolConfirmationPlugin(confirm ConfirmationFunc, toolNames ...string) *ToolConfirmationPlugin {
	guarded := make(map[string]struct{}, len(toolNames))
	for _, name := range toolNames {
		guarded[name] = struct{}{}
	}
	return &ToolConfirmationPlugin{
		BasePlugin: core.NewBasePlugin("tool-confirmation"),
		guarded:    guarded,
		confirm:    confirm,
	}
}

// BeforeTool blocks guarded tools unless the decision function approves the
// call. Unguarded tools pass through untouched.
func (p *ToolConfirmationPlugin) BeforeTool(t core.Tool, toolCtx *core.ToolContext, args map[string]any) (map[string]any, error) {
	if _, ok := p.guarded[t.Name()]; !ok {
		return nil, nil
	}

	if p.confirm != nil {
		approved, err := p.confirm(toolCtx, t.Name(), args)
		if err != nil {
			return nil, err
		}
		if approved {
			return nil, nil
		}
	}

	toolCtx.RequestConfirmation(map[string]any{
		"tool": t.Name(),
		"args": args,
	})
	toolCtx.Logger().Info("plugin.confirmation.blocked", "tool", t.Name(), "fc_id", toolCtx.FunctionCallID())

	return map[string]any{
		"error": "tool call requires user confirmation",
	}, nil
}
