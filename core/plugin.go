package core

// Plugin is a globally registered interceptor with optional overrides for the
// engine's hook points. Hooks follow a uniform protocol: a nil result means
// "no opinion" and the next plugin (or the default behavior) runs; a non-nil
// result short-circuits the remaining plugins and, for most hooks, replaces
// the default behavior. An error from any hook is fatal for the whole
// invocation.
//
// Embed BasePlugin to implement only the hooks a plugin cares about:
//
//	type auditPlugin struct{ core.BasePlugin }
//
//	func (p *auditPlugin) BeforeTool(t core.Tool, tc *core.ToolContext, args map[string]any) (map[string]any, error) {
//		tc.Logger().Info("tool.requested", "tool", t.Name())
//		return nil, nil
//	}
type Plugin interface {
	// Name returns the unique registration name of the plugin.
	Name() string

	// OnUserMessage may replace the incoming user message before anything
	// else happens in the turn.
	OnUserMessage(ictx *InvocationContext, message *Content) (*Content, error)

	// BeforeRun may short-circuit the whole turn with canned content; no
	// agent executes in that case.
	BeforeRun(ictx *InvocationContext) (*Content, error)

	// OnEvent may replace an event before it is persisted and emitted.
	OnEvent(ictx *InvocationContext, ev *Event) (*Event, error)

	// AfterRun runs unconditionally once the event sequence is exhausted,
	// including after an early short-circuit.
	AfterRun(ictx *InvocationContext) error

	// BeforeAgent may replace an agent's entire execution with canned
	// content.
	BeforeAgent(agent Agent, ictx *InvocationContext) (*Content, error)

	// AfterAgent may append final content after an agent finishes.
	AfterAgent(agent Agent, ictx *InvocationContext) (*Content, error)

	// BeforeModel may supply the model response without calling the model.
	BeforeModel(ictx *InvocationContext, req *ModelRequest) (*ModelResponse, error)

	// AfterModel may replace the model response.
	AfterModel(ictx *InvocationContext, resp *ModelResponse) (*ModelResponse, error)

	// OnModelError may recover from a model transport error by supplying a
	// response; a nil result lets the error propagate.
	OnModelError(ictx *InvocationContext, req *ModelRequest, modelErr error) (*ModelResponse, error)

	// BeforeTool may supply the tool result without executing the tool.
	BeforeTool(t Tool, toolCtx *ToolContext, args map[string]any) (map[string]any, error)

	// AfterTool may replace the tool result.
	AfterTool(t Tool, toolCtx *ToolContext, args map[string]any, result map[string]any) (map[string]any, error)

	// OnToolError may convert a tool execution error into a result visible
	// to the model; a nil result falls back to the default error payload.
	OnToolError(t Tool, toolCtx *ToolContext, args map[string]any, toolErr error) (map[string]any, error)
}

// BasePlugin provides no-op implementations of every hook. Concrete plugins
// embed it and override selectively.
type BasePlugin struct {
	name string
}

// NewBasePlugin creates a BasePlugin with the given registration name.
func NewBasePlugin(name string) BasePlugin { return BasePlugin{name: name} }

// Name returns the plugin's registration name.
func (p BasePlugin) Name() string { return p.name }

// OnUserMessage implements Plugin with no opinion.
func (BasePlugin) OnUserMessage(*InvocationContext, *Content) (*Content, error) { return nil, nil }

// BeforeRun implements Plugin with no opinion.
func (BasePlugin) BeforeRun(*InvocationContext) (*Content, error) { return nil, nil }

// OnEvent implements Plugin with no opinion.
func (BasePlugin) OnEvent(*InvocationContext, *Event) (*Event, error) { return nil, nil }

// AfterRun implements Plugin as a no-op.
func (BasePlugin) AfterRun(*InvocationContext) error { return nil }

// BeforeAgent implements Plugin with no opinion.
func (BasePlugin) BeforeAgent(Agent, *InvocationContext) (*Content, error) { return nil, nil }

// AfterAgent implements Plugin with no opinion.
func (BasePlugin) AfterAgent(Agent, *InvocationContext) (*Content, error) { return nil, nil }

// BeforeModel implements Plugin with no opinion.
func (BasePlugin) BeforeModel(*InvocationContext, *ModelRequest) (*ModelResponse, error) {
	return nil, nil
}

// AfterModel implements Plugin with no opinion.
func (BasePlugin) AfterModel(*InvocationContext, *ModelResponse) (*ModelResponse, error) {
	return nil, nil
}

// OnModelError implements Plugin with no opinion.
func (BasePlugin) OnModelError(*InvocationContext, *ModelRequest, error) (*ModelResponse, error) {
	return nil, nil
}

// BeforeTool implements Plugin with no opinion.
func (BasePlugin) BeforeTool(Tool, *ToolContext, map[string]any) (map[string]any, error) {
	return nil, nil
}

// AfterTool implements Plugin with no opinion.
func (BasePlugin) AfterTool(Tool, *ToolContext, map[string]any, map[string]any) (map[string]any, error) {
	return nil, nil
}

// OnToolError implements Plugin with no opinion.
func (BasePlugin) OnToolError(Tool, *ToolContext, map[string]any, error) (map[string]any, error) {
	return nil, nil
}
