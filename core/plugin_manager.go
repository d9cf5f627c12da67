package core

// Hook names used when wrapping plugin failures. Kept as constants so error
// output and tests agree on spelling.
const (
	HookOnUserMessage = "onUserMessage"
	HookBeforeRun     = "beforeRun"
	HookOnEvent       = "onEvent"
	HookAfterRun      = "afterRun"
	HookBeforeAgent   = "beforeAgent"
	HookAfterAgent    = "afterAgent"
	HookBeforeModel   = "beforeModel"
	HookAfterModel    = "afterModel"
	HookOnModelError  = "onModelError"
	HookBeforeTool    = "beforeTool"
	HookAfterTool     = "afterTool"
	HookOnToolError   = "onToolError"
)

// PluginManager is an ordered registry of plugins exposing one typed runner
// per hook point. For every hook it iterates plugins in registration order;
// the first plugin returning a non-nil value short-circuits the iteration and
// that value is handed back to the caller. A plugin error aborts the whole
// invocation wrapped as *PluginExecutionError; it is never swallowed or
// retried. If no plugin has an opinion the runner returns nil.
//
// Registration is expected to complete before the first invocation; the Run*
// methods are then safe for concurrent use.
type PluginManager struct {
	plugins []Plugin
	names   map[string]struct{}
}

// NewPluginManager creates a manager and registers the given plugins in
// order. A duplicate name yields a ConfigurationError.
func NewPluginManager(plugins ...Plugin) (*PluginManager, error) {
	pm := &PluginManager{names: map[string]struct{}{}}
	for _, p := range plugins {
		if err := pm.Register(p); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

// Register appends a plugin to the ordered registry. Registering a duplicate
// name fails with a ConfigurationError.
func (pm *PluginManager) Register(p Plugin) error {
	if _, exists := pm.names[p.Name()]; exists {
		return NewConfigurationError("plugin %q already registered", p.Name())
	}
	pm.names[p.Name()] = struct{}{}
	pm.plugins = append(pm.plugins, p)
	return nil
}

// PluginCount returns the number of registered plugins.
func (pm *PluginManager) PluginCount() int { return len(pm.plugins) }

// Plugins returns the registered plugins in registration order.
func (pm *PluginManager) Plugins() []Plugin {
	out := make([]Plugin, len(pm.plugins))
	copy(out, pm.plugins)
	return out
}

func wrapPluginErr(p Plugin, hook string, err error) error {
	return &PluginExecutionError{Plugin: p.Name(), Hook: hook, Err: err}
}

// RunOnUserMessage gives each plugin a chance to replace the incoming user
// message.
func (pm *PluginManager) RunOnUserMessage(ictx *InvocationContext, message *Content) (*Content, error) {
	for _, p := range pm.plugins {
		out, err := p.OnUserMessage(ictx, message)
		if err != nil {
			return nil, wrapPluginErr(p, HookOnUserMessage, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunBeforeRun gives each plugin a chance to short-circuit the turn.
func (pm *PluginManager) RunBeforeRun(ictx *InvocationContext) (*Content, error) {
	for _, p := range pm.plugins {
		out, err := p.BeforeRun(ictx)
		if err != nil {
			return nil, wrapPluginErr(p, HookBeforeRun, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunOnEvent gives each plugin a chance to replace a produced event before it
// is persisted and emitted.
func (pm *PluginManager) RunOnEvent(ictx *InvocationContext, ev *Event) (*Event, error) {
	for _, p := range pm.plugins {
		out, err := p.OnEvent(ictx, ev)
		if err != nil {
			return nil, wrapPluginErr(p, HookOnEvent, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunAfterRun invokes every plugin's AfterRun. Unlike value-returning hooks
// there is nothing to short-circuit on; the first error still aborts.
func (pm *PluginManager) RunAfterRun(ictx *InvocationContext) error {
	for _, p := range pm.plugins {
		if err := p.AfterRun(ictx); err != nil {
			return wrapPluginErr(p, HookAfterRun, err)
		}
	}
	return nil
}

// RunBeforeAgent gives each plugin a chance to replace an agent's execution.
func (pm *PluginManager) RunBeforeAgent(agent Agent, ictx *InvocationContext) (*Content, error) {
	for _, p := range pm.plugins {
		out, err := p.BeforeAgent(agent, ictx)
		if err != nil {
			return nil, wrapPluginErr(p, HookBeforeAgent, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunAfterAgent gives each plugin a chance to append final content after an
// agent finishes.
func (pm *PluginManager) RunAfterAgent(agent Agent, ictx *InvocationContext) (*Content, error) {
	for _, p := range pm.plugins {
		out, err := p.AfterAgent(agent, ictx)
		if err != nil {
			return nil, wrapPluginErr(p, HookAfterAgent, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunBeforeModel gives each plugin a chance to answer for the model.
func (pm *PluginManager) RunBeforeModel(ictx *InvocationContext, req *ModelRequest) (*ModelResponse, error) {
	for _, p := range pm.plugins {
		out, err := p.BeforeModel(ictx, req)
		if err != nil {
			return nil, wrapPluginErr(p, HookBeforeModel, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunAfterModel gives each plugin a chance to replace the model response.
func (pm *PluginManager) RunAfterModel(ictx *InvocationContext, resp *ModelResponse) (*ModelResponse, error) {
	for _, p := range pm.plugins {
		out, err := p.AfterModel(ictx, resp)
		if err != nil {
			return nil, wrapPluginErr(p, HookAfterModel, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunOnModelError gives each plugin a chance to recover from a model error.
func (pm *PluginManager) RunOnModelError(ictx *InvocationContext, req *ModelRequest, modelErr error) (*ModelResponse, error) {
	for _, p := range pm.plugins {
		out, err := p.OnModelError(ictx, req, modelErr)
		if err != nil {
			return nil, wrapPluginErr(p, HookOnModelError, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunBeforeTool gives each plugin a chance to answer for the tool.
func (pm *PluginManager) RunBeforeTool(t Tool, toolCtx *ToolContext, args map[string]any) (map[string]any, error) {
	for _, p := range pm.plugins {
		out, err := p.BeforeTool(t, toolCtx, args)
		if err != nil {
			return nil, wrapPluginErr(p, HookBeforeTool, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunAfterTool gives each plugin a chance to replace the tool result.
func (pm *PluginManager) RunAfterTool(t Tool, toolCtx *ToolContext, args map[string]any, result map[string]any) (map[string]any, error) {
	for _, p := range pm.plugins {
		out, err := p.AfterTool(t, toolCtx, args, result)
		if err != nil {
			return nil, wrapPluginErr(p, HookAfterTool, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}

// RunOnToolError gives each plugin a chance to convert a tool failure into a
// model-visible result.
func (pm *PluginManager) RunOnToolError(t Tool, toolCtx *ToolContext, args map[string]any, toolErr error) (map[string]any, error) {
	for _, p := range pm.plugins {
		out, err := p.OnToolError(t, toolCtx, args, toolErr)
		if err != nil {
			return nil, wrapPluginErr(p, HookOnToolError, err)
		}
		if out != nil {
			return out, nil
		}
	}
	return nil, nil
}
