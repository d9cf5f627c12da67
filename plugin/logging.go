// Package plugin ships ready-made core.Plugin implementations covering
// common interception needs: structured turn logging and human-in-the-loop
// tool confirmation.
package plugin

import (
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
)

// LoggingPlugin logs the lifecycle of every turn without ever taking a
// position: all value-returning hooks answer nil, so it never affects
// control flow.
type LoggingPlugin struct {
	core.BasePlugin
	logger logging.Logger
}

// NewLoggingPlugin constructs a LoggingPlugin writing to the given logger.
func NewLoggingPlugin(logger logging.Logger) *LoggingPlugin {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingPlugin{
		BasePlugin: core.NewBasePlugin("logging"),
		logger:     logger,
	}
}

// OnUserMessage logs the incoming message and passes it through.
func (p *LoggingPlugin) OnUserMessage(ictx *core.InvocationContext, message *core.Content) (*core.Content, error) {
	p.logger.Info("plugin.logging.user_message",
		"invocation", ictx.InvocationID,
		"session", sessionID(ictx),
		"parts", partCount(message),
	)
	return nil, nil
}

// OnEvent logs every event flowing through the turn.
func (p *LoggingPlugin) OnEvent(ictx *core.InvocationContext, ev *core.Event) (*core.Event, error) {
	p.logger.Debug("plugin.logging.event",
		"invocation", ictx.InvocationID,
		"event", ev.ID,
		"author", ev.Author,
		"fn_calls", len(ev.GetFunctionCalls()),
		"fn_responses", len(ev.GetFunctionResponses()),
		"partial", ev.IsPartial(),
	)
	return nil, nil
}

// BeforeTool logs tool invocations with their call id.
func (p *LoggingPlugin) BeforeTool(t core.Tool, toolCtx *core.ToolContext, args map[string]any) (map[string]any, error) {
	p.logger.Info("plugin.logging.tool",
		"tool", t.Name(),
		"fc_id", toolCtx.FunctionCallID(),
		"args", len(args),
	)
	return nil, nil
}

// OnToolError logs contained tool failures without recovering them.
func (p *LoggingPlugin) OnToolError(t core.Tool, toolCtx *core.ToolContext, args map[string]any, toolErr error) (map[string]any, error) {
	p.logger.Warn("plugin.logging.tool_error",
		"tool", t.Name(),
		"fc_id", toolCtx.FunctionCallID(),
		"error", toolErr.Error(),
	)
	return nil, nil
}

// AfterRun logs turn completion.
func (p *LoggingPlugin) AfterRun(ictx *core.InvocationContext) error {
	p.logger.Info("plugin.logging.turn_complete",
		"invocation", ictx.InvocationID,
		"model_calls", ictx.Limiter.Count(),
	)
	return nil
}

func sessionID(ictx *core.InvocationContext) string {
	if ictx.Session == nil {
		return ""
	}
	return ictx.Session.ID
}

func partCount(c *core.Content) int {
	if c == nil {
		return 0
	}
	return len(c.Parts)
}
