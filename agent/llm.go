package agent

import (
	"fmt"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/flow"
	"github.com/hupe1980/agentrun/internal/util"
	"github.com/hupe1980/agentrun/tool"
)

// LLMAgentOptions configures an LLMAgent instance. Use functional options
// with NewLLMAgent to override defaults.
type LLMAgentOptions struct {
	// Instruction is the system prompt. Template markers ({{.key}}) are
	// substituted from session state at request time.
	Instruction Instruction

	// Tools registered for function calling.
	Tools []core.Tool

	// MaxHistoryMessages caps the conversation history sent to the model.
	// Zero means unlimited.
	MaxHistoryMessages int

	// AllowTransfer exposes the transfer_to_agent tool when the agent is
	// part of a tree.
	AllowTransfer bool

	// DisallowTransferToParent hides this agent from conversation
	// resumption; it only runs via explicit transfer or function-response
	// correlation.
	DisallowTransferToParent bool

	// BeforeToolCallbacks run before each tool call, after plugin hooks.
	BeforeToolCallbacks []flow.BeforeToolCallback

	// AfterToolCallbacks run after each tool call, after plugin hooks.
	AfterToolCallbacks []flow.AfterToolCallback
}

// LLMAgent integrates with a language model to process conversation turns
// and call tools. It embeds BaseAgent for hierarchy management and drives a
// flow.LLMFlow for execution.
type LLMAgent struct {
	BaseAgent
	model       core.Model
	instruction Instruction
	tools       map[string]core.Tool
	callbacks   flow.ToolCallbacks

	maxHistoryMessages int
	allowTransfer      bool
}

var _ flow.FlowAgent = (*LLMAgent)(nil)

// NewLLMAgent creates a model-backed agent. Defaults: a generic assistant
// instruction, a 20-message history cap, transfer enabled, no tools.
func NewLLMAgent(name string, m core.Model, optFns ...func(o *LLMAgentOptions)) *LLMAgent {
	opts := LLMAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		MaxHistoryMessages: 20,
		AllowTransfer:      true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &LLMAgent{
		BaseAgent:          NewBaseAgent(name),
		model:              m,
		instruction:        opts.Instruction,
		tools:              make(map[string]core.Tool, len(opts.Tools)),
		maxHistoryMessages: opts.MaxHistoryMessages,
		allowTransfer:      opts.AllowTransfer,
		callbacks: flow.ToolCallbacks{
			Before: opts.BeforeToolCallbacks,
			After:  opts.AfterToolCallbacks,
		},
	}
	a.SetDisallowTransferToParent(opts.DisallowTransferToParent)
	a.Bind(a)

	for _, t := range opts.Tools {
		a.tools[t.Name()] = t
	}

	return a
}

// RegisterTool adds a tool to the agent's capability set. Registered tools
// become available for the model to call.
func (a *LLMAgent) RegisterTool(t core.Tool) {
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools to the agent's capability set.
func (a *LLMAgent) RegisterTools(tools ...core.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *LLMAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// Model returns the language model instance.
func (a *LLMAgent) Model() core.Model { return a.model }

// Tools returns a copy of the registered tools keyed by name.
func (a *LLMAgent) Tools() map[string]core.Tool {
	tools := make(map[string]core.Tool, len(a.tools))
	for name, t := range a.tools {
		tools[name] = t
	}
	return tools
}

// Callbacks returns the agent-level tool interception chains.
func (a *LLMAgent) Callbacks() flow.ToolCallbacks { return a.callbacks }

// TransferEnabled reports whether agent transfer is enabled.
func (a *LLMAgent) TransferEnabled() bool { return a.allowTransfer }

// MaxHistoryMessages returns the conversation history cap.
func (a *LLMAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ResolveInstructions produces the system prompt, resolving dynamic
// providers and substituting template variables from session state.
func (a *LLMAgent) ResolveInstructions(ictx *core.InvocationContext) (string, error) {
	instructions, err := a.instruction.Resolve(ictx)
	if err != nil {
		return "", err
	}

	if ictx.Session != nil {
		rendered, err := util.RenderTemplate(instructions, ictx.Session.State)
		if err != nil {
			return "", fmt.Errorf("render instruction template: %w", err)
		}
		instructions = rendered
	}

	return instructions, nil
}

// Run implements core.Agent by driving the LLM flow until the turn
// completes, transfers or escalates.
func (a *LLMAgent) Run(ictx *core.InvocationContext) error {
	ictx.LogDebug("agent.run.start", "agent", a.Name(), "invocation", ictx.InvocationID)

	f := flow.NewLLMFlow(a, tool.NewTransferToAgentTool())
	if err := f.Run(ictx); err != nil {
		ictx.LogError("agent.run.error", "agent", a.Name(), "error", err.Error())
		return err
	}

	ictx.LogDebug("agent.run.complete", "agent", a.Name())
	return nil
}
