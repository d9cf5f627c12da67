package flow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrun/core"
)

// FlowAgent is the view of an agent the LLM flow needs: its model, resolved
// instructions, tool registry and transfer configuration. Implemented by
// agent.LLMAgent.
type FlowAgent interface {
	core.Agent

	// Model returns the language model backing this agent.
	Model() core.Model

	// ResolveInstructions produces the system instructions for the turn.
	ResolveInstructions(ictx *core.InvocationContext) (string, error)

	// Tools returns the tool registry keyed by tool name.
	Tools() map[string]core.Tool

	// Callbacks returns the agent-level tool interception chains.
	Callbacks() ToolCallbacks

	// TransferEnabled reports whether the transfer_to_agent tool is exposed.
	TransferEnabled() bool

	// MaxHistoryMessages caps how much conversation history a request carries.
	// Zero means unlimited.
	MaxHistoryMessages() int
}

// LLMFlow drives the request -> model -> (tool loop) cycle for one agent,
// emitting events through the invocation context as they are produced. It
// hosts the BeforeModel, AfterModel and OnModelError plugin hooks.
type LLMFlow struct {
	agent        FlowAgent
	transferTool core.Tool
}

// NewLLMFlow creates a flow for the given agent. The transfer tool is
// injected into requests only when the agent allows transfer and has a tree
// to transfer within.
func NewLLMFlow(agent FlowAgent, transferTool core.Tool) *LLMFlow {
	return &LLMFlow{agent: agent, transferTool: transferTool}
}

// Run executes model turns until the agent produces a final response,
// transfers control or escalates. Events are emitted in order through the
// invocation context; the caller owns persistence.
func (f *LLMFlow) Run(ictx *core.InvocationContext) error {
	for {
		last, err := f.runTurn(ictx)
		if err != nil {
			return err
		}
		if last == nil {
			return nil
		}

		if last.Actions.TransferToAgent != nil {
			return f.transfer(ictx, *last.Actions.TransferToAgent)
		}
		if last.Actions.Escalate != nil && *last.Actions.Escalate {
			ictx.LogInfo("flow.escalate", "agent", f.agent.Name())
			return nil
		}
		if last.IsFinalResponse() {
			// Covers complete assistant turns and tool responses marked
			// skip-summarization, which surface without another model call.
			return nil
		}
		if len(last.GetFunctionResponses()) > 0 {
			// Tool responses feed the next model turn.
			continue
		}
	}
}

// runTurn performs a single model call plus any tool dispatch it triggers.
// It returns the last emitted event, or nil when the turn produced nothing
// further to react to.
func (f *LLMFlow) runTurn(ictx *core.InvocationContext) (*core.Event, error) {
	if err := ictx.RefreshSession(); err != nil {
		return nil, err
	}

	req, err := f.buildRequest(ictx)
	if err != nil {
		return nil, err
	}

	resp, err := f.callModel(ictx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	ev := f.newModelEvent(ictx, resp)
	if err := ictx.EmitEvent(ev); err != nil {
		return nil, err
	}

	fnCalls := ev.GetFunctionCalls()
	if len(fnCalls) == 0 {
		return &ev, nil
	}

	respEv, err := HandleFunctionCalls(ictx, ev, f.registry(), f.agent.Callbacks(), nil)
	if err != nil {
		return nil, err
	}
	if respEv == nil {
		// Every requested call is long-running; the turn parks here and a
		// later invocation resumes via function-response correlation.
		return nil, nil
	}

	if err := ictx.EmitEvent(*respEv); err != nil {
		return nil, err
	}

	return respEv, nil
}

// newModelEvent wraps a final model response in an event authored by this
// agent. Calls whose tool is long-running are recorded so the runner and
// resolution logic can treat their eventual responses as resumable.
func (f *LLMFlow) newModelEvent(ictx *core.InvocationContext, resp *core.ModelResponse) core.Event {
	ev := core.NewEvent(ictx.InvocationID, f.agent.Name())
	ev.Content = &resp.Content

	partial := false
	ev.Partial = &partial

	registry := f.registry()
	for _, fc := range ev.GetFunctionCalls() {
		if t, ok := registry[fc.Name]; ok && t.IsLongRunning() {
			ev.LongRunningToolIDs = append(ev.LongRunningToolIDs, fc.ID)
		}
	}

	if len(ev.GetFunctionCalls()) == 0 {
		complete := true
		ev.TurnComplete = &complete
	}

	return ev
}

// callModel runs the BeforeModel hook, the model itself and the AfterModel
// hook, folding streamed chunks into one final response. Partial chunks are
// forwarded as partial events when the run config asks for incremental
// streaming.
func (f *LLMFlow) callModel(ictx *core.InvocationContext, req *core.ModelRequest) (*core.ModelResponse, error) {
	resp, err := ictx.Plugins.RunBeforeModel(ictx, req)
	if err != nil {
		return nil, err
	}

	if resp == nil {
		if err := ictx.Limiter.Increment(); err != nil {
			return nil, err
		}

		resp, err = f.generate(ictx, req)
		if err != nil {
			resp, err = f.handleModelError(ictx, req, err)
			if err != nil {
				return nil, err
			}
		}
	}

	if resp == nil {
		return nil, nil
	}

	altered, err := ictx.Plugins.RunAfterModel(ictx, resp)
	if err != nil {
		return nil, err
	}
	if altered != nil {
		resp = altered
	}

	return resp, nil
}

func (f *LLMFlow) generate(ictx *core.InvocationContext, req *core.ModelRequest) (*core.ModelResponse, error) {
	req.Stream = ictx.RunConfig.StreamingMode == core.StreamingModeIncremental

	respCh, errCh := f.agent.Model().Generate(ictx.Context, *req)

	var final *core.ModelResponse
	for {
		select {
		case <-ictx.Done():
			return nil, ictx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return nil, err
			}
			errCh = nil
			if respCh == nil {
				return final, nil
			}
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				if errCh == nil {
					return final, nil
				}
				continue
			}
			if resp.Partial {
				if ictx.RunConfig.StreamingMode == core.StreamingModeIncremental {
					ev := core.NewEvent(ictx.InvocationID, f.agent.Name())
					ev.Content = &resp.Content
					partial := true
					ev.Partial = &partial
					if err := ictx.EmitEvent(ev); err != nil {
						return nil, err
					}
				}
				continue
			}
			r := resp
			final = &r
		}
	}
}

func (f *LLMFlow) handleModelError(ictx *core.InvocationContext, req *core.ModelRequest, modelErr error) (*core.ModelResponse, error) {
	resp, err := ictx.Plugins.RunOnModelError(ictx, req, modelErr)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("model call failed for agent %s: %w", f.agent.Name(), modelErr)
	}

	ictx.LogWarn("flow.model.error.recovered", "agent", f.agent.Name(), "error", modelErr.Error())

	return resp, nil
}

// buildRequest assembles the model request from resolved instructions, the
// branch-visible conversation history and the declared tools.
func (f *LLMFlow) buildRequest(ictx *core.InvocationContext) (*core.ModelRequest, error) {
	instructions, err := f.agent.ResolveInstructions(ictx)
	if err != nil {
		return nil, fmt.Errorf("resolve instructions for %s: %w", f.agent.Name(), err)
	}

	req := &core.ModelRequest{Instructions: instructions}

	history := f.visibleHistory(ictx)
	if max := f.agent.MaxHistoryMessages(); max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	for _, ev := range history {
		if ev.Content != nil && len(ev.Content.Parts) > 0 {
			req.Contents = append(req.Contents, *ev.Content)
		}
	}

	for _, t := range f.registry() {
		req.Tools = append(req.Tools, core.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	return req, nil
}

// visibleHistory filters session events to those on the current branch
// lineage. An event with no branch is visible everywhere; a branched event
// is visible to contexts whose branch descends from it.
func (f *LLMFlow) visibleHistory(ictx *core.InvocationContext) []core.Event {
	events := ictx.GetSessionHistory()
	if ictx.Branch == "" {
		return events
	}

	visible := make([]core.Event, 0, len(events))
	for _, ev := range events {
		if ev.Branch == nil || branchDescends(ictx.Branch, *ev.Branch) {
			visible = append(visible, ev)
		}
	}
	return visible
}

// branchDescends reports whether branch equals ancestor or sits below it in
// the branch tree. Matching stops at segment boundaries so "a.b" is not an
// ancestor of "a.bc".
func branchDescends(branch, ancestor string) bool {
	return branch == ancestor || strings.HasPrefix(branch, ancestor+".")
}

// registry returns the agent's tools plus the transfer tool when the agent
// participates in a tree and allows transfer.
func (f *LLMFlow) registry() map[string]core.Tool {
	tools := f.agent.Tools()
	if !f.agent.TransferEnabled() || f.transferTool == nil {
		return tools
	}
	if f.agent.Parent() == nil && len(f.agent.SubAgents()) == 0 {
		return tools
	}

	withTransfer := make(map[string]core.Tool, len(tools)+1)
	for name, t := range tools {
		withTransfer[name] = t
	}
	withTransfer[f.transferTool.Name()] = f.transferTool
	return withTransfer
}

// transfer hands the invocation to a named agent anywhere in the tree,
// running it under a child context with an extended branch.
func (f *LLMFlow) transfer(ictx *core.InvocationContext, target string) error {
	root := core.RootAgent(f.agent)
	next := root.FindAgent(target)
	if next == nil {
		return core.NewConfigurationError("transfer target %q not found in agent tree", target)
	}

	ictx.LogInfo("flow.transfer", "from", f.agent.Name(), "to", target)

	child := ictx.NewChildContext(next, next.Name())
	return next.Run(child)
}
