// Package flow provides the execution pipeline for model-backed agents:
// building model requests, streaming responses and dispatching the
// function calls a model requests against the agent's tool registry.
package flow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// BeforeToolCallback runs before a tool executes. Returning a non-nil map
// short-circuits execution and becomes the tool response.
type BeforeToolCallback func(t core.Tool, toolCtx *core.ToolContext, args map[string]any) (map[string]any, error)

// AfterToolCallback runs after a tool executed. Returning a non-nil map
// replaces the tool response.
type AfterToolCallback func(t core.Tool, toolCtx *core.ToolContext, args map[string]any, result map[string]any) (map[string]any, error)

// ToolCallbacks bundles the agent-level tool interception chains. Plugin
// hooks always run first; callbacks are consulted only when no plugin took
// a position.
type ToolCallbacks struct {
	Before []BeforeToolCallback
	After  []AfterToolCallback
}

// HandleFunctionCalls executes the function calls requested by a model event
// against the tool registry and returns at most one function response event.
//
// Calls run in request order. The filter, when non-nil, restricts execution
// to the listed call ids (used to resume specific long-running calls). An
// unresolvable tool name is a fatal configuration error; a failing tool is
// contained as an error payload and never aborts its sibling calls. A
// long-running call whose final response is nil yields no event. Multiple
// responses are merged into a single role "user" event so the model sees
// one coherent response turn.
func HandleFunctionCalls(
	ictx *core.InvocationContext,
	ev core.Event,
	tools map[string]core.Tool,
	callbacks ToolCallbacks,
	filter map[string]struct{},
) (*core.Event, error) {
	fnCalls := ev.GetFunctionCalls()
	if filter != nil {
		kept := fnCalls[:0]
		for _, fc := range fnCalls {
			if _, ok := filter[fc.ID]; ok {
				kept = append(kept, fc)
			}
		}
		fnCalls = kept
	}
	if len(fnCalls) == 0 {
		return nil, nil
	}

	responses := make([]core.Event, 0, len(fnCalls))
	for _, fc := range fnCalls {
		respEv, err := dispatchCall(ictx, fc, tools, callbacks)
		if err != nil {
			return nil, err
		}
		if respEv != nil {
			responses = append(responses, *respEv)
		}
	}

	switch len(responses) {
	case 0:
		return nil, nil
	case 1:
		return &responses[0], nil
	default:
		return mergeResponseEvents(ictx, responses), nil
	}
}

// dispatchCall runs a single function call through the interception chain:
// beforeTool plugin hook, agent before callbacks, tool execution with
// onToolError containment, normalization, afterTool plugin hook, agent
// after callbacks. A nil event return means the call completes out of band.
func dispatchCall(
	ictx *core.InvocationContext,
	fc core.FunctionCall,
	tools map[string]core.Tool,
	callbacks ToolCallbacks,
) (*core.Event, error) {
	impl, ok := tools[fc.Name]
	if !ok {
		return nil, core.NewConfigurationError("tool %q requested by model is not registered", fc.Name)
	}

	args, err := decodeArguments(fc.Arguments)
	if err != nil {
		args = map[string]any{}
		ictx.LogWarn("flow.function.args.invalid", "function", fc.Name, "error", err.Error())
	}

	toolCtx := core.NewToolContext(ictx, fc.ID)

	response, err := runBeforeChain(ictx, impl, toolCtx, args, callbacks.Before)
	if err != nil {
		return nil, err
	}

	if response == nil {
		start := time.Now()
		result, runErr := impl.Run(toolCtx, args)
		ictx.LogInfo(
			"flow.function.executed",
			"agent", ictx.Agent.Name(),
			"function", fc.Name,
			"fc_id", fc.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", runErr != nil,
		)

		if runErr != nil {
			response, err = ictx.Plugins.RunOnToolError(impl, toolCtx, args, runErr)
			if err != nil {
				return nil, err
			}
			if response == nil {
				response = map[string]any{"error": runErr.Error()}
			}
		} else {
			response = normalizeResult(result)
		}
	}

	response, err = runAfterChain(ictx, impl, toolCtx, args, response, callbacks.After)
	if err != nil {
		return nil, err
	}

	// Long-running tools answer later via a correlated function response.
	if impl.IsLongRunning() && response == nil {
		ictx.LogDebug("flow.function.pending", "function", fc.Name, "fc_id", fc.ID)
		return nil, nil
	}

	respEv := core.NewFunctionResponseEvent(ictx.InvocationID, ictx.Agent.Name(), fc.ID, fc.Name, response)
	respEv.Actions = *toolCtx.Actions()

	return &respEv, nil
}

func runBeforeChain(
	ictx *core.InvocationContext,
	impl core.Tool,
	toolCtx *core.ToolContext,
	args map[string]any,
	before []BeforeToolCallback,
) (map[string]any, error) {
	response, err := ictx.Plugins.RunBeforeTool(impl, toolCtx, args)
	if err != nil {
		return nil, err
	}
	if response != nil {
		return response, nil
	}

	for _, cb := range before {
		response, err = cb(impl, toolCtx, args)
		if err != nil {
			return nil, fmt.Errorf("before-tool callback for %s: %w", impl.Name(), err)
		}
		if response != nil {
			return response, nil
		}
	}

	return nil, nil
}

func runAfterChain(
	ictx *core.InvocationContext,
	impl core.Tool,
	toolCtx *core.ToolContext,
	args map[string]any,
	response map[string]any,
	after []AfterToolCallback,
) (map[string]any, error) {
	altered, err := ictx.Plugins.RunAfterTool(impl, toolCtx, args, response)
	if err != nil {
		return nil, err
	}
	if altered != nil {
		return altered, nil
	}

	for _, cb := range after {
		altered, err = cb(impl, toolCtx, args, response)
		if err != nil {
			return nil, fmt.Errorf("after-tool callback for %s: %w", impl.Name(), err)
		}
		if altered != nil {
			return altered, nil
		}
	}

	return response, nil
}

// mergeResponseEvents folds multiple function response events into one so a
// multi-call batch reads back as a single response turn. Parts keep request
// order; actions merge with later entries winning key conflicts.
func mergeResponseEvents(ictx *core.InvocationContext, responses []core.Event) *core.Event {
	merged := core.NewEvent(ictx.InvocationID, ictx.Agent.Name())

	parts := make([]core.Part, 0, len(responses))
	actions := make([]core.EventActions, 0, len(responses))
	for _, resp := range responses {
		if resp.Content != nil {
			parts = append(parts, resp.Content.Parts...)
		}
		actions = append(actions, resp.Actions)
	}

	merged.Content = &core.Content{Role: core.UserAuthor, Parts: parts}
	merged.Actions = core.MergeEventActions(actions...)

	return &merged
}

func decodeArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode function arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// normalizeResult coerces a tool result into the map shape function
// responses require. Bare values wrap as {"result": v}; nil stays nil so
// long-running calls can signal an out of band completion.
func normalizeResult(result any) map[string]any {
	if result == nil {
		return nil
	}
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": result}
}
