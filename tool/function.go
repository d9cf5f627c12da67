package tool

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/util"
)

// FunctionTool adapts a plain Go function into a core.Tool.
//
// It validates model supplied arguments against a JSON-schema-like parameter
// map before execution and normalizes failures to *ToolError with consistent
// codes:
//
//	VALIDATION_ERROR -> schema / argument mismatch
//	EXECUTION_ERROR  -> underlying function returned an error (non-ToolError)
//	(custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	longRunning bool
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// FunctionToolOptions configures optional FunctionTool behavior.
type FunctionToolOptions struct {
	// LongRunning marks the tool as completing out of band. A long-running
	// call that returns a nil result produces no response event; the real
	// response arrives later correlated by call id.
	LongRunning bool
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		longRunning: opts.LongRunning,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection. It is a convenience for simple argument containers.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, sumFn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// IsLongRunning reports whether the tool completes out of band.
func (t *FunctionTool) IsLongRunning() bool { return t.longRunning }

// Run validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
func (t *FunctionTool) Run(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.run.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.run.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			logger.Error("tool.run.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.run.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	logger.Info("tool.run.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
