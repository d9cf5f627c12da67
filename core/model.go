package core

import "context"

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ModelRequest captures the normalized model input produced by flows.
type ModelRequest struct {
	Instructions string           `json:"instructions"`
	Contents     []Content        `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelResponse is a (partial or final) chunk emitted by a streaming model.
type ModelResponse struct {
	Partial      bool        `json:"partial"`
	Content      Content     `json:"content"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// ModelInfo contains metadata about a model implementation.
type ModelInfo struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows to drive generation. The
// engine treats the transport as a black box that turns a request into a
// stream of response chunks or an error.
type Model interface {
	Generate(ctx context.Context, req ModelRequest) (<-chan ModelResponse, <-chan error)

	// Info returns information about the model implementation.
	Info() ModelInfo
}
