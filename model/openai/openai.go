// Package openai implements core.Model using the OpenAI Chat Completions
// API (including streaming and function/tool calling). It adapts the
// normalized ModelRequest/ModelResponse structures into the SDK's message
// format and back.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentrun/core"
)

// aggCall aggregates partial tool call streaming deltas (id, name,
// arguments) allowing reconstruction of complete function call parts when a
// finish reason is emitted.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI model adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind core.Model.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req core.ModelRequest) (<-chan core.ModelResponse, <-chan error) {
	out := make(chan core.ModelResponse, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts normalized contents into OpenAI chat messages.
// Function responses appear as tool messages immediately after the
// assistant message carrying the matching call.
func buildMessages(req core.ModelRequest) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, c := range req.Contents {
		text := contentText(c)

		if responses := functionResponses(c); len(responses) > 0 {
			for _, fr := range responses {
				messages = append(messages, openai.ToolMessage(encodeResponse(fr.Response), fr.ID))
			}
			continue
		}

		switch c.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(text))
		case "assistant":
			toolCalls := extractToolCalls(c)
			if len(toolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCalls,
			}
			if text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		default:
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}

	return messages
}

func contentText(c core.Content) string {
	var b strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(core.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

func functionResponses(c core.Content) []core.FunctionResponse {
	var out []core.FunctionResponse
	for _, p := range c.Parts {
		if fr, ok := p.(core.FunctionResponsePart); ok && fr.FunctionResponse.ID != "" {
			out = append(out, fr.FunctionResponse)
		}
	}
	return out
}

func encodeResponse(response map[string]any) string {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Sprintf("%v", response)
	}
	return string(data)
}

// extractToolCalls extracts tool call parts in OpenAI format.
func extractToolCalls(c core.Content) []openai.ChatCompletionMessageToolCallParam {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   fc.FunctionCall.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      fc.FunctionCall.Name,
					Arguments: fc.FunctionCall.Arguments,
				},
			})
		}
	}
	return toolCalls
}

// buildParams assembles the OpenAI request parameters including tool
// definitions.
func (m *Model) buildParams(req core.ModelRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// handleStreaming processes streaming responses and forwards partial /
// final chunks.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- core.ModelResponse,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var textBuilder strings.Builder
	toolAgg := map[int64]*aggCall{}
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			m.emitTextDelta(ch, &textBuilder, out)
			m.aggregateToolCallDeltas(ch, toolAgg)
			if ch.FinishReason != "" {
				m.emitFinalChunk(ch, &textBuilder, toolAgg, out)
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

func (m *Model) emitTextDelta(
	ch openai.ChatCompletionChunkChoice,
	builder *strings.Builder,
	out chan<- core.ModelResponse,
) {
	if ch.Delta.Content == "" {
		return
	}
	builder.WriteString(ch.Delta.Content)
	out <- core.ModelResponse{
		Partial: true,
		Content: core.Content{
			Role:  "assistant",
			Parts: []core.Part{core.TextPart{Text: ch.Delta.Content}},
		},
	}
}

func (m *Model) aggregateToolCallDeltas(ch openai.ChatCompletionChunkChoice, agg map[int64]*aggCall) {
	for _, tc := range ch.Delta.ToolCalls {
		ac, ok := agg[tc.Index]
		if !ok {
			ac = &aggCall{}
			agg[tc.Index] = ac
		}
		if tc.ID != "" {
			ac.id = tc.ID
		}
		if tc.Function.Name != "" {
			ac.name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			ac.args += tc.Function.Arguments
		}
	}
}

func (m *Model) emitFinalChunk(
	ch openai.ChatCompletionChunkChoice,
	builder *strings.Builder,
	toolAgg map[int64]*aggCall,
	out chan<- core.ModelResponse,
) {
	finalParts := make([]core.Part, 0, len(toolAgg)+1)
	if builder.Len() > 0 {
		finalParts = append(finalParts, core.TextPart{Text: builder.String()})
	}
	for _, ac := range toolAgg {
		finalParts = append(finalParts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        ac.id,
			Name:      ac.name,
			Arguments: ac.args,
		}})
	}
	out <- core.ModelResponse{
		Partial:      false,
		Content:      core.Content{Role: "assistant", Parts: finalParts},
		FinishReason: string(ch.FinishReason),
	}
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- core.ModelResponse,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}
	out <- core.ModelResponse{
		Partial:      false,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: string(ch0.FinishReason),
		Usage: &core.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() core.ModelInfo {
	return core.ModelInfo{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
