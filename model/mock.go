// Package model hosts provider-neutral model helpers; concrete API adapters
// live in the openai and anthropic subpackages.
package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrun/core"
)

// MockModel is a lightweight in-memory core.Model useful for tests and
// examples. It supports canned prompt/response pairs and a scripted queue
// of full responses for exercising tool call loops.
type MockModel struct {
	mu        sync.Mutex
	info      core.ModelInfo
	responses map[string]string
	queue     []core.ModelResponse
	err       error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: core.ModelInfo{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// QueueResponse appends a scripted response; queued responses are consumed
// in order before any canned prompt matching applies.
func (m *MockModel) QueueResponse(resp core.ModelResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resp)
}

// FailWith makes the next Generate call report the given error.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Generate implements core.Model; emits optional streaming char chunks then
// the final response.
func (m *MockModel) Generate(ctx context.Context, req core.ModelRequest) (<-chan core.ModelResponse, <-chan error) {
	respCh := make(chan core.ModelResponse, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		m.mu.Lock()
		if err := m.err; err != nil {
			m.err = nil
			m.mu.Unlock()
			errCh <- err
			return
		}
		if len(m.queue) > 0 {
			next := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			respCh <- next
			return
		}
		m.mu.Unlock()

		var inputText string
		if len(req.Contents) > 0 {
			last := req.Contents[len(req.Contents)-1]
			for _, p := range last.Parts {
				if tp, ok := p.(core.TextPart); ok {
					inputText += tp.Text
				}
			}
		}

		m.mu.Lock()
		full := m.responses[inputText]
		m.mu.Unlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}

		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- core.ModelResponse{
					Partial: true,
					Content: core.Content{
						Role:  "assistant",
						Parts: []core.Part{core.TextPart{Text: string(r)}},
					},
				}:
				}
			}
		}

		respCh <- core.ModelResponse{
			Partial: false,
			Content: core.Content{
				Role:  "assistant",
				Parts: []core.Part{core.TextPart{Text: full}},
			},
			FinishReason: "stop",
		}
	}()

	return respCh, errCh
}

// Info implements core.Model.
func (m *MockModel) Info() core.ModelInfo { return m.info }
