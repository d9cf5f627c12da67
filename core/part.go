package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         // Plain UTF-8 text
	Metadata map[string]any // Optional producer-provided metadata
}

func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data     map[string]any // Structured key/value payload
	Metadata map[string]any
}

func (DataPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Stable id correlating call and response
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (JSON)
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
	Metadata     map[string]any
}

func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string         `json:"name"`               // Function name
	Response map[string]any `json:"response,omitempty"` // Normalized key/value result
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
	Metadata         map[string]any
}

func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, system,...)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// partEnvelope is the JSON wire form of a Part. A "type" discriminator keeps
// the union round-trippable through stores and external clients.
type partEnvelope struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// MarshalJSON implements json.Marshaler for Content using the part envelope.
func (c Content) MarshalJSON() ([]byte, error) {
	envelopes := make([]partEnvelope, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch pt := p.(type) {
		case TextPart:
			envelopes = append(envelopes, partEnvelope{Type: "text", Text: pt.Text, Metadata: pt.Metadata})
		case DataPart:
			envelopes = append(envelopes, partEnvelope{Type: "data", Data: pt.Data, Metadata: pt.Metadata})
		case FunctionCallPart:
			fc := pt.FunctionCall
			envelopes = append(envelopes, partEnvelope{Type: "function_call", FunctionCall: &fc, Metadata: pt.Metadata})
		case FunctionResponsePart:
			fr := pt.FunctionResponse
			envelopes = append(envelopes, partEnvelope{Type: "function_response", FunctionResponse: &fr, Metadata: pt.Metadata})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}
	return json.Marshal(struct {
		Role  string         `json:"role,omitempty"`
		Parts []partEnvelope `json:"parts"`
	}{Role: c.Role, Parts: envelopes})
}

// UnmarshalJSON implements json.Unmarshaler for Content.
func (c *Content) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role  string         `json:"role"`
		Parts []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.Role = wire.Role
	c.Parts = make([]Part, 0, len(wire.Parts))
	for _, env := range wire.Parts {
		switch env.Type {
		case "text":
			c.Parts = append(c.Parts, TextPart{Text: env.Text, Metadata: env.Metadata})
		case "data":
			c.Parts = append(c.Parts, DataPart{Data: env.Data, Metadata: env.Metadata})
		case "function_call":
			if env.FunctionCall == nil {
				return fmt.Errorf("function_call part missing payload")
			}
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: *env.FunctionCall, Metadata: env.Metadata})
		case "function_response":
			if env.FunctionResponse == nil {
				return fmt.Errorf("function_response part missing payload")
			}
			c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: *env.FunctionResponse, Metadata: env.Metadata})
		default:
			return fmt.Errorf("unknown part type %q", env.Type)
		}
	}
	return nil
}

// NewTextContent builds a single-part text Content with the given role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts of the content in order.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}
