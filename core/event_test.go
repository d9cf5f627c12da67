package core

import (
	"encoding/json"
	"testing"
)

func TestEvent_ConstructorsAndMethods(t *testing.T) {
	e := NewEvent("inv-123", "authorA")
	if e.Author != "authorA" || e.InvocationID != "inv-123" || e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("NewEvent did not initialize fields correctly: %+v", e)
	}

	msg := NewMessageEvent("inv-1", "agent1", "hello world")
	if msg.Content == nil || msg.Content.Role != "assistant" || len(msg.Content.Parts) != 1 {
		t.Fatalf("NewMessageEvent malformed: %+v", msg)
	}

	user := NewUserMessageEvent("inv-1", "hi")
	if user.Content == nil || user.Content.Role != "user" || user.Author != UserAuthor {
		t.Fatalf("NewUserMessageEvent malformed: %+v", user)
	}

	fResp := NewFunctionResponseEvent("inv-1", "agent2", "call-1", "do_stuff", map[string]any{"result": 42})
	if fResp.Content == nil || fResp.Content.Role != "user" {
		t.Fatalf("function response event should carry role user content: %+v", fResp)
	}
	resps := fResp.GetFunctionResponses()
	if len(resps) != 1 || resps[0].ID != "call-1" || resps[0].Name != "do_stuff" {
		t.Fatalf("GetFunctionResponses extraction failed: %+v", resps)
	}
	if resps[0].Response["result"] != 42 {
		t.Fatalf("response payload lost: %+v", resps[0].Response)
	}
}

func TestEvent_GetFunctionCallsOrder(t *testing.T) {
	e := NewEvent("inv", "agent")
	e.Content = &Content{Role: "assistant", Parts: []Part{
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "first"}},
		TextPart{Text: "thinking"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c2", Name: "second"}},
	}}

	calls := e.GetFunctionCalls()
	if len(calls) != 2 || calls[0].Name != "first" || calls[1].Name != "second" {
		t.Fatalf("expected ordered extraction, got %+v", calls)
	}
}

func TestEvent_IsFinalResponseLogic(t *testing.T) {
	e := NewEvent("inv", "agent")
	if !e.IsFinalResponse() {
		t.Error("plain event should be final")
	}

	partial := true
	e2 := NewEvent("inv", "agent")
	e2.Partial = &partial
	if e2.IsFinalResponse() {
		t.Error("partial event should not be final")
	}

	e3 := NewEvent("inv", "agent")
	e3.Content = &Content{Role: "assistant", Parts: []Part{
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "f"}},
	}}
	if e3.IsFinalResponse() {
		t.Error("event with pending function call should not be final")
	}

	e4 := NewFunctionResponseEvent("inv", "agent", "c1", "f", map[string]any{"result": "ok"})
	if e4.IsFinalResponse() {
		t.Error("plain function response should not be final")
	}

	skip := true
	e5 := NewFunctionResponseEvent("inv", "agent", "c2", "f", map[string]any{"result": "ok"})
	e5.Actions.SkipSummarization = &skip
	if !e5.IsFinalResponse() {
		t.Error("skip-summarization response should be final")
	}

	e6 := NewEvent("inv", "agent")
	e6.LongRunningToolIDs = []string{"c3"}
	e6.Content = &Content{Role: "assistant", Parts: []Part{
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c3", Name: "slow"}},
	}}
	if !e6.IsFinalResponse() {
		t.Error("event carrying long-running tool ids should be final")
	}
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	branch := "root.child"
	partial := false
	e := NewEvent("inv-9", "agent")
	e.Branch = &branch
	e.Partial = &partial
	e.Content = &Content{Role: "assistant", Parts: []Part{
		TextPart{Text: "hello"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "f", Arguments: `{"x":1}`}},
		FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "c0", Name: "g", Response: map[string]any{"ok": true}}},
		DataPart{Data: map[string]any{"k": "v"}},
	}}
	e.Actions.StateDelta = map[string]any{"counter": float64(3)}

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.ID != e.ID || decoded.Author != e.Author || decoded.Branch == nil || *decoded.Branch != branch {
		t.Fatalf("identity fields lost: %+v", decoded)
	}
	if decoded.Content == nil || len(decoded.Content.Parts) != 4 {
		t.Fatalf("parts lost in round trip: %+v", decoded.Content)
	}
	calls := decoded.GetFunctionCalls()
	if len(calls) != 1 || calls[0].Arguments != `{"x":1}` {
		t.Fatalf("function call lost: %+v", calls)
	}
	if decoded.Actions.StateDelta["counter"] != float64(3) {
		t.Fatalf("state delta lost: %+v", decoded.Actions.StateDelta)
	}
}

func TestContent_UnknownPartType(t *testing.T) {
	var c Content
	err := c.UnmarshalJSON([]byte(`{"role":"user","parts":[{"type":"bogus"}]}`))
	if err == nil {
		t.Fatal("expected error for unknown part type")
	}
}
