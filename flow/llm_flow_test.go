package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/session"
	"github.com/hupe1980/agentrun/tool"
)

// fakeFlowAgent implements FlowAgent directly so the flow can be exercised
// without depending on the agent package.
type fakeFlowAgent struct {
	name         string
	model        core.Model
	tools        map[string]core.Tool
	callbacks    ToolCallbacks
	parent       core.Agent
	subs         []core.Agent
	transfer     bool
	maxHist      int
	instructions string
	ran          bool
}

func (a *fakeFlowAgent) Name() string        { return a.name }
func (a *fakeFlowAgent) Description() string { return "" }

func (a *fakeFlowAgent) Run(ictx *core.InvocationContext) error {
	a.ran = true
	return nil
}

func (a *fakeFlowAgent) SetSubAgents(children ...core.Agent) error {
	a.subs = children
	for _, c := range children {
		if fa, ok := c.(*fakeFlowAgent); ok {
			fa.parent = a
		}
	}
	return nil
}

func (a *fakeFlowAgent) SubAgents() []core.Agent { return a.subs }
func (a *fakeFlowAgent) Parent() core.Agent      { return a.parent }

func (a *fakeFlowAgent) FindAgent(name string) core.Agent {
	if a.name == name {
		return a
	}
	for _, c := range a.subs {
		if found := c.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

func (a *fakeFlowAgent) DisallowTransferToParent() bool { return false }

func (a *fakeFlowAgent) Model() core.Model { return a.model }

func (a *fakeFlowAgent) ResolveInstructions(*core.InvocationContext) (string, error) {
	return a.instructions, nil
}

func (a *fakeFlowAgent) Tools() map[string]core.Tool {
	if a.tools == nil {
		return map[string]core.Tool{}
	}
	return a.tools
}

func (a *fakeFlowAgent) Callbacks() ToolCallbacks { return a.callbacks }
func (a *fakeFlowAgent) TransferEnabled() bool    { return a.transfer }
func (a *fakeFlowAgent) MaxHistoryMessages() int  { return a.maxHist }

type flowHarness struct {
	ictx   *core.InvocationContext
	emit   chan core.Event
	resume chan struct{}
	svc    core.SessionService
}

func newFlowHarness(t *testing.T, agent *fakeFlowAgent, cfg core.RunConfig) *flowHarness {
	t.Helper()

	svc := session.NewInMemoryService()
	sess, err := svc.Create("test-app", "test-user", "sess-1", nil)
	require.NoError(t, err)

	userEv := core.NewUserMessageEvent("inv-0", "hello")
	_, err = svc.AppendEvent(sess, userEv)
	require.NoError(t, err)

	emit := make(chan core.Event, 16)
	resume := make(chan struct{}, 1)

	ictx := core.NewInvocationContext(core.InvocationContextParams{
		Context:        context.Background(),
		InvocationID:   "inv-1",
		AppName:        "test-app",
		UserID:         "test-user",
		Agent:          agent,
		RunConfig:      cfg,
		Emit:           emit,
		Resume:         resume,
		Session:        sess,
		SessionService: svc,
	})

	return &flowHarness{ictx: ictx, emit: emit, resume: resume, svc: svc}
}

// run drives the flow while acting as the runner: persist each complete
// event, then release the producer.
func (h *flowHarness) run(t *testing.T, f *LLMFlow) ([]core.Event, error) {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.Run(h.ictx)
		close(h.emit)
	}()

	var events []core.Event
	for ev := range h.emit {
		if !ev.IsPartial() {
			_, err := h.svc.AppendEvent(h.ictx.Session, ev)
			require.NoError(t, err)
		}
		events = append(events, ev)
		if !ev.IsPartial() {
			h.resume <- struct{}{}
		}
	}
	return events, <-errCh
}

func TestLLMFlow_SimpleTextTurn(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddResponse("hello", "hi there")

	agent := &fakeFlowAgent{name: "Agent", model: m}
	h := newFlowHarness(t, agent, core.RunConfig{})

	events, err := h.run(t, NewLLMFlow(agent, nil))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "Agent", ev.Author)
	assert.Equal(t, "hi there", ev.Content.Text())
	require.NotNil(t, ev.TurnComplete)
	assert.True(t, *ev.TurnComplete)
	assert.False(t, ev.IsPartial())
}

func TestLLMFlow_ToolLoop(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.QueueResponse(core.ModelResponse{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "lookup", Arguments: `{"q":"go"}`}},
		}},
	})
	m.QueueResponse(core.ModelResponse{
		Content:      core.NewTextContent("assistant", "found it"),
		FinishReason: "stop",
	})

	lookup := tool.NewFunctionTool("lookup", "", map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			return map[string]any{"hits": 3}, nil
		})

	agent := &fakeFlowAgent{name: "Agent", model: m, tools: map[string]core.Tool{"lookup": lookup}}
	h := newFlowHarness(t, agent, core.RunConfig{})

	events, err := h.run(t, NewLLMFlow(agent, nil))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Len(t, events[0].GetFunctionCalls(), 1)
	resps := events[1].GetFunctionResponses()
	require.Len(t, resps, 1)
	assert.Equal(t, map[string]any{"hits": 3}, resps[0].Response)
	assert.Equal(t, "found it", events[2].Content.Text())
}

func TestLLMFlow_SkipSummarizationEndsTurn(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.QueueResponse(core.ModelResponse{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "final"}},
		}},
	})

	final := tool.NewFunctionTool("final", "", map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			tc.SkipSummarization()
			return map[string]any{"answer": 42}, nil
		})

	agent := &fakeFlowAgent{name: "Agent", model: m, tools: map[string]core.Tool{"final": final}}
	h := newFlowHarness(t, agent, core.RunConfig{})

	events, err := h.run(t, NewLLMFlow(agent, nil))
	require.NoError(t, err)

	// The tool response ends the turn without a summarizing model call.
	require.Len(t, events, 2)
	resps := events[1].GetFunctionResponses()
	require.Len(t, resps, 1)
	assert.Equal(t, map[string]any{"answer": 42}, resps[0].Response)
}

func TestLLMFlow_EscalateStops(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.QueueResponse(core.ModelResponse{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "raise"}},
		}},
	})

	raise := tool.NewFunctionTool("raise", "", map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			tc.Escalate()
			return map[string]any{"escalated": true}, nil
		})

	agent := &fakeFlowAgent{name: "Agent", model: m, tools: map[string]core.Tool{"raise": raise}}
	h := newFlowHarness(t, agent, core.RunConfig{})

	events, err := h.run(t, NewLLMFlow(agent, nil))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NotNil(t, events[1].Actions.Escalate)
	assert.True(t, *events[1].Actions.Escalate)
}

func TestLLMFlow_TransferRunsTarget(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.QueueResponse(core.ModelResponse{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "transfer_to_agent", Arguments: `{"agent":"Billing"}`}},
		}},
	})

	billing := &fakeFlowAgent{name: "Billing"}
	coordinator := &fakeFlowAgent{name: "Coordinator", model: m, transfer: true}
	require.NoError(t, coordinator.SetSubAgents(billing))

	h := newFlowHarness(t, coordinator, core.RunConfig{})

	_, err := h.run(t, NewLLMFlow(coordinator, tool.NewTransferToAgentTool()))
	require.NoError(t, err)
	assert.True(t, billing.ran, "transfer target must run under a child context")
}

func TestLLMFlow_TransferTargetMissing(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.QueueResponse(core.ModelResponse{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "transfer_to_agent", Arguments: `{"agent":"Ghost"}`}},
		}},
	})

	other := &fakeFlowAgent{name: "Other"}
	coordinator := &fakeFlowAgent{name: "Coordinator", model: m, transfer: true}
	require.NoError(t, coordinator.SetSubAgents(other))

	h := newFlowHarness(t, coordinator, core.RunConfig{})

	_, err := h.run(t, NewLLMFlow(coordinator, tool.NewTransferToAgentTool()))
	require.Error(t, err)

	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLLMFlow_ModelErrorIsFatalWithoutRecovery(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.FailWith(errors.New("upstream 500"))

	agent := &fakeFlowAgent{name: "Agent", model: m}
	h := newFlowHarness(t, agent, core.RunConfig{})

	_, err := h.run(t, NewLLMFlow(agent, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestLLMFlow_IncrementalStreamingEmitsPartials(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddResponse("hello", "abc")

	agent := &fakeFlowAgent{name: "Agent", model: m}
	h := newFlowHarness(t, agent, core.RunConfig{StreamingMode: core.StreamingModeIncremental})

	events, err := h.run(t, NewLLMFlow(agent, nil))
	require.NoError(t, err)

	var partials, finals int
	for _, ev := range events {
		if ev.IsPartial() {
			partials++
		} else {
			finals++
		}
	}
	assert.Equal(t, 3, partials, "one partial per streamed rune")
	assert.Equal(t, 1, finals)
}

func TestLLMFlow_LongRunningToolParksTurn(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.QueueResponse(core.ModelResponse{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "export"}},
		}},
	})

	export := tool.NewFunctionTool("export", "", map[string]any{"type": "object", "properties": map[string]any{}},
		func(*core.ToolContext, map[string]any) (any, error) {
			return nil, nil
		}, func(o *tool.FunctionToolOptions) { o.LongRunning = true })

	agent := &fakeFlowAgent{name: "Agent", model: m, tools: map[string]core.Tool{"export": export}}
	h := newFlowHarness(t, agent, core.RunConfig{})

	events, err := h.run(t, NewLLMFlow(agent, nil))
	require.NoError(t, err)

	// Only the model event surfaces; the pending call id is recorded so a
	// later invocation can resume by function-response correlation.
	require.Len(t, events, 1)
	assert.Equal(t, []string{"c1"}, events[0].LongRunningToolIDs)
	assert.Empty(t, events[0].GetFunctionResponses())
}

func TestLLMFlow_RegistryInjectsTransferToolOnlyInTrees(t *testing.T) {
	standalone := &fakeFlowAgent{name: "Solo", transfer: true}
	f := NewLLMFlow(standalone, tool.NewTransferToAgentTool())
	assert.NotContains(t, f.registry(), "transfer_to_agent")

	child := &fakeFlowAgent{name: "Child"}
	parent := &fakeFlowAgent{name: "Parent", transfer: true}
	require.NoError(t, parent.SetSubAgents(child))
	f = NewLLMFlow(parent, tool.NewTransferToAgentTool())
	assert.Contains(t, f.registry(), "transfer_to_agent")

	disabled := &fakeFlowAgent{name: "NoTransfer", transfer: false}
	require.NoError(t, disabled.SetSubAgents(&fakeFlowAgent{name: "Kid"}))
	f = NewLLMFlow(disabled, tool.NewTransferToAgentTool())
	assert.NotContains(t, f.registry(), "transfer_to_agent")
}

func TestLLMFlow_BranchVisibilityStopsAtSegmentBoundaries(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	agent := &fakeFlowAgent{name: "Agent", model: m}
	h := newFlowHarness(t, agent, core.RunConfig{})

	branched := func(branch, text string) core.Event {
		ev := core.NewUserMessageEvent("inv-0", text)
		ev.Branch = &branch
		return ev
	}
	for _, ev := range []core.Event{
		branched("root.b", "sibling draft"),
		branched("root.breview", "own draft"),
		branched("root.b.inner", "descendant draft"),
	} {
		_, err := h.svc.AppendEvent(h.ictx.Session, ev)
		require.NoError(t, err)
	}
	require.NoError(t, h.ictx.RefreshSession())

	f := NewLLMFlow(agent, nil)

	// "root.breview" is a sibling of "root.b", not a descendant, despite the
	// label prefix collision.
	h.ictx.Branch = "root.breview"
	var texts []string
	for _, ev := range f.visibleHistory(h.ictx) {
		if ev.Branch != nil {
			texts = append(texts, ev.Content.Text())
		}
	}
	assert.Equal(t, []string{"own draft"}, texts)

	h.ictx.Branch = "root.b.inner"
	texts = nil
	for _, ev := range f.visibleHistory(h.ictx) {
		if ev.Branch != nil {
			texts = append(texts, ev.Content.Text())
		}
	}
	assert.Equal(t, []string{"sibling draft", "descendant draft"}, texts)
}

func TestLLMFlow_MaxHistoryCapsRequest(t *testing.T) {
	m := model.NewMockModel("mock", "test")

	agent := &fakeFlowAgent{name: "Agent", model: m, maxHist: 1}
	h := newFlowHarness(t, agent, core.RunConfig{})

	// Seed extra history beyond the cap.
	for _, text := range []string{"one", "two"} {
		_, err := h.svc.AppendEvent(h.ictx.Session, core.NewUserMessageEvent("inv-0", text))
		require.NoError(t, err)
	}

	f := NewLLMFlow(agent, nil)
	require.NoError(t, h.ictx.RefreshSession())
	req, err := f.buildRequest(h.ictx)
	require.NoError(t, err)
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "two", req.Contents[0].Text())
}
