package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/session"
)

func TestBaseAgent_HierarchyAndLookup(t *testing.T) {
	m := model.NewMockModel("mock", "test")

	root := NewLLMAgent("Root", m)
	billing := NewLLMAgent("Billing", m)
	tech := NewLLMAgent("Tech", m)
	escalations := NewLLMAgent("Escalations", m)

	require.NoError(t, root.SetSubAgents(billing, tech))
	require.NoError(t, tech.SetSubAgents(escalations))

	assert.Same(t, root, core.RootAgent(escalations).(*LLMAgent))
	assert.Same(t, root, billing.Parent().(*LLMAgent))

	// FindAgent resolves to the concrete runnable agent at any depth.
	found := root.FindAgent("Escalations")
	require.NotNil(t, found)
	assert.Same(t, escalations, found.(*LLMAgent))

	assert.Same(t, root, root.FindAgent("Root").(*LLMAgent))
	assert.Nil(t, root.FindAgent("Ghost"))
}

func TestBaseAgent_SetSubAgentsReplacesChildren(t *testing.T) {
	m := model.NewMockModel("mock", "test")

	root := NewLLMAgent("Root", m)
	first := NewLLMAgent("First", m)
	second := NewLLMAgent("Second", m)

	require.NoError(t, root.SetSubAgents(first))
	require.NoError(t, root.SetSubAgents(second))

	assert.Nil(t, first.Parent(), "replaced child keeps no stale parent link")
	require.Len(t, root.SubAgents(), 1)
	assert.Equal(t, "Second", root.SubAgents()[0].Name())
}

func TestBaseAgent_SubAgentsReturnsCopy(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	root := NewLLMAgent("Root", m)
	require.NoError(t, root.SetSubAgents(NewLLMAgent("Child", m)))

	subs := root.SubAgents()
	subs[0] = nil
	assert.NotNil(t, root.SubAgents()[0])
}

func TestBaseAgent_ConcurrentConfigAccess(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewLLMAgent("Agent", m)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.SetDescription(fmt.Sprintf("description %d", i))
			_ = a.Description()
			a.SetDisallowTransferToParent(i%2 == 0)
			_ = a.DisallowTransferToParent()
		}(i)
	}
	wg.Wait()

	assert.Contains(t, a.Description(), "description")
}

func TestLLMAgent_Defaults(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewLLMAgent("Helper", m)

	assert.Equal(t, "Helper", a.Name())
	assert.True(t, a.TransferEnabled())
	assert.False(t, a.DisallowTransferToParent())
	assert.Equal(t, 20, a.MaxHistoryMessages())
	assert.Empty(t, a.Tools())
}

func TestLLMAgent_Options(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewLLMAgent("Specialist", m, func(o *LLMAgentOptions) {
		o.AllowTransfer = false
		o.DisallowTransferToParent = true
		o.MaxHistoryMessages = 5
	})

	assert.False(t, a.TransferEnabled())
	assert.True(t, a.DisallowTransferToParent())
	assert.Equal(t, 5, a.MaxHistoryMessages())
}

type namedTool struct{ name string }

func (n *namedTool) Name() string               { return n.name }
func (n *namedTool) Description() string        { return "" }
func (n *namedTool) Parameters() map[string]any { return map[string]any{} }
func (n *namedTool) IsLongRunning() bool        { return false }
func (n *namedTool) Run(*core.ToolContext, map[string]any) (any, error) {
	return nil, nil
}

func TestLLMAgent_ToolRegistration(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewLLMAgent("Helper", m)

	a.RegisterTools(&namedTool{name: "alpha"}, &namedTool{name: "beta"})
	assert.True(t, a.HasTool("alpha"))
	assert.True(t, a.HasTool("beta"))
	assert.False(t, a.HasTool("gamma"))

	// Tools returns a copy; mutating it does not affect the agent.
	tools := a.Tools()
	delete(tools, "alpha")
	assert.True(t, a.HasTool("alpha"))
}

func newAgentContext(t *testing.T, a core.Agent, state map[string]any) (*core.InvocationContext, chan core.Event, chan struct{}) {
	t.Helper()

	svc := session.NewInMemoryService()
	sess, err := svc.Create("test-app", "test-user", "sess-1", state)
	require.NoError(t, err)

	_, err = svc.AppendEvent(sess, core.NewUserMessageEvent("inv-0", "hello"))
	require.NoError(t, err)

	emit := make(chan core.Event, 16)
	resume := make(chan struct{}, 1)

	ictx := core.NewInvocationContext(core.InvocationContextParams{
		Context:        context.Background(),
		InvocationID:   "inv-1",
		AppName:        "test-app",
		UserID:         "test-user",
		Agent:          a,
		Session:        sess,
		SessionService: svc,
		Emit:           emit,
		Resume:         resume,
	})
	return ictx, emit, resume
}

func drainRun(t *testing.T, a core.Agent, ictx *core.InvocationContext, emit chan core.Event, resume chan struct{}) ([]core.Event, error) {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ictx)
		close(emit)
	}()

	var events []core.Event
	for ev := range emit {
		if !ev.IsPartial() {
			_, err := ictx.SessionService.AppendEvent(ictx.Session, ev)
			require.NoError(t, err)
			events = append(events, ev)
			resume <- struct{}{}
		}
	}
	return events, <-errCh
}

func TestLLMAgent_RunProducesFinalResponse(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddResponse("hello", "hi from the model")

	a := NewLLMAgent("Helper", m)
	ictx, emit, resume := newAgentContext(t, a, nil)

	events, err := drainRun(t, a, ictx, emit, resume)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hi from the model", events[0].Content.Text())
	assert.Equal(t, "Helper", events[0].Author)
}

func TestInstruction_StaticAndProvider(t *testing.T) {
	static := NewInstructionFromText("be brief")
	assert.True(t, static.IsStatic())
	out, err := static.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "be brief", out)

	dynamic := NewInstructionFromFunc(func(*core.InvocationContext) (string, error) {
		return "from provider", nil
	})
	assert.False(t, dynamic.IsStatic())
	out, err = dynamic.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "from provider", out)

	failing := NewInstructionFromFunc(func(*core.InvocationContext) (string, error) {
		return "", errors.New("no instruction")
	})
	_, err = failing.Resolve(nil)
	assert.Error(t, err)
}

func TestLLMAgent_ResolveInstructionsRendersState(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewLLMAgent("Helper", m, func(o *LLMAgentOptions) {
		o.Instruction = NewInstructionFromText("Assist {{.user_name}} in {{.style | upper}} style.")
	})

	ictx, _, _ := newAgentContext(t, a, map[string]any{
		"user_name": "Ada",
		"style":     "formal",
	})

	out, err := a.ResolveInstructions(ictx)
	require.NoError(t, err)
	assert.Equal(t, "Assist Ada in FORMAL style.", out)
}

type scriptedAgent struct {
	BaseAgent
	order *[]string
	fail  error
}

func newScriptedAgent(name string, order *[]string, fail error) *scriptedAgent {
	a := &scriptedAgent{BaseAgent: NewBaseAgent(name), order: order, fail: fail}
	a.Bind(a)
	return a
}

func (a *scriptedAgent) Run(ictx *core.InvocationContext) error {
	*a.order = append(*a.order, a.Name()+"@"+ictx.Branch)
	return a.fail
}

func TestSequentialAgent_RunsChildrenInOrder(t *testing.T) {
	var order []string
	seq := NewSequentialAgent("Pipeline",
		newScriptedAgent("step1", &order, nil),
		newScriptedAgent("step2", &order, nil),
		newScriptedAgent("step3", &order, nil),
	)

	ictx, _, _ := newAgentContext(t, seq, nil)
	require.NoError(t, seq.Run(ictx))

	assert.Equal(t, []string{"step1@step1", "step2@step2", "step3@step3"}, order)
}

func TestSequentialAgent_StopsOnChildError(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	seq := NewSequentialAgent("Pipeline",
		newScriptedAgent("step1", &order, nil),
		newScriptedAgent("step2", &order, boom),
		newScriptedAgent("step3", &order, nil),
	)

	ictx, _, _ := newAgentContext(t, seq, nil)
	err := seq.Run(ictx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step2")
	assert.Equal(t, []string{"step1@step1", "step2@step2"}, order)
}

func TestSequentialAgent_PartOfTree(t *testing.T) {
	var order []string
	child := newScriptedAgent("worker", &order, nil)
	seq := NewSequentialAgent("Pipeline", child)

	assert.Same(t, seq, core.RootAgent(child).(*SequentialAgent))
	found := seq.FindAgent("worker")
	require.NotNil(t, found)
	assert.Same(t, child, found.(*scriptedAgent))
}
