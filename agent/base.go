package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentrun/core"
)

// BaseAgent bundles hierarchy management and identity helpers. Embed it in
// concrete agent implementations and supply a Run method to satisfy the
// core.Agent interface. All exported methods are goroutine-safe unless
// otherwise documented.
type BaseAgent struct {
	name             string
	description      string
	mu               sync.Mutex
	self             core.Agent
	parent           core.Agent
	subAgents        []core.Agent
	disallowToParent bool
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.description
}

// SetDescription updates the agent's description exposed to models and peers.
func (b *BaseAgent) SetDescription(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = desc
}

// DisallowTransferToParent reports whether conversation resolution must skip
// this agent when it would otherwise continue a prior exchange.
func (b *BaseAgent) DisallowTransferToParent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disallowToParent
}

// SetDisallowTransferToParent marks this agent as non-resumable by the
// resolution walk; only explicit transfer or function-response correlation
// can reach it.
func (b *BaseAgent) SetDisallowTransferToParent(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disallowToParent = v
}

// SetSubAgents atomically replaces the child agent set, clearing any previous
// parent links then assigning this agent as the parent of each new child. It
// enforces a single-parent invariant for all managed children.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, child := range b.subAgents {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(nil)
		}
	}
	b.subAgents = nil

	for _, child := range children {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(b.asAgent())
		}
		b.subAgents = append(b.subAgents, child)
	}

	return nil
}

// asAgent returns the concrete agent embedding this BaseAgent when known,
// falling back to a wrapper whose Run refuses execution.
func (b *BaseAgent) asAgent() core.Agent {
	if b.self != nil {
		return b.self
	}
	return &agentWrapper{b}
}

// Bind registers the concrete agent embedding this BaseAgent so hierarchy
// references resolve to the runnable implementation. Constructors in this
// package call it; custom agents embedding BaseAgent should do the same.
func (b *BaseAgent) Bind(self core.Agent) { b.self = self }

// setParent sets the internal parent reference.
func (b *BaseAgent) setParent(p core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = p
}

// Parent returns the current parent agent or nil if this agent is root.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// SubAgents returns a shallow copy of current child agents for safe iteration.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)
	return result
}

// FindAgent performs a depth-first search over the subtree rooted at this
// agent (including itself) returning the first agent whose Name matches.
// Returns nil if no match is found.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	if b.name == name {
		return b.asAgent()
	}

	for _, child := range b.SubAgents() {
		if child.Name() == name {
			return child
		}
		if found := child.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

// agentWrapper wraps BaseAgent to satisfy Agent for hierarchy references.
type agentWrapper struct{ *BaseAgent }

func (w *agentWrapper) Run(_ *core.InvocationContext) error {
	return fmt.Errorf("cannot execute BaseAgent directly - embed it in a concrete agent with Run implementation")
}
