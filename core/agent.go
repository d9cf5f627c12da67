package core

// Agent is the primary processing unit. Agents receive input through an
// InvocationContext, process it, and emit events to communicate results and
// state changes back to the Runner.
//
// The interface supports hierarchical multi-agent trees: each node owns its
// children and holds a non-owning back-reference to its parent used by the
// resolution walk. Implementations must respect context cancellation and emit
// events through the provided InvocationContext.
type Agent interface {
	Name() string
	Description() string

	// Run executes the agent, emitting events via ictx until the turn is
	// complete or the context is cancelled.
	Run(ictx *InvocationContext) error

	// SetSubAgents replaces the child set, assigning this agent as parent.
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent

	// FindAgent performs a depth-first search over the subtree rooted at
	// this agent (including itself) by name.
	FindAgent(name string) Agent

	// DisallowTransferToParent reports whether the resolution walk must skip
	// this agent when deciding who continues a conversation.
	DisallowTransferToParent() bool
}

// RootAgent walks parent links from a to the top of the tree.
func RootAgent(a Agent) Agent {
	for a.Parent() != nil {
		a = a.Parent()
	}
	return a
}
