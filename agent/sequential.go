package agent

import (
	"fmt"

	"github.com/hupe1980/agentrun/core"
)

// SequentialAgent coordinates the execution of multiple child agents in
// order, sharing the invocation's session state between them. Each child's
// events land in the session before the next child starts, so later steps
// can build on earlier outputs.
type SequentialAgent struct {
	BaseAgent
}

// NewSequentialAgent creates a sequential execution coordinator over the
// given children.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	s := &SequentialAgent{BaseAgent: NewBaseAgent(name)}
	s.Bind(s)
	_ = s.SetSubAgents(children...)
	return s
}

// Run executes each child agent in order under a child context carrying an
// extended branch; errors stop further processing immediately.
func (s *SequentialAgent) Run(ictx *core.InvocationContext) error {
	for _, child := range s.SubAgents() {
		childCtx := ictx.NewChildContext(child, child.Name())
		if err := child.Run(childCtx); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
