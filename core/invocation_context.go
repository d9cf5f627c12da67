package core

import (
	"context"

	"github.com/hupe1980/agentrun/logging"
)

// InvocationContext is the request-scoped handle threaded through agent
// execution for one turn. It aggregates:
//   - The ambient cancellation Context
//   - Identity (InvocationID, AppName, UserID) fixed for the whole turn
//   - The resolved Agent and a Branch label isolating sub-agent lineages
//   - The ordered plugin registry (Plugins)
//   - Emission / resumption coordination channels
//   - Backing services (session, artifact, memory)
//   - A working Session snapshot and the per-turn model-call Limiter
//
// Sub-agent calls derive child contexts with an extended Branch; identity
// fields are never mutated. The context is transient: discarded when the turn
// ends.
type InvocationContext struct {
	Context      context.Context
	InvocationID string
	AppName      string
	UserID       string
	Agent        Agent
	Branch       string
	UserContent  *Content
	RunConfig    RunConfig

	Plugins *PluginManager
	Limiter *ModelLimiter

	Emit   chan<- Event
	Resume <-chan struct{}

	Session         *Session
	SessionService  SessionService
	ArtifactService ArtifactStore
	MemoryService   MemoryStore

	*loggerAdapter
}

// InvocationContextParams bundles the constructor inputs; zero-value services
// are allowed and guarded at call sites.
type InvocationContextParams struct {
	Context         context.Context
	InvocationID    string
	AppName         string
	UserID          string
	Agent           Agent
	Branch          string
	UserContent     *Content
	RunConfig       RunConfig
	Plugins         *PluginManager
	Emit            chan<- Event
	Resume          <-chan struct{}
	Session         *Session
	SessionService  SessionService
	ArtifactService ArtifactStore
	MemoryService   MemoryStore
	Logger          logging.Logger
}

// NewInvocationContext constructs an InvocationContext for one turn.
func NewInvocationContext(p InvocationContextParams) *InvocationContext {
	plugins := p.Plugins
	if plugins == nil {
		plugins, _ = NewPluginManager()
	}
	return &InvocationContext{
		Context:         p.Context,
		InvocationID:    p.InvocationID,
		AppName:         p.AppName,
		UserID:          p.UserID,
		Agent:           p.Agent,
		Branch:          p.Branch,
		UserContent:     p.UserContent,
		RunConfig:       p.RunConfig,
		Plugins:         plugins,
		Limiter:         NewModelLimiter(p.RunConfig.MaxModelCalls),
		Emit:            p.Emit,
		Resume:          p.Resume,
		Session:         p.Session,
		SessionService:  p.SessionService,
		ArtifactService: p.ArtifactService,
		MemoryService:   p.MemoryService,
		loggerAdapter:   newLoggerAdapter(p.Logger),
	}
}

// Done mirrors context.Context's Done.
func (ic *InvocationContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (ic *InvocationContext) Err() error { return ic.Context.Err() }

// GetState reads a key from the session's effective state view.
func (ic *InvocationContext) GetState(k string) (any, bool) {
	if ic.Session == nil {
		return nil, false
	}
	return ic.Session.GetState(k)
}

// GetSessionHistory returns all historical events for the session.
func (ic *InvocationContext) GetSessionHistory() []Event {
	if ic.Session == nil {
		return []Event{}
	}
	return ic.Session.GetEvents()
}

// RefreshSession reloads the session snapshot from the SessionService so the
// next model turn sees events persisted meanwhile.
func (ic *InvocationContext) RefreshSession() error {
	if ic.SessionService == nil {
		return NewConfigurationError("session service not configured")
	}
	s, err := ic.SessionService.Get(ic.AppName, ic.UserID, ic.Session.ID, nil)
	if err != nil {
		return err
	}
	ic.Session = s
	return nil
}

// NewChildContext derives a context for a sub-agent execution path. Identity
// fields and services are shared; the branch is extended with the child agent
// name for isolation. The emit and resume channels are inherited so child
// events flow through the same persistence pipeline.
func (ic *InvocationContext) NewChildContext(agent Agent, branch string) *InvocationContext {
	child := *ic
	child.Agent = agent
	if branch != "" {
		if ic.Branch != "" {
			child.Branch = ic.Branch + "." + branch
		} else {
			child.Branch = branch
		}
	}
	return &child
}

// EmitEvent stamps the invocation id and branch onto ev, sends it on the Emit
// channel, then waits for the runner's persistence acknowledgement so the
// session snapshot can be refreshed before the producer continues. Partial
// events are not persisted and therefore not acknowledged.
func (ic *InvocationContext) EmitEvent(ev Event) error {
	if ev.InvocationID == "" {
		ev.InvocationID = ic.InvocationID
	}
	if ev.Branch == nil && ic.Branch != "" {
		b := ic.Branch
		ev.Branch = &b
	}
	select {
	case <-ic.Context.Done():
		return ic.Context.Err()
	case ic.Emit <- ev:
	}
	if !ev.IsPartial() && ic.Resume != nil {
		select {
		case <-ic.Context.Done():
			return ic.Context.Err()
		case <-ic.Resume:
		}
	}
	return nil
}
