// Package runner coordinates one invocation turn end to end: it resolves
// the continuing agent, threads the plugin hook chain around execution,
// persists every event before emitting it to the caller and applies state
// deltas through the session service.
package runner

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrun/artifact"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/memory"
	"github.com/hupe1980/agentrun/session"
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// MaxModelCalls is the default per-turn model call cap, overridable per
	// request through RunConfig.
	MaxModelCalls int
	// SessionService persists sessions, state and history.
	SessionService core.SessionService
	// ArtifactService stores named binary artifacts.
	ArtifactService core.ArtifactStore
	// MemoryService backs memory search for tools.
	MemoryService core.MemoryStore
	// Plugins are registered in order; order defines hook precedence.
	Plugins []core.Plugin
	// Logger receives structured runner and agent logs.
	Logger logging.Logger
}

// RunRequest describes one turn of input.
type RunRequest struct {
	UserID    string
	SessionID string
	// NewMessage is the incoming user content. Plugins may replace it
	// before it reaches the session.
	NewMessage *core.Content
	// RunConfig tunes streaming and model call limits for this turn.
	RunConfig core.RunConfig
}

// Runner drives agent invocations for one application. Public methods are
// safe for concurrent use.
type Runner struct {
	appName string
	agent   core.Agent

	eventBufferSize int
	maxModelCalls   int

	sessionService  core.SessionService
	artifactService core.ArtifactStore
	memoryService   core.MemoryStore
	plugins         *core.PluginManager
	logger          logging.Logger
}

// New constructs a Runner for the given application name and root agent.
// Plugin registration fails on duplicate names.
func New(appName string, agent core.Agent, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		EventBufferSize: 100,
		MaxModelCalls:   100,
		SessionService:  session.NewInMemoryService(),
		ArtifactService: artifact.NewInMemoryStore(),
		MemoryService:   memory.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	plugins, err := core.NewPluginManager(opts.Plugins...)
	if err != nil {
		return nil, err
	}

	return &Runner{
		appName:         appName,
		agent:           agent,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		sessionService:  opts.SessionService,
		artifactService: opts.ArtifactService,
		memoryService:   opts.MemoryService,
		plugins:         plugins,
		logger:          opts.Logger,
	}, nil
}

// SessionService exposes the configured session backend, mainly so callers
// can create sessions before running turns.
func (r *Runner) SessionService() core.SessionService { return r.sessionService }

// AppName returns the application name sessions are scoped under.
func (r *Runner) AppName() string { return r.appName }

// Run executes one turn asynchronously. Events arrive on the first channel
// in order, each persisted before delivery; a fatal plugin or configuration
// error arrives on the second and terminates the turn without rollback.
// Both channels close when the turn ends.
func (r *Runner) Run(ctx context.Context, req RunRequest) (<-chan core.Event, <-chan error) {
	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)

	go func() {
		defer close(eventsCh)
		defer close(errorsCh)

		if err := r.runTurn(ctx, req, eventsCh); err != nil {
			select {
			case errorsCh <- err:
			default:
			}
		}
	}()

	return eventsCh, errorsCh
}

// RunSync executes one turn and drains all events into an ordered slice.
func (r *Runner) RunSync(ctx context.Context, req RunRequest) ([]core.Event, error) {
	eventsCh, errorsCh := r.Run(ctx, req)

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}
	if err := <-errorsCh; err != nil {
		return events, err
	}
	return events, nil
}

func (r *Runner) runTurn(ctx context.Context, req RunRequest, eventsCh chan<- core.Event) (err error) {
	sess, err := r.sessionService.Get(r.appName, req.UserID, req.SessionID, nil)
	if err != nil {
		return fmt.Errorf("get session %s: %w", req.SessionID, err)
	}

	runConfig := req.RunConfig
	if runConfig.MaxModelCalls == 0 {
		runConfig.MaxModelCalls = r.maxModelCalls
	}

	// A derived context unblocks the agent goroutine if the turn aborts
	// while it is mid-emit.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	invocationID := core.NewID()
	agentEmit := make(chan core.Event, r.eventBufferSize)
	resumeCh := make(chan struct{}, 1)

	ictx := core.NewInvocationContext(core.InvocationContextParams{
		Context:         ctx,
		InvocationID:    invocationID,
		AppName:         r.appName,
		UserID:          req.UserID,
		Agent:           r.agent,
		UserContent:     req.NewMessage,
		RunConfig:       runConfig,
		Plugins:         r.plugins,
		Emit:            agentEmit,
		Resume:          resumeCh,
		Session:         sess,
		SessionService:  r.sessionService,
		ArtifactService: r.artifactService,
		MemoryService:   r.memoryService,
		Logger:          r.logger,
	})

	// afterRun is unconditional, even after a short-circuited turn. Its
	// error is fatal like any other hook error, unless the turn already
	// failed.
	defer func() {
		if afterErr := r.plugins.RunAfterRun(ictx); afterErr != nil {
			r.logger.Error("runner.after_run.error", "error", afterErr.Error())
			if err == nil {
				err = afterErr
			}
		}
	}()

	message := req.NewMessage
	if replaced, err := r.plugins.RunOnUserMessage(ictx, message); err != nil {
		return err
	} else if replaced != nil {
		message = replaced
		ictx.UserContent = replaced
	}

	if message != nil {
		userEvent := core.NewUserContentEvent(invocationID, message)
		if _, err := r.sessionService.AppendEvent(sess, userEvent); err != nil {
			return fmt.Errorf("append user event: %w", err)
		}
	}

	canned, err := r.plugins.RunBeforeRun(ictx)
	if err != nil {
		return err
	}
	if canned != nil {
		// Canned response: no agent executes this turn.
		ev := core.NewEvent(invocationID, r.agent.Name())
		ev.Content = canned
		return r.deliver(ictx, ev, eventsCh)
	}

	target := findAgentToRun(sess, message, r.agent)
	ictx.Agent = target
	r.logger.Debug("runner.agent.resolved", "agent", target.Name(), "invocation", invocationID)

	if content, err := r.plugins.RunBeforeAgent(target, ictx); err != nil {
		return err
	} else if content != nil {
		ev := core.NewEvent(invocationID, target.Name())
		ev.Content = content
		return r.deliver(ictx, ev, eventsCh)
	}

	agentErr := make(chan error, 1)
	go func() {
		defer close(agentEmit)
		agentErr <- target.Run(ictx)
	}()

	if err := r.processEvents(ictx, agentEmit, resumeCh, eventsCh); err != nil {
		return err
	}
	if err := <-agentErr; err != nil {
		return fmt.Errorf("agent %s execution failed: %w", target.Name(), err)
	}

	if content, err := r.plugins.RunAfterAgent(target, ictx); err != nil {
		return err
	} else if content != nil {
		ev := core.NewEvent(invocationID, target.Name())
		ev.Content = content
		return r.deliver(ictx, ev, eventsCh)
	}

	return nil
}

// processEvents runs the per-event pipeline: intercept, persist, emit. The
// resume signal released after emission keeps agents from racing ahead of
// persistence.
func (r *Runner) processEvents(
	ictx *core.InvocationContext,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
) error {
	for {
		select {
		case <-ictx.Done():
			return ictx.Err()
		case ev, ok := <-agentEmit:
			if !ok {
				return nil
			}

			if replaced, err := r.plugins.RunOnEvent(ictx, &ev); err != nil {
				return err
			} else if replaced != nil {
				ev = *replaced
			}

			if !ev.IsPartial() {
				if _, err := r.sessionService.AppendEvent(ictx.Session, ev); err != nil {
					return fmt.Errorf("append event to session: %w", err)
				}
			}

			select {
			case <-ictx.Done():
				return ictx.Err()
			case eventsCh <- ev:
			}

			if !ev.IsPartial() {
				select {
				case <-ictx.Done():
					return ictx.Err()
				case resumeCh <- struct{}{}:
				}
			}
		}
	}
}

// deliver persists and emits a runner-authored event outside the agent
// pipeline (canned responses, agent hook replacements).
func (r *Runner) deliver(ictx *core.InvocationContext, ev core.Event, eventsCh chan<- core.Event) error {
	if replaced, err := r.plugins.RunOnEvent(ictx, &ev); err != nil {
		return err
	} else if replaced != nil {
		ev = *replaced
	}

	if _, err := r.sessionService.AppendEvent(ictx.Session, ev); err != nil {
		return fmt.Errorf("append event to session: %w", err)
	}

	select {
	case <-ictx.Done():
		return ictx.Err()
	case eventsCh <- ev:
	}

	return nil
}
