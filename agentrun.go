// Package agentrun provides a high-level façade over the runner and service
// abstractions (sessions, artifacts, memory & logging) for building
// multi-agent LLM applications. Most applications interact with this package
// by:
//  1. Creating an App via New() (optionally overriding default in-memory services)
//  2. Building an agent tree (LLM, sequential, custom) rooted at one agent
//  3. Running turns asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates orchestration to runner.Runner while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable session service
// and a structured logger.
package agentrun

import (
	"context"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/runner"
)

// Options configures the App instance.
type Options struct {
	// SessionService persists sessions, state and history. Defaults to the
	// in-memory implementation.
	SessionService core.SessionService

	// ArtifactService stores named binary artifacts. Defaults to in-memory.
	ArtifactService core.ArtifactStore

	// MemoryService backs memory search for tools. Defaults to in-memory.
	MemoryService core.MemoryStore

	// Plugins are registered in order; order defines hook precedence.
	Plugins []core.Plugin

	// Logger receives structured logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// App is the high-level façade aggregating the runner and its services.
type App struct {
	runner *runner.Runner
}

// New creates an App for the given application name and root agent. Any
// unset service is initialized with an in-memory implementation.
func New(appName string, rootAgent core.Agent, optFns ...func(o *Options)) (*App, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	r, err := runner.New(appName, rootAgent, func(o *runner.Options) {
		if opts.SessionService != nil {
			o.SessionService = opts.SessionService
		}
		if opts.ArtifactService != nil {
			o.ArtifactService = opts.ArtifactService
		}
		if opts.MemoryService != nil {
			o.MemoryService = opts.MemoryService
		}
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
		o.Plugins = opts.Plugins
	})
	if err != nil {
		return nil, err
	}

	return &App{runner: r}, nil
}

// Runner exposes the underlying runner for advanced wiring.
func (a *App) Runner() *runner.Runner { return a.runner }

// SessionService exposes the configured session backend, mainly so callers
// can create sessions before running turns.
func (a *App) SessionService() core.SessionService { return a.runner.SessionService() }

// CreateSession creates a session for a user, generating an id when empty.
func (a *App) CreateSession(userID, sessionID string, state map[string]any) (*core.Session, error) {
	return a.runner.SessionService().Create(a.runner.AppName(), userID, sessionID, state)
}

// Run executes one turn asynchronously, streaming persisted events. Both
// channels close when the turn ends.
func (a *App) Run(ctx context.Context, userID, sessionID, message string) (<-chan core.Event, <-chan error) {
	content := core.NewTextContent("user", message)
	return a.runner.Run(ctx, runner.RunRequest{
		UserID:     userID,
		SessionID:  sessionID,
		NewMessage: &content,
	})
}

// RunSync executes one turn and drains all events into an ordered slice.
func (a *App) RunSync(ctx context.Context, userID, sessionID, message string) ([]core.Event, error) {
	content := core.NewTextContent("user", message)
	return a.runner.RunSync(ctx, runner.RunRequest{
		UserID:     userID,
		SessionID:  sessionID,
		NewMessage: &content,
	})
}
