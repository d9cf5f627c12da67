package core

// Tool defines the interface for extending agent capabilities with external
// functions. Tools are resolved by name during function-call dispatch; an
// unresolvable name is a fatal configuration error.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define a JSON schema for parameters
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the LLM.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// IsLongRunning reports whether the tool completes out of band. A
	// long-running call that yields no synchronous result produces no
	// response event; completion arrives later as a function response
	// correlated by call id.
	IsLongRunning() bool

	// Run executes the tool with structured arguments and the per-call
	// ToolContext giving access to session state, declared actions and
	// the artifact / memory services.
	Run(toolCtx *ToolContext, args map[string]any) (any, error)
}

// ArtifactStore persists named binary artifacts scoped to a session. Save
// returns the new version number for the artifact name; versions start at 0.
type ArtifactStore interface {
	Save(appName, userID, sessionID, name string, data []byte) (int, error)
	Get(appName, userID, sessionID, name string) ([]byte, error)
	List(appName, userID, sessionID string) ([]string, error)
	Delete(appName, userID, sessionID, name string) error
}

// SearchResult is a retrieved memory item with a relevance score and
// arbitrary metadata.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// MemoryStore defines persistence and recall for conversational memory
// snippets. Implementations can back Search with embeddings, keywords or any
// heuristic.
type MemoryStore interface {
	Store(sessionID string, content string, metadata map[string]any) error
	Search(sessionID string, query string, limit int) ([]SearchResult, error)
	Delete(sessionID string, memoryID string) error
}
