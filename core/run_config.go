package core

import (
	"fmt"
	"sync"
)

// StreamingMode selects how model output reaches the caller.
type StreamingMode string

const (
	// StreamingModeNone delivers only complete events; partial model chunks
	// are suppressed.
	StreamingModeNone StreamingMode = "none"
	// StreamingModeIncremental forwards partial model chunks as unpersisted
	// partial events followed by the complete event.
	StreamingModeIncremental StreamingMode = "incremental"
)

// RunConfig enumerates the per-turn options recognized by the runner.
type RunConfig struct {
	// StreamingMode defaults to StreamingModeNone when empty.
	StreamingMode StreamingMode
	// MaxModelCalls caps model invocations within the turn. Zero means the
	// runner's default applies.
	MaxModelCalls int
}

// ModelLimiter enforces a maximum number of allowed model calls per turn.
type ModelLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewModelLimiter creates a new limiter. If max == 0, unlimited calls are
// allowed.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Increment increases the call counter and returns an error if the limit is
// exceeded.
func (ml *ModelLimiter) Increment() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.count++
	if ml.max > 0 && ml.count > ml.max {
		return fmt.Errorf("exceeded max model calls: %d", ml.max)
	}
	return nil
}

// Count returns the current number of calls made.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.count
}
