package core

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by SessionService implementations when the
// requested session does not exist. It is an expected boundary result, not a
// failure of the engine; callers check it with errors.Is.
var ErrSessionNotFound = errors.New("session not found")

// ConfigurationError signals an unrecoverable setup problem: duplicate plugin
// names, unresolvable tool names, a missing session for an action. It is
// surfaced to the caller immediately and never retried.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// PluginExecutionError wraps an error raised inside a plugin hook with the
// plugin and hook names. It is fatal: the runner aborts the remainder of the
// turn without rolling back already persisted events.
type PluginExecutionError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *PluginExecutionError) Error() string {
	return fmt.Sprintf("plugin %q failed in hook %s: %v", e.Plugin, e.Hook, e.Err)
}

// Unwrap exposes the original cause for errors.Is / errors.As.
func (e *PluginExecutionError) Unwrap() error { return e.Err }
