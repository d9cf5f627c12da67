package core

import "strings"

// State key prefixes determining visibility breadth. A key with no recognized
// prefix is session-local; "app:" keys are shared by every session of the app;
// "user:" keys are shared by every session of the user within the app. Any
// other prefix is treated as session-local.
const (
	StateAppPrefix  = "app:"
	StateUserPrefix = "user:"
)

// SplitStateDelta partitions a state delta by scope prefix. The returned maps
// keep the original (prefixed) keys so scoped values are never duplicated into
// session-local storage under a different name. Nil is returned for scopes
// with no entries.
func SplitStateDelta(delta map[string]any) (app, user, local map[string]any) {
	for k, v := range delta {
		switch {
		case strings.HasPrefix(k, StateAppPrefix):
			if app == nil {
				app = map[string]any{}
			}
			app[k] = v
		case strings.HasPrefix(k, StateUserPrefix):
			if user == nil {
				user = map[string]any{}
			}
			user[k] = v
		default:
			if local == nil {
				local = map[string]any{}
			}
			local[k] = v
		}
	}
	return app, user, local
}
