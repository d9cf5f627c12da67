package runner

import (
	"github.com/hupe1980/agentrun/core"
)

// findAgentToRun decides which agent in the tree continues the conversation
// for a new incoming message.
//
// Function-response correlation takes priority: when the message answers a
// pending function call (typically a long-running tool completing out of
// band), the agent that issued the call resumes regardless of anything that
// happened since. Otherwise the most recent event author still alive in the
// tree continues, unless it opted out of resumption; failing that, the root
// agent handles the turn.
func findAgentToRun(sess *core.Session, message *core.Content, root core.Agent) core.Agent {
	events := sess.GetEvents()

	if author := pendingCallAuthor(events, message); author != "" {
		if a := root.FindAgent(author); a != nil {
			return a
		}
	}

	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Author == core.UserAuthor {
			continue
		}
		a := root.FindAgent(ev.Author)
		if a == nil {
			// Author no longer exists in the tree.
			continue
		}
		if a.Name() == root.Name() || !a.DisallowTransferToParent() {
			return a
		}
	}

	return root
}

// pendingCallAuthor returns the author of a function call answered by the
// incoming message, provided no earlier event already answered it.
func pendingCallAuthor(events []core.Event, message *core.Content) string {
	if message == nil {
		return ""
	}

	responseIDs := make(map[string]struct{})
	for _, part := range message.Parts {
		if fr, ok := part.(core.FunctionResponsePart); ok {
			responseIDs[fr.FunctionResponse.ID] = struct{}{}
		}
	}
	if len(responseIDs) == 0 {
		return ""
	}

	answered := make(map[string]struct{})
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		for _, fr := range ev.GetFunctionResponses() {
			answered[fr.ID] = struct{}{}
		}
		for _, fc := range ev.GetFunctionCalls() {
			if _, isNew := responseIDs[fc.ID]; !isNew {
				continue
			}
			if _, done := answered[fc.ID]; done {
				continue
			}
			return ev.Author
		}
	}

	return ""
}
