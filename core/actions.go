package core

import "maps"

// EventActions encodes side-effects or orchestration signals attached to an
// Event. Mapping fields are unioned when actions are merged; scalar fields are
// optional pointers so absence can be distinguished from zero values. The
// runner interprets these after persistence.
type EventActions struct {
	StateDelta                 map[string]any `json:"state_delta,omitempty"`
	ArtifactDelta              map[string]int `json:"artifact_delta,omitempty"`
	TransferToAgent            *string        `json:"transfer_to_agent,omitempty"`
	Escalate                   *bool          `json:"escalate,omitempty"`
	SkipSummarization          *bool          `json:"skip_summarization,omitempty"`
	RequestedAuthConfigs       map[string]any `json:"requested_auth_configs,omitempty"`
	RequestedToolConfirmations map[string]any `json:"requested_tool_confirmations,omitempty"`
}

// NewEventActions returns EventActions with all mapping fields initialized to
// empty containers so callers can populate them without nil checks.
func NewEventActions() EventActions {
	return EventActions{
		StateDelta:                 map[string]any{},
		ArtifactDelta:              map[string]int{},
		RequestedAuthConfigs:       map[string]any{},
		RequestedToolConfirmations: map[string]any{},
	}
}

// MergeEventActions folds the sources, in order, into a single EventActions.
// Mapping fields are unioned with later duplicate keys overwriting earlier
// ones; scalar fields take the last non-nil value. The sources are not
// mutated.
func MergeEventActions(sources ...EventActions) EventActions {
	merged := NewEventActions()
	for _, src := range sources {
		maps.Copy(merged.StateDelta, src.StateDelta)
		maps.Copy(merged.ArtifactDelta, src.ArtifactDelta)
		maps.Copy(merged.RequestedAuthConfigs, src.RequestedAuthConfigs)
		maps.Copy(merged.RequestedToolConfirmations, src.RequestedToolConfirmations)
		if src.TransferToAgent != nil {
			merged.TransferToAgent = src.TransferToAgent
		}
		if src.Escalate != nil {
			merged.Escalate = src.Escalate
		}
		if src.SkipSummarization != nil {
			merged.SkipSummarization = src.SkipSummarization
		}
	}
	return merged
}

// IsEmpty reports whether the actions carry no deltas and no signals.
func (a EventActions) IsEmpty() bool {
	return len(a.StateDelta) == 0 &&
		len(a.ArtifactDelta) == 0 &&
		len(a.RequestedAuthConfigs) == 0 &&
		len(a.RequestedToolConfirmations) == 0 &&
		a.TransferToAgent == nil &&
		a.Escalate == nil &&
		a.SkipSummarization == nil
}
