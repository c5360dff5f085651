package types

import (
	"slices"

	"github.com/DoyleJ11/naval-sim/internal/engine"
)

// NewSyncResponse captures s as the point-in-time snapshot a host hands to a
// joining participant.
func NewSyncResponse(s engine.State) SyncResponse {
	steps := slices.Clone(s.Steps)
	if steps == nil {
		steps = []string{}
	}
	return SyncResponse{
		Stage:         s.Stage,
		SequenceSteps: steps,
		StageVersion:  s.StageVersion,
		StepsVersion:  s.StepsVersion,
	}
}

func NewStateUpdate(s engine.State) StateUpdate {
	return StateUpdate{Stage: s.Stage, Version: s.StageVersion}
}

func NewSequenceUpdate(s engine.State) SequenceUpdate {
	steps := slices.Clone(s.Steps)
	if steps == nil {
		steps = []string{}
	}
	return SequenceUpdate{Steps: steps, Version: s.StepsVersion}
}
