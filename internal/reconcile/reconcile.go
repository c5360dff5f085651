// Package reconcile decides whether replicated scenario state carried by an
// event replaces the local copy. Stage and step list are versioned
// independently and a field is only replaced by a strictly newer version, so
// replicas converge regardless of delivery order.
package reconcile

import (
	"slices"

	"github.com/DoyleJ11/naval-sim/internal/engine"
	"github.com/DoyleJ11/naval-sim/pkg/types"
)

// Source supplies the state a host reports to a joining participant.
type Source interface {
	Snapshot() engine.State
}

// Respond builds the SYNC_RESPONSE for a SYNC_REQUEST from src's current state.
func Respond(src Source) types.SyncResponse {
	return types.NewSyncResponse(src.Snapshot())
}

// Result reports which fields an event replaced.
type Result struct {
	Stage bool
	Steps bool
}

func (r Result) Changed() bool { return r.Stage || r.Steps }

// Apply merges any state-carrying event into local. Events that carry no
// scenario state leave local untouched.
func Apply(local engine.State, e types.Event) (engine.State, Result) {
	switch ev := e.(type) {
	case types.StateUpdate:
		next, ok := ApplyStage(local, ev)
		return next, Result{Stage: ok}
	case types.SequenceUpdate:
		next, ok := ApplySteps(local, ev)
		return next, Result{Steps: ok}
	case types.SyncResponse:
		return Merge(local, ev)
	default:
		return local, Result{}
	}
}

func ApplyStage(local engine.State, u types.StateUpdate) (engine.State, bool) {
	if !u.Version.After(local.StageVersion) {
		return local, false
	}
	local.Stage = u.Stage
	local.StageVersion = u.Version
	return local, true
}

func ApplySteps(local engine.State, u types.SequenceUpdate) (engine.State, bool) {
	if !u.Version.After(local.StepsVersion) {
		return local, false
	}
	local.Steps = cloneSteps(u.Steps)
	local.StepsVersion = u.Version
	return local, true
}

// Merge applies a SYNC_RESPONSE field by field. A response computed before an
// update the client already holds carries an older version for that field and
// is ignored for it.
func Merge(local engine.State, resp types.SyncResponse) (engine.State, Result) {
	var res Result
	local, res.Stage = ApplyStage(local, types.StateUpdate{Stage: resp.Stage, Version: resp.StageVersion})
	local, res.Steps = ApplySteps(local, types.SequenceUpdate{Steps: resp.SequenceSteps, Version: resp.StepsVersion})
	return local, res
}

func cloneSteps(steps []string) []string {
	out := slices.Clone(steps)
	if out == nil {
		out = []string{}
	}
	return out
}
