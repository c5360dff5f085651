package engine

import "github.com/samber/lo"

func NewEmptyState() State {
	return State{
		Stage: StageInstructions,
		Steps: []string{},
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func IsKnownStage(stage Stage) bool {
	return lo.Contains(StageOrder, stage)
}

func IsKnownStep(id string) bool {
	return lo.ContainsBy(SequenceSteps, func(step Step) bool { return step.ID == id })
}

// IsPlaceholder reports whether stage is one a participant sits in before the
// shared scenario has started.
func IsPlaceholder(stage Stage) bool {
	switch stage {
	case StageInstructions, StageLobby, StageStart, StageHook:
		return true
	}
	return false
}

// IsTimed reports whether the scenario clock runs while in stage.
func IsTimed(stage Stage) bool {
	switch stage {
	case StageInstructions, StageLobby, StageStart, StageSuccess, StageDashboard:
		return false
	}
	return IsKnownStage(stage)
}

// StageIndex is the position of stage in StageOrder, or -1.
func StageIndex(stage Stage) int {
	return lo.IndexOf(StageOrder, stage)
}

func StepIDs() []string {
	return lo.Map(SequenceSteps, func(step Step, _ int) string { return step.ID })
}
