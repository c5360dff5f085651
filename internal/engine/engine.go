package engine

import (
	"errors"
	"slices"
)

var ErrUnknownStage = errors.New("unknown stage")
var ErrUnknownStep = errors.New("unknown sequence step")
var ErrWrongStage = errors.New("command not allowed in current stage")
var ErrOutOfOrder = errors.New("sequence step out of order")
var ErrSequenceCompleted = errors.New("sequence already completed")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Stage string

const (
	StageInstructions    Stage = "INSTRUCTIONS"
	StageLobby           Stage = "LOBBY"
	StageStart           Stage = "START"
	StageHook            Stage = "HOOK"
	StageRoomExploration Stage = "ROOM_EXPLORATION"
	StageTerminology     Stage = "TERMINOLOGY"
	StageManualAnalysis  Stage = "MANUAL_ANALYSIS"
	StageSequence        Stage = "SEQUENCE"
	StageSuccess         Stage = "SUCCESS"
	StageDashboard       Stage = "DASHBOARD"
)

// State is the shared part of a scenario run. Stage and Steps carry their own
// versions so a replica can tell whether an incoming value is newer than its own.
type State struct {
	Stage        Stage
	Steps        []string
	StageVersion Version
	StepsVersion Version
}

type CommandType string

const (
	CmdAdvance      CommandType = "Advance"
	CmdCompleteStep CommandType = "CompleteStep"
	CmdRestart      CommandType = "Restart"
)

/*
	CmdAdvance      -> EvtStageChanged
	CmdCompleteStep -> EvtStepCompleted -> EvtSequenceCompleted (after the last step)
	CmdRestart      -> EvtRestarted
	A wrong step returns ErrOutOfOrder; the caller records the mistake.
*/

type Command struct {
	Type   CommandType
	Stage  Stage
	StepID string
	// Origin identifies the participant issuing the command; it breaks ties
	// between versions with the same counter.
	Origin string
}

type EventType string

const (
	EvtStageChanged      EventType = "StageChanged"
	EvtStepCompleted     EventType = "StepCompleted"
	EvtSequenceCompleted EventType = "SequenceCompleted"
	EvtRestarted         EventType = "Restarted"
)

type Event struct {
	Type   EventType
	Stage  Stage
	StepID string
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s
	newState.Steps = slices.Clone(s.Steps)

	switch cmd.Type {
	case CmdAdvance:
		if !IsKnownStage(cmd.Stage) {
			return nil, s, ErrUnknownStage
		}
		if cmd.Stage == s.Stage {
			// Nothing to broadcast.
			return nil, s, nil
		}
		newState.Stage = cmd.Stage
		newState.StageVersion = s.StageVersion.Next(cmd.Origin)
		return []Event{{Type: EvtStageChanged, Stage: cmd.Stage}}, newState, nil

	case CmdCompleteStep:
		if s.Stage != StageSequence {
			return nil, s, ErrWrongStage
		}
		if !IsKnownStep(cmd.StepID) {
			return nil, s, ErrUnknownStep
		}
		expected, done := nextStep(s)
		if done {
			return nil, s, ErrSequenceCompleted
		}
		if expected.ID != cmd.StepID {
			return nil, s, ErrOutOfOrder
		}

		newState.Steps = append(newState.Steps, cmd.StepID)
		newState.StepsVersion = s.StepsVersion.Next(cmd.Origin)
		events := []Event{{Type: EvtStepCompleted, StepID: cmd.StepID}}

		// Completion
		if len(newState.Steps) == len(SequenceSteps) {
			events = append(events, Event{Type: EvtSequenceCompleted})
		}
		return events, newState, nil

	case CmdRestart:
		// Versions keep counting up so later changes still win on every replica.
		newState.Stage = StageStart
		newState.Steps = nil
		newState.StageVersion = s.StageVersion.Next(cmd.Origin)
		newState.StepsVersion = s.StepsVersion.Next(cmd.Origin)
		return []Event{{Type: EvtRestarted, Stage: StageStart}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func nextStep(s State) (Step, bool) {
	if len(s.Steps) >= len(SequenceSteps) {
		return Step{}, true
	}
	return SequenceSteps[len(s.Steps)], false
}

// NextStep returns the step the crew has to complete next, if any.
func NextStep(s State) (Step, bool) {
	step, done := nextStep(s)
	return step, !done
}
