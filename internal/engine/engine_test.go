package engine

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func sequenceState(steps ...string) State {
	return State{
		Stage:        StageSequence,
		Steps:        steps,
		StageVersion: Version{Counter: 4, Origin: "naval-sim-abcde"},
	}
}

func TestAdvance(t *testing.T) {
	cases := []struct {
		name        string
		setup       State
		cmd         Command
		wantErr     error
		wantStage   Stage
		wantEvents  int
		wantVersion uint64
	}{
		{
			name:        "moves to a known stage and bumps the version",
			setup:       State{Stage: StageHook, StageVersion: Version{Counter: 1}},
			cmd:         Command{Type: CmdAdvance, Stage: StageRoomExploration, Origin: "cadet-aaaaa"},
			wantStage:   StageRoomExploration,
			wantEvents:  1,
			wantVersion: 2,
		},
		{
			name:        "same stage is a no-op",
			setup:       State{Stage: StageHook, StageVersion: Version{Counter: 1}},
			cmd:         Command{Type: CmdAdvance, Stage: StageHook},
			wantStage:   StageHook,
			wantEvents:  0,
			wantVersion: 1,
		},
		{
			name:        "unknown stage is rejected",
			setup:       State{Stage: StageHook, StageVersion: Version{Counter: 1}},
			cmd:         Command{Type: CmdAdvance, Stage: Stage("ENGINE_FIRE")},
			wantErr:     ErrUnknownStage,
			wantStage:   StageHook,
			wantVersion: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, next, err := Apply(tc.setup, tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if next.Stage != tc.wantStage {
				t.Fatalf("stage = %s, want %s", next.Stage, tc.wantStage)
			}
			if len(events) != tc.wantEvents {
				t.Fatalf("events = %+v, want %d", events, tc.wantEvents)
			}
			if next.StageVersion.Counter != tc.wantVersion {
				t.Fatalf("version = %d, want %d", next.StageVersion.Counter, tc.wantVersion)
			}
		})
	}
}

func TestCompleteStep(t *testing.T) {
	cases := []struct {
		name    string
		setup   State
		stepID  string
		wantErr error
	}{
		{name: "first step", setup: sequenceState(), stepID: "valve"},
		{name: "second step", setup: sequenceState("valve"), stepID: "lube"},
		{name: "skipping ahead", setup: sequenceState("valve"), stepID: "start", wantErr: ErrOutOfOrder},
		{name: "unknown step", setup: sequenceState(), stepID: "coffee", wantErr: ErrUnknownStep},
		{name: "wrong stage", setup: State{Stage: StageTerminology}, stepID: "valve", wantErr: ErrWrongStage},
		{
			name:    "already complete",
			setup:   sequenceState("valve", "lube", "start", "sync", "breaker"),
			stepID:  "valve",
			wantErr: ErrSequenceCompleted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, next, err := Apply(tc.setup, Command{Type: CmdCompleteStep, StepID: tc.stepID, Origin: "cadet-bbbbb"})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr != nil {
				if len(next.Steps) != len(tc.setup.Steps) {
					t.Fatalf("state changed on error: %+v", next.Steps)
				}
				return
			}
			if !ContainsEvent(events, EvtStepCompleted) {
				t.Fatalf("expected StepCompleted, got %+v", events)
			}
			if got := next.Steps[len(next.Steps)-1]; got != tc.stepID {
				t.Fatalf("last step = %s, want %s", got, tc.stepID)
			}
			if !next.StepsVersion.After(tc.setup.StepsVersion) {
				t.Fatalf("steps version did not advance: %+v", next.StepsVersion)
			}
		})
	}
}

func TestCompleteStep_DoesNotAliasInput(t *testing.T) {
	steps := make([]string, 1, 8)
	steps[0] = "valve"
	setup := sequenceState(steps...)

	_, _, err := Apply(setup, Command{Type: CmdCompleteStep, StepID: "lube"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(setup.Steps) != 1 || steps[:2][1] != "" {
		t.Fatalf("input slice was modified: %+v", steps[:2])
	}
}

func TestLastStepCompletesSequence(t *testing.T) {
	events, next, err := Apply(sequenceState("valve", "lube", "start", "sync"), Command{Type: CmdCompleteStep, StepID: "breaker"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtSequenceCompleted) {
		t.Fatalf("expected SequenceCompleted, got %+v", events)
	}
	if _, ok := NextStep(next); ok {
		t.Fatalf("expected no next step")
	}
}

func TestRestartKeepsVersionsMonotonic(t *testing.T) {
	setup := sequenceState("valve")
	setup.StepsVersion = Version{Counter: 7}

	_, next, err := Apply(setup, Command{Type: CmdRestart, Origin: "cadet-ccccc"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if next.Stage != StageStart || len(next.Steps) != 0 {
		t.Fatalf("restart did not reset: %+v", next)
	}
	if !next.StageVersion.After(setup.StageVersion) || !next.StepsVersion.After(setup.StepsVersion) {
		t.Fatalf("versions went backwards: %+v", next)
	}
}

func TestUnsupportedCommand(t *testing.T) {
	_, _, err := Apply(NewEmptyState(), Command{Type: "Explode"})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("err = %v", err)
	}
}

func TestVersionOrdering(t *testing.T) {
	cases := []struct {
		name string
		a, b Version
		want bool
	}{
		{"higher counter wins", Version{Counter: 3}, Version{Counter: 2, Origin: "zzz"}, true},
		{"lower counter loses", Version{Counter: 1, Origin: "zzz"}, Version{Counter: 2}, false},
		{"tie broken by origin", Version{Counter: 2, Origin: "cadet-b"}, Version{Counter: 2, Origin: "cadet-a"}, true},
		{"equal is not after", Version{Counter: 2, Origin: "x"}, Version{Counter: 2, Origin: "x"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.After(tc.b); got != tc.want {
				t.Fatalf("After = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHint(t *testing.T) {
	if got := Hint(StageSequence); !strings.Contains(got, "Valve first") {
		t.Fatalf("unexpected hint: %s", got)
	}
	if got := Hint(StageLobby); !strings.Contains(got, defaultHint) {
		t.Fatalf("expected default hint, got %s", got)
	}
}

func TestMetrics_DebriefCountsTimedStagesOnly(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	m := NewMetrics()

	m.EnterStage(start, StageStart)
	m.EnterStage(start.Add(30*time.Second), StageHook)
	m.EnterStage(start.Add(90*time.Second), StageSequence)
	m.Mistake(start.Add(95 * time.Second))
	m.EnterStage(start.Add(120*time.Second), StageSuccess)

	d := m.Debrief(start.Add(10 * time.Minute))
	if d.Elapsed != 90*time.Second {
		t.Fatalf("elapsed = %s, want 1m30s", d.Elapsed)
	}
	if d.Mistakes != 1 || d.Outcome != OutcomePass || d.StageReached != StageSuccess {
		t.Fatalf("unexpected debrief: %+v", d)
	}
	if len(d.Logs) != 1 {
		t.Fatalf("logs = %+v", d.Logs)
	}
}

func TestMetrics_FailWhenScenarioUnfinished(t *testing.T) {
	now := time.Now()
	m := NewMetrics()
	m.EnterStage(now, StageTerminology)
	m.EnterStage(now, StageStart)

	if d := m.Debrief(now); d.Outcome != OutcomeFail || d.StageReached != StageTerminology {
		t.Fatalf("unexpected debrief: %+v", d)
	}
}

func TestContextFor_EveryStage(t *testing.T) {
	for _, stage := range StageOrder {
		if c := ContextFor(stage); c.Tag == "" || c.Description == "" {
			t.Errorf("%s has no teaching context", stage)
		}
	}
	if c := ContextFor("BRIDGE"); c != (Context{}) {
		t.Fatalf("unknown stage context = %+v", c)
	}
}

func TestMilestone(t *testing.T) {
	if msg, ok := Milestone(StageSuccess); !ok || !strings.Contains(msg, "Power Restored") {
		t.Fatalf("success milestone = %q, %v", msg, ok)
	}
	if _, ok := Milestone(StageLobby); ok {
		t.Fatal("lobby should not log a milestone")
	}
}
