package engine

import "fmt"

var staticHints = map[Stage]string{
	StageHook:            "Eyes on the clock, sailor! acknowledge the alarm to enter the workspace.",
	StageRoomExploration: "Look for anomalies. Smoke usually indicates overheating components.",
	StageTerminology:     "That's a breaker panel. Identify the Main Circuit Breaker to proceed.",
	StageManualAnalysis:  "Read Section 4 carefully. The pressure limit is a specific number in bar.",
	StageSequence:        "Think logically: Valve first, lube second. Don't start a dry engine!",
}

const defaultHint = "Check your standard operating procedures. Stay calm."

// Hint is the chief engineer's canned advice for stage.
func Hint(stage Stage) string {
	hint, ok := staticHints[stage]
	if !ok {
		hint = defaultHint
	}
	return fmt.Sprintf("(Radio Static) ... %s ... (End)", hint)
}
