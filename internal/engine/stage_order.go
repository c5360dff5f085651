package engine

var StageOrder = []Stage{
	// Pre-session
	StageInstructions,
	StageLobby,
	StageStart,
	StageHook,
	// Troubleshooting
	StageRoomExploration,
	StageTerminology,
	StageManualAnalysis,
	StageSequence,
	// Wrap-up
	StageSuccess,
	StageDashboard,
}

type Step struct {
	ID    string
	Label string
}

// SequenceSteps is the generator start-up procedure, in the only accepted order.
var SequenceSteps = []Step{
	{ID: "valve", Label: "Open Fuel Valve"},
	{ID: "lube", Label: "Check Lubrication Pressure"},
	{ID: "start", Label: "Start Engine (Prime Mover)"},
	{ID: "sync", Label: "Synchronize Frequency"},
	{ID: "breaker", Label: "Close Main Breaker"},
}
