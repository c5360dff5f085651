package engine

// Context is the teaching note shown alongside a stage.
type Context struct {
	Tag         string
	Description string
}

var stageContexts = map[Stage]Context{
	StageInstructions:    {"Orientation", "Establishing learning objectives and rules of engagement."},
	StageLobby:           {"Collaboration Setup", "Preparing for team-based problem solving."},
	StageStart:           {"TEC-VARIETY: Tension", "Creating urgency with audio-visual alerts and time constraints."},
	StageHook:            {"TEC-VARIETY: Tension", "Creating urgency with audio-visual alerts and time constraints."},
	StageRoomExploration: {"Active Learning", "Exploratory environment requires student agency to identify faults."},
	StageTerminology:     {"Recall & Recognition", "Connecting visual stimuli to technical vocabulary (Input)."},
	StageManualAnalysis:  {"Information Literacy", "Extracting specific data from authentic technical documentation."},
	StageSequence:        {"Process Application", "Applying procedural knowledge in a logical sequence (Collaborative)."},
	StageSuccess:         {"The Yielding", "Immediate positive feedback and reward for completion."},
	StageDashboard:       {"Assessment Analytics", "Data-driven review of student performance."},
}

func ContextFor(stage Stage) Context {
	return stageContexts[stage]
}

// milestones are the log lines recorded when the crew moves into a stage.
var milestones = map[Stage]string{
	StageHook:            "Session Started",
	StageRoomExploration: "Entered Engine Room",
	StageTerminology:     "Fault Source Identified",
	StageManualAnalysis:  "Terminology Verified",
	StageSequence:        "Safety Limit Verified",
	StageSuccess:         "Sequence Completed. Power Restored.",
}

// Milestone returns the log line for entering stage, if it has one.
func Milestone(stage Stage) (string, bool) {
	msg, ok := milestones[stage]
	return msg, ok
}
