package engine

import (
	"fmt"
	"time"
)

type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
)

// Class averages the debrief compares a run against.
const (
	ClassAverageTime     = 145 * time.Second
	ClassAverageMistakes = 2
)

// Metrics is the local scorecard of one participant. It is never synchronized.
type Metrics struct {
	Elapsed      time.Duration
	Mistakes     int
	StageReached Stage
	Logs         []string

	timedSince time.Time
	timing     bool
}

func NewMetrics() Metrics {
	return Metrics{StageReached: StageStart}
}

// Log appends a timestamped entry.
func (m *Metrics) Log(now time.Time, msg string) {
	m.Logs = append(m.Logs, fmt.Sprintf("[%s] %s", now.Format(time.TimeOnly), msg))
}

func (m *Metrics) Mistake(now time.Time) {
	m.Mistakes++
	m.Log(now, "Error Recorded")
}

// EnterStage stops or starts the clock depending on the stage and keeps the
// furthest stage reached.
func (m *Metrics) EnterStage(now time.Time, stage Stage) {
	m.stopClock(now)
	if IsTimed(stage) {
		m.timing = true
		m.timedSince = now
	}
	if StageIndex(stage) > StageIndex(m.StageReached) {
		m.StageReached = stage
	}
}

func (m *Metrics) stopClock(now time.Time) {
	if m.timing {
		m.Elapsed += now.Sub(m.timedSince)
		m.timing = false
	}
}

// ElapsedAt includes the time spent in the current stage if the clock runs.
func (m Metrics) ElapsedAt(now time.Time) time.Duration {
	if m.timing {
		return m.Elapsed + now.Sub(m.timedSince)
	}
	return m.Elapsed
}

type Debrief struct {
	Elapsed              time.Duration
	Mistakes             int
	StageReached         Stage
	Outcome              Outcome
	ClassAverageTime     time.Duration
	ClassAverageMistakes int
	Logs                 []string
}

func (m Metrics) Debrief(now time.Time) Debrief {
	outcome := OutcomeFail
	if m.StageReached == StageSuccess || m.StageReached == StageDashboard {
		outcome = OutcomePass
	}
	logs := make([]string, len(m.Logs))
	copy(logs, m.Logs)
	return Debrief{
		Elapsed:              m.ElapsedAt(now).Truncate(time.Second),
		Mistakes:             m.Mistakes,
		StageReached:         m.StageReached,
		Outcome:              outcome,
		ClassAverageTime:     ClassAverageTime,
		ClassAverageMistakes: ClassAverageMistakes,
		Logs:                 logs,
	}
}
