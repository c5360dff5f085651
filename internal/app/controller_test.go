package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/naval-sim/internal/broker"
	"github.com/DoyleJ11/naval-sim/internal/engine"
	"github.com/DoyleJ11/naval-sim/internal/session"
	"github.com/DoyleJ11/naval-sim/pkg/types"
)

const within = 2 * time.Second
const tick = 5 * time.Millisecond

func newController(t *testing.T, network broker.Network) *Controller {
	t.Helper()
	c := New(context.Background(), network, WithBrokerOptions(broker.WithSignalingTimeout(time.Second)))
	t.Cleanup(c.Close)
	return c
}

func hosted(t *testing.T) (*broker.MemoryNetwork, *Controller, string) {
	t.Helper()
	network := broker.NewMemoryNetwork()
	host := newController(t, network)
	token, err := host.Host(context.Background(), "Alice")
	require.NoError(t, err)
	return network, host, token
}

// joined adds a participant and waits until the host routes to it.
func joined(t *testing.T, network broker.Network, host *Controller, name, token string) *Controller {
	t.Helper()
	before := len(host.Status().Session.Peers)
	c := newController(t, network)
	require.NoError(t, c.Join(context.Background(), name, token))
	require.Eventually(t, func() bool { return len(host.Status().Session.Peers) == before+1 }, within, tick)
	return c
}

func advanceTo(t *testing.T, c *Controller, stages ...engine.Stage) {
	t.Helper()
	for _, stage := range stages {
		require.NoError(t, c.Advance(stage))
	}
}

func stageIs(c *Controller, stage engine.Stage) func() bool {
	return func() bool { return c.Snapshot().Stage == stage }
}

func hasChat(c *Controller, match func(types.Chat) bool) func() bool {
	return func() bool {
		for _, msg := range c.ChatLog() {
			if match(msg) {
				return true
			}
		}
		return false
	}
}

func TestHost_StartsInStart(t *testing.T) {
	_, host, token := hosted(t)

	assert.True(t, strings.HasPrefix(token, broker.SessionPrefix))
	status := host.Status()
	assert.Equal(t, engine.StageStart, status.Stage)
	assert.Equal(t, "Alice", status.Name)
	assert.Equal(t, session.PhaseHostActive, status.Session.Phase)
}

func TestHost_RequiresName(t *testing.T) {
	c := newController(t, broker.NewMemoryNetwork())

	_, err := c.Host(context.Background(), "  ")
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestJoin_EmptyTokenReturnsToLobby(t *testing.T) {
	c := newController(t, broker.NewMemoryNetwork())
	c.EnterLobby()

	err := c.Join(context.Background(), "Bob", "")
	require.ErrorIs(t, err, broker.ErrInvalidSessionID)
	assert.Equal(t, engine.StageLobby, c.Snapshot().Stage)
}

func TestJoin_AnnouncesCrewMember(t *testing.T) {
	network, host, token := hosted(t)
	joined(t, network, host, "Bob", token)

	require.Eventually(t, hasChat(host, func(msg types.Chat) bool {
		return msg.IsSystem && msg.Sender == SystemSender && msg.Text == "Bob has joined the crew."
	}), within, tick)
}

func TestLateJoinerAdoptsSequence(t *testing.T) {
	network, host, token := hosted(t)
	advanceTo(t, host,
		engine.StageHook,
		engine.StageRoomExploration,
		engine.StageTerminology,
		engine.StageManualAnalysis,
		engine.StageSequence,
	)
	require.NoError(t, host.CompleteStep("valve"))
	require.NoError(t, host.CompleteStep("lube"))

	late := joined(t, network, host, "Carol", token)

	require.Eventually(t, func() bool {
		s := late.Snapshot()
		return s.Stage == engine.StageSequence && assert.ObjectsAreEqual([]string{"valve", "lube"}, s.Steps)
	}, within, tick)

	// The crew can carry on from where the host was.
	require.NoError(t, late.CompleteStep("start"))
	require.Eventually(t, func() bool { return len(host.Snapshot().Steps) == 3 }, within, tick)
}

func TestStageChangesReachEveryone(t *testing.T) {
	network, host, token := hosted(t)
	bob := joined(t, network, host, "Bob", token)
	carol := joined(t, network, host, "Carol", token)

	require.NoError(t, bob.Advance(engine.StageHook))

	require.Eventually(t, stageIs(host, engine.StageHook), within, tick)
	require.Eventually(t, stageIs(carol, engine.StageHook), within, tick)

	logs := carol.Debrief().Logs
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1], "Remote update: Moved to HOOK")
}

func TestChat_EchoesLocallyAndReachesCrew(t *testing.T) {
	network, host, token := hosted(t)
	bob := joined(t, network, host, "Bob", token)
	carol := joined(t, network, host, "Carol", token)

	msg, err := bob.Chat("valve looks stuck")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "Bob", msg.Sender)

	assert.True(t, hasChat(bob, func(m types.Chat) bool { return m.ID == msg.ID })())
	require.Eventually(t, hasChat(host, func(m types.Chat) bool { return m.ID == msg.ID }), within, tick)
	require.Eventually(t, hasChat(carol, func(m types.Chat) bool { return m.ID == msg.ID }), within, tick)

	_, err = bob.Chat("   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRequestHint_BroadcastsChiefEngineer(t *testing.T) {
	network, host, token := hosted(t)
	bob := joined(t, network, host, "Bob", token)
	advanceTo(t, host, engine.StageHook, engine.StageRoomExploration, engine.StageTerminology,
		engine.StageManualAnalysis, engine.StageSequence)
	require.Eventually(t, stageIs(bob, engine.StageSequence), within, tick)

	hint := host.RequestHint()
	assert.Contains(t, hint, "Valve first")

	require.Eventually(t, hasChat(bob, func(m types.Chat) bool {
		return m.Sender == ChiefEngineer && m.Text == "HINT: "+hint
	}), within, tick)
}

func TestCompleteStep_OutOfOrderIsAMistake(t *testing.T) {
	_, host, _ := hosted(t)
	advanceTo(t, host, engine.StageHook, engine.StageRoomExploration, engine.StageTerminology,
		engine.StageManualAnalysis, engine.StageSequence)

	err := host.CompleteStep("start")
	require.ErrorIs(t, err, engine.ErrOutOfOrder)
	assert.Equal(t, 1, host.Debrief().Mistakes)
	assert.Empty(t, host.Snapshot().Steps)
}

func TestCompleteStep_LastStepMovesCrewToSuccess(t *testing.T) {
	network, host, token := hosted(t)
	bob := joined(t, network, host, "Bob", token)
	advanceTo(t, host, engine.StageHook, engine.StageRoomExploration, engine.StageTerminology,
		engine.StageManualAnalysis, engine.StageSequence)
	require.Eventually(t, stageIs(bob, engine.StageSequence), within, tick)

	for _, step := range engine.StepIDs() {
		require.NoError(t, host.CompleteStep(step))
	}

	assert.Equal(t, engine.StageSuccess, host.Snapshot().Stage)
	require.Eventually(t, stageIs(bob, engine.StageSuccess), within, tick)
	assert.Len(t, bob.Snapshot().Steps, len(engine.SequenceSteps))

	d := host.Debrief()
	assert.Equal(t, engine.OutcomePass, d.Outcome)
	assert.Equal(t, engine.StageSuccess, d.StageReached)
}

func TestRestart_ResetsTheCrew(t *testing.T) {
	network, host, token := hosted(t)
	bob := joined(t, network, host, "Bob", token)
	advanceTo(t, host, engine.StageHook, engine.StageRoomExploration, engine.StageTerminology,
		engine.StageManualAnalysis, engine.StageSequence)
	require.NoError(t, host.CompleteStep("valve"))
	require.Eventually(t, func() bool { return len(bob.Snapshot().Steps) == 1 }, within, tick)

	require.NoError(t, bob.Restart())

	require.Eventually(t, func() bool {
		s := host.Snapshot()
		return s.Stage == engine.StageStart && len(s.Steps) == 0
	}, within, tick)
	assert.Zero(t, bob.Debrief().Mistakes)
}

func TestLeave_ReturnsToLobby(t *testing.T) {
	network, host, token := hosted(t)
	bob := joined(t, network, host, "Bob", token)

	bob.Leave()

	status := bob.Status()
	assert.Equal(t, engine.StageLobby, status.Stage)
	assert.Equal(t, session.PhaseIdle, status.Session.Phase)
	require.Eventually(t, func() bool { return len(host.Status().Session.Peers) == 0 }, within, tick)
}

func TestSubscribeSeesRemoteEvents(t *testing.T) {
	network, host, token := hosted(t)

	got := make(chan types.Event, 8)
	host.Subscribe(func(e types.Event) { got <- e })

	joined(t, network, host, "Bob", token)

	select {
	case e := <-got:
		assert.Equal(t, types.TypeChat, e.Type())
	case <-time.After(within):
		t.Fatal("timed out waiting for the join announcement")
	}
}

func TestSubscribe_HandlerRepliesFromGoroutine(t *testing.T) {
	network, host, token := hosted(t)

	host.Subscribe(func(e types.Event) {
		if msg, ok := e.(types.Chat); ok && !msg.IsSystem && msg.Sender != ChiefEngineer {
			go host.Chat("copy that, " + msg.Sender)
		}
	})

	bob := joined(t, network, host, "Bob", token)
	for i := 0; i < 20; i++ {
		_, err := bob.Chat("status report")
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		n := 0
		for _, m := range bob.ChatLog() {
			if m.Text == "copy that, Bob" {
				n++
			}
		}
		return n == 20
	}, within, tick)
}
