package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/naval-sim/internal/app"
	"github.com/DoyleJ11/naval-sim/internal/broker"
	"github.com/DoyleJ11/naval-sim/internal/engine"
	"github.com/DoyleJ11/naval-sim/pkg/types"
)

func newShell(t *testing.T, network broker.Network) (*shell, *bytes.Buffer) {
	t.Helper()
	ctrl := app.New(context.Background(), network)
	t.Cleanup(ctrl.Close)
	var out bytes.Buffer
	return &shell{ctrl: ctrl, out: &out}, &out
}

func execLine(t *testing.T, s *shell, line string) {
	t.Helper()
	_, err := s.exec(context.Background(), line)
	require.NoError(t, err, line)
}

func tokenFrom(t *testing.T, out *bytes.Buffer) string {
	t.Helper()
	for _, line := range strings.Split(out.String(), "\n") {
		if token, ok := strings.CutPrefix(line, "session token: "); ok {
			return token
		}
	}
	t.Fatalf("no token in output: %q", out.String())
	return ""
}

func TestShell_HostJoinAndAdvance(t *testing.T) {
	network := broker.NewMemoryNetwork()
	host, hostOut := newShell(t, network)
	cadet, cadetOut := newShell(t, network)

	execLine(t, host, "host Alice")
	token := tokenFrom(t, hostOut)

	execLine(t, cadet, "join Bob "+token)
	assert.Contains(t, cadetOut.String(), "joined "+token)
	require.Eventually(t, func() bool { return len(host.ctrl.Status().Session.Peers) == 1 }, 2*time.Second, 5*time.Millisecond)

	execLine(t, host, "go room_exploration")
	assert.Contains(t, hostOut.String(), "stage: ROOM_EXPLORATION [Active Learning]")
	require.Eventually(t, func() bool {
		return cadet.ctrl.Snapshot().Stage == engine.StageRoomExploration
	}, 2*time.Second, 5*time.Millisecond)

	execLine(t, cadet, "status")
	assert.Contains(t, cadetOut.String(), "session: CLIENT_ACTIVE "+token)
}

func TestShell_UsageAndUnknown(t *testing.T) {
	s, _ := newShell(t, broker.NewMemoryNetwork())

	_, err := s.exec(context.Background(), "join")
	require.ErrorIs(t, err, errUsage)

	_, err = s.exec(context.Background(), "go")
	require.ErrorIs(t, err, errUsage)

	_, err = s.exec(context.Background(), "dance")
	require.Error(t, err)

	quit, err := s.exec(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, quit)
}

func TestShell_HostNeedsName(t *testing.T) {
	s, _ := newShell(t, broker.NewMemoryNetwork())

	_, err := s.exec(context.Background(), "host")
	require.ErrorIs(t, err, app.ErrNameRequired)
}

func TestShell_StepsAndDebrief(t *testing.T) {
	s, out := newShell(t, broker.NewMemoryNetwork())
	execLine(t, s, "host Alice")
	for _, stage := range []string{"HOOK", "ROOM_EXPLORATION", "TERMINOLOGY", "MANUAL_ANALYSIS", "SEQUENCE"} {
		execLine(t, s, "go "+stage)
	}

	_, err := s.exec(context.Background(), "step start")
	require.ErrorIs(t, err, engine.ErrOutOfOrder)

	execLine(t, s, "step valve")
	assert.Contains(t, out.String(), "steps: valve")

	execLine(t, s, "debrief")
	assert.Contains(t, out.String(), "mistakes: 1")
	assert.Contains(t, out.String(), "Safety Limit Verified")
}

func TestShell_Quit(t *testing.T) {
	s, _ := newShell(t, broker.NewMemoryNetwork())
	execLine(t, s, "host Alice")

	quit, err := s.exec(context.Background(), "quit")
	require.NoError(t, err)
	assert.True(t, quit)
	assert.Equal(t, engine.StageLobby, s.ctrl.Snapshot().Stage)
}

func TestPrintEvent(t *testing.T) {
	var out bytes.Buffer
	printEvent(&out, types.Chat{Sender: "Bob", Text: "hello"})
	printEvent(&out, types.Chat{Sender: app.SystemSender, Text: "Bob has joined the crew.", IsSystem: true})
	printEvent(&out, types.StateUpdate{Stage: engine.StageHook})
	printEvent(&out, types.SequenceUpdate{Steps: []string{"valve", "lube"}})

	assert.Equal(t, "<Bob> hello\n* Bob has joined the crew.\ncrew moved to HOOK\nsequence: valve, lube\n", out.String())
}
