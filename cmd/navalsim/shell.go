package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/DoyleJ11/naval-sim/internal/app"
	"github.com/DoyleJ11/naval-sim/internal/engine"
	"github.com/DoyleJ11/naval-sim/pkg/types"
)

var errUsage = errors.New("usage")

const helpText = `commands:
  host [name]          create a session and print its token
  join [name] <token>  join a session
  go <stage>           move the crew to a stage (e.g. ROOM_EXPLORATION)
  step <id>            complete a sequence step (valve, lube, start, sync, breaker)
  chat <text>          message the crew
  hint                 ask the chief engineer
  mistake              record a wrong answer
  restart              send the crew back to START
  status               show stage, steps and session
  debrief              show the scorecard
  leave                disconnect
  quit                 leave and exit`

// shell turns command lines into controller calls.
type shell struct {
	ctrl *app.Controller
	out  io.Writer
	name string
}

// exec runs one command line. It reports quit for "quit".
func (s *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(s.out, helpText)

	case "host":
		name := s.nameFrom(args)
		token, err := s.ctrl.Host(ctx, name)
		if err != nil {
			return false, err
		}
		s.name = name
		fmt.Fprintf(s.out, "session token: %s\n", token)

	case "join":
		var name, token string
		switch len(args) {
		case 1:
			name, token = s.name, args[0]
		case 2:
			name, token = args[0], args[1]
		default:
			return false, fmt.Errorf("%w: join [name] <token>", errUsage)
		}
		if err := s.ctrl.Join(ctx, name, token); err != nil {
			return false, err
		}
		s.name = name
		fmt.Fprintf(s.out, "joined %s\n", strings.TrimSpace(token))

	case "go":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: go <stage>", errUsage)
		}
		stage := engine.Stage(strings.ToUpper(args[0]))
		if err := s.ctrl.Advance(stage); err != nil {
			return false, err
		}
		s.describe(stage)

	case "step":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: step <id>", errUsage)
		}
		if err := s.ctrl.CompleteStep(strings.ToLower(args[0])); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "steps: %s\n", strings.Join(s.ctrl.Snapshot().Steps, ", "))

	case "chat":
		if _, err := s.ctrl.Chat(strings.Join(args, " ")); err != nil {
			return false, err
		}

	case "hint":
		fmt.Fprintf(s.out, "%s: %s\n", app.ChiefEngineer, s.ctrl.RequestHint())

	case "mistake":
		s.ctrl.RecordMistake()

	case "restart":
		if err := s.ctrl.Restart(); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "crew reset to START")

	case "status":
		s.status()

	case "debrief":
		s.debrief()

	case "leave":
		s.ctrl.Leave()
		fmt.Fprintln(s.out, "left session")

	case "quit", "exit":
		s.ctrl.Leave()
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

func (s *shell) nameFrom(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	return s.name
}

func (s *shell) describe(stage engine.Stage) {
	c := engine.ContextFor(stage)
	if c.Tag == "" {
		fmt.Fprintf(s.out, "stage: %s\n", stage)
		return
	}
	fmt.Fprintf(s.out, "stage: %s [%s] %s\n", stage, c.Tag, c.Description)
}

func (s *shell) status() {
	st := s.ctrl.Status()
	fmt.Fprintf(s.out, "name: %s\nstage: %s\nsteps: %s\nsession: %s %s\n",
		st.Name, st.Stage, strings.Join(st.Steps, ", "), st.Session.Phase, st.Session.Token)
	if len(st.Session.Peers) > 0 {
		fmt.Fprintf(s.out, "peers: %s\n", strings.Join(st.Session.Peers, ", "))
	}
}

func (s *shell) debrief() {
	d := s.ctrl.Debrief()
	fmt.Fprintf(s.out, "outcome: %s\nstage reached: %s\ntime: %s (class avg %s)\nmistakes: %d (class avg %d)\n",
		d.Outcome, d.StageReached, d.Elapsed, d.ClassAverageTime, d.Mistakes, d.ClassAverageMistakes)
	for _, line := range d.Logs {
		fmt.Fprintf(s.out, "  %s\n", line)
	}
}

// printEvent renders a remote event for the terminal.
func printEvent(w io.Writer, e types.Event) {
	switch ev := e.(type) {
	case types.Chat:
		if ev.IsSystem {
			fmt.Fprintf(w, "* %s\n", ev.Text)
			return
		}
		fmt.Fprintf(w, "<%s> %s\n", ev.Sender, ev.Text)
	case types.StateUpdate:
		fmt.Fprintf(w, "crew moved to %s\n", ev.Stage)
	case types.SequenceUpdate:
		fmt.Fprintf(w, "sequence: %s\n", strings.Join(ev.Steps, ", "))
	case types.SyncResponse:
		fmt.Fprintf(w, "synced: %s [%s]\n", ev.Stage, strings.Join(ev.SequenceSteps, ", "))
	}
}
