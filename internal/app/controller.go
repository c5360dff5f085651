// Package app is the participant-side controller: it owns one session, keeps
// the local replica of the scenario state and turns user actions into events.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/naval-sim/internal/broker"
	"github.com/DoyleJ11/naval-sim/internal/bus"
	"github.com/DoyleJ11/naval-sim/internal/engine"
	"github.com/DoyleJ11/naval-sim/internal/reconcile"
	"github.com/DoyleJ11/naval-sim/internal/session"
	"github.com/DoyleJ11/naval-sim/pkg/types"
)

const (
	SystemSender  = "SYSTEM"
	ChiefEngineer = "CHIEF ENGINEER"
)

var ErrNameRequired = errors.New("display name required")
var ErrEmptyMessage = errors.New("empty chat message")

// Status is what a status line shows about the participant and its session.
type Status struct {
	Name    string
	Stage   engine.Stage
	Steps   []string
	Session session.View
}

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now for timestamps and metrics.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithBrokerOptions(opts ...broker.Option) Option {
	return func(c *Controller) { c.brokerOpts = append(c.brokerOpts, opts...) }
}

type Controller struct {
	logger     *zap.Logger
	now        func() time.Time
	brokerOpts []broker.Option

	bus     *bus.Bus
	broker  *broker.Broker
	manager *session.Manager

	unsubscribe func()

	mu      sync.Mutex
	name    string
	state   engine.State
	metrics engine.Metrics
	chat    []types.Chat
}

func New(ctx context.Context, network broker.Network, opts ...Option) *Controller {
	c := &Controller{
		logger:  zap.NewNop(),
		now:     time.Now,
		state:   engine.NewEmptyState(),
		metrics: engine.NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.bus = bus.New(c.logger.Named("bus"))
	c.broker = broker.New(network, c.logger.Named("broker"), c.brokerOpts...)
	c.manager = session.NewManager(ctx, c.broker, c.bus,
		session.WithSnapshotSource(c),
		session.WithLogger(c.logger.Named("session")),
	)
	c.unsubscribe = c.bus.Subscribe(c.onEvent)
	return c
}

// EnterLobby moves past the briefing screen.
func (c *Controller) EnterLobby() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Stage = engine.StageLobby
}

// Host creates a session and returns the token to share with the crew.
func (c *Controller) Host(ctx context.Context, name string) (string, error) {
	name, err := c.prepare(name)
	if err != nil {
		return "", err
	}

	token, err := c.manager.CreateSession(ctx, name)
	if err != nil {
		c.failed()
		return "", fmt.Errorf("hosting session: %w", err)
	}

	c.mu.Lock()
	c.metrics.Log(c.now(), "Hosted session: "+token)
	c.mu.Unlock()
	c.logger.Info("hosting", zap.String("name", name), zap.String("token", token))
	return token, nil
}

// Join joins the session under token and announces the new crew member.
// The host's current state arrives asynchronously.
func (c *Controller) Join(ctx context.Context, name, token string) error {
	name, err := c.prepare(name)
	if err != nil {
		return err
	}

	if err := c.manager.JoinSession(ctx, token); err != nil {
		c.failed()
		return fmt.Errorf("joining session: %w", err)
	}

	c.mu.Lock()
	c.metrics.Log(c.now(), "Joined session: "+strings.TrimSpace(token))
	c.mu.Unlock()

	c.bus.Send(c.newChat(SystemSender, name+" has joined the crew.", true))
	c.logger.Info("joined", zap.String("name", name), zap.String("token", token))
	return nil
}

// prepare resets the shared state for a new session. Every session starts a
// fresh replica in START so the host's snapshot always wins.
func (c *Controller) prepare(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.state = engine.NewEmptyState()
	c.state.Stage = engine.StageStart
	c.metrics.EnterStage(c.now(), engine.StageStart)
	return name, nil
}

func (c *Controller) failed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Stage = engine.StageLobby
}

// Leave disconnects from the session and returns to the lobby.
func (c *Controller) Leave() {
	c.manager.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Stage = engine.StageLobby
	c.metrics.EnterStage(c.now(), engine.StageLobby)
}

// Advance moves the crew to stage.
func (c *Controller) Advance(stage engine.Stage) error {
	c.mu.Lock()
	update, changed, err := c.advanceLocked(stage)
	c.mu.Unlock()

	if err != nil || !changed {
		return err
	}
	c.bus.Send(update)
	return nil
}

func (c *Controller) advanceLocked(stage engine.Stage) (types.StateUpdate, bool, error) {
	events, next, err := engine.Apply(c.state, engine.Command{
		Type:   engine.CmdAdvance,
		Stage:  stage,
		Origin: c.origin(),
	})
	if err != nil {
		return types.StateUpdate{}, false, err
	}
	if len(events) == 0 {
		return types.StateUpdate{}, false, nil
	}
	c.state = next
	c.metrics.EnterStage(c.now(), stage)
	if msg, ok := engine.Milestone(stage); ok {
		c.metrics.Log(c.now(), msg)
	}
	return types.NewStateUpdate(next), true, nil
}

// CompleteStep marks stepID done. A step out of order counts as a mistake.
// Completing the last step moves the crew to SUCCESS.
func (c *Controller) CompleteStep(stepID string) error {
	c.mu.Lock()
	events, next, err := engine.Apply(c.state, engine.Command{
		Type:   engine.CmdCompleteStep,
		StepID: stepID,
		Origin: c.origin(),
	})
	if err != nil {
		if errors.Is(err, engine.ErrOutOfOrder) {
			c.metrics.Mistake(c.now())
		}
		c.mu.Unlock()
		return err
	}
	c.state = next
	out := []types.Event{types.NewSequenceUpdate(next)}
	if engine.ContainsEvent(events, engine.EvtSequenceCompleted) {
		update, changed, err := c.advanceLocked(engine.StageSuccess)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		if changed {
			out = append(out, update)
		}
	}
	c.mu.Unlock()

	for _, e := range out {
		c.bus.Send(e)
	}
	return nil
}

// RecordMistake counts a wrong answer outside the start-up sequence.
func (c *Controller) RecordMistake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.Mistake(c.now())
}

// Restart returns the whole crew to START with an empty sequence and clears
// the local scorecard.
func (c *Controller) Restart() error {
	c.mu.Lock()
	_, next, err := engine.Apply(c.state, engine.Command{Type: engine.CmdRestart, Origin: c.origin()})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	c.metrics = engine.NewMetrics()
	c.mu.Unlock()

	c.bus.Send(types.NewStateUpdate(next))
	c.bus.Send(types.NewSequenceUpdate(next))
	return nil
}

// Chat sends text to the crew and appends it to the local log.
func (c *Controller) Chat(text string) (types.Chat, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Chat{}, ErrEmptyMessage
	}
	c.mu.Lock()
	sender := c.name
	c.mu.Unlock()

	msg := c.newChat(sender, text, false)
	c.appendChat(msg)
	c.bus.Send(msg)
	return msg, nil
}

// RequestHint asks the chief engineer for advice on the current stage and
// relays it to the crew.
func (c *Controller) RequestHint() string {
	c.mu.Lock()
	hint := engine.Hint(c.state.Stage)
	c.metrics.Log(c.now(), "Hint Requested")
	c.mu.Unlock()

	msg := c.newChat(ChiefEngineer, "HINT: "+hint, false)
	c.appendChat(msg)
	c.bus.Send(msg)
	return hint
}

// Snapshot is the state handed to joining participants.
func (c *Controller) Snapshot() engine.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneState(c.state)
}

func (c *Controller) Status() Status {
	view := c.manager.View()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Name:    c.name,
		Stage:   c.state.Stage,
		Steps:   slices.Clone(c.state.Steps),
		Session: view,
	}
}

func (c *Controller) ChatLog() []types.Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.chat)
}

func (c *Controller) Debrief() engine.Debrief {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics.Debrief(c.now())
}

// Subscribe forwards every remote event to h after the controller applied it.
// h runs on the session loop and must not call the controller's sending
// methods (Chat, Advance, CompleteStep, Restart, RequestHint, Join) or Leave
// itself; start a goroutine to react with one.
func (c *Controller) Subscribe(h bus.Handler) (unsubscribe func()) {
	return c.bus.Subscribe(h)
}

func (c *Controller) Close() {
	c.unsubscribe()
	c.manager.Close()
}

// onEvent applies a remote event. It runs on the session loop and must not
// send.
func (c *Controller) onEvent(e types.Event) {
	if msg, ok := e.(types.Chat); ok {
		c.appendChat(msg)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next, res := reconcile.Apply(c.state, e)
	if !res.Changed() {
		return
	}
	c.state = next
	if res.Stage {
		c.metrics.EnterStage(c.now(), next.Stage)
		c.metrics.Log(c.now(), fmt.Sprintf("Remote update: Moved to %s", next.Stage))
	}
	c.logger.Debug("applied remote state",
		zap.String("type", string(e.Type())),
		zap.String("stage", string(next.Stage)),
		zap.Strings("steps", next.Steps),
	)
}

func (c *Controller) appendChat(msg types.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chat = append(c.chat, msg)
}

func (c *Controller) newChat(sender, text string, system bool) types.Chat {
	return types.Chat{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: c.now().UnixMilli(),
		IsSystem:  system,
	}
}

// origin names this participant in versions. Outside a session it is empty,
// which still orders correctly against any remote writer.
func (c *Controller) origin() string {
	return c.broker.LocalID()
}

func cloneState(s engine.State) engine.State {
	s.Steps = slices.Clone(s.Steps)
	if s.Steps == nil {
		s.Steps = []string{}
	}
	return s
}
