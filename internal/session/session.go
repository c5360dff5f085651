// Package session routes events across a star topology. One Manager runs per
// participant: as host it fans every inbound event out to all other
// participants, as client it talks to the host only.
package session

import (
	"context"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/DoyleJ11/naval-sim/internal/broker"
	"github.com/DoyleJ11/naval-sim/internal/bus"
	"github.com/DoyleJ11/naval-sim/internal/reconcile"
	"github.com/DoyleJ11/naval-sim/pkg/types"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseHostActive
	PhaseClientActive
)

func (p Phase) String() string {
	switch p {
	case PhaseHostActive:
		return "HOST_ACTIVE"
	case PhaseClientActive:
		return "CLIENT_ACTIVE"
	default:
		return "IDLE"
	}
}

type Msg interface{ isSessionMsg() }

type Started struct {
	Epoch uint64
	Role  broker.Role
	Token string
}

func (Started) isSessionMsg() {}

type Opened struct {
	Epoch   uint64
	Channel broker.Channel
}

func (Opened) isSessionMsg() {}

type Data struct {
	Epoch   uint64
	Channel broker.Channel
	Raw     []byte
}

func (Data) isSessionMsg() {}

// Closed reports a channel that closed or failed; Err is nil for a clean close.
type Closed struct {
	Epoch   uint64
	Channel broker.Channel
	Err     error
}

func (Closed) isSessionMsg() {}

type Outbound struct {
	Event types.Event
}

func (Outbound) isSessionMsg() {}

// Reset returns the manager to idle once the broker reached Epoch. Done, if
// set, is closed once the message has been handled.
type Reset struct {
	Epoch uint64
	Done  chan struct{}
}

func (Reset) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type View struct {
	Phase   Phase
	Token   string
	LocalID string
	// Peers lists the remote identity of every open channel, sorted.
	Peers []string
}

type Option func(*Manager)

// WithSnapshotSource sets the state a host answers SYNC_REQUEST with.
func WithSnapshotSource(src reconcile.Source) Option {
	return func(m *Manager) { m.source = src }
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

type Manager struct {
	broker *broker.Broker
	bus    *bus.Bus
	source reconcile.Source
	logger *zap.Logger

	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by loop.
	phase Phase
	epoch uint64
	token string
	conns []broker.Channel
}

// NewManager wires b and eventBus to a new manager and starts its loop. The
// manager becomes b's listener and eventBus's router.
func NewManager(parent context.Context, b *broker.Broker, eventBus *bus.Bus, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(parent)

	m := &Manager{
		broker: b,
		bus:    eventBus,
		logger: zap.NewNop(),
		inbox:  make(chan Msg, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	b.SetListener(m)
	eventBus.Attach(m)

	go m.loop()
	return m
}

// CreateSession hosts a new session and returns its token. The current
// session ends first, so a failed attempt leaves the manager idle.
func (m *Manager) CreateSession(ctx context.Context, displayName string) (string, error) {
	return m.broker.CreateSession(ctx, displayName)
}

// JoinSession joins the session hosted under token. Like CreateSession it ends
// the current session first, except for an empty token. On success the manager
// asks the host for its current state.
func (m *Manager) JoinSession(ctx context.Context, token string) error {
	return m.broker.JoinSession(ctx, token)
}

// Disconnect leaves the current session, if any, and waits until the manager
// is idle. Must not be called from a bus handler.
func (m *Manager) Disconnect() {
	// The broker reports the reset itself; waiting on a second Reset makes
	// sure the loop has handled it.
	epoch := m.broker.Reset()

	done := make(chan struct{})
	if !m.post(Reset{Epoch: epoch, Done: done}) {
		return
	}
	select {
	case <-done:
	case <-m.ctx.Done():
	}
}

// Route sends e according to the current role. It implements bus.Router.
func (m *Manager) Route(e types.Event) {
	m.post(Outbound{Event: e})
}

// View reports the manager's current state.
func (m *Manager) View() View {
	reply := make(chan View, 1)
	if !m.post(GetState{Reply: reply}) {
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-m.ctx.Done():
		return View{}
	}
}

func (m *Manager) LocalID() string { return m.broker.LocalID() }

// Close disconnects and stops the loop.
func (m *Manager) Close() {
	m.broker.Disconnect()
	m.post(Shutdown{})
	m.cancel()
}

func (m *Manager) post(msg Msg) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) SessionEnded(epoch uint64) {
	m.post(Reset{Epoch: epoch})
}

func (m *Manager) SessionStarted(epoch uint64, role broker.Role, token string) {
	m.post(Started{Epoch: epoch, Role: role, Token: token})
}

func (m *Manager) ChannelOpened(epoch uint64, ch broker.Channel) {
	m.post(Opened{Epoch: epoch, Channel: ch})
}

func (m *Manager) ChannelData(epoch uint64, ch broker.Channel, raw []byte) {
	m.post(Data{Epoch: epoch, Channel: ch, Raw: raw})
}

func (m *Manager) ChannelClosed(epoch uint64, ch broker.Channel) {
	m.post(Closed{Epoch: epoch, Channel: ch})
}

func (m *Manager) ChannelError(epoch uint64, ch broker.Channel, err error) {
	m.post(Closed{Epoch: epoch, Channel: ch, Err: err})
}

func (m *Manager) loop() {
	for {
		select {
		case <-m.ctx.Done():
			return

		case in := <-m.inbox:
			switch msg := in.(type) {
			case Started:
				m.start(msg)

			case Opened:
				if msg.Epoch != m.epoch || m.phase == PhaseIdle {
					break
				}
				m.conns = append(m.conns, msg.Channel)
				m.logger.Info("connection open",
					zap.String("peer", msg.Channel.Peer()),
					zap.Stringer("phase", m.phase),
				)
				if m.phase == PhaseClientActive {
					m.requestSync(msg.Channel)
				}

			case Data:
				if msg.Epoch != m.epoch || m.phase == PhaseIdle {
					break
				}
				m.receive(msg.Channel, msg.Raw)

			case Closed:
				if msg.Epoch != m.epoch {
					break
				}
				if msg.Err != nil {
					m.logger.Warn("connection failed", zap.String("peer", msg.Channel.Peer()), zap.Error(msg.Err))
				} else {
					m.logger.Info("connection closed", zap.String("peer", msg.Channel.Peer()))
				}
				m.drop(msg.Channel)

			case Outbound:
				m.route(msg.Event)

			case Reset:
				// A session started after this reset is left alone.
				if msg.Epoch >= m.epoch {
					m.epoch = msg.Epoch
					m.phase = PhaseIdle
					m.token = ""
					m.conns = nil
				}
				if msg.Done != nil {
					close(msg.Done)
				}

			case GetState:
				msg.Reply <- m.view()

			case Shutdown:
				return
			}
		}
	}
}

func (m *Manager) start(msg Started) {
	if msg.Epoch < m.epoch {
		// Superseded by a Reset that was already handled.
		return
	}
	m.epoch = msg.Epoch
	m.token = msg.Token
	m.conns = nil
	switch msg.Role {
	case broker.RoleHost:
		m.phase = PhaseHostActive
	case broker.RoleClient:
		m.phase = PhaseClientActive
	default:
		m.phase = PhaseIdle
	}
	m.logger.Info("session active", zap.Stringer("phase", m.phase), zap.String("token", msg.Token))
}

func (m *Manager) receive(from broker.Channel, raw []byte) {
	ev, err := types.Decode(raw)
	if err != nil {
		m.logger.Warn("dropping inbound event", zap.String("peer", from.Peer()), zap.Error(err))
		return
	}

	if m.phase == PhaseHostActive {
		switch ev.(type) {
		case types.SyncRequest:
			m.answerSync(from)
			return
		case types.SyncResponse:
			m.logger.Warn("host ignoring SYNC_RESPONSE", zap.String("peer", from.Peer()))
			return
		}
		m.broadcast(raw, from)
		m.bus.Deliver(ev)
		return
	}

	if _, ok := ev.(types.SyncRequest); ok {
		m.logger.Debug("client ignoring SYNC_REQUEST", zap.String("peer", from.Peer()))
		return
	}
	m.bus.Deliver(ev)
}

func (m *Manager) route(e types.Event) {
	if m.phase == PhaseIdle {
		m.logger.Debug("no active session, dropping event", zap.String("type", string(e.Type())))
		return
	}
	raw, err := types.Encode(e)
	if err != nil {
		m.logger.Error("encoding outbound event", zap.Error(err))
		return
	}
	// A host sends to every participant; a client's only channel is the host.
	m.broadcast(raw, nil)
}

// broadcast sends raw to every open channel except skip.
func (m *Manager) broadcast(raw []byte, skip broker.Channel) {
	for _, ch := range append([]broker.Channel(nil), m.conns...) {
		if ch == skip {
			continue
		}
		m.sendTo(ch, raw)
	}
}

func (m *Manager) sendTo(ch broker.Channel, raw []byte) {
	if err := ch.Send(raw); err != nil {
		// Peer is gone or stuck - drop it.
		m.logger.Warn("send failed, dropping connection", zap.String("peer", ch.Peer()), zap.Error(err))
		m.drop(ch)
		ch.Close()
	}
}

func (m *Manager) requestSync(host broker.Channel) {
	raw, err := types.Encode(types.SyncRequest{})
	if err != nil {
		m.logger.Error("encoding SYNC_REQUEST", zap.Error(err))
		return
	}
	m.sendTo(host, raw)
}

func (m *Manager) answerSync(to broker.Channel) {
	if m.source == nil {
		m.logger.Warn("no snapshot source, ignoring SYNC_REQUEST", zap.String("peer", to.Peer()))
		return
	}
	raw, err := types.Encode(reconcile.Respond(m.source))
	if err != nil {
		m.logger.Error("encoding SYNC_RESPONSE", zap.Error(err))
		return
	}
	m.sendTo(to, raw)
}

func (m *Manager) drop(ch broker.Channel) {
	m.conns = lo.Without(m.conns, ch)
}

func (m *Manager) view() View {
	peers := lo.Map(m.conns, func(ch broker.Channel, _ int) string { return ch.Peer() })
	sort.Strings(peers)
	return View{
		Phase:   m.phase,
		Token:   m.token,
		LocalID: m.broker.LocalID(),
		Peers:   peers,
	}
}
