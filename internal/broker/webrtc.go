package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/DoyleJ11/naval-sim/internal/types"
)

// Compile-time interface checks.
var (
	_ Network  = (*RTCNetwork)(nil)
	_ Endpoint = (*rtcEndpoint)(nil)
	_ Channel  = (*rtcChannel)(nil)
)

// eventsLabel names the single data channel opened per peer connection.
const eventsLabel = "events"

const frameWriteTimeout = 3 * time.Second

// RTCNetwork registers identities with the rendezvous server over a websocket
// and opens WebRTC data channels between participants. Signaling uses vanilla
// ICE: candidates are gathered before an SDP is sent, so each connection
// needs exactly one OFFER/ANSWER round trip.
type RTCNetwork struct {
	signalURL string
	ice       ICEConfig
	logger    *zap.Logger
}

func NewRTCNetwork(signalURL string, ice ICEConfig, logger *zap.Logger) *RTCNetwork {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RTCNetwork{signalURL: signalURL, ice: ice, logger: logger}
}

func (n *RTCNetwork) Register(ctx context.Context, identity string) (Endpoint, error) {
	u, err := url.Parse(n.signalURL)
	if err != nil {
		return nil, fmt.Errorf("parsing rendezvous url: %w", err)
	}
	q := u.Query()
	q.Set("id", identity)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing rendezvous: %w", err)
	}

	life, cancel := context.WithCancel(context.Background())
	e := &rtcEndpoint{
		network: n,
		id:      identity,
		conn:    conn,
		logger:  n.logger.With(zap.String("identity", identity)),
		signals: make(chan Signal, 64),
		life:    life,
		cancel:  cancel,
		pending: make(map[string]chan dialResult),
	}
	go e.readLoop()
	return e, nil
}

func (n *RTCNetwork) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: n.ice.Servers})
}

type dialResult struct {
	sdp string
	err error
}

type rtcEndpoint struct {
	network *RTCNetwork
	id      string
	conn    *websocket.Conn
	logger  *zap.Logger
	signals chan Signal

	life   context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu          sync.Mutex
	pending     map[string]chan dialResult
	connections []*webrtc.PeerConnection
	closed      bool
}

func (e *rtcEndpoint) ID() string { return e.id }

func (e *rtcEndpoint) Signals() <-chan Signal { return e.signals }

func (e *rtcEndpoint) emit(sig Signal) bool {
	if e.life.Err() != nil {
		return false
	}
	select {
	case e.signals <- sig:
		return true
	case <-e.life.Done():
		return false
	}
}

func (e *rtcEndpoint) readLoop() {
	for {
		_, data, err := e.conn.Read(e.life)
		if err != nil {
			if e.life.Err() == nil {
				e.logger.Warn("rendezvous connection lost", zap.Error(err))
				e.emit(Signal{Kind: SignalError, Err: fmt.Errorf("rendezvous connection lost: %w", err)})
			}
			e.failPending(ErrChannelClosed)
			return
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			e.logger.Warn("dropping malformed rendezvous frame", zap.Error(err))
			continue
		}

		switch msg.Type {
		case types.MsgOpen:
			e.emit(Signal{Kind: SignalOpen})
		case types.MsgOffer:
			go e.answer(msg.Src, msg.SDP)
		case types.MsgAnswer:
			e.resolve(msg.Src, dialResult{sdp: msg.SDP})
		case types.MsgLeave:
			e.logger.Debug("peer left rendezvous", zap.String("peer", msg.Peer))
		case types.MsgError:
			e.handleError(msg)
		default:
			e.logger.Warn("unknown rendezvous frame", zap.String("type", msg.Type))
		}
	}
}

func (e *rtcEndpoint) handleError(msg types.ServerMessage) {
	switch msg.Error {
	case types.ErrCodePeerUnavailable:
		if e.resolve(msg.Peer, dialResult{err: fmt.Errorf("%w: %q", ErrPeerUnavailable, msg.Peer)}) {
			return
		}
	case types.ErrCodeInvalidID:
		e.emit(Signal{Kind: SignalError, Err: fmt.Errorf("%w: %q", ErrInvalidIdentity, e.id)})
		return
	case types.ErrCodeIDTaken:
		e.emit(Signal{Kind: SignalError, Err: fmt.Errorf("%w: %q", ErrIdentityTaken, e.id)})
		return
	}
	e.emit(Signal{Kind: SignalError, Err: fmt.Errorf("rendezvous error: %s", msg.Error)})
}

func (e *rtcEndpoint) resolve(remote string, res dialResult) bool {
	e.mu.Lock()
	reply, ok := e.pending[remote]
	if ok {
		delete(e.pending, remote)
	}
	e.mu.Unlock()
	if ok {
		reply <- res
	}
	return ok
}

func (e *rtcEndpoint) failPending(err error) {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[string]chan dialResult)
	e.mu.Unlock()
	for _, reply := range pending {
		reply <- dialResult{err: err}
	}
}

func (e *rtcEndpoint) send(ctx context.Context, msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, frameWriteTimeout)
	defer cancel()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.Write(ctx, websocket.MessageText, payload)
}

func (e *rtcEndpoint) track(pc *webrtc.PeerConnection) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.connections = append(e.connections, pc)
	return true
}

// Dial offers a connection to remote and waits until its data channel opens.
func (e *rtcEndpoint) Dial(ctx context.Context, remote string) (Channel, error) {
	pc, err := e.network.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	if !e.track(pc) {
		pc.Close()
		return nil, ErrChannelClosed
	}

	ordered := true
	dc, err := pc.CreateDataChannel(eventsLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	ch := newRTCChannel(remote, pc, dc)

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("creating SDP offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		ch.Close()
		return nil, fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		ch.Close()
		return nil, ctx.Err()
	}

	reply := make(chan dialResult, 1)
	e.mu.Lock()
	if _, busy := e.pending[remote]; busy {
		e.mu.Unlock()
		ch.Close()
		return nil, fmt.Errorf("dial to %q already in progress", remote)
	}
	e.pending[remote] = reply
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.pending[remote] == reply {
			delete(e.pending, remote)
		}
		e.mu.Unlock()
	}()

	err = e.send(ctx, types.ClientMessage{Type: types.MsgOffer, Dst: remote, SDP: pc.LocalDescription().SDP})
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("sending offer: %w", err)
	}
	e.logger.Debug("offer sent", zap.String("peer", remote))

	var res dialResult
	select {
	case res = <-reply:
	case <-ctx.Done():
		ch.Close()
		return nil, ctx.Err()
	}
	if res.err != nil {
		ch.Close()
		return nil, res.err
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: res.sdp}
	if err := pc.SetRemoteDescription(answer); err != nil {
		ch.Close()
		return nil, fmt.Errorf("setting remote description: %w", err)
	}

	select {
	case <-opened:
	case <-ch.broken:
		ch.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, ch.brokenErr)
	case <-ctx.Done():
		ch.Close()
		return nil, ctx.Err()
	}
	e.logger.Info("data channel open", zap.String("peer", remote))
	return ch, nil
}

// answer accepts an offer from remote and surfaces its data channel as a
// SignalConnection once it opens.
func (e *rtcEndpoint) answer(remote, sdp string) {
	pc, err := e.network.newPeerConnection()
	if err != nil {
		e.logger.Error("creating peer connection", zap.String("peer", remote), zap.Error(err))
		return
	}
	if !e.track(pc) {
		pc.Close()
		return
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != eventsLabel {
			dc.Close()
			return
		}
		ch := newRTCChannel(remote, pc, dc)
		dc.OnOpen(func() {
			if !e.emit(Signal{Kind: SignalConnection, Channel: ch}) {
				ch.Close()
			}
		})
	})

	ctx, cancel := context.WithTimeout(e.life, DefaultSignalingTimeout)
	defer cancel()

	if err := e.completeAnswer(ctx, pc, remote, sdp); err != nil {
		e.logger.Error("answering offer", zap.String("peer", remote), zap.Error(err))
		pc.Close()
	}
}

func (e *rtcEndpoint) completeAnswer(ctx context.Context, pc *webrtc.PeerConnection, remote, sdp string) error {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.send(ctx, types.ClientMessage{Type: types.MsgAnswer, Dst: remote, SDP: pc.LocalDescription().SDP})
}

func (e *rtcEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	connections := e.connections
	e.connections = nil
	e.mu.Unlock()

	e.cancel()
	for _, pc := range connections {
		pc.Close()
	}
	return e.conn.Close(websocket.StatusNormalClosure, "bye")
}

var errPeerConnectionFailed = errors.New("peer connection failed")

// rtcChannel adapts a data channel to Channel. Inbound messages are queued so
// pion's callback never blocks on a slow reader.
type rtcChannel struct {
	peer      string
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	in        *pipe
	closeOnce sync.Once

	// broken is closed on the first transport failure; brokenErr holds it.
	broken     chan struct{}
	brokenOnce sync.Once
	brokenErr  error
}

func newRTCChannel(peer string, pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *rtcChannel {
	c := &rtcChannel{peer: peer, pc: pc, dc: dc, in: newPipe(), broken: make(chan struct{})}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		_ = c.in.push(msg.Data)
	})
	dc.OnClose(func() { c.in.close() })
	dc.OnError(func(err error) { c.fail(err) })
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed:
			c.fail(errPeerConnectionFailed)
		case webrtc.PeerConnectionStateClosed:
			c.in.close()
		}
	})
	return c
}

func (c *rtcChannel) fail(err error) {
	c.brokenOnce.Do(func() {
		c.brokenErr = err
		close(c.broken)
	})
	c.in.fail(err)
}

func (c *rtcChannel) Peer() string { return c.peer }

func (c *rtcChannel) Send(data []byte) error {
	if c.in.isClosed() {
		return ErrChannelClosed
	}
	return c.dc.SendText(string(data))
}

func (c *rtcChannel) Recv(ctx context.Context) ([]byte, error) { return c.in.pop(ctx) }

func (c *rtcChannel) Close() error {
	c.closeOnce.Do(func() {
		c.in.close()
		_ = c.dc.Close()
		_ = c.pc.Close()
	})
	return nil
}
