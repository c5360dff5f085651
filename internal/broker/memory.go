package broker

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time interface checks.
var (
	_ Network  = (*MemoryNetwork)(nil)
	_ Endpoint = (*memoryEndpoint)(nil)
	_ Channel  = (*memoryChannel)(nil)
)

// MemoryNetwork is an in-process rendezvous for tests and single-machine
// demos. Participants sharing one MemoryNetwork can host, join and exchange
// events without any real signaling.
type MemoryNetwork struct {
	mu           sync.Mutex
	endpoints    map[string]*memoryEndpoint
	unresponsive bool
	rejecting    bool
	registers    int
	// held are registrations swallowed while unresponsive.
	held []*memoryEndpoint
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{endpoints: make(map[string]*memoryEndpoint)}
}

// SetUnresponsive makes the network swallow registrations and dials, the way
// an unreachable signaling server would. Turning it off answers the
// registrations it held, as a slow server eventually does.
func (n *MemoryNetwork) SetUnresponsive(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unresponsive = v
	if v {
		return
	}
	held := n.held
	n.held = nil
	for _, ep := range held {
		if !ep.closedNow() {
			n.confirm(ep)
		}
	}
}

// SetRejecting makes every dial reach its target and then fail the direct
// channel handshake.
func (n *MemoryNetwork) SetRejecting(v bool) {
	n.mu.Lock()
	n.rejecting = v
	n.mu.Unlock()
}

// Registrations counts Register calls, answered or not.
func (n *MemoryNetwork) Registrations() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registers
}

// Online reports whether identity is currently registered.
func (n *MemoryNetwork) Online(identity string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.endpoints[identity]
	return ok
}

func (n *MemoryNetwork) Register(_ context.Context, identity string) (Endpoint, error) {
	ep := &memoryEndpoint{
		network: n,
		id:      identity,
		signals: make(chan Signal, 64),
		closed:  make(chan struct{}),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.registers++

	if n.unresponsive {
		n.held = append(n.held, ep)
		return ep, nil
	}
	n.confirm(ep)
	return ep, nil
}

// confirm answers a registration. n.mu must be held.
func (n *MemoryNetwork) confirm(ep *memoryEndpoint) {
	identity := ep.id
	switch {
	case !ValidIdentity(identity):
		ep.signals <- Signal{Kind: SignalError, Err: fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)}
	case n.endpoints[identity] != nil:
		ep.signals <- Signal{Kind: SignalError, Err: fmt.Errorf("%w: %q", ErrIdentityTaken, identity)}
	default:
		n.endpoints[identity] = ep
		ep.registered = true
		ep.signals <- Signal{Kind: SignalOpen}
	}
}

type memoryEndpoint struct {
	network    *MemoryNetwork
	id         string
	registered bool

	mu       sync.Mutex
	signals  chan Signal
	channels []*memoryChannel
	closed   chan struct{}
	isClosed bool
}

func (e *memoryEndpoint) ID() string { return e.id }

func (e *memoryEndpoint) Signals() <-chan Signal { return e.signals }

func (e *memoryEndpoint) Dial(ctx context.Context, remote string) (Channel, error) {
	e.network.mu.Lock()
	unresponsive := e.network.unresponsive
	rejecting := e.network.rejecting
	target := e.network.endpoints[remote]
	e.network.mu.Unlock()

	if unresponsive {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.closed:
			return nil, ErrChannelClosed
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %q", ErrPeerUnavailable, remote)
	}
	if rejecting {
		return nil, fmt.Errorf("%w: %q", ErrHandshakeFailed, remote)
	}

	toRemote, toLocal := newPipe(), newPipe()
	local := &memoryChannel{peer: remote, in: toLocal, out: toRemote}
	far := &memoryChannel{peer: e.id, in: toRemote, out: toLocal}

	if !target.adopt(far) {
		return nil, fmt.Errorf("%w: %q", ErrPeerUnavailable, remote)
	}
	if !e.track(local) {
		far.Close()
		return nil, ErrChannelClosed
	}

	select {
	case target.signals <- Signal{Kind: SignalConnection, Channel: far}:
	case <-target.closed:
		local.Close()
		return nil, fmt.Errorf("%w: %q", ErrPeerUnavailable, remote)
	case <-ctx.Done():
		local.Close()
		return nil, ctx.Err()
	}
	return local, nil
}

func (e *memoryEndpoint) closedNow() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isClosed
}

func (e *memoryEndpoint) adopt(ch *memoryChannel) bool { return e.track(ch) }

func (e *memoryEndpoint) track(ch *memoryChannel) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isClosed {
		return false
	}
	e.channels = append(e.channels, ch)
	return true
}

func (e *memoryEndpoint) Close() error {
	e.mu.Lock()
	if e.isClosed {
		e.mu.Unlock()
		return nil
	}
	e.isClosed = true
	close(e.closed)
	channels := e.channels
	e.channels = nil
	e.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}

	e.network.mu.Lock()
	if e.registered && e.network.endpoints[e.id] == e {
		delete(e.network.endpoints, e.id)
	}
	e.network.mu.Unlock()
	return nil
}

type memoryChannel struct {
	peer string
	in   *pipe
	out  *pipe
}

func (c *memoryChannel) Peer() string { return c.peer }

func (c *memoryChannel) Send(data []byte) error { return c.out.push(data) }

func (c *memoryChannel) Recv(ctx context.Context) ([]byte, error) { return c.in.pop(ctx) }

// Close ends both directions; the remote side drains what was already sent.
func (c *memoryChannel) Close() error {
	c.in.close()
	c.out.close()
	return nil
}

// Fail breaks the channel as a transport error would.
func (c *memoryChannel) Fail(err error) {
	c.in.fail(err)
	c.out.fail(err)
}
