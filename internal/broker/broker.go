// Package broker acquires a rendezvous identity, hosts or dials a session and
// turns channel activity into lifecycle signals for the topology manager.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSignalingTimeout bounds every wait on the rendezvous service.
const DefaultSignalingTimeout = 10 * time.Second

type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "HOST"
	case RoleClient:
		return "CLIENT"
	default:
		return "NONE"
	}
}

// Listener receives lifecycle signals. Every signal carries the epoch of the
// session it belongs to; a signal whose epoch is no longer current refers to a
// session that has been disconnected.
type Listener interface {
	// SessionEnded reports a reset: every channel and the role are gone and
	// epoch is now current. Create and join reset first, so it also precedes
	// their SessionStarted and is sent even when establishment fails.
	SessionEnded(epoch uint64)
	SessionStarted(epoch uint64, role Role, token string)
	ChannelOpened(epoch uint64, ch Channel)
	ChannelData(epoch uint64, ch Channel, raw []byte)
	ChannelClosed(epoch uint64, ch Channel)
	ChannelError(epoch uint64, ch Channel, err error)
}

type Broker struct {
	network Network
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	listener Listener
	epoch    uint64
	role     Role
	token    string
	localID  string
	endpoint Endpoint
	channels map[Channel]struct{}
	cancel   context.CancelFunc
}

type Option func(*Broker)

func WithSignalingTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func New(network Network, logger *zap.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broker{
		network:  network,
		logger:   logger,
		timeout:  DefaultSignalingTimeout,
		channels: make(map[Channel]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) SetListener(l Listener) {
	b.mu.Lock()
	b.listener = l
	b.mu.Unlock()
}

// CreateSession registers a fresh session token and starts accepting
// participants. Any previous session is disconnected first.
func (b *Broker) CreateSession(ctx context.Context, displayNameHint string) (string, error) {
	epoch := b.Reset()

	token, err := NewSessionToken()
	if err != nil {
		return "", fmt.Errorf("%w: generating token: %v", ErrSignalingError, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	endpoint, err := b.register(waitCtx, ctx, token)
	if err != nil {
		return "", err
	}

	sessionCtx, stop := context.WithCancel(context.Background())
	if !b.install(epoch, RoleHost, token, endpoint, stop) {
		stop()
		endpoint.Close()
		return "", ErrSuperseded
	}

	b.logger.Info("session created",
		zap.String("token", token),
		zap.String("name", displayNameHint),
	)
	b.currentListener().SessionStarted(epoch, RoleHost, token)
	go b.accept(sessionCtx, epoch, endpoint, RoleHost)
	return token, nil
}

// JoinSession dials the host registered under token. An empty token is
// rejected before anything else happens.
func (b *Broker) JoinSession(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidSessionID
	}

	epoch := b.Reset()

	identity, err := NewClientIdentity()
	if err != nil {
		return fmt.Errorf("%w: generating identity: %v", ErrSignalingError, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	endpoint, err := b.register(waitCtx, ctx, identity)
	if err != nil {
		return err
	}

	ch, err := endpoint.Dial(waitCtx, token)
	if err != nil {
		endpoint.Close()
		return b.establishError(ctx, err, ErrConnectionRejected)
	}

	sessionCtx, stop := context.WithCancel(context.Background())
	if !b.install(epoch, RoleClient, token, endpoint, stop) {
		stop()
		ch.Close()
		endpoint.Close()
		return ErrSuperseded
	}

	b.logger.Info("joined session",
		zap.String("token", token),
		zap.String("identity", identity),
	)
	b.currentListener().SessionStarted(epoch, RoleClient, token)
	b.openChannel(sessionCtx, epoch, ch)
	go b.accept(sessionCtx, epoch, endpoint, RoleClient)
	return nil
}

// Disconnect closes every channel, releases the identity and forgets the
// role. Safe to call at any time, any number of times.
func (b *Broker) Disconnect() { b.Reset() }

// Reset disconnects and returns the epoch that is current afterwards.
func (b *Broker) Reset() uint64 {
	b.mu.Lock()
	b.epoch++
	epoch := b.epoch
	endpoint := b.endpoint
	channels := b.channels
	cancel := b.cancel
	token := b.token
	b.endpoint = nil
	b.channels = make(map[Channel]struct{})
	b.cancel = nil
	b.role = RoleNone
	b.token = ""
	b.localID = ""
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for ch := range channels {
		ch.Close()
	}
	if endpoint != nil {
		endpoint.Close()
		b.logger.Info("session disconnected", zap.String("token", token))
	}
	b.currentListener().SessionEnded(epoch)
	return epoch
}

func (b *Broker) Epoch() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch
}

func (b *Broker) Role() Role {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.role
}

// Token is the session token of the active session, or "".
func (b *Broker) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// LocalID is this process's registered identity, or "".
func (b *Broker) LocalID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.localID
}

// OpenChannels is the number of channels the broker currently tracks.
func (b *Broker) OpenChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

// register claims identity and waits for the rendezvous to confirm it.
// parent is the caller's context, used to tell cancellation from timeout.
func (b *Broker) register(ctx, parent context.Context, identity string) (Endpoint, error) {
	endpoint, err := b.network.Register(ctx, identity)
	if err != nil {
		return nil, b.establishError(parent, err, ErrSignalingError)
	}

	select {
	case sig, ok := <-endpoint.Signals():
		if !ok {
			endpoint.Close()
			return nil, fmt.Errorf("%w: rendezvous closed before confirming %s", ErrSignalingError, identity)
		}
		if sig.Kind == SignalOpen {
			return endpoint, nil
		}
		endpoint.Close()
		if sig.Err == nil {
			sig.Err = fmt.Errorf("unexpected %s signal", sig.Kind)
		}
		return nil, fmt.Errorf("%w: %v", ErrSignalingError, sig.Err)

	case <-ctx.Done():
		endpoint.Close()
		return nil, b.establishError(parent, ctx.Err(), ErrSignalingError)
	}
}

func (b *Broker) establishError(parent context.Context, err error, fallback error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrSignalingTimeout, b.timeout)
	case errors.Is(parent.Err(), context.Canceled):
		return parent.Err()
	default:
		return fmt.Errorf("%w: %v", fallback, err)
	}
}

func (b *Broker) install(epoch uint64, role Role, token string, endpoint Endpoint, cancel context.CancelFunc) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.epoch != epoch {
		return false
	}
	b.role = role
	b.token = token
	b.localID = endpoint.ID()
	b.endpoint = endpoint
	b.cancel = cancel
	return true
}

func (b *Broker) currentListener() Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return noopListener{}
	}
	return b.listener
}

// accept watches the endpoint for inbound channels and rendezvous errors
// until the session is torn down.
func (b *Broker) accept(ctx context.Context, epoch uint64, endpoint Endpoint, role Role) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-endpoint.Signals():
			if !ok {
				return
			}
			switch sig.Kind {
			case SignalConnection:
				if role != RoleHost {
					b.logger.Warn("refusing inbound channel on a client", zap.String("peer", sig.Channel.Peer()))
					sig.Channel.Close()
					continue
				}
				b.logger.Info("participant connected", zap.String("peer", sig.Channel.Peer()))
				b.openChannel(ctx, epoch, sig.Channel)
			case SignalError:
				b.logger.Warn("rendezvous error", zap.Error(sig.Err))
			}
		}
	}
}

func (b *Broker) openChannel(ctx context.Context, epoch uint64, ch Channel) {
	b.mu.Lock()
	if b.epoch != epoch {
		b.mu.Unlock()
		ch.Close()
		return
	}
	b.channels[ch] = struct{}{}
	b.mu.Unlock()

	b.currentListener().ChannelOpened(epoch, ch)
	go b.pump(ctx, epoch, ch)
}

// pump reads ch until it closes, forwarding each message in arrival order.
func (b *Broker) pump(ctx context.Context, epoch uint64, ch Channel) {
	defer b.untrack(ch)

	for {
		raw, err := ch.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Torn down by Disconnect.
				return
			}
			ch.Close()
			if errors.Is(err, io.EOF) {
				b.logger.Info("channel closed", zap.String("peer", ch.Peer()))
				b.currentListener().ChannelClosed(epoch, ch)
			} else {
				b.logger.Warn("channel error", zap.String("peer", ch.Peer()), zap.Error(err))
				b.currentListener().ChannelError(epoch, ch, err)
			}
			return
		}
		b.currentListener().ChannelData(epoch, ch, raw)
	}
}

func (b *Broker) untrack(ch Channel) {
	b.mu.Lock()
	delete(b.channels, ch)
	b.mu.Unlock()
}

type noopListener struct{}

func (noopListener) SessionEnded(uint64)                 {}
func (noopListener) SessionStarted(uint64, Role, string) {}
func (noopListener) ChannelOpened(uint64, Channel)       {}
func (noopListener) ChannelData(uint64, Channel, []byte) {}
func (noopListener) ChannelClosed(uint64, Channel)       {}
func (noopListener) ChannelError(uint64, Channel, error) {}
