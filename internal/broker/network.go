package broker

import "context"

type SignalKind int

const (
	// SignalOpen confirms the identity is registered and reachable.
	SignalOpen SignalKind = iota
	// SignalConnection carries a channel a remote participant opened to us.
	SignalConnection
	// SignalError reports a rendezvous failure, e.g. a rejected registration.
	SignalError
)

func (k SignalKind) String() string {
	switch k {
	case SignalOpen:
		return "open"
	case SignalConnection:
		return "connection"
	case SignalError:
		return "error"
	default:
		return "unknown"
	}
}

type Signal struct {
	Kind    SignalKind
	Channel Channel
	Err     error
}

// Network is the rendezvous facility participants register with and dial
// each other through.
type Network interface {
	// Register claims identity. The returned Endpoint reports the outcome as
	// its first Signal: SignalOpen on success, SignalError otherwise.
	Register(ctx context.Context, identity string) (Endpoint, error)
}

// Endpoint is a registered identity.
type Endpoint interface {
	ID() string
	// Signals delivers lifecycle signals. Nothing is delivered after Close.
	Signals() <-chan Signal
	// Dial opens a channel to remote and returns once it is open.
	Dial(ctx context.Context, remote string) (Channel, error)
	// Close releases the identity and closes every channel of this endpoint.
	Close() error
}

// Channel is a reliable, ordered message channel to one remote identity.
type Channel interface {
	Peer() string
	Send(data []byte) error
	// Recv blocks for the next message. It returns io.EOF once the channel is
	// closed and drained.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}
