package broker

import "errors"

// Session establishment failures. Callers match them with errors.Is.
var (
	ErrSignalingTimeout   = errors.New("signaling timeout")
	ErrSignalingError     = errors.New("signaling error")
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrConnectionRejected = errors.New("connection rejected")
	// ErrSuperseded is returned when Disconnect ran while the session was
	// still being established.
	ErrSuperseded = errors.New("session torn down during establishment")
)

// Errors reported by a Network.
var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrIdentityTaken   = errors.New("identity already registered")
	ErrPeerUnavailable = errors.New("peer unavailable")
	ErrHandshakeFailed = errors.New("direct channel handshake failed")
	ErrChannelClosed   = errors.New("channel closed")
)
