package types

// Frame types exchanged with the rendezvous server.
const (
	MsgOpen   = "OPEN"   // server -> client: identity registered
	MsgOffer  = "OFFER"  // both ways: SDP offer
	MsgAnswer = "ANSWER" // both ways: SDP answer
	MsgLeave  = "LEAVE"  // server -> client: a peer you signaled with went away
	MsgError  = "ERROR"  // server -> client
)

// Error codes carried by MsgError frames.
const (
	ErrCodeInvalidID       = "invalid-id"
	ErrCodeIDTaken         = "id-taken"
	ErrCodePeerUnavailable = "peer-unavailable"
	ErrCodeBadJSON         = "bad-json"
	ErrCodeUnknownType     = "unknown-type"
)

type ClientMessage struct {
	Type string `json:"type"` // "OFFER" | "ANSWER"
	Dst  string `json:"dst,omitempty"`
	SDP  string `json:"sdp,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`
	// Src is set by the server from the sender's registered identity.
	Src   string `json:"src,omitempty"`
	SDP   string `json:"sdp,omitempty"`
	Error string `json:"error,omitempty"`
	// Peer names the identity an ERROR or LEAVE refers to.
	Peer string `json:"peer,omitempty"`
}
