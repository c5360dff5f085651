// Package hub is the rendezvous registry: it maps registered identities to
// their signaling outboxes and relays OFFER/ANSWER frames between them.
package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/naval-sim/internal/broker"
	"github.com/DoyleJ11/naval-sim/internal/types"
)

var (
	ErrInvalidID = errors.New("invalid identity")
	ErrIDTaken   = errors.New("identity already registered")
)

// Code maps a registration error to the ERROR frame code sent to the peer.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidID):
		return types.ErrCodeInvalidID
	case errors.Is(err, ErrIDTaken):
		return types.ErrCodeIDTaken
	default:
		return ""
	}
}

type HubMsg interface{ isHubMsg() }

// Register claims ID for Outbox. On success OPEN is queued on Outbox and Reply
// receives nil.
type Register struct {
	ID     string
	Outbox chan types.ServerMessage
	Reply  chan error
}

// Unregister releases ID if it is still held by Outbox.
type Unregister struct {
	ID     string
	Outbox chan types.ServerMessage
}

// Relay forwards an OFFER or ANSWER from Src to Msg.Dst.
type Relay struct {
	Src string
	Msg types.ClientMessage
}

type Lookup struct {
	ID    string
	Reply chan bool
}

type Count struct {
	Reply chan int
}

type ShutdownHub struct{}

func (Register) isHubMsg()    {}
func (Unregister) isHubMsg()  {}
func (Relay) isHubMsg()       {}
func (Lookup) isHubMsg()      {}
func (Count) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

type peer struct {
	outbox chan types.ServerMessage
	// contacts are the identities this peer exchanged signaling with; they get
	// LEAVE when it goes away.
	contacts map[string]struct{}
}

type Hub struct {
	inbox  chan HubMsg
	peers  map[string]*peer
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		peers:  make(map[string]*peer),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				msg.Reply <- h.register(msg.ID, msg.Outbox)

			case Unregister:
				if p := h.peers[msg.ID]; p != nil && p.outbox == msg.Outbox {
					h.remove(msg.ID)
				}

			case Relay:
				h.relay(msg.Src, msg.Msg)

			case Lookup:
				msg.Reply <- h.peers[msg.ID] != nil

			case Count:
				msg.Reply <- len(h.peers)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) register(id string, outbox chan types.ServerMessage) error {
	if !broker.ValidIdentity(id) {
		return ErrInvalidID
	}
	if h.peers[id] != nil {
		return ErrIDTaken
	}
	h.peers[id] = &peer{outbox: outbox, contacts: make(map[string]struct{})}
	h.deliver(id, types.ServerMessage{Type: types.MsgOpen})
	h.logger.Info("identity registered", zap.String("id", id))
	return nil
}

func (h *Hub) relay(src string, msg types.ClientMessage) {
	from := h.peers[src]
	if from == nil {
		return
	}
	to := h.peers[msg.Dst]
	if to == nil {
		h.deliver(src, types.ServerMessage{
			Type:  types.MsgError,
			Error: types.ErrCodePeerUnavailable,
			Peer:  msg.Dst,
		})
		return
	}
	from.contacts[msg.Dst] = struct{}{}
	to.contacts[src] = struct{}{}
	h.deliver(msg.Dst, types.ServerMessage{Type: msg.Type, Src: src, SDP: msg.SDP})
}

// deliver queues msg for id. A peer whose outbox is full is dropped.
func (h *Hub) deliver(id string, msg types.ServerMessage) {
	p := h.peers[id]
	if p == nil {
		return
	}
	select {
	case p.outbox <- msg:
	default:
		h.logger.Warn("dropping slow peer", zap.String("id", id))
		h.remove(id)
	}
}

func (h *Hub) remove(id string) {
	p := h.peers[id]
	if p == nil {
		return
	}
	delete(h.peers, id)
	close(p.outbox)
	h.logger.Info("identity released", zap.String("id", id))

	for contact := range p.contacts {
		if c := h.peers[contact]; c != nil {
			delete(c.contacts, id)
			h.deliver(contact, types.ServerMessage{Type: types.MsgLeave, Peer: id})
		}
	}
}

func (h *Hub) shutdown() {
	for id, p := range h.peers {
		close(p.outbox)
		delete(h.peers, id)
	}
	h.cancel()
}
