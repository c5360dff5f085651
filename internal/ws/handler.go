// Package ws serves the rendezvous signaling websocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/naval-sim/internal/hub"
	"github.com/DoyleJ11/naval-sim/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

// Handler registers the identity given in ?id= with h and relays the peer's
// OFFER and ANSWER frames until the connection closes.
func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Participants connect from native processes, not browsers.
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		log := logger.With(zap.String("id", id))

		out := make(chan types.ServerMessage, outboxSize)
		reply := make(chan error, 1)
		if !post(ctx, h, hub.Register{ID: id, Outbox: out, Reply: reply}) {
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		}
		if err := <-reply; err != nil {
			log.Info("registration rejected", zap.Error(err))
			write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: hub.Code(err), Peer: id})
			conn.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}
		defer post(context.Background(), h, hub.Unregister{ID: id, Outbox: out})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(ctx)
		defer writeCancel()
		go func() {
			for msg := range out {
				if err := write(writeCtx, conn, msg); err != nil {
					log.Debug("signaling write failed", zap.Error(err))
					break
				}
			}
			// The hub closed the outbox: dropped or shutting down.
			conn.Close(websocket.StatusGoingAway, "released")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("signaling read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: types.ErrCodeBadJSON})
				continue
			}

			switch cm.Type {
			case types.MsgOffer, types.MsgAnswer:
				if !post(ctx, h, hub.Relay{Src: id, Msg: cm}) {
					return
				}
			default:
				write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: types.ErrCodeUnknownType})
			}
		}
	}
}

// post hands msg to the hub unless the hub or ctx is done first.
func post(ctx context.Context, h *hub.Hub, msg hub.HubMsg) bool {
	select {
	case h.Inbox() <- msg:
		return true
	case <-h.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
