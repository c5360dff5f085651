package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/naval-sim/internal/hub"
	"github.com/DoyleJ11/naval-sim/internal/ws"
)

func SetupRoutes(h *hub.Hub, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/peers/{id}", PeerStatus(h))
	r.Get("/ws", ws.Handler(h, logger.Named("ws")))
	return r
}
