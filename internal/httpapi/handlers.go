package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/naval-sim/internal/hub"
)

// PeerStatus reports whether an identity is registered, so a joining
// participant can check a session token before dialing.
func PeerStatus(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		reply := make(chan bool, 1)
		select {
		case h.Inbox() <- hub.Lookup{ID: id, Reply: reply}:
		case <-h.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		case <-r.Context().Done():
			return
		}
		var online bool
		select {
		case online = <-reply:
		case <-h.Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		if !online {
			http.Error(w, "peer not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			ID     string `json:"id"`
			Online bool   `json:"online"`
		}{ID: id, Online: true})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
