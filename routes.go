package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// newRouter wires the HTTP surface. leaderboard may be nil when Redis is not
// configured.
func newRouter(hub *Hub, leaderboard *Leaderboard) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	r.HandleFunc("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if leaderboard == nil {
			http.Error(w, "leaderboard not configured", http.StatusServiceUnavailable)
			return
		}
		leaderboard.handleGet(w, r)
	}).Methods(http.MethodGet)

	r.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Stats()); err != nil {
			log.Error().Err(err).Msg("error encoding stats")
		}
	}).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return cors.Default().Handler(r)
}
