package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Routes wires the query interface onto a mux router with CORS support.
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/nearest", s.Nearest).Methods("GET")
	router.HandleFunc("/stats", s.StatsHandler).Methods("GET")
	router.HandleFunc("/healthz", s.Health).Methods("GET")

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return cors(router)
}
