package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/gambit/go/internal/config"
	"github.com/mcdev12/gambit/go/internal/gateway"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Error-Code"},
	})

	// WebSocket gateway
	gateway.NewWebSocketHandler(services.Connections, services.Verifier).RegisterRoutes(mux)

	// Ops procedures
	mux.Handle(services.Ops.NewHandler())

	setupHealthCheck(mux, services)

	return &http.Server{
		Addr:              cfg.Env.Addr,
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveGames    int    `json:"active_games"`
	RetainedGames  int    `json:"retained_games"`
	Connections    int    `json:"connections"`
	PendingHandoff int    `json:"pending_handoff"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		active, retained := services.Games.Counts()
		resp := healthResponse{
			Status:         "OK",
			ActiveGames:    active,
			RetainedGames:  retained,
			Connections:    services.Connections.Stats().TotalConnections,
			PendingHandoff: services.Handoff.Stats().Pending,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
