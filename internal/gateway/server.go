package gateway

import (
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RegisterRoutes installs the command, query and WebSocket endpoints.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/leagues", s.handleCreateLeague)
	mux.HandleFunc("GET /api/leagues", s.handleListLeagues)
	mux.HandleFunc("GET /api/leagues/{id}/state", s.handleState)

	mux.HandleFunc("POST /api/leagues/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/leagues/{id}/ready-check", s.handleBeginReadyCheck)
	mux.HandleFunc("POST /api/leagues/{id}/ready", s.handleReady)
	mux.HandleFunc("POST /api/leagues/{id}/ready/force", s.handleForceReady)

	mux.HandleFunc("POST /api/leagues/{id}/nominations", s.handleNominate)
	mux.HandleFunc("POST /api/leagues/{id}/nominations/confirm", s.handleConfirmNomination)
	mux.HandleFunc("POST /api/leagues/{id}/nominations/cancel", s.handleCancelNomination)

	mux.HandleFunc("POST /api/leagues/{id}/bids", s.handleBid)
	mux.HandleFunc("POST /api/leagues/{id}/close", s.handleCloseAuction)

	mux.HandleFunc("POST /api/leagues/{id}/acks", s.handleAck)
	mux.HandleFunc("POST /api/leagues/{id}/acks/force", s.handleForceAck)

	mux.HandleFunc("POST /api/leagues/{id}/appeals", s.handleAppeal)
	mux.HandleFunc("POST /api/leagues/{id}/appeals/decision", s.handleDecideAppeal)
	mux.HandleFunc("POST /api/leagues/{id}/appeals/acks", s.handleAckAppeal)

	mux.HandleFunc("POST /api/leagues/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/leagues/{id}/go-back", s.handleGoBack)
	mux.HandleFunc("POST /api/leagues/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/leagues/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /api/leagues/{id}/heartbeat", s.handleHeartbeat)

	mux.HandleFunc("GET /ws/leagues/{id}", s.handleWebSocket)
	mux.HandleFunc("GET /ws/stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// NewServer wraps the mux with CORS and h2c so browser clients and HTTP/2
// tooling both work against the same port.
func NewServer(addr string, mux *http.ServeMux) *http.Server {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}
}
