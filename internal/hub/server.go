package hub

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hivegrid/hub/internal/connection"
)

// server is the operator and node-facing HTTP surface: health check,
// status aggregate, and the websocket upgrade endpoint nodes connect to.
type server struct {
	hub      *Hub
	addr     string
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func newServer(h *Hub, addr string, logger zerolog.Logger) *server {
	return &server{
		hub:    h,
		addr:   addr,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Node auth is out of scope; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func (s *server) run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("http server shutdown was not clean")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleHealthz reports 200 when the store answers a ping, 503 otherwise.
func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	code := http.StatusOK
	if err := s.hub.store.Ping(ctx); err != nil {
		resp = healthResponse{Status: "unhealthy", Store: "disconnected", Error: err.Error()}
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// handleStatus returns the operator aggregate: connection count, node
// counts, active missions and per-mission progress.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, err := s.hub.Status(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("status aggregation failed")
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleWS upgrades to a websocket and hands the connection to the hub's
// receive loop. The handler blocks for the connection's lifetime; the
// request context descends from the run context, so sessions end when the
// hub stops even though hijacked connections bypass http.Server.Shutdown.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.ServeConnection(r.Context(), connection.NewWSTransport(ws))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
