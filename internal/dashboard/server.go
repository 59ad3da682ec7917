package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"tradedash/internal/results"
	"tradedash/internal/store"
	"tradedash/internal/types"
)

// Lifecycle drives the remote bot
type Lifecycle interface {
	Start(ctx context.Context, cfg types.BotConfig) error
	Stop(ctx context.Context) error
	CanStart() bool
	CanStop() bool
}

// Backtester runs backtests
type Backtester interface {
	Run(ctx context.Context, cfg types.BotConfig) (types.BacktestResultSet, error)
}

// ResultsFetcher refreshes trade and profit history
type ResultsFetcher interface {
	Fetch(ctx context.Context) results.Outcome
}

// State exposes snapshots of the dashboard state
type State interface {
	Snapshot() store.Snapshot
	Subscribe(buffer int) *store.Subscription[store.Snapshot]
	Unsubscribe(sub *store.Subscription[store.Snapshot])
}

// Config holds the HTTP surface settings
type Config struct {
	Host       string
	Port       int
	CORSOrigin string
	Defaults   types.BotConfig
}

// Server is the operator-facing HTTP and WebSocket API
type Server struct {
	server    *http.Server
	logger    *slog.Logger
	cfg       Config
	lifecycle Lifecycle
	backtest  Backtester
	results   ResultsFetcher
	state     State
	upgrader  websocket.Upgrader
}

// NewServer creates the dashboard server
func NewServer(cfg Config, lifecycle Lifecycle, backtest Backtester, results ResultsFetcher, state State, logger *slog.Logger) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	return &Server{
		cfg:       cfg,
		lifecycle: lifecycle,
		backtest:  backtest,
		results:   results,
		state:     state,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return cfg.CORSOrigin == "*" || cfg.CORSOrigin == "" || r.Header.Get("Origin") == cfg.CORSOrigin
			},
		},
	}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware, s.corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleStream).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/bot/start", s.handleBotStart).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/bot/stop", s.handleBotStop).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/backtest", s.handleBacktest).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/results/refresh", s.handleResultsRefresh).Methods(http.MethodPost, http.MethodOptions)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.sendError(w, http.StatusNotFound, "Not found")
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("[DASHBOARD] Starting HTTP server",
		"port", s.cfg.Port,
		"address", s.server.Addr,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait briefly to check for immediate errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("[DASHBOARD] Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs all incoming requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, req)

		s.logger.Info("[DASHBOARD] Request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote", req.RemoteAddr,
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if s.cfg.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade through the logging wrapper
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "tradedash",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleState handles GET /api/state
func (s *Server) handleState(w http.ResponseWriter, req *http.Request) {
	s.sendSuccess(w, "Dashboard state", s.state.Snapshot())
}

// handleBotStart handles POST /api/bot/start
func (s *Server) handleBotStart(w http.ResponseWriter, req *http.Request) {
	cfg, err := s.decodeConfig(req)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if !s.lifecycle.CanStart() {
		s.sendError(w, http.StatusConflict, "Bot cannot be started now")
		return
	}

	err = s.lifecycle.Start(actionContext(req), cfg)
	if errors.Is(err, store.ErrActionInFlight) {
		s.sendError(w, http.StatusConflict, "Another bot action is in progress")
		return
	}

	s.sendSuccess(w, "Bot start processed", s.state.Snapshot())
}

// handleBotStop handles POST /api/bot/stop
func (s *Server) handleBotStop(w http.ResponseWriter, req *http.Request) {
	if !s.lifecycle.CanStop() {
		s.sendError(w, http.StatusConflict, "Bot cannot be stopped now")
		return
	}

	err := s.lifecycle.Stop(actionContext(req))
	if errors.Is(err, store.ErrActionInFlight) {
		s.sendError(w, http.StatusConflict, "Another bot action is in progress")
		return
	}

	s.sendSuccess(w, "Bot stop processed", s.state.Snapshot())
}

// handleBacktest handles POST /api/backtest
func (s *Server) handleBacktest(w http.ResponseWriter, req *http.Request) {
	cfg, err := s.decodeConfig(req)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	s.backtest.Run(actionContext(req), cfg)
	s.sendSuccess(w, "Backtest processed", s.state.Snapshot())
}

// handleResultsRefresh handles POST /api/results/refresh
func (s *Server) handleResultsRefresh(w http.ResponseWriter, req *http.Request) {
	s.results.Fetch(actionContext(req))
	s.sendSuccess(w, "Results refresh processed", s.state.Snapshot())
}

// handleStream handles GET /ws: one snapshot on connect, then one per change
func (s *Server) handleStream(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warn("[DASHBOARD] WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.state.Subscribe(16)
	defer s.state.Unsubscribe(sub)

	// Reader detects the client going away and ends the subscription
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.state.Unsubscribe(sub)
				return
			}
		}
	}()

	s.logger.Info("[DASHBOARD] Stream client connected", "remote", req.RemoteAddr)

	if err := s.writeSnapshot(conn, s.state.Snapshot()); err != nil {
		return
	}
	for snap := range sub.C() {
		if err := s.writeSnapshot(conn, snap); err != nil {
			break
		}
	}

	s.logger.Info("[DASHBOARD] Stream client disconnected", "remote", req.RemoteAddr)
}

type streamMessage struct {
	Type string         `json:"type"`
	Data store.Snapshot `json:"data"`
}

func (s *Server) writeSnapshot(conn *websocket.Conn, snap store.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(streamMessage{Type: "state", Data: snap})
}

// decodeConfig reads an optional BotConfig body; omitted fields keep the defaults
func (s *Server) decodeConfig(req *http.Request) (types.BotConfig, error) {
	cfg := s.cfg.Defaults.Clone()
	if req.Body == nil {
		return cfg, nil
	}

	err := json.NewDecoder(req.Body).Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return types.BotConfig{}, err
	}
	return cfg, nil
}

// actionContext keeps request values but never cancels an action mid-flight
func actionContext(req *http.Request) context.Context {
	return context.WithoutCancel(req.Context())
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// sendSuccess sends a success response
func (s *Server) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("[DASHBOARD] Failed to write response", "error", err)
	}
}
