package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/streamvest/pluginhost/internal/metrics"
	"github.com/streamvest/pluginhost/pkg/capability"
)

// Server is the host RPC gateway. Sandboxed plugins reach it over
// loopback through their compiled bindings; the external agent loop calls
// getOrServePlugin through the same surface.
type Server struct {
	port         int
	server       *http.Server
	upgrader     websocket.Upgrader
	router       *RPCRouter
	store        *Store
	broadcaster  *EventBroadcaster
	pluginServer PluginServer
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port         int
	Store        *Store
	PluginServer PluginServer
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger

	// Broadcaster may be shared with the pool so lifecycle events reach
	// dashboard clients; a fresh one is created when nil
	Broadcaster *EventBroadcaster
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NewEventBroadcaster(cfg.Logger)
	}

	s := &Server{
		port:         cfg.Port,
		router:       NewRPCRouter(),
		store:        cfg.Store,
		broadcaster:  broadcaster,
		pluginServer: cfg.PluginServer,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.registerMethods()

	return s, nil
}

// Broadcaster returns the lifecycle event broadcaster
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// URL returns the loopback address compiled into sandbox bindings
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.port)
}

// Start starts the gateway server
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(capability.StorageRPCPath, s.handleRPC)
	mux.HandleFunc(capability.LogRPCPath, s.handleRPC)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: mux,
	}

	s.logger.Info().Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping gateway server")
	return s.server.Shutdown(ctx)
}

// handleRPC serves one JSON-RPC request over HTTP
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var response *RPCResponse
	req, err := s.router.ParseRequest(body)
	if err != nil {
		rpcErr, ok := err.(*RPCError)
		if !ok {
			rpcErr = &RPCError{Code: InternalError, Message: err.Error()}
		}
		response = &RPCResponse{JSONRPC: "2.0", Error: rpcErr}
	} else {
		response = s.router.RouteRequest(r.Context(), req)
		s.countCall(req.Method, response)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write RPC response")
	}
}

func (s *Server) countCall(method string, response *RPCResponse) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if response.Error != nil {
		status = "error"
	}
	s.metrics.GatewayCallsTotal.WithLabelValues(method, status).Inc()
}

// handleWebSocket upgrades a dashboard client connection for lifecycle
// events
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		clientID = fmt.Sprintf("client-%d", time.Now().UnixNano())
	}

	remote := r.RemoteAddr
	if i := strings.LastIndex(remote, ":"); i > 0 {
		remote = remote[:i]
	}

	s.broadcaster.Register(clientID, conn)
	s.logger.Debug().Str("clientId", clientID).Str("ip", remote).Msg("Dashboard client connected")

	go func() {
		defer func() {
			s.broadcaster.Unregister(clientID)
			conn.Close()
			s.logger.Debug().Str("clientId", clientID).Msg("Dashboard client disconnected")
		}()
		for {
			// events are push-only; drain client frames until close
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
