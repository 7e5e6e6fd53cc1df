// Package server hosts the JSON-RPC WebSocket endpoint together with a
// couple of plain HTTP endpoints for health checks and API discovery.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/brianly1003/cquest/internal/rpc"
	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/transport"
	"github.com/brianly1003/cquest/internal/security"
)

const (
	// HeartbeatInterval is how often connected clients receive a heartbeat.
	HeartbeatInterval = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

// Config configures a Server.
type Config struct {
	Host    string
	Port    int
	Name    string
	Version string

	// ConnectLimit caps new WebSocket connections per remote IP and minute.
	// Zero disables the limit.
	ConnectLimit int

	// AllowedOrigins lists browser origins accepted besides loopback ones.
	AllowedOrigins []string
}

// Server is the HTTP/WebSocket front of the RPC server.
type Server struct {
	cfg       Config
	rpcServer *rpc.Server
	registry  *handler.Registry
	publisher ports.EventPublisher
	limiter   *connectLimiter
	origins   *security.OriginChecker

	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	startTime     time.Time
	heartbeatSeq  int64
	heartbeatDone chan struct{}
	stopOnce      sync.Once
}

// New creates a server. registry feeds /openrpc.json; publisher receives
// heartbeat events and may be nil.
func New(cfg Config, rpcServer *rpc.Server, registry *handler.Registry, publisher ports.EventPublisher) *Server {
	s := &Server{
		cfg:           cfg,
		rpcServer:     rpcServer,
		registry:      registry,
		publisher:     publisher,
		origins:       security.NewOriginChecker(cfg.AllowedOrigins),
		startTime:     time.Now(),
		heartbeatDone: make(chan struct{}),
	}
	if cfg.ConnectLimit > 0 {
		s.limiter = newConnectLimiter(cfg.ConnectLimit, time.Minute)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.CheckOrigin,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/openrpc.json", s.handleOpenRPC).Methods(http.MethodGet)

	var ws http.Handler = http.HandlerFunc(s.handleWebSocket)
	if s.limiter != nil {
		ws = s.limiter.middleware(ws)
	}
	router.Handle("/ws", ws)

	return s.corsMiddleware(router)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	go s.heartbeatLoop()

	log.Info().Str("addr", ln.Addr().String()).Msg("server listening")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.heartbeatDone)
		s.rpcServer.Stop()
		if s.httpServer == nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

func (s *Server) heartbeatLoop() {
	if s.publisher == nil {
		return
	}
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.heartbeatDone:
			return
		case <-ticker.C:
			if s.rpcServer.ClientCount() == 0 {
				continue
			}
			seq := atomic.AddInt64(&s.heartbeatSeq, 1)
			s.publisher.Publish(events.NewHeartbeatEvent(seq, int64(time.Since(s.startTime).Seconds())))
		}
	}
}

// OpenRPC builds the discovery document for the registered methods.
func (s *Server) OpenRPC() *handler.OpenRPCSpec {
	return GenerateSpec(s.registry, s.cfg)
}

// GenerateSpec builds the discovery document for registry.
func GenerateSpec(registry *handler.Registry, cfg Config) *handler.OpenRPCSpec {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return registry.GenerateOpenRPC(
		handler.OpenRPCInfo{
			Title:       cfg.Name + " API",
			Description: "JSON-RPC 2.0 API for running the assistant, shell jobs and background services",
			Version:     cfg.Version,
		},
		fmt.Sprintf("ws://%s:%d/ws", host, cfg.Port),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   s.cfg.Name,
		"version":   s.cfg.Version,
		"clients":   s.rpcServer.ClientCount(),
		"uptime":    int64(time.Since(s.startTime).Seconds()),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleOpenRPC(w http.ResponseWriter, r *http.Request) {
	data, err := s.OpenRPC().ToJSON()
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade connection to WebSocket")
		return
	}

	t := transport.NewWebSocketTransport(conn)
	log.Info().
		Str("client_id", t.ID()).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket client connected")

	// The request context ends when the handler returns, so the connection
	// gets its own.
	err = s.rpcServer.ServeTransport(context.Background(), t)

	log.Info().
		Str("client_id", t.ID()).
		Err(err).
		Msg("WebSocket client disconnected")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.origins.Allowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
