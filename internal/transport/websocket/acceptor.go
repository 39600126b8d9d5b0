package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/benlongcp/lobby/internal/config"
)

// Handler processes one upgraded connection until it ends.
type Handler interface {
	HandleConn(ctx context.Context, conn *Conn) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn *Conn) error

// HandleConn calls f.
func (f HandlerFunc) HandleConn(ctx context.Context, conn *Conn) error {
	return f(ctx, conn)
}

// Option customizes an Acceptor.
type Option func(*Acceptor)

// WithRoute registers an extra HTTP route next to the WebSocket endpoint.
// pattern uses http.ServeMux syntax, e.g. "GET /api/v1/lobby".
func WithRoute(pattern string, h http.Handler) Option {
	return func(a *Acceptor) {
		a.mux.Handle(pattern, h)
	}
}

// JSONHandler serves the value returned by fn as a JSON document.
func JSONHandler(fn func() any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(fn()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// Acceptor serves HTTP, upgrades requests on the configured path to
// WebSocket connections and dispatches each connection to a Handler.
type Acceptor struct {
	server   config.ServerConfig
	wsCfg    config.WebSocketConfig
	handler  Handler
	logger   *zap.Logger
	upgrader gws.Upgrader
	mux      *http.ServeMux

	httpServer *http.Server
	listener   net.Listener
	conns      map[*Conn]struct{}
	wg         sync.WaitGroup
	quit       chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewAcceptor creates a WebSocket acceptor.
//
// Precondition: server and wsCfg must be valid; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(server config.ServerConfig, wsCfg config.WebSocketConfig, handler Handler, logger *zap.Logger, opts ...Option) *Acceptor {
	a := &Acceptor{
		server:  server,
		wsCfg:   wsCfg,
		handler: handler,
		logger:  logger,
		mux:     http.NewServeMux(),
		conns:   make(map[*Conn]struct{}),
		quit:    make(chan struct{}),
	}
	a.upgrader = gws.Upgrader{
		HandshakeTimeout: server.ReadHeaderTimeout,
		CheckOrigin:      a.checkOrigin,
	}
	a.mux.HandleFunc("GET "+server.Path, a.serveWS)
	a.mux.Handle("GET /healthz", JSONHandler(func() any {
		return map[string]string{"status": "ok"}
	}))
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the HTTP handler serving every route.
func (a *Acceptor) Handler() http.Handler {
	return a.mux
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.server.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.server.Addr(), err)
	}

	srv := &http.Server{
		Handler:           a.mux,
		ReadHeaderTimeout: a.server.ReadHeaderTimeout,
	}

	a.mu.Lock()
	a.listener = listener
	a.httpServer = srv
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.server.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// serveWS upgrades the request and runs the handler for the connection.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn := NewConn(ws, a.wsCfg, a.logger)
	if !a.track(conn) {
		conn.GoingAway("server shutting down")
		return
	}
	defer a.untrack(conn)
	a.handleConn(conn)
}

// handleConn runs the handler for a single connection.
func (a *Acceptor) handleConn(conn *Conn) {
	start := time.Now()
	addr := conn.RemoteAddr()

	a.logger.Info("client connected",
		zap.String("remote_addr", addr),
	)

	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.quit:
			cancel()
			conn.GoingAway("server shutting down")
		case <-ctx.Done():
		}
	}()

	if err := a.handler.HandleConn(ctx, conn); err != nil {
		a.logger.Debug("session ended",
			zap.String("remote_addr", addr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	} else {
		a.logger.Info("session ended cleanly",
			zap.String("remote_addr", addr),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (a *Acceptor) track(conn *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.quit:
		return false
	default:
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn *Conn) {
	a.mu.Lock()
	delete(a.conns, conn)
	a.mu.Unlock()
	a.wg.Done()
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and requests whose Origin is listed in the allowed origins.
func (a *Acceptor) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return lo.Contains(a.wsCfg.AllowedOrigins, "*") || lo.Contains(a.wsCfg.AllowedOrigins, origin)
}

// Stop gracefully stops the acceptor: the listener is closed, every open
// connection is sent a going-away close frame, and Stop waits for all
// handlers to return.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.quit)
	srv := a.httpServer
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.wsCfg.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// ActiveConns returns the number of connections currently being served.
func (a *Acceptor) ActiveConns() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}
