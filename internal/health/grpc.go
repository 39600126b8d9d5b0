// Package health exposes the standard gRPC health checking protocol so
// orchestrators can probe the lobby server.
package health

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/benlongcp/lobby/internal/config"
)

// LobbyService is the service name reported alongside the server-wide status.
const LobbyService = "lobby.v1.Lobby"

// Server runs a gRPC server carrying only the health and reflection services.
type Server struct {
	cfg    config.HealthConfig
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a health server. Both statuses start as NOT_SERVING.
//
// Precondition: logger must be non-nil.
func NewServer(cfg config.HealthConfig, logger *zap.Logger) *Server {
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{cfg: cfg, grpc: gs, health: hs, logger: logger}
	s.SetServing(false)
	return s
}

// SetServing updates the reported status of the server and of LobbyService.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(LobbyService, status)
}

// Start listens on the configured address and serves until Stop.
//
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("gRPC health server listening",
		zap.String("addr", lis.Addr().String()),
	)
	s.SetServing(true)
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
