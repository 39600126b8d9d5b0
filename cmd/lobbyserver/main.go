// Package main provides the lobby server binary: a WebSocket endpoint for
// lobby clients plus an optional gRPC health service.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/benlongcp/lobby/internal/config"
	"github.com/benlongcp/lobby/internal/health"
	"github.com/benlongcp/lobby/internal/lobby"
	"github.com/benlongcp/lobby/internal/observability"
	"github.com/benlongcp/lobby/internal/server"
	"github.com/benlongcp/lobby/internal/transport/websocket"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty = defaults and environment only")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading LOBBY_* variables")
	printConfig := flag.Bool("print-config", false, "print the effective configuration as YAML and exit")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *printConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			log.Fatalf("printing config: %v", err)
		}
		return
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting lobby server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("path", cfg.Server.Path),
	)

	coord := lobby.NewCoordinator(logger, cfg.WebSocket.SendBuffer)
	router := lobby.NewRouter(coord, logger)
	acceptor := websocket.NewAcceptor(cfg.Server, cfg.WebSocket,
		websocket.HandlerFunc(func(ctx context.Context, conn *websocket.Conn) error {
			return router.Serve(ctx, conn)
		}),
		logger,
		websocket.WithRoute("GET /api/v1/lobby", websocket.JSONHandler(func() any {
			return coord.Snapshot()
		})),
	)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	if cfg.Health.Enabled() {
		healthServer := health.NewServer(cfg.Health, logger)
		lifecycle.Add("health", &server.FuncService{
			StartFn: healthServer.Start,
			StopFn:  healthServer.Stop,
		})
	}

	logger.Info("lobby server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Bool("health", cfg.Health.Enabled()),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	sessions, rooms := coord.Counts()
	logger.Info("lobby server stopped",
		zap.Int("sessions", sessions),
		zap.Int("rooms", rooms),
	)
}
