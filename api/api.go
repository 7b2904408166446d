package api

import (
	"errors"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/memory"
)

// Server is the API server for feeding and querying the engram memory engine
type Server struct {
	config Config
	engine *memory.Engine
	logger *zap.Logger
	app    *fiber.App
	broker *eventBroker
}

// NewServer creates a new API server.
// The engine is injected to allow sharing with other frontends
// (e.g., the MCP server running in the same process).
func NewServer(config Config, engine *memory.Engine, logger *zap.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("memory engine is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: engine,
		logger: logger,
		app:    app,
		broker: newEventBroker(),
	}

	app.Get("/ping", s.handlePing)
	app.Get("/memory/stats", s.handleStats)
	app.Get("/memory/entries/:hash", s.handleGetEntry)
	app.Get("/memory/events", s.handleWindowEvents)
	app.Post("/memory/fragments", s.handleIngest)
	app.Delete("/memory/fragments/:hash", s.handleRelease)
	app.Get("/v1/recall", s.handleRecallEndpoint)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s, nil
}

// Run starts the API server on the configured address and begins pumping
// window events to SSE subscribers.
func (s *Server) Run() error {
	go s.broker.run(s.engine.WindowEvents())

	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	s.broker.stop()
	return s.app.Shutdown()
}
