// Package web serves the status API: health, live loop state, the recent
// transcript, tool definitions and Prometheus metrics, plus websocket
// streams of status and turn updates.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceloop/pkg/hub"
	"github.com/teslashibe/go-voiceloop/pkg/metrics"
	"github.com/teslashibe/go-voiceloop/pkg/tools"
	"github.com/teslashibe/go-voiceloop/pkg/transcript"
)

// StatusFunc returns the current loop state, encoded as JSON.
type StatusFunc func() any

// TurnSource lists recent transcript turns.
type TurnSource interface {
	Recent(sessionID string, limit int) []transcript.Turn
}

// Config configures the Server.
type Config struct {
	Addr    string
	Status  StatusFunc
	Turns   TurnSource
	Tools   func() []tools.Definition
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Config)

// WithStatus sets the status source.
func WithStatus(fn StatusFunc) Option {
	return func(c *Config) { c.Status = fn }
}

// WithTurns sets the transcript source.
func WithTurns(t TurnSource) Option {
	return func(c *Config) { c.Turns = t }
}

// WithTools sets the tool definition source.
func WithTools(fn func() []tools.Definition) Option {
	return func(c *Config) { c.Tools = fn }
}

// WithMetrics exposes m at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Server is the status HTTP server.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	statusHub *hub.Hub
	turnHub   *hub.Hub

	mu      sync.Mutex
	started bool
}

// NewServer creates a server listening on addr once started.
func NewServer(addr string, opts ...Option) *Server {
	cfg := Config{Addr: addr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Status == nil {
		cfg.Status = func() any { return fiber.Map{} }
	}

	s := &Server{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "web"),
		statusHub: hub.New("status", cfg.Logger),
		turnHub:   hub.New("turns", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voiceloop",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/turns", s.handleTurns)
	api.Get("/tools", s.handleTools)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/turns", websocket.New(s.handleTurnsWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("web: server already started")
	}
	s.started = true
	s.mu.Unlock()

	go s.statusHub.Run(ctx)
	go s.turnHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.cfg.Addr)
		errc <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("status server shutdown failed", "error", err)
		}
		return nil
	}
}

// PublishStatus pushes the current status to /ws/status subscribers.
func (s *Server) PublishStatus() {
	if err := s.statusHub.BroadcastJSON(s.cfg.Status()); err != nil {
		s.logger.Warn("encode status failed", "error", err)
	}
}

// PublishTurn pushes a logged turn to /ws/turns subscribers.
func (s *Server) PublishTurn(turn transcript.Turn) {
	if err := s.turnHub.BroadcastJSON(turn); err != nil {
		s.logger.Warn("encode turn failed", "error", err)
	}
}
