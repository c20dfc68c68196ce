// Package web serves the browser viewer: statistics and control endpoints, a
// websocket statistics feed and a display surface that streams drawn frames
// to the page as JPEG.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/hub"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
	"github.com/teslashibe/go-edgecam/pkg/stats"
	webassets "github.com/teslashibe/go-edgecam/web"
)

// Controller is the pipeline as the viewer sees it. *pipeline.Coordinator
// implements it.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() pipeline.State
	Stats() (stats.Report, bool)
	StatsChanged() <-chan struct{}
	Session() (pipeline.SessionInfo, bool)
	Latest() *frame.Buffer
}

// Config holds viewer settings.
type Config struct {
	// Enabled turns the viewer on. Default: true.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen is the bind address. Default: "127.0.0.1:8090".
	Listen string `yaml:"listen" json:"listen"`

	// JPEGQuality is used for streamed and snapshot frames, 1-100. Default: 80.
	JPEGQuality int `yaml:"jpeg_quality" json:"jpeg_quality"`
}

// DefaultConfig returns a local-only viewer.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Listen:      "127.0.0.1:8090",
		JPEGQuality: 80,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be 1-100, got %d", c.JPEGQuality)
	}
	return nil
}

// Server is the viewer HTTP server.
type Server struct {
	cfg    Config
	logger *slog.Logger
	app    *fiber.App
	ctrl   Controller

	statsHub *hub.Hub
	frameHub *hub.Hub
	surface  *Surface
}

// NewServer builds the fiber app and hubs. Attach a controller before Run.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		statsHub: hub.New("stats", hub.WithLogger(logger)),
		frameHub: hub.New("frames", hub.WithLogger(logger), hub.WithClientBuffer(2)),
	}
	s.surface = NewSurface(s.frameHub, cfg.JPEGQuality)

	app := fiber.New(fiber.Config{
		AppName:               "edgecam",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/stats", s.handleStats)
	api.Get("/session", s.handleSession)
	api.Get("/frame.jpg", s.handleFrame)
	api.Post("/pipeline/start", s.handleStart)
	api.Post("/pipeline/stop", s.handleStop)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stats", websocket.New(s.handleStatsWS))
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))

	app.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(webassets.Static()),
		Index: "index.html",
	}))

	s.app = app
	return s
}

// Attach sets the pipeline the endpoints control.
func (s *Server) Attach(ctrl Controller) {
	s.ctrl = ctrl
}

// Surface returns the browser display surface.
func (s *Server) Surface() *Surface {
	return s.surface
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx ends, then shuts the server and hubs down.
func (s *Server) Run(ctx context.Context) error {
	go s.statsHub.Run()
	go s.frameHub.Run()
	defer s.statsHub.Stop()
	defer s.frameHub.Stop()

	go s.pumpStats(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("viewer listening", "url", "http://"+s.cfg.Listen)
		errCh <- s.app.Listen(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	}
}

// pumpStats forwards every published report to the stats hub.
func (s *Server) pumpStats(ctx context.Context) {
	if s.ctrl == nil {
		return
	}
	for {
		changed := s.ctrl.StatsChanged()
		select {
		case <-ctx.Done():
			return
		case <-changed:
			if r, ok := s.ctrl.Stats(); ok {
				if err := s.statsHub.BroadcastJSON(r); err != nil {
					s.logger.Warn("failed to encode stats", "error", err)
				}
			}
		}
	}
}
