// Package edgecam wires capture, edge detection, display and the viewer into
// one application.
package edgecam

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-edgecam/internal/config"
	"github.com/teslashibe/go-edgecam/pkg/capture"
	"github.com/teslashibe/go-edgecam/pkg/edge"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
	"github.com/teslashibe/go-edgecam/pkg/web"
)

// Display surfaces.
const (
	SurfaceAuto   = "auto"
	SurfaceWeb    = "web"
	SurfaceWindow = "window"
	SurfaceNone   = "none"
)

// DisplayConfig selects where processed frames are shown.
type DisplayConfig struct {
	// Surface is "auto", "web", "window" or "none". Auto prefers the web
	// viewer, then a window, then headless.
	Surface string `yaml:"surface" json:"surface"`

	// Title is the window title for the window surface.
	Title string `yaml:"title" json:"title"`
}

// Config holds all configuration for the application.
// Flag parsing is done in cmd/edgecam; this struct is data only.
type Config struct {
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// AutoStart starts a pipeline session as soon as Run begins.
	AutoStart bool `yaml:"auto_start" json:"auto_start"`

	// StatsInterval is how often statistics are logged. Zero disables it.
	StatsInterval time.Duration `yaml:"stats_interval" json:"stats_interval"`

	Capture  capture.Config  `yaml:"capture" json:"capture"`
	Edge     edge.Config     `yaml:"edge" json:"edge"`
	Display  DisplayConfig   `yaml:"display" json:"display"`
	Pipeline pipeline.Config `yaml:"pipeline" json:"pipeline"`
	Web      web.Config      `yaml:"web" json:"web"`
}

// DefaultConfig returns a local viewer on the default camera.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		AutoStart:     true,
		StatsInterval: 5 * time.Second,
		Capture:       capture.DefaultConfig(),
		Edge:          edge.DefaultConfig(),
		Display:       DisplayConfig{Surface: SurfaceAuto, Title: "edgecam"},
		Pipeline:      pipeline.DefaultConfig(),
		Web:           web.DefaultConfig(),
	}
}

// LoadEnvConfig applies EDGECAM_* environment overrides.
func (c *Config) LoadEnvConfig() error {
	c.Capture.Device = config.String("DEVICE", c.Capture.Device)
	c.Capture.Backend = capture.Backend(config.String("BACKEND", string(c.Capture.Backend)))
	c.Capture.PixelFormat = config.String("PIXEL_FORMAT", c.Capture.PixelFormat)
	c.Edge.Backend = edge.Backend(config.String("EDGE", string(c.Edge.Backend)))
	c.Pipeline.Mode = pipeline.Mode(config.String("MODE", string(c.Pipeline.Mode)))
	c.Display.Surface = config.String("DISPLAY", c.Display.Surface)
	c.Web.Listen = config.String("LISTEN", c.Web.Listen)
	c.LogLevel = config.String("LOG_LEVEL", c.LogLevel)

	var err error
	if c.Web.Enabled, err = config.Bool("WEB", c.Web.Enabled); err != nil {
		return err
	}
	if c.AutoStart, err = config.Bool("AUTO_START", c.AutoStart); err != nil {
		return err
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if errs := c.Capture.Validate(); len(errs) > 0 {
		return &ConfigError{Section: "capture", Message: strings.Join(errs, "; ")}
	}
	if err := c.Edge.Validate(); err != nil {
		return &ConfigError{Section: "edge", Message: err.Error()}
	}
	if err := c.Pipeline.Validate(); err != nil {
		return &ConfigError{Section: "pipeline", Message: err.Error()}
	}
	if err := c.Web.Validate(); err != nil {
		return &ConfigError{Section: "web", Message: err.Error()}
	}
	switch c.Display.Surface {
	case SurfaceAuto, SurfaceWindow, SurfaceNone:
	case SurfaceWeb:
		if !c.Web.Enabled {
			return &ConfigError{Section: "display", Message: "web surface needs the web viewer enabled"}
		}
	default:
		return &ConfigError{Section: "display", Message: fmt.Sprintf("unknown surface %q", c.Display.Surface)}
	}
	if c.StatsInterval < 0 {
		return &ConfigError{Section: "stats_interval", Message: "must not be negative"}
	}
	return nil
}

// ConfigError is a configuration validation error.
type ConfigError struct {
	Section string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Section, e.Message)
}
