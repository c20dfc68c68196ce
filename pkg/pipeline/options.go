package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-edgecam/pkg/capture"
	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/stats"
)

// Mode selects what the pipeline shows.
type Mode string

const (
	// ModeEdges runs edge detection on every frame.
	ModeEdges Mode = "edges"
	// ModePassthrough shows the camera image in color, skipping detection.
	ModePassthrough Mode = "passthrough"
)

// Config holds pipeline tuning.
type Config struct {
	// Mode selects edges or passthrough. Default: "edges".
	Mode Mode `yaml:"mode" json:"mode"`

	// Width and Height request a capture resolution; zero keeps the source's.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// StatsWindow is the number of cycles fps and latency are computed over.
	StatsWindow int `yaml:"stats_window" json:"stats_window"`

	// DrainTimeout bounds how long Stop waits for the in-flight frame.
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drain_timeout"`

	// RefreshInterval is the display refresh period.
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
}

// DefaultConfig returns a 60 Hz display with a 30 frame statistics window.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeEdges,
		StatsWindow:     stats.DefaultWindow,
		DrainTimeout:    500 * time.Millisecond,
		RefreshInterval: time.Second / 60,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeEdges, ModePassthrough:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("resolution must not be negative, got %dx%d", c.Width, c.Height)
	}
	if c.StatsWindow < 2 {
		return fmt.Errorf("stats_window must be at least 2, got %d", c.StatsWindow)
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain_timeout must be positive, got %v", c.DrainTimeout)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %v", c.RefreshInterval)
	}
	return nil
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig applies every field of cfg.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		c.mode = cfg.Mode
		c.res = capture.Resolution{Width: cfg.Width, Height: cfg.Height}
		c.window = cfg.StatsWindow
		c.drain = cfg.DrainTimeout
		c.refresh = cfg.RefreshInterval
	}
}

// WithClock sets the clock used for timing cycles, the drain timeout and the
// display refresh.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStatsWindow sets the statistics window capacity.
func WithStatsWindow(n int) Option {
	return func(c *Coordinator) { c.window = n }
}

// WithDrainTimeout sets how long Stop waits for the in-flight frame.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.drain = d }
}

// WithRefreshInterval sets the display refresh period.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.refresh = d }
}

// WithMode selects edges or passthrough.
func WithMode(m Mode) Option {
	return func(c *Coordinator) { c.mode = m }
}

// WithResolution requests a capture resolution.
func WithResolution(res capture.Resolution) Option {
	return func(c *Coordinator) { c.res = res }
}

// WithFrameHook registers fn to see every presented frame. It runs after the
// frame is committed to the display. The frame is borrowed for the duration of
// the call; call Retain to keep it.
func WithFrameHook(fn func(*frame.Buffer)) Option {
	return func(c *Coordinator) { c.hook = fn }
}
