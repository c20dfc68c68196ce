// Package display presents processed frames on a surface at the surface's own
// refresh cadence.
//
// Producers call Present from any goroutine; it never waits for a refresh. The
// refresh loop (Run, or a surface driving Refresh itself) is the only context
// that touches the surface texture. Between two refreshes only the newest
// presented frame survives: anything it supersedes is released undrawn.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-edgecam/pkg/convert"
	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/latest"
)

// Sentinel errors for sink transitions.
var (
	ErrNotReady        = errors.New("display: surface not created")
	ErrDestroyed       = errors.New("display: surface destroyed")
	ErrInvalidViewport = errors.New("display: invalid viewport")
)

// State is the sink lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Viewport is the drawable area in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Surface is the display boundary. Upload copies an RGBA frame into the
// surface texture; Draw renders the texture into the viewport. Every method is
// called from the refresh context or under the sink's lifecycle lock, never
// concurrently.
type Surface interface {
	Create(width, height int) error
	Resize(width, height int) error
	Upload(b *frame.Buffer) error
	Draw() error
	Destroy() error
	Name() string
}

// Stats are lifetime sink counters.
type Stats struct {
	Presented  uint64 `json:"presented"`
	Superseded uint64 `json:"superseded"`
	Drawn      uint64 `json:"drawn"`
	Errors     uint64 `json:"errors"`
}

// Option configures a Sink.
type Option func(*Sink)

// WithClock sets the clock that drives Run.
func WithClock(c clock.Clock) Option {
	return func(s *Sink) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sink owns a Surface and the single pending display frame.
type Sink struct {
	surface Surface
	clock   clock.Clock
	logger  *slog.Logger
	pending *latest.Slot[*frame.Buffer]

	mu       sync.Mutex
	state    State
	viewport Viewport
	uploaded bool
	dirty    bool

	presented atomic.Uint64
	drawn     atomic.Uint64
	errors    atomic.Uint64
}

// NewSink creates an uninitialized sink for surface.
func NewSink(surface Surface, opts ...Option) *Sink {
	s := &Sink{
		surface: surface,
		clock:   clock.New(),
		logger:  slog.Default(),
		pending: latest.NewSlot(func(b *frame.Buffer) { b.Release() }),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "display", "surface", surface.Name())
	return s
}

// Create brings the surface up with the given viewport. A destroyed sink may be
// created again when its surface comes back.
func (s *Sink) Create(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, width, height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady {
		return s.resizeLocked(width, height)
	}
	if s.state == StateDestroyed {
		// a Present racing Destroy can still land a frame of the old surface
		s.dropPending()
	}
	if err := s.surface.Create(width, height); err != nil {
		return fmt.Errorf("create surface: %w", err)
	}
	s.state = StateReady
	s.viewport = Viewport{Width: width, Height: height}
	s.uploaded, s.dirty = false, false
	s.logger.Info("display ready", "width", width, "height", height)
	return nil
}

// Resize updates the viewport. Resizing to the current viewport does nothing.
func (s *Sink) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizeLocked(width, height)
}

func (s *Sink) resizeLocked(width, height int) error {
	switch s.state {
	case StateUninitialized:
		return ErrNotReady
	case StateDestroyed:
		return ErrDestroyed
	}
	if s.viewport.Width == width && s.viewport.Height == height {
		return nil
	}
	if err := s.surface.Resize(width, height); err != nil {
		return fmt.Errorf("resize surface: %w", err)
	}
	s.viewport = Viewport{Width: width, Height: height}
	s.dirty = s.uploaded
	s.logger.Debug("display resized", "width", width, "height", height)
	return nil
}

// Destroy tears the surface down and releases the pending frame.
func (s *Sink) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		s.state = StateDestroyed
		s.dropPending()
		return nil
	}
	s.state = StateDestroyed
	s.dropPending()
	s.uploaded, s.dirty = false, false

	if err := s.surface.Destroy(); err != nil {
		return fmt.Errorf("destroy surface: %w", err)
	}
	s.logger.Info("display destroyed", "drawn", s.drawn.Load())
	return nil
}

func (s *Sink) dropPending() {
	if b, ok := s.pending.TryTake(); ok {
		b.Release()
	}
}

// Present hands b to the sink and returns immediately. The sink takes over the
// caller's reference. A frame presented before Create waits for the surface;
// a destroyed sink releases it at once.
func (s *Sink) Present(b *frame.Buffer) error {
	if s.State() == StateDestroyed {
		b.Release()
		return ErrDestroyed
	}
	s.presented.Add(1)
	s.pending.Put(b)
	return nil
}

// Refresh uploads the newest presented frame, if any, and draws. It reports
// whether anything was drawn. Run calls it on every tick; surfaces with their
// own vsync may call it directly.
func (s *Sink) Refresh() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return false, nil
	}

	if b, ok := s.pending.TryTake(); ok {
		err := s.upload(b)
		b.Release()
		if err != nil {
			s.errors.Add(1)
			return false, err
		}
		s.uploaded, s.dirty = true, true
	}
	if !s.dirty {
		return false, nil
	}

	if err := s.surface.Draw(); err != nil {
		s.errors.Add(1)
		return false, fmt.Errorf("draw: %w", err)
	}
	s.dirty = false
	s.drawn.Add(1)
	return true, nil
}

func (s *Sink) upload(b *frame.Buffer) error {
	if b.Format() != frame.FormatRGBA {
		return &convert.UnsupportedFormatError{From: b.Format(), To: frame.FormatRGBA}
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if err := s.surface.Upload(b); err != nil {
		return fmt.Errorf("upload frame %d: %w", b.Seq(), err)
	}
	return nil
}

// Run refreshes on every interval tick until ctx ends.
func (s *Sink) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("display: refresh interval must be positive, got %v", interval)
	}
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	s.logger.Debug("refresh loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Refresh(); err != nil {
				s.logger.Warn("refresh failed", "error", err)
			}
		}
	}
}

// State returns the lifecycle state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Viewport returns the current viewport.
func (s *Sink) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Surface returns the underlying surface.
func (s *Sink) Surface() Surface {
	return s.surface
}

// Stats returns lifetime counters.
func (s *Sink) Stats() Stats {
	_, drops, _ := s.pending.Stats()
	return Stats{
		Presented:  s.presented.Load(),
		Superseded: drops,
		Drawn:      s.drawn.Load(),
		Errors:     s.errors.Load(),
	}
}
