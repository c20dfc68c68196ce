package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/latest"
)

// Option configures a Camera.
type Option func(*Camera)

// WithClock sets the clock used for capture timestamps.
func WithClock(c clock.Clock) Option {
	return func(cam *Camera) {
		if c != nil {
			cam.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cam *Camera) {
		if logger != nil {
			cam.logger = logger
		}
	}
}

// session is one Start..Stop span.
type session struct {
	handle       Handle
	mode         Mode
	slot         *latest.Slot[*frame.Buffer]
	cancel       context.CancelFunc
	done         chan struct{}
	disconnected chan error

	captured atomic.Uint64
	invalid  atomic.Uint64
}

// Camera is a Source backed by a Driver.
type Camera struct {
	driver Driver
	device string
	mode   Mode
	clock  clock.Clock
	logger *slog.Logger

	mu    sync.Mutex
	state State
	sess  *session
}

var _ Source = (*Camera)(nil)

// NewCamera creates an idle camera that will request mode from device.
func NewCamera(driver Driver, device string, mode Mode, opts ...Option) *Camera {
	c := &Camera{
		driver: driver,
		device: device,
		mode:   mode,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "capture", "driver", driver.Name(), "device", device)
	return c
}

// Name returns driver:device.
func (c *Camera) Name() string {
	return c.driver.Name() + ":" + c.device
}

// Start opens the device and starts the delivery goroutine. A Stopped camera
// may be started again; each start is a new session with sequence numbers
// counting from 1.
func (c *Camera) Start(ctx context.Context, res Resolution) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return ErrAlreadyRunning
	}
	if !acquireDevice(c.device) {
		return newError(KindDeviceUnavailable, c.device, ErrDeviceBusy)
	}

	mode := c.mode
	if !res.IsZero() {
		mode.Width, mode.Height = res.Width, res.Height
	}

	h, err := c.driver.Open(ctx, c.device, mode)
	if err != nil {
		releaseDevice(c.device)
		cerr := asError(c.device, err)
		c.logger.Warn("capture start failed", "kind", cerr.Kind, "error", cerr.Err)
		return cerr
	}

	granted := h.Mode()
	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		handle:       h,
		mode:         granted,
		slot:         latest.NewSlot(func(b *frame.Buffer) { b.Release() }),
		cancel:       cancel,
		done:         make(chan struct{}),
		disconnected: make(chan error, 1),
	}
	c.sess = s
	c.state = StateRunning

	go c.deliver(runCtx, s)

	c.logger.Info("capture started",
		"width", granted.Width,
		"height", granted.Height,
		"fps", granted.Framerate,
		"format", granted.Format,
	)
	return nil
}

func (c *Camera) deliver(ctx context.Context, s *session) {
	defer close(s.done)

	m := s.mode
	var seq uint64
	for {
		raw, err := s.handle.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.lost(s, err)
			return
		}

		seq++
		b, err := frame.NewWithRelease(raw.Data, m.Width, m.Height, m.Format, c.clock.Now(), seq, raw.Release)
		if err != nil {
			if raw.Release != nil {
				raw.Release()
			}
			if s.invalid.Add(1) == 1 {
				c.logger.Warn("discarding malformed frames; check the pixel format and resolution",
					"seq", seq, "bytes", len(raw.Data), "format", m.Format, "error", err)
			} else {
				c.logger.Debug("discarding malformed frame", "seq", seq, "error", err)
			}
			continue
		}

		s.captured.Add(1)
		if s.slot.Put(b) {
			c.logger.Debug("pending frame superseded", "by", seq)
		}
	}
}

// lost ends the session after a read failure.
func (c *Camera) lost(s *session, cause error) {
	c.mu.Lock()
	if c.sess != s || c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	c.mu.Unlock()

	s.cancel()
	s.slot.Close()
	if err := s.handle.Close(); err != nil {
		c.logger.Debug("close after loss failed", "error", err)
	}
	releaseDevice(c.device)

	err := newError(KindDeviceUnavailable, c.device, fmt.Errorf("%w: %v", ErrDisconnected, cause))
	c.logger.Warn("capture device lost", "error", cause, "captured", s.captured.Load())
	s.disconnected <- err
}

// Stop ends delivery, releases any pending frame and closes the device. It is
// idempotent and safe to call after a disconnect.
func (c *Camera) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	s := c.sess
	c.state = StateStopped
	c.mu.Unlock()

	s.cancel()
	s.slot.Close()
	<-s.done

	err := s.handle.Close()
	releaseDevice(c.device)

	puts, drops, takes := s.slot.Stats()
	c.logger.Info("capture stopped", "captured", puts, "superseded", drops, "delivered", takes)
	if err != nil {
		return fmt.Errorf("close device: %w", err)
	}
	return nil
}

// Next implements Source.
func (c *Camera) Next(ctx context.Context) (*frame.Buffer, error) {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil, ErrNotStarted
	}

	b, err := s.slot.Take(ctx)
	if errors.Is(err, latest.ErrClosed) {
		return nil, ErrStopped
	}
	return b, err
}

// Disconnected implements Source. Before the first Start it returns nil.
func (c *Camera) Disconnected() <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	return c.sess.disconnected
}

// State implements Source.
func (c *Camera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the mode granted to the current or last session, or the
// requested mode before the first Start.
func (c *Camera) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return c.mode
	}
	return c.sess.mode
}

// Stats implements Source.
func (c *Camera) Stats() Stats {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return Stats{}
	}
	_, drops, takes := s.slot.Stats()
	return Stats{
		Captured:   s.captured.Load(),
		Superseded: drops,
		Delivered:  takes,
		Invalid:    s.invalid.Load(),
	}
}
