// Package pipeline runs capture, conversion, edge detection and display as one
// session with bounded latency.
//
// A single processing goroutine pulls the newest frame from the source, turns
// it into grayscale, runs the edge processor and hands the RGBA result to the
// display sink. While a frame is in flight newer captures replace each other in
// the source's one-slot mailbox, so at most one frame waits and one is
// processed at any time. Statistics and the last processed frame are published
// through latest.Cell values that readers poll or watch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-edgecam/pkg/capture"
	"github.com/teslashibe/go-edgecam/pkg/convert"
	"github.com/teslashibe/go-edgecam/pkg/display"
	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/latest"
	"github.com/teslashibe/go-edgecam/pkg/stats"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("pipeline: already running")

	// ErrNilComponent is returned by New when a component is missing.
	ErrNilComponent = errors.New("pipeline: nil component")
)

// State is the coordinator lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Processor turns a Gray8 frame into a Gray8 edge map.
type Processor interface {
	Process(b *frame.Buffer) (*frame.Buffer, error)
}

// Display is the part of *display.Sink the coordinator drives.
type Display interface {
	Create(width, height int) error
	Present(b *frame.Buffer) error
	Run(ctx context.Context, interval time.Duration) error
	Destroy() error
	State() display.State
}

// Coordinator owns one pipeline session at a time.
type Coordinator struct {
	src  capture.Source
	proc Processor
	sink Display

	clock   clock.Clock
	logger  *slog.Logger
	mode    Mode
	res     capture.Resolution
	window  int
	drain   time.Duration
	refresh time.Duration
	hook    func(*frame.Buffer)

	mu      sync.Mutex
	state   State
	sess    *session
	lastErr error

	// inflight is closed when the newest session's processing goroutine has
	// returned. An abandoned cycle can outlive its session, so the next
	// session waits on it before taking frames.
	inflight <-chan struct{}

	latest *latest.Cell[*frame.Buffer]
	report *latest.Cell[stats.Report]
}

// New creates an idle coordinator.
func New(src capture.Source, proc Processor, sink Display, opts ...Option) (*Coordinator, error) {
	if src == nil || proc == nil || sink == nil {
		return nil, ErrNilComponent
	}
	def := DefaultConfig()
	c := &Coordinator{
		src:     src,
		proc:    proc,
		sink:    sink,
		clock:   clock.New(),
		logger:  slog.Default(),
		mode:    def.Mode,
		window:  def.StatsWindow,
		drain:   def.DrainTimeout,
		refresh: def.RefreshInterval,
		latest: latest.NewCell(func(old *frame.Buffer) {
			if old != nil {
				old.Release()
			}
		}),
		report: latest.NewCell[stats.Report](nil),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := Config{
		Mode:            c.mode,
		Width:           c.res.Width,
		Height:          c.res.Height,
		StatsWindow:     c.window,
		DrainTimeout:    c.drain,
		RefreshInterval: c.refresh,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	c.logger = c.logger.With("component", "pipeline")
	return c, nil
}

// Start opens the source and begins a new session. Capture failures are
// returned as *capture.Error and recorded as the last error.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrAlreadyRunning
	}

	if err := c.src.Start(ctx, c.res); err != nil {
		c.lastErr = err
		c.logger.Error("failed to start capture", "source", c.src.Name(), "error", err)
		if c.sess != nil {
			c.publishLocked(c.sess)
		}
		return err
	}

	s := newSession(c.clock.Now(), c.window, c.res.Width, c.res.Height)
	c.sess = s
	c.state = StateRunning
	c.lastErr = nil
	c.latest.Reset()
	c.publishLocked(s)

	prev := c.inflight
	c.inflight = s.done

	disconnected := c.src.Disconnected()
	go c.process(s, prev)
	go c.runDisplay(s)
	go c.watch(s, disconnected)

	c.logger.Info("pipeline started",
		"session", s.id,
		"source", c.src.Name(),
		"mode", c.mode,
	)
	return nil
}

// Stop ends the running session. It waits up to the drain timeout, or until
// ctx ends, for the in-flight frame; a frame still processing after that is
// discarded when it completes. Stop is idempotent.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return c.stopSession(ctx, s, nil)
}

func (c *Coordinator) stopSession(ctx context.Context, s *session, cause error) error {
	if !s.stopping.CompareAndSwap(false, true) {
		select {
		case <-s.stopped:
		case <-ctx.Done():
		}
		return nil
	}
	defer close(s.stopped)

	c.mu.Lock()
	c.state = StateStopping
	if cause != nil {
		c.lastErr = cause
	}
	c.publishLocked(s)
	c.mu.Unlock()

	s.cancel()

	timer := c.clock.Timer(c.drain)
	select {
	case <-s.done:
	case <-timer.C:
		c.abandon(s)
		c.logger.Warn("in-flight frame abandoned", "session", s.id, "timeout", c.drain)
	case <-ctx.Done():
		c.abandon(s)
		c.logger.Warn("in-flight frame abandoned", "session", s.id, "error", ctx.Err())
	}
	timer.Stop()

	var errs []error
	if err := c.src.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop source: %w", err))
	}
	<-s.refreshDone
	if err := c.sink.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("destroy display: %w", err))
	}

	c.mu.Lock()
	c.state = StateIdle
	c.publishLocked(s)
	c.mu.Unlock()

	c.logger.Info("pipeline stopped",
		"session", s.id,
		"processed", s.processed.Load(),
		"dropped", s.dropped.Load(),
		"superseded", c.src.Stats().Superseded,
	)
	return errors.Join(errs...)
}

// abandon marks the session's in-flight cycle for discarding. Cycles commit
// their output under c.mu, so once abandon returns nothing from s reaches the
// latest cell or the display.
func (c *Coordinator) abandon(s *session) {
	c.mu.Lock()
	s.abandoned.Store(true)
	c.mu.Unlock()
}

// stopAsync stops s from inside the session's own goroutines.
func (c *Coordinator) stopAsync(s *session, cause error) {
	if err := c.stopSession(context.Background(), s, cause); err != nil {
		c.logger.Warn("session teardown failed", "session", s.id, "error", err)
	}
}

// process is the session's single processing goroutine. prev is the previous
// session's done channel; only one cycle may run at a time across sessions.
func (c *Coordinator) process(s *session, prev <-chan struct{}) {
	defer close(s.done)
	if prev != nil {
		<-prev
	}
	for {
		b, err := c.src.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, capture.ErrStopped) {
				c.logger.Warn("next frame failed", "session", s.id, "error", err)
			}
			return
		}
		if !c.cycle(s, b) {
			return
		}
	}
}

// cycle runs one frame through conversion, detection and presentation. It
// reports whether the session should keep going.
func (c *Coordinator) cycle(s *session, b *frame.Buffer) bool {
	defer b.Release()

	start := c.clock.Now()
	out, err := c.transform(b)
	elapsed := c.clock.Since(start)

	if err != nil {
		if errors.Is(err, convert.ErrUnsupportedFormat) {
			c.logger.Error("unsupported frame format, stopping session",
				"session", s.id, "seq", b.Seq(), "format", b.Format(), "error", err)
			go c.stopAsync(s, err)
			return false
		}
		// the drop shows up in the report of the next completed cycle
		s.dropped.Add(1)
		c.logger.Debug("frame dropped", "session", s.id, "seq", b.Seq(), "error", err)
		return true
	}

	c.mu.Lock()
	if s.abandoned.Load() || c.sess != s {
		c.mu.Unlock()
		out.Release()
		return false
	}

	s.lastSeq.Store(b.Seq())
	s.processed.Add(1)
	s.width.Store(int64(out.Width()))
	s.height.Store(int64(out.Height()))
	s.stats.Record(b.Timestamp(), elapsed)

	if c.hook != nil {
		out.Retain()
		defer out.Release()
	}
	c.latest.Store(out.Retain())

	if c.sink.State() != display.StateReady {
		if err := c.sink.Create(out.Width(), out.Height()); err != nil {
			c.logger.Warn("failed to create display", "session", s.id, "error", err)
		}
	}
	if err := c.sink.Present(out); err != nil {
		c.logger.Debug("present failed", "session", s.id, "seq", out.Seq(), "error", err)
	}

	c.publishLocked(s)
	c.mu.Unlock()

	if c.hook != nil {
		c.hook(out)
	}
	return true
}

func (c *Coordinator) transform(b *frame.Buffer) (*frame.Buffer, error) {
	if c.mode == ModePassthrough {
		return convert.Convert(b, frame.FormatRGBA)
	}

	gray, err := convert.Convert(b, frame.FormatGray8)
	if err != nil {
		return nil, err
	}
	defer gray.Release()

	edges, err := c.proc.Process(gray)
	if err != nil {
		return nil, err
	}
	defer edges.Release()

	return convert.Convert(edges, frame.FormatRGBA)
}

func (c *Coordinator) runDisplay(s *session) {
	defer close(s.refreshDone)
	if err := c.sink.Run(s.ctx, c.refresh); err != nil {
		c.logger.Error("display refresh loop failed", "session", s.id, "error", err)
	}
}

func (c *Coordinator) watch(s *session, disconnected <-chan error) {
	select {
	case err, ok := <-disconnected:
		if !ok || err == nil {
			return
		}
		c.logger.Warn("capture source lost, stopping session", "session", s.id, "error", err)
		c.stopAsync(s, err)
	case <-s.ctx.Done():
	}
}

func (c *Coordinator) publishLocked(s *session) {
	w, h := s.resolution()
	r := stats.NewReport(s.stats.Current(), w, h)
	r.SessionID = s.id
	r.Running = c.state == StateRunning && c.sess == s
	r.FramesProcessed = s.processed.Load()
	r.FramesDropped = s.dropped.Load()
	r.FramesSkipped = c.src.Stats().Superseded
	if c.lastErr != nil {
		r.LastError = c.lastErr.Error()
	}
	c.report.Store(r)
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error that ended or prevented the latest session.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Session describes the current or most recent session. ok is false before
// the first successful Start.
func (c *Coordinator) Session() (info SessionInfo, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return SessionInfo{}, false
	}
	state := StateIdle
	if c.state != StateIdle {
		state = c.state
	}
	return c.sess.info(state), true
}

// Stats returns the latest published report. ok is false until the first
// session starts.
func (c *Coordinator) Stats() (stats.Report, bool) {
	r, v := c.report.Load()
	return r, v > 0
}

// StatsChanged returns a channel closed when the next report is published.
func (c *Coordinator) StatsChanged() <-chan struct{} {
	return c.report.Changed()
}

// Latest returns a reference to the last processed RGBA frame, or nil. The
// caller must Release it.
func (c *Coordinator) Latest() *frame.Buffer {
	var out *frame.Buffer
	c.latest.View(func(b *frame.Buffer, version uint64) {
		if version > 0 && b != nil {
			out = b.Retain()
		}
	})
	return out
}

// LatestChanged returns a channel closed when the next frame is processed.
func (c *Coordinator) LatestChanged() <-chan struct{} {
	return c.latest.Changed()
}

// Mode returns the processing mode.
func (c *Coordinator) Mode() Mode { return c.mode }
