package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MockDriver implements Driver for testing and for running without a camera.
//
// Frames come from two places: Emit pushes an exact payload to the open handle,
// and when Synthetic is set the handle also generates a moving test pattern at
// the mode's frame rate on Clock.
type MockDriver struct {
	// OpenFunc is called when Open is invoked.
	// If nil, the requested mode is granted.
	OpenFunc func(ctx context.Context, device string, mode Mode) (Mode, error)

	// Synthetic enables the generated test pattern.
	Synthetic bool

	// Clock drives the test pattern. Default: the wall clock.
	Clock clock.Clock

	mu     sync.Mutex
	handle *mockHandle
	opens  int
}

// NewMockDriver creates a push-only mock driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

// NewSyntheticDriver creates a mock driver that generates a test pattern.
func NewSyntheticDriver() *MockDriver {
	return &MockDriver{Synthetic: true}
}

// Name returns "mock".
func (d *MockDriver) Name() string { return string(BackendMock) }

// Open implements Driver.
func (d *MockDriver) Open(ctx context.Context, device string, mode Mode) (Handle, error) {
	if d.OpenFunc != nil {
		granted, err := d.OpenFunc(ctx, device, mode)
		if err != nil {
			return nil, err
		}
		mode = granted
	}
	if mode.Width <= 0 || mode.Height <= 0 || !mode.Format.Valid() {
		return nil, newError(KindConfigurationFailed, device, fmt.Errorf("unsupported mode %dx%d %s", mode.Width, mode.Height, mode.Format))
	}

	h := &mockHandle{
		mode:   mode,
		emit:   make(chan []byte),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	if d.Synthetic {
		clk := d.Clock
		if clk == nil {
			clk = clock.New()
		}
		fps := mode.Framerate
		if fps <= 0 {
			fps = 30
		}
		h.ticker = clk.Ticker(time.Second / time.Duration(fps))
	}

	d.mu.Lock()
	d.handle = h
	d.opens++
	d.mu.Unlock()
	return h, nil
}

// Emit hands data to the open handle and waits until the camera has read it.
func (d *MockDriver) Emit(ctx context.Context, data []byte) error {
	h := d.current()
	if h == nil {
		return errors.New("capture: mock device not open")
	}
	select {
	case h.emit <- data:
		return nil
	case <-h.closed:
		return errors.New("capture: mock device closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect makes the next read fail with err, simulating device loss.
func (d *MockDriver) Disconnect(err error) {
	if h := d.current(); h != nil {
		select {
		case h.fail <- err:
		default:
		}
	}
}

// Opens returns how many times Open succeeded.
func (d *MockDriver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// IsOpen reports whether the last opened handle is still open.
func (d *MockDriver) IsOpen() bool {
	h := d.current()
	if h == nil {
		return false
	}
	select {
	case <-h.closed:
		return false
	default:
		return true
	}
}

func (d *MockDriver) current() *mockHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

type mockHandle struct {
	mode   Mode
	emit   chan []byte
	fail   chan error
	ticker *clock.Ticker
	phase  int

	closeOnce sync.Once
	closed    chan struct{}
}

func (h *mockHandle) Mode() Mode { return h.mode }

func (h *mockHandle) ReadFrame(ctx context.Context) (RawFrame, error) {
	var tick <-chan time.Time
	if h.ticker != nil {
		tick = h.ticker.C
	}

	select {
	case <-ctx.Done():
		return RawFrame{}, ctx.Err()
	case <-h.closed:
		return RawFrame{}, errors.New("capture: mock device closed")
	case err := <-h.fail:
		return RawFrame{}, err
	case data := <-h.emit:
		return RawFrame{Data: data}, nil
	case <-tick:
		h.phase++
		return RawFrame{Data: TestPattern(h.mode.Format, h.mode.Width, h.mode.Height, h.phase)}, nil
	}
}

func (h *mockHandle) Close() error {
	h.closeOnce.Do(func() {
		if h.ticker != nil {
			h.ticker.Stop()
		}
		close(h.closed)
	})
	return nil
}
