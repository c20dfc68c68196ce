// Package capture delivers camera frames to the pipeline.
//
// A Source is started for one session at a time. While running, a delivery
// goroutine reads the device and keeps only the newest undelivered frame; older
// frames are released as soon as they are superseded. Drivers hide the device:
//   - v4l2 (Linux) - /dev/video* through github.com/blackjack/webcam
//   - opencv - cv::VideoCapture, built with -tags opencv
//   - mock - pushed frames and a synthetic test pattern for CI
package capture

import (
	"context"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// State is the lifecycle state of a Source.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Resolution is a requested frame size. A zero Resolution keeps the configured size.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether r requests nothing.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// Stats are per-session delivery counters.
type Stats struct {
	// Captured frames were read from the device and accepted.
	Captured uint64 `json:"captured"`
	// Superseded frames were replaced by a newer one before Next took them.
	Superseded uint64 `json:"superseded"`
	// Delivered frames were handed out by Next.
	Delivered uint64 `json:"delivered"`
	// Invalid frames did not match the negotiated geometry and were discarded.
	Invalid uint64 `json:"invalid"`
}

// Source produces frames for a pipeline session.
type Source interface {
	// Start opens the device and begins delivery. Failures are *Error values.
	Start(ctx context.Context, res Resolution) error

	// Stop ends delivery and releases the device. It is idempotent.
	Stop() error

	// Next returns the newest undelivered frame, waiting for one if necessary.
	// The caller owns the returned reference. After Stop or a disconnect it
	// returns ErrStopped.
	Next(ctx context.Context) (*frame.Buffer, error)

	// Disconnected receives exactly one error if the device is lost mid-stream.
	Disconnected() <-chan error

	// State returns the lifecycle state.
	State() State

	// Stats returns the current session counters.
	Stats() Stats

	// Name identifies the source in logs.
	Name() string
}

// Mode is the negotiated device configuration.
type Mode struct {
	Width       int
	Height      int
	Framerate   int
	Format      frame.Format
	BufferCount int
}

// RawFrame is one payload read from a device. Release, when set, is called once
// the frame built on Data is no longer referenced.
type RawFrame struct {
	Data    []byte
	Release func()
}

// Driver opens capture devices.
type Driver interface {
	// Open claims the device and configures it. The returned handle reports the
	// mode actually granted, which may differ from the request.
	Open(ctx context.Context, device string, mode Mode) (Handle, error)

	// Name returns the backend name.
	Name() string
}

// Handle is an open device.
type Handle interface {
	// ReadFrame blocks until the next frame, ctx ends, or the device fails.
	ReadFrame(ctx context.Context) (RawFrame, error)

	// Mode returns the granted mode.
	Mode() Mode

	// Close releases the device.
	Close() error
}
