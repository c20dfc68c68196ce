// Package edge turns grayscale frames into edge maps.
//
// The actual detection sits behind the Detector boundary so that the pure-Go
// Canny implementation, the OpenCV backend and test doubles are interchangeable.
// Processor wraps a Detector with the frame-level checks every backend needs.
package edge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-edgecam/pkg/convert"
	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// Sentinel errors for processing failures.
var (
	// ErrInvalidDimensions is returned for non-positive dimensions, short payloads,
	// or a detector result of the wrong size.
	ErrInvalidDimensions = errors.New("edge: invalid dimensions")

	// ErrBoundaryUnavailable is returned when the detector is missing, closed,
	// failed, or panicked.
	ErrBoundaryUnavailable = errors.New("edge: detector unavailable")
)

// Detector is the edge-detection boundary. Detect reads a width*height Gray8
// buffer and returns a new buffer of the same size. It is synchronous and keeps
// no state between calls.
type Detector interface {
	// Detect returns an edge map for src.
	Detect(src []byte, width, height int) ([]byte, error)

	// Name identifies the backend in logs.
	Name() string

	// Close releases resources. Detect fails after Close.
	Close() error
}

// ProcessingError reports which frame failed and why.
type ProcessingError struct {
	Seq uint64
	Err error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("edge: frame %d: %v", e.Seq, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Processor applies a Detector to frames.
type Processor struct {
	det    Detector
	logger *slog.Logger

	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewProcessor wraps det. A nil detector is reported here rather than on the
// first frame.
func NewProcessor(det Detector, opts ...Option) (*Processor, error) {
	if det == nil {
		return nil, fmt.Errorf("%w: no detector", ErrBoundaryUnavailable)
	}
	p := &Processor{det: det, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "edge", "backend", det.Name())
	return p, nil
}

// Process returns the edge map of b as a new Gray8 buffer with the same
// dimensions, timestamp and sequence number. b is not released.
func (p *Processor) Process(b *frame.Buffer) (out *frame.Buffer, err error) {
	defer func() {
		if err != nil {
			p.failed.Add(1)
			err = &ProcessingError{Seq: b.Seq(), Err: err}
			return
		}
		p.processed.Add(1)
	}()

	if b.Format() != frame.FormatGray8 {
		return nil, &convert.UnsupportedFormatError{From: b.Format(), To: frame.FormatGray8}
	}
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	src := b.Bytes()
	if len(src) < w*h {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidDimensions, len(src), w, h)
	}

	res, err := p.detect(src[:w*h], w, h)
	if err != nil {
		return nil, err
	}
	if len(res) != w*h {
		return nil, fmt.Errorf("%w: detector returned %d bytes, want %d", ErrInvalidDimensions, len(res), w*h)
	}
	return b.Derive(res, frame.FormatGray8)
}

func (p *Processor) detect(src []byte, w, h int) (res []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("detector panicked", "panic", r)
			res, err = nil, fmt.Errorf("%w: panic: %v", ErrBoundaryUnavailable, r)
		}
	}()

	res, err = p.det.Detect(src, w, h)
	if err != nil && !errors.Is(err, ErrInvalidDimensions) && !errors.Is(err, ErrBoundaryUnavailable) {
		err = fmt.Errorf("%w: %v", ErrBoundaryUnavailable, err)
	}
	return res, err
}

// Name returns the detector name.
func (p *Processor) Name() string {
	return p.det.Name()
}

// Counts returns how many frames succeeded and failed.
func (p *Processor) Counts() (processed, failed uint64) {
	return p.processed.Load(), p.failed.Load()
}

// Close closes the detector.
func (p *Processor) Close() error {
	return p.det.Close()
}
