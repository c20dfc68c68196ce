package frame

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Buffer is one captured or derived frame.
//
// A Buffer is immutable once constructed: no stage may write to the slice returned
// by Bytes. Transforms build a new Buffer instead, so any number of goroutines may
// hold read-only references to the same Buffer at once.
//
// Buffers are reference counted. The creator owns one reference; every additional
// holder calls Retain and later Release. When the last reference is released the
// optional release hook runs exactly once (drivers use it to recycle payloads).
type Buffer struct {
	data      []byte
	width     int
	height    int
	format    Format
	timestamp time.Time
	seq       uint64

	refs      atomic.Int64
	release   func()
	onRelease sync.Once
}

// New builds a Buffer after checking that data matches the format geometry.
// The caller must not modify data afterwards.
func New(data []byte, width, height int, format Format, ts time.Time, seq uint64) (*Buffer, error) {
	return NewWithRelease(data, width, height, format, ts, seq, nil)
}

// NewWithRelease is New with a hook that runs when the last reference is released.
func NewWithRelease(data []byte, width, height int, format Format, ts time.Time, seq uint64, release func()) (*Buffer, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
	if err := checkSize(data, width, height, format); err != nil {
		return nil, err
	}
	return newBuffer(data, width, height, format, ts, seq, release), nil
}

// Raw wraps data without validating it against the declared geometry. It exists
// for adapters around foreign memory; stages that read pixels call Validate first.
func Raw(data []byte, width, height int, format Format, ts time.Time, seq uint64) *Buffer {
	return newBuffer(data, width, height, format, ts, seq, nil)
}

func newBuffer(data []byte, width, height int, format Format, ts time.Time, seq uint64, release func()) *Buffer {
	b := &Buffer{
		data:      data,
		width:     width,
		height:    height,
		format:    format,
		timestamp: ts,
		seq:       seq,
		release:   release,
	}
	b.refs.Store(1)
	return b
}

func checkSize(data []byte, width, height int, format Format) error {
	want := format.Size(width, height)
	if want < 0 || len(data) != want {
		return &SizeError{Format: format, Width: width, Height: height, Got: len(data), Want: want}
	}
	return nil
}

// Validate reports whether the payload matches the declared format and geometry.
func (b *Buffer) Validate() error {
	if !b.format.Valid() {
		return fmt.Errorf("%w: %v", ErrUnknownFormat, b.format)
	}
	return checkSize(b.data, b.width, b.height, b.format)
}

// Bytes returns the payload. The slice is shared and must be treated as read-only.
func (b *Buffer) Bytes() []byte { return b.data }

// Width returns the frame width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the frame height in pixels.
func (b *Buffer) Height() int { return b.height }

// Format returns the pixel format.
func (b *Buffer) Format() Format { return b.format }

// Timestamp returns the capture time (carries a monotonic reading when taken from
// time.Now or a clock).
func (b *Buffer) Timestamp() time.Time { return b.timestamp }

// Seq returns the capture sequence number.
func (b *Buffer) Seq() uint64 { return b.seq }

// Bounds returns the frame rectangle anchored at the origin.
func (b *Buffer) Bounds() image.Rectangle { return image.Rect(0, 0, b.width, b.height) }

// Derive builds a new Buffer with the same geometry, timestamp and sequence number
// but a different payload and format.
func (b *Buffer) Derive(data []byte, format Format) (*Buffer, error) {
	return New(data, b.width, b.height, format, b.timestamp, b.seq)
}

// Retain adds a reference and returns b for chaining.
func (b *Buffer) Retain() *Buffer {
	if b.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("frame: retain of released buffer seq=%d", b.seq))
	}
	return b
}

// Release drops a reference. Releasing more times than retained panics.
func (b *Buffer) Release() {
	n := b.refs.Add(-1)
	switch {
	case n == 0:
		if b.release != nil {
			b.onRelease.Do(b.release)
		}
	case n < 0:
		panic(fmt.Sprintf("frame: release of released buffer seq=%d", b.seq))
	}
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int64 { return b.refs.Load() }

// Image exposes Gray8 and RGBA payloads as standard images sharing the payload.
// The returned image must not be modified.
func (b *Buffer) Image() (image.Image, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	switch b.format {
	case FormatGray8:
		return &image.Gray{Pix: b.data, Stride: b.width, Rect: b.Bounds()}, nil
	case FormatRGBA:
		return &image.RGBA{Pix: b.data, Stride: b.width * 4, Rect: b.Bounds()}, nil
	default:
		return nil, fmt.Errorf("frame: no image view for %s", b.format)
	}
}

// String renders a short description for logs.
func (b *Buffer) String() string {
	return fmt.Sprintf("frame{seq=%d %dx%d %s}", b.seq, b.width, b.height, b.format)
}
