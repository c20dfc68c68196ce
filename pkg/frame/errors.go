package frame

import (
	"errors"
	"fmt"
)

// Sentinel errors for frame construction and validation.
var (
	// ErrUnknownFormat is returned for a format name or tag that is not defined.
	ErrUnknownFormat = errors.New("frame: unknown format")

	// ErrInvalidSize is returned when a payload does not match its declared geometry.
	ErrInvalidSize = errors.New("frame: payload size does not match geometry")
)

// SizeError describes a payload/geometry mismatch.
type SizeError struct {
	Format Format
	Width  int
	Height int
	Got    int
	Want   int
}

// Error implements the error interface.
func (e *SizeError) Error() string {
	return fmt.Sprintf("frame: %s %dx%d needs %d bytes, got %d", e.Format, e.Width, e.Height, e.Want, e.Got)
}

// Unwrap returns ErrInvalidSize so callers can use errors.Is.
func (e *SizeError) Unwrap() error {
	return ErrInvalidSize
}
