// Package frame defines the immutable, reference-counted frame buffer that flows
// through the capture → convert → edge → display pipeline.
package frame

import (
	"fmt"
	"strings"
)

// Format identifies the pixel layout of a frame payload.
type Format int

const (
	// FormatUnknown is the zero value and never valid for a buffer.
	FormatUnknown Format = iota

	// FormatI420 is planar 4:2:0: Y plane, then U plane, then V plane.
	FormatI420
	// FormatYV12 is planar 4:2:0 with swapped chroma: Y, V, U.
	FormatYV12
	// FormatNV12 is semi-planar 4:2:0: Y plane, then interleaved U,V pairs.
	FormatNV12
	// FormatNV21 is semi-planar 4:2:0: Y plane, then interleaved V,U pairs.
	FormatNV21
	// FormatYUYV is packed 4:2:2: Y0 U Y1 V per two pixels.
	FormatYUYV
	// FormatBGR24 is packed 8-bit B,G,R (OpenCV native).
	FormatBGR24

	// FormatGray8 is single-plane 8-bit intensity, the edge processing format.
	FormatGray8

	// FormatRGBA is 4-channel 8-bit R,G,B,A, the display format.
	FormatRGBA
)

// ChromaOrder describes which chroma component comes first in a sensor layout.
type ChromaOrder int

const (
	// ChromaNone is used by formats without separate chroma samples.
	ChromaNone ChromaOrder = iota
	// ChromaUV stores Cb before Cr.
	ChromaUV
	// ChromaVU stores Cr before Cb.
	ChromaVU
)

// Info describes a format.
type Info struct {
	Name string
	// Planar is true when luma is stored as its own plane.
	Planar bool
	// Interleaved is true when the chroma plane holds interleaved pairs.
	Interleaved bool
	// Subsampled420 is true for 4:2:0 layouts.
	Subsampled420 bool
	Chroma        ChromaOrder
	// Sensor is true for formats a capture device may deliver.
	Sensor bool
}

var formatInfo = map[Format]Info{
	FormatI420:  {Name: "i420", Planar: true, Subsampled420: true, Chroma: ChromaUV, Sensor: true},
	FormatYV12:  {Name: "yv12", Planar: true, Subsampled420: true, Chroma: ChromaVU, Sensor: true},
	FormatNV12:  {Name: "nv12", Planar: true, Interleaved: true, Subsampled420: true, Chroma: ChromaUV, Sensor: true},
	FormatNV21:  {Name: "nv21", Planar: true, Interleaved: true, Subsampled420: true, Chroma: ChromaVU, Sensor: true},
	FormatYUYV:  {Name: "yuyv", Chroma: ChromaUV, Sensor: true},
	FormatBGR24: {Name: "bgr24", Sensor: true},
	FormatGray8: {Name: "gray8", Planar: true, Sensor: true},
	FormatRGBA:  {Name: "rgba"},
}

// Info returns the format descriptor. Unknown formats return a zero Info.
func (f Format) Info() Info {
	return formatInfo[f]
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	_, ok := formatInfo[f]
	return ok
}

// String returns the lower-case format name.
func (f Format) String() string {
	if info, ok := formatInfo[f]; ok {
		return info.Name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Size returns the exact payload length for a width×height frame, or -1 when the
// format is unknown or the dimensions are negative.
// 4:2:0 chroma planes are ceil(w/2)×ceil(h/2) samples per component.
func (f Format) Size(width, height int) int {
	if width < 0 || height < 0 {
		return -1
	}
	luma := width * height
	switch f {
	case FormatI420, FormatYV12, FormatNV12, FormatNV21:
		cw, ch := (width+1)/2, (height+1)/2
		return luma + 2*cw*ch
	case FormatYUYV:
		return ((width + 1) / 2) * 2 * 2 * height
	case FormatBGR24:
		return luma * 3
	case FormatGray8:
		return luma
	case FormatRGBA:
		return luma * 4
	default:
		return -1
	}
}

// ParseFormat resolves a format by name (case-insensitive). V4L2 fourcc spellings
// such as "YU12" and "GREY" are accepted as aliases.
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "yu12":
		return FormatI420, nil
	case "grey", "gray", "y8":
		return FormatGray8, nil
	case "bgr", "bgr3":
		return FormatBGR24, nil
	case "yuy2":
		return FormatYUYV, nil
	}
	for f, info := range formatInfo {
		if info.Name == n {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// SensorFormats returns the formats a capture device may deliver.
func SensorFormats() []Format {
	return []Format{FormatI420, FormatYV12, FormatNV12, FormatNV21, FormatYUYV, FormatBGR24, FormatGray8}
}
