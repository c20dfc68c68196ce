// Package convert transforms frame buffers between the pixel formats used at each
// pipeline boundary: sensor → processing (Gray8) and processing → display (RGBA).
//
// Conversions are pure functions of their input. They never modify the source
// buffer and are safe to call concurrently on different frames.
//
// Converting a sensor frame to Gray8 keeps only the luma samples and discards
// chroma entirely. Edge detection operates on intensity only, so this is an
// intended simplification rather than a loss.
package convert

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// ErrUnsupportedFormat is returned when no conversion is defined for a pair of
// formats. It signals a wiring mistake, not a runtime condition.
var ErrUnsupportedFormat = errors.New("convert: unsupported format")

// UnsupportedFormatError names the pair that has no conversion.
type UnsupportedFormatError struct {
	From frame.Format
	To   frame.Format
}

// Error implements the error interface.
func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("convert: unsupported format %s -> %s", e.From, e.To)
}

// Unwrap returns ErrUnsupportedFormat.
func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// Supported reports whether Convert defines the from → to pair.
func Supported(from, to frame.Format) bool {
	if from == to {
		return from.Valid()
	}
	switch to {
	case frame.FormatGray8:
		return from.Info().Sensor || from == frame.FormatRGBA
	case frame.FormatRGBA:
		return from.Info().Sensor
	default:
		return false
	}
}

// Convert returns b in the target format as a new buffer with the same geometry,
// timestamp and sequence number. When b is already in the target format the same
// buffer is returned with an extra reference; the caller releases it either way.
func Convert(b *frame.Buffer, target frame.Format) (*frame.Buffer, error) {
	from := b.Format()
	if !Supported(from, target) {
		return nil, &UnsupportedFormatError{From: from, To: target}
	}
	if from == target {
		return b.Retain(), nil
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("convert %s -> %s: %w", from, target, err)
	}

	var out []byte
	switch target {
	case frame.FormatGray8:
		out = toGray(b)
	case frame.FormatRGBA:
		out = toRGBA(b)
	}
	return b.Derive(out, target)
}

// MustConvert is Convert for fixed wiring where a failure is a programming error.
func MustConvert(b *frame.Buffer, target frame.Format) *frame.Buffer {
	out, err := Convert(b, target)
	if err != nil {
		panic(err)
	}
	return out
}

func toGray(b *frame.Buffer) []byte {
	w, h, src := b.Width(), b.Height(), b.Bytes()
	n := w * h
	out := make([]byte, n)

	switch b.Format() {
	case frame.FormatI420, frame.FormatYV12, frame.FormatNV12, frame.FormatNV21:
		// luma plane leads every planar layout
		copy(out, src[:n])
	case frame.FormatYUYV:
		stride := ((w + 1) / 2) * 4
		for y := 0; y < h; y++ {
			row := src[y*stride:]
			dst := out[y*w : (y+1)*w]
			for x := range dst {
				dst[x] = row[2*x]
			}
		}
	case frame.FormatBGR24:
		for i := 0; i < n; i++ {
			p := src[3*i:]
			out[i] = luma(p[2], p[1], p[0])
		}
	case frame.FormatRGBA:
		for i := 0; i < n; i++ {
			p := src[4*i:]
			out[i] = luma(p[0], p[1], p[2])
		}
	}
	return out
}

func toRGBA(b *frame.Buffer) []byte {
	w, h, src := b.Width(), b.Height(), b.Bytes()
	n := w * h
	out := make([]byte, n*4)

	switch b.Format() {
	case frame.FormatGray8:
		for i, v := range src[:n] {
			p := out[4*i : 4*i+4]
			p[0], p[1], p[2], p[3] = v, v, v, 0xff
		}
	case frame.FormatBGR24:
		for i := 0; i < n; i++ {
			s := src[3*i:]
			p := out[4*i : 4*i+4]
			p[0], p[1], p[2], p[3] = s[2], s[1], s[0], 0xff
		}
	default:
		dst := &image.RGBA{Pix: out, Stride: w * 4, Rect: b.Bounds()}
		draw.Draw(dst, dst.Rect, ycbcr(b), image.Point{}, draw.Src)
	}
	return out
}

// ycbcr views a YUV sensor buffer as an image.YCbCr. Planar layouts with the
// descriptor's chroma order are sliced in place; interleaved layouts are split.
func ycbcr(b *frame.Buffer) *image.YCbCr {
	w, h, src := b.Width(), b.Height(), b.Bytes()
	info := b.Format().Info()

	if b.Format() == frame.FormatYUYV {
		cw := (w + 1) / 2
		img := image.NewYCbCr(b.Bounds(), image.YCbCrSubsampleRatio422)
		stride := cw * 4
		for y := 0; y < h; y++ {
			row := src[y*stride : (y+1)*stride]
			for x := 0; x < w; x++ {
				img.Y[y*img.YStride+x] = row[2*x]
			}
			for x := 0; x < cw; x++ {
				img.Cb[y*img.CStride+x] = row[4*x+1]
				img.Cr[y*img.CStride+x] = row[4*x+3]
			}
		}
		return img
	}

	cw, ch := (w+1)/2, (h+1)/2
	n, cn := w*h, cw*ch
	img := &image.YCbCr{
		Y:              src[:n],
		YStride:        w,
		CStride:        cw,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           b.Bounds(),
	}

	first, second := src[n:n+cn], src[n+cn:n+2*cn]
	if info.Interleaved {
		pairs := src[n : n+2*cn]
		first, second = make([]byte, cn), make([]byte, cn)
		for i := 0; i < cn; i++ {
			first[i], second[i] = pairs[2*i], pairs[2*i+1]
		}
	}
	if info.Chroma == frame.ChromaVU {
		first, second = second, first
	}
	img.Cb, img.Cr = first, second
	return img
}

// luma is integer BT.601: a uniform gray input returns its own value.
func luma(r, g, b byte) byte {
	return byte((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}
