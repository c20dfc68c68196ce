package edge

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

// Canny is a pure-Go Canny edge detector: Gaussian blur, Sobel gradients,
// non-maximum suppression, then double threshold with hysteresis. Output pixels
// are 0 or 255.
//
// Canny keeps no per-call state and is safe for concurrent use.
type Canny struct {
	low, high float64
	sigma     float64
	closed    atomic.Bool
}

// NewCanny creates a detector from cfg's thresholds and blur.
func NewCanny(cfg Config) *Canny {
	return &Canny{
		low:   cfg.LowThreshold,
		high:  cfg.HighThreshold,
		sigma: cfg.BlurSigma,
	}
}

// Name returns "canny".
func (c *Canny) Name() string { return string(BackendCanny) }

// Close marks the detector closed.
func (c *Canny) Close() error {
	c.closed.Store(true)
	return nil
}

// Detect implements Detector.
func (c *Canny) Detect(src []byte, w, h int) ([]byte, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: closed", ErrBoundaryUnavailable)
	}
	if w <= 0 || h <= 0 || len(src) < w*h {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidDimensions, len(src), w, h)
	}

	smooth := c.blur(src[:w*h], w, h)
	mag, dir := sobel(smooth, w, h)
	thin := suppress(mag, dir, w, h)
	return hysteresis(thin, w, h, int32(c.low), int32(c.high)), nil
}

func (c *Canny) blur(src []byte, w, h int) []byte {
	if c.sigma <= 0 {
		return src
	}
	img := &image.Gray{Pix: src, Stride: w, Rect: image.Rect(0, 0, w, h)}
	blurred := imaging.Blur(img, c.sigma)

	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		row := blurred.Pix[y*blurred.Stride:]
		for x := 0; x < w; x++ {
			out[y*w+x] = row[4*x]
		}
	}
	return out
}

// gradient sectors, named after the neighbours compared during suppression
const (
	dirHorizontal uint8 = iota
	dirDiagonalDown
	dirVertical
	dirDiagonalUp
)

// sobel returns the L1 gradient magnitude and quantized direction per pixel.
// The one pixel border is left at zero.
func sobel(src []byte, w, h int) ([]int32, []uint8) {
	mag := make([]int32, w*h)
	dir := make([]uint8, w*h)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			p := func(dx, dy int) int32 { return int32(src[i+dy*w+dx]) }

			gx := p(1, -1) + 2*p(1, 0) + p(1, 1) - p(-1, -1) - 2*p(-1, 0) - p(-1, 1)
			gy := p(-1, 1) + 2*p(0, 1) + p(1, 1) - p(-1, -1) - 2*p(0, -1) - p(1, -1)

			ax, ay := abs32(gx), abs32(gy)
			mag[i] = ax + ay

			// tan(22.5°) ≈ 0.4142, tan(67.5°) ≈ 2.4142
			switch {
			case ay*10000 <= ax*4142:
				dir[i] = dirHorizontal
			case ay*10000 >= ax*24142:
				dir[i] = dirVertical
			case (gx > 0) == (gy > 0):
				dir[i] = dirDiagonalDown
			default:
				dir[i] = dirDiagonalUp
			}
		}
	}
	return mag, dir
}

// suppress keeps only local maxima along the gradient direction.
func suppress(mag []int32, dir []uint8, w, h int) []int32 {
	out := make([]int32, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m == 0 {
				continue
			}

			var a, b int32
			switch dir[i] {
			case dirHorizontal:
				a, b = mag[i-1], mag[i+1]
			case dirVertical:
				a, b = mag[i-w], mag[i+w]
			case dirDiagonalDown:
				a, b = mag[i-w-1], mag[i+w+1]
			case dirDiagonalUp:
				a, b = mag[i-w+1], mag[i+w-1]
			}
			// ties resolve toward the earlier neighbour so plateaus stay one pixel wide
			if m > a && m >= b {
				out[i] = m
			}
		}
	}
	return out
}

// hysteresis marks strong pixels and every weak pixel 8-connected to one.
func hysteresis(mag []int32, w, h int, low, high int32) []byte {
	out := make([]byte, w*h)
	stack := make([]int, 0, 64)

	for i, m := range mag {
		if m <= high || out[i] != 0 {
			continue
		}
		out[i] = 255
		stack = append(stack[:0], i)

		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := j%w, j/w

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					k := ny*w + nx
					if out[k] == 0 && mag[k] > low {
						out[k] = 255
						stack = append(stack, k)
					}
				}
			}
		}
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
