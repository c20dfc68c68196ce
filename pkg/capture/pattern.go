package capture

import "github.com/teslashibe/go-edgecam/pkg/frame"

const barWidth = 32

// TestPattern renders vertical bars shifted by phase pixels, in any sensor format.
// Bars alternate between dark and bright luma; chroma is neutral.
func TestPattern(f frame.Format, w, h, phase int) []byte {
	size := f.Size(w, h)
	if size < 0 {
		return nil
	}
	data := make([]byte, size)

	luma := func(x int) byte {
		if ((x+phase)/barWidth)%2 == 0 {
			return 40
		}
		return 215
	}

	switch f {
	case frame.FormatI420, frame.FormatYV12, frame.FormatNV12, frame.FormatNV21:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = luma(x)
			}
		}
		for i := w * h; i < size; i++ {
			data[i] = 128
		}
	case frame.FormatYUYV:
		stride := ((w + 1) / 2) * 4
		for y := 0; y < h; y++ {
			row := data[y*stride : (y+1)*stride]
			for x := 0; x < len(row)/2; x++ {
				row[2*x] = luma(x)
				row[2*x+1] = 128
			}
		}
	case frame.FormatBGR24:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := luma(x)
				i := 3 * (y*w + x)
				data[i], data[i+1], data[i+2] = v, v, v
			}
		}
	case frame.FormatGray8:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = luma(x)
			}
		}
	case frame.FormatRGBA:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := 4 * (y*w + x)
				v := luma(x)
				data[i], data[i+1], data[i+2], data[i+3] = v, v, v, 0xff
			}
		}
	}
	return data
}
