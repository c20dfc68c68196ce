package capture

import "github.com/teslashibe/go-edgecam/pkg/frame"

// Unpad copies a w×h frame whose rows are padded to a common line stride into
// dst, which must be exactly f.Size(w, h) long. The stride is inferred from
// len(src); planar 4:2:0 chroma planes use half the luma stride, as V4L2 lays
// them out. It reports false when src cannot be a padded frame of that size.
func Unpad(dst, src []byte, f frame.Format, w, h int) bool {
	if w <= 0 || h <= 0 || len(dst) != f.Size(w, h) {
		return false
	}
	info := f.Info()

	if !info.Subsampled420 {
		row := f.Size(w, 1)
		if len(src)%h != 0 {
			return false
		}
		stride := len(src) / h
		if stride < row {
			return false
		}
		copyRows(dst, src, row, stride, h)
		return true
	}

	cw, ch := (w+1)/2, (h+1)/2
	if len(src)%(h+ch) != 0 {
		return false
	}
	stride := len(src) / (h + ch)
	if stride < w {
		return false
	}
	copyRows(dst, src, w, stride, h)
	dst, src = dst[w*h:], src[stride*h:]

	if info.Interleaved {
		if stride < 2*cw {
			return false
		}
		copyRows(dst, src, 2*cw, stride, ch)
		return true
	}
	half := stride / 2
	if stride%2 != 0 || half < cw {
		return false
	}
	copyRows(dst, src, cw, half, ch)
	copyRows(dst[cw*ch:], src[half*ch:], cw, half, ch)
	return true
}

func copyRows(dst, src []byte, row, stride, n int) {
	for i := 0; i < n; i++ {
		copy(dst[i*row:(i+1)*row], src[i*stride:i*stride+row])
	}
}
