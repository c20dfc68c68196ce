//go:build opencv

package edge

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const openCVAvailable = true

// OpenCVDetector runs cv::GaussianBlur and cv::Canny through gocv.
type OpenCVDetector struct {
	cfg    Config
	mu     sync.Mutex // serializes calls into OpenCV
	closed bool
}

func newOpenCV(cfg Config) (Detector, error) {
	return &OpenCVDetector{cfg: cfg}, nil
}

// Name returns "opencv".
func (d *OpenCVDetector) Name() string { return string(BackendOpenCV) }

// Detect implements Detector.
func (d *OpenCVDetector) Detect(src []byte, w, h int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: closed", ErrBoundaryUnavailable)
	}
	if w <= 0 || h <= 0 || len(src) < w*h {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidDimensions, len(src), w, h)
	}

	img, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, src[:w*h])
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer img.Close()

	smooth := gocv.NewMat()
	defer smooth.Close()
	if d.cfg.BlurSigma > 0 {
		gocv.GaussianBlur(img, &smooth, image.Pt(0, 0), d.cfg.BlurSigma, d.cfg.BlurSigma, gocv.BorderDefault)
	} else {
		img.CopyTo(&smooth)
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(smooth, &edges, float32(d.cfg.LowThreshold), float32(d.cfg.HighThreshold))

	if edges.Empty() {
		return nil, fmt.Errorf("%w: empty result", ErrBoundaryUnavailable)
	}
	return edges.ToBytes(), nil
}

// Close marks the detector closed.
func (d *OpenCVDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
