//go:build opencv

package capture

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

const openCVAvailable = true

// OpenCVDriver reads through cv::VideoCapture. Frames are always BGR24.
type OpenCVDriver struct{}

func newOpenCVDriver() Driver { return &OpenCVDriver{} }

// Name returns "opencv".
func (d *OpenCVDriver) Name() string { return string(BackendOpenCV) }

// Open implements Driver. device is a camera index ("0") or a path.
func (d *OpenCVDriver) Open(ctx context.Context, device string, mode Mode) (Handle, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, newError(KindDeviceUnavailable, device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, newError(KindDeviceUnavailable, device, fmt.Errorf("video capture not opened"))
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(mode.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(mode.Height))
	if mode.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(mode.Framerate))
	}

	granted := Mode{
		Width:     int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:    int(vc.Get(gocv.VideoCaptureFrameHeight)),
		Framerate: int(vc.Get(gocv.VideoCaptureFPS)),
		Format:    frame.FormatBGR24,
	}
	if granted.Width <= 0 || granted.Height <= 0 {
		vc.Close()
		return nil, newError(KindConfigurationFailed, device, fmt.Errorf("device reports %dx%d", granted.Width, granted.Height))
	}

	return &openCVHandle{vc: vc, mat: gocv.NewMat(), mode: granted}, nil
}

type openCVHandle struct {
	mu   sync.Mutex
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	mode Mode
}

func (h *openCVHandle) Mode() Mode { return h.mode }

func (h *openCVHandle) ReadFrame(ctx context.Context) (RawFrame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return RawFrame{}, err
		}
		if ok := h.vc.Read(&h.mat); !ok {
			return RawFrame{}, fmt.Errorf("video capture read failed")
		}
		if h.mat.Empty() {
			continue
		}
		return RawFrame{Data: h.mat.ToBytes()}, nil
	}
}

func (h *openCVHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mat.Close()
	return h.vc.Close()
}
