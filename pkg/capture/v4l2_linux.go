//go:build linux

package capture

import (
	"context"
	"os"
	"syscall"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

const v4l2Available = true

// seconds WaitForFrame blocks before re-checking the context
const v4l2WaitTimeout = 1

func fourcc(code string) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24)
}

var v4l2Formats = map[frame.Format]webcam.PixelFormat{
	frame.FormatI420:  fourcc("YU12"),
	frame.FormatYV12:  fourcc("YV12"),
	frame.FormatNV12:  fourcc("NV12"),
	frame.FormatNV21:  fourcc("NV21"),
	frame.FormatYUYV:  fourcc("YUYV"),
	frame.FormatBGR24: fourcc("BGR3"),
	frame.FormatGray8: fourcc("GREY"),
}

// V4L2Driver opens /dev/video* devices.
type V4L2Driver struct{}

func newV4L2Driver() Driver { return &V4L2Driver{} }

// Name returns "v4l2".
func (d *V4L2Driver) Name() string { return string(BackendV4L2) }

// Open implements Driver.
func (d *V4L2Driver) Open(ctx context.Context, device string, mode Mode) (Handle, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, classifyOpen(device, err)
	}

	fail := func(kind Kind, err error) (Handle, error) {
		cam.Close()
		return nil, newError(kind, device, err)
	}

	want, ok := v4l2Formats[mode.Format]
	if !ok {
		return fail(KindConfigurationFailed, errors.Errorf("no fourcc for %s", mode.Format))
	}
	if _, ok := cam.GetSupportedFormats()[want]; !ok {
		return fail(KindConfigurationFailed, errors.Errorf("device does not offer %s", mode.Format))
	}

	got, w, h, err := cam.SetImageFormat(want, uint32(mode.Width), uint32(mode.Height))
	if err != nil {
		return fail(KindConfigurationFailed, errors.Wrap(err, "set image format"))
	}
	if got != want {
		return fail(KindConfigurationFailed, errors.Errorf("driver switched to fourcc %#x", uint32(got)))
	}

	if mode.BufferCount > 0 {
		if err := cam.SetBufferCount(uint32(mode.BufferCount)); err != nil {
			return fail(KindConfigurationFailed, errors.Wrap(err, "set buffer count"))
		}
	}

	if err := cam.StartStreaming(); err != nil {
		kind := KindConfigurationFailed
		if errors.Is(err, syscall.EBUSY) {
			kind = KindDeviceUnavailable
		}
		return fail(kind, errors.Wrap(err, "start streaming"))
	}

	granted := mode
	granted.Width, granted.Height = int(w), int(h)
	size := granted.Format.Size(granted.Width, granted.Height)

	return &v4l2Handle{
		cam:  cam,
		mode: granted,
		size: size,
		pool: frame.NewPool(size),
	}, nil
}

func classifyOpen(device string, err error) error {
	switch {
	case errors.Is(err, os.ErrPermission):
		return newError(KindPermissionDenied, device, err)
	case errors.Is(err, syscall.EBUSY):
		return newError(KindDeviceUnavailable, device, ErrDeviceBusy)
	default:
		return newError(KindDeviceUnavailable, device, errors.Wrap(err, "can not open device"))
	}
}

type v4l2Handle struct {
	cam  *webcam.Webcam
	mode Mode
	size int
	pool *frame.Pool
}

func (h *v4l2Handle) Mode() Mode { return h.mode }

func (h *v4l2Handle) ReadFrame(ctx context.Context) (RawFrame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return RawFrame{}, err
		}

		err := h.cam.WaitForFrame(v4l2WaitTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return RawFrame{}, errors.Wrap(err, "frame wait failed")
		}

		data, err := h.cam.ReadFrame()
		if err != nil {
			return RawFrame{}, errors.Wrap(err, "read frame failed")
		}
		if len(data) == 0 {
			continue
		}

		// the driver's buffer is reused on the next read
		buf := h.pool.Get()
		switch {
		case len(data) == h.size:
			copy(buf, data)
		case Unpad(buf, data, h.mode.Format, h.mode.Width, h.mode.Height):
			// rows padded to bytesperline
		default:
			h.pool.Put(buf)
			return RawFrame{Data: append([]byte(nil), data...)}, nil
		}
		return RawFrame{Data: buf, Release: func() { h.pool.Put(buf) }}, nil
	}
}

func (h *v4l2Handle) Close() error {
	if err := h.cam.StopStreaming(); err != nil {
		h.cam.Close()
		return errors.Wrap(err, "stop streaming")
	}
	return h.cam.Close()
}
