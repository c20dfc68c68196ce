package capture

import (
	"fmt"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// Backend selects a capture Driver.
type Backend string

const (
	// BackendAuto picks V4L2 on Linux, OpenCV when compiled in, the mock otherwise.
	BackendAuto Backend = "auto"
	// BackendV4L2 reads /dev/video* through the kernel V4L2 API.
	BackendV4L2 Backend = "v4l2"
	// BackendOpenCV reads through cv::VideoCapture (build tag opencv).
	BackendOpenCV Backend = "opencv"
	// BackendMock generates a test pattern or frames pushed by tests.
	BackendMock Backend = "mock"
)

// Sensor limits accepted by Validate.
const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// Config holds capture configuration.
type Config struct {
	// Backend selects the driver. Default: "auto".
	Backend Backend `yaml:"backend" json:"backend"`

	// Device is the driver-specific selector, e.g. "/dev/video0" or "0".
	Device string `yaml:"device" json:"device"`

	// Resolution and rate requested from the sensor.
	Width     int `yaml:"width" json:"width"`
	Height    int `yaml:"height" json:"height"`
	Framerate int `yaml:"framerate" json:"framerate"`

	// PixelFormat is the sensor format name (nv21, nv12, i420, yv12, yuyv, bgr24, gray8).
	PixelFormat string `yaml:"pixel_format" json:"pixel_format"`

	// BufferCount is the number of driver buffers (V4L2 only).
	BufferCount int `yaml:"buffer_count" json:"buffer_count"`
}

// DefaultConfig returns 640x480 at 30 fps in NV21, the classic phone preview mode.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendAuto,
		Device:      "/dev/video0",
		Width:       640,
		Height:      480,
		Framerate:   30,
		PixelFormat: "nv21",
		BufferCount: 4,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Backend {
	case BackendAuto, BackendV4L2, BackendOpenCV, BackendMock:
	default:
		errors = append(errors, fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.Device == "" && c.Backend != BackendMock {
		errors = append(errors, "device is required")
	}
	if c.Width < 16 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 16 and %d", MaxWidth))
	}
	if c.Height < 16 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 16 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if f, err := frame.ParseFormat(c.PixelFormat); err != nil {
		errors = append(errors, err.Error())
	} else if !f.Info().Sensor {
		errors = append(errors, fmt.Sprintf("pixel_format %s is not a sensor format", f))
	}
	if c.BufferCount < 1 || c.BufferCount > 32 {
		errors = append(errors, "buffer_count must be between 1 and 32")
	}

	return errors
}

// Mode converts the config into the mode requested from a driver.
func (c *Config) Mode() (Mode, error) {
	f, err := frame.ParseFormat(c.PixelFormat)
	if err != nil {
		return Mode{}, err
	}
	return Mode{
		Width:       c.Width,
		Height:      c.Height,
		Framerate:   c.Framerate,
		Format:      f,
		BufferCount: c.BufferCount,
	}, nil
}
