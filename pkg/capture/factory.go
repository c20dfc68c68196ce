package capture

import (
	"context"
	"errors"
	"fmt"
)

// NewDriver returns the driver for backend. BackendAuto picks the best one
// compiled into this binary.
func NewDriver(backend Backend) (Driver, error) {
	if backend == BackendAuto {
		backend = detectBestBackend()
	}
	switch backend {
	case BackendV4L2:
		return newV4L2Driver(), nil
	case BackendOpenCV:
		return newOpenCVDriver(), nil
	case BackendMock:
		return NewSyntheticDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// New creates a Camera from cfg.
func New(cfg Config, opts ...Option) (*Camera, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid capture config: %v", errs)
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	driver, err := NewDriver(cfg.Backend)
	if err != nil {
		return nil, err
	}
	cam := NewCamera(driver, cfg.Device, mode, opts...)
	cam.logger.Info("capture configured",
		"backend", driver.Name(),
		"width", mode.Width,
		"height", mode.Height,
		"format", mode.Format,
	)
	return cam, nil
}

func detectBestBackend() Backend {
	switch {
	case v4l2Available:
		return BackendV4L2
	case openCVAvailable:
		return BackendOpenCV
	default:
		return BackendMock
	}
}

// AvailableBackends returns the backends compiled into this binary.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if v4l2Available {
		backends = append(backends, BackendV4L2)
	}
	if openCVAvailable {
		backends = append(backends, BackendOpenCV)
	}
	return backends
}

// unavailableDriver stands in for a backend missing from this build.
type unavailableDriver struct {
	backend Backend
	reason  string
}

func (d unavailableDriver) Name() string { return string(d.backend) }

func (d unavailableDriver) Open(ctx context.Context, device string, mode Mode) (Handle, error) {
	return nil, newError(KindDeviceUnavailable, device, errors.New(d.reason))
}
