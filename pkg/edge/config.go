package edge

import (
	"fmt"
	"log/slog"
)

// Backend selects a Detector implementation.
type Backend string

const (
	// BackendAuto picks OpenCV when it was compiled in, Canny otherwise.
	BackendAuto Backend = "auto"
	// BackendCanny is the pure-Go Canny detector.
	BackendCanny Backend = "canny"
	// BackendOpenCV uses gocv (build tag opencv).
	BackendOpenCV Backend = "opencv"
	// BackendMock returns blank edge maps.
	BackendMock Backend = "mock"
)

// Config holds edge detector configuration.
type Config struct {
	// Backend selects the detector. Default: "auto".
	Backend Backend `yaml:"backend" json:"backend"`

	// LowThreshold and HighThreshold are the hysteresis thresholds applied to
	// the L1 gradient magnitude. Defaults: 50 and 150.
	LowThreshold  float64 `yaml:"low_threshold" json:"low_threshold"`
	HighThreshold float64 `yaml:"high_threshold" json:"high_threshold"`

	// BlurSigma is the Gaussian pre-blur. Zero disables blurring.
	BlurSigma float64 `yaml:"blur_sigma" json:"blur_sigma"`
}

// DefaultConfig returns the thresholds used by the camera viewer.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		LowThreshold:  50,
		HighThreshold: 150,
		BlurSigma:     1.4,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendCanny, BackendOpenCV, BackendMock:
	default:
		return fmt.Errorf("unknown edge backend %q", c.Backend)
	}
	if c.LowThreshold < 0 {
		return fmt.Errorf("low_threshold must not be negative, got %v", c.LowThreshold)
	}
	if c.HighThreshold < c.LowThreshold {
		return fmt.Errorf("high_threshold %v below low_threshold %v", c.HighThreshold, c.LowThreshold)
	}
	if c.BlurSigma < 0 {
		return fmt.Errorf("blur_sigma must not be negative, got %v", c.BlurSigma)
	}
	return nil
}

// New creates a detector for cfg.
func New(cfg Config, logger *slog.Logger) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendCanny
		if openCVAvailable {
			backend = BackendOpenCV
		}
	}

	logger.Info("creating edge detector",
		"backend", backend,
		"low", cfg.LowThreshold,
		"high", cfg.HighThreshold,
		"sigma", cfg.BlurSigma,
	)

	switch backend {
	case BackendCanny:
		return NewCanny(cfg), nil
	case BackendOpenCV:
		return newOpenCV(cfg)
	case BackendMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// AvailableBackends lists the backends compiled into this binary.
func AvailableBackends() []Backend {
	backends := []Backend{BackendCanny, BackendMock}
	if openCVAvailable {
		backends = append(backends, BackendOpenCV)
	}
	return backends
}
