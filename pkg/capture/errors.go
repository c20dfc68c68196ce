package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match a *Error against them with errors.Is.
var (
	// ErrPermissionDenied is returned when the process may not open the device.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrDeviceUnavailable is returned when the device is missing, busy, or lost.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrConfigurationFailed is returned when the device rejects the requested mode.
	ErrConfigurationFailed = errors.New("capture: configuration failed")

	// ErrDisconnected is the cause carried by a mid-stream device loss.
	ErrDisconnected = errors.New("capture: device disconnected")

	// ErrDeviceBusy is the cause when another Camera in this process holds the device.
	ErrDeviceBusy = errors.New("capture: device in use")

	// ErrAlreadyRunning is returned by Start on a running source.
	ErrAlreadyRunning = errors.New("capture: already running")

	// ErrNotStarted is returned by Next before the first Start.
	ErrNotStarted = errors.New("capture: not started")

	// ErrStopped is returned by Next once the session has ended.
	ErrStopped = errors.New("capture: stopped")
)

// Kind classifies a capture failure.
type Kind int

const (
	KindDeviceUnavailable Kind = iota
	KindPermissionDenied
	KindConfigurationFailed
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission denied"
	case KindConfigurationFailed:
		return "configuration failed"
	default:
		return "device unavailable"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindConfigurationFailed:
		return ErrConfigurationFailed
	default:
		return ErrDeviceUnavailable
	}
}

// Error is a capture failure tied to a device.
type Error struct {
	Kind   Kind
	Device string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture [%s]: %s", e.Device, e.Kind)
	}
	return fmt.Sprintf("capture [%s]: %s: %v", e.Device, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func newError(kind Kind, device string, err error) *Error {
	return &Error{Kind: kind, Device: device, Err: err}
}

// asError keeps a driver's *Error and classifies anything else as unavailable.
func asError(device string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return newError(KindDeviceUnavailable, device, err)
}
