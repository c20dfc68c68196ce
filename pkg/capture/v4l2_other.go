//go:build !linux

package capture

const v4l2Available = false

// newV4L2Driver returns a driver whose Open fails on non-Linux platforms.
func newV4L2Driver() Driver {
	return unavailableDriver{backend: BackendV4L2, reason: "V4L2 is only available on Linux"}
}
