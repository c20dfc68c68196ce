//go:build !opencv

package capture

const openCVAvailable = false

// newOpenCVDriver returns a driver whose Open fails without the opencv build tag.
func newOpenCVDriver() Driver {
	return unavailableDriver{backend: BackendOpenCV, reason: "opencv backend not compiled in (build with -tags opencv)"}
}
