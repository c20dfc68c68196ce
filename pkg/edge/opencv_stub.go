//go:build !opencv

package edge

import "fmt"

const openCVAvailable = false

// newOpenCV returns an error when built without the opencv tag.
func newOpenCV(cfg Config) (Detector, error) {
	return nil, fmt.Errorf("%w: opencv backend not compiled in (build with -tags opencv)", ErrBoundaryUnavailable)
}
