//go:build !opencv

package display

import (
	"fmt"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// WindowAvailable reports whether WindowSurface is compiled in.
const WindowAvailable = false

// WindowSurface is unavailable without the opencv build tag.
type WindowSurface struct{}

// NewWindowSurface returns an error when built without the opencv tag.
func NewWindowSurface(title string) (*WindowSurface, error) {
	return nil, fmt.Errorf("window surface not compiled in (build with -tags opencv)")
}

func (w *WindowSurface) Name() string                   { return "window" }
func (w *WindowSurface) Create(width, height int) error { return nil }
func (w *WindowSurface) Resize(width, height int) error { return nil }
func (w *WindowSurface) Upload(b *frame.Buffer) error   { return nil }
func (w *WindowSurface) Draw() error                    { return nil }
func (w *WindowSurface) Destroy() error                 { return nil }
