//go:build opencv

package display

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// WindowAvailable reports whether WindowSurface is compiled in.
const WindowAvailable = true

// WindowSurface shows frames in a HighGUI window.
//
// HighGUI must be driven from the thread that created the window; on macOS that
// is the main thread. Run the sink's refresh loop there.
type WindowSurface struct {
	title  string
	window *gocv.Window
	bgr    gocv.Mat
}

// NewWindowSurface creates a window surface with the given title.
func NewWindowSurface(title string) (*WindowSurface, error) {
	return &WindowSurface{title: title}, nil
}

// Name returns "window".
func (w *WindowSurface) Name() string { return "window" }

// Create opens the window.
func (w *WindowSurface) Create(width, height int) error {
	w.window = gocv.NewWindow(w.title)
	w.window.ResizeWindow(width, height)
	w.bgr = gocv.NewMat()
	return nil
}

// Resize resizes the window.
func (w *WindowSurface) Resize(width, height int) error {
	w.window.ResizeWindow(width, height)
	return nil
}

// Upload converts the RGBA frame into the window's BGR texture.
func (w *WindowSurface) Upload(b *frame.Buffer) error {
	rgba, err := gocv.NewMatFromBytes(b.Height(), b.Width(), gocv.MatTypeCV8UC4, b.Bytes())
	if err != nil {
		return fmt.Errorf("wrap frame: %w", err)
	}
	defer rgba.Close()
	gocv.CvtColor(rgba, &w.bgr, gocv.ColorRGBAToBGR)
	return nil
}

// Draw shows the texture and pumps window events.
func (w *WindowSurface) Draw() error {
	if w.bgr.Empty() {
		return fmt.Errorf("window has nothing to draw")
	}
	w.window.IMShow(w.bgr)
	w.window.WaitKey(1)
	return nil
}

// Destroy closes the window.
func (w *WindowSurface) Destroy() error {
	w.bgr.Close()
	return w.window.Close()
}
