package display

import (
	"errors"
	"image"
	"sync"

	xdraw "golang.org/x/image/draw"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

// MemorySurface is a software surface. Upload copies the frame into a texture
// image and Draw scales the texture into a viewport-sized image. It records the
// sequence number of every drawn frame, which makes it the surface of choice
// for headless runs and tests.
type MemorySurface struct {
	// OnDraw, when set, is called after each draw with the viewport image and the
	// drawn frame's sequence number. The image is only valid during the call.
	OnDraw func(img *image.RGBA, seq uint64)

	mu       sync.Mutex
	texture  *image.RGBA
	seq      uint64
	target   *image.RGBA
	drawn    []uint64
	live     bool
	creates  int
	destroys int
}

var _ Surface = (*MemorySurface)(nil)

// NewMemorySurface creates a memory surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

// Name returns "memory".
func (m *MemorySurface) Name() string { return "memory" }

// Create allocates the viewport image.
func (m *MemorySurface) Create(width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = image.NewRGBA(image.Rect(0, 0, width, height))
	m.texture = nil
	m.live = true
	m.creates++
	return nil
}

// Resize reallocates the viewport image.
func (m *MemorySurface) Resize(width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live {
		return errors.New("memory surface not created")
	}
	m.target = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

// Upload copies b into the texture.
func (m *MemorySurface) Upload(b *frame.Buffer) error {
	img, err := b.Image()
	if err != nil {
		return err
	}
	src, ok := img.(*image.RGBA)
	if !ok {
		return errors.New("memory surface needs rgba frames")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live {
		return errors.New("memory surface not created")
	}
	if m.texture == nil || m.texture.Rect != src.Rect {
		m.texture = image.NewRGBA(src.Rect)
	}
	copy(m.texture.Pix, src.Pix)
	m.seq = b.Seq()
	return nil
}

// Draw scales the texture into the viewport.
func (m *MemorySurface) Draw() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live || m.texture == nil {
		return errors.New("memory surface has nothing to draw")
	}

	if m.texture.Rect == m.target.Rect {
		copy(m.target.Pix, m.texture.Pix)
	} else {
		xdraw.ApproxBiLinear.Scale(m.target, m.target.Rect, m.texture, m.texture.Rect, xdraw.Src, nil)
	}
	m.drawn = append(m.drawn, m.seq)

	if m.OnDraw != nil {
		m.OnDraw(m.target, m.seq)
	}
	return nil
}

// Destroy frees the images.
func (m *MemorySurface) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texture, m.target = nil, nil
	m.live = false
	m.destroys++
	return nil
}

// Drawn returns the sequence numbers of drawn frames in draw order.
func (m *MemorySurface) Drawn() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.drawn))
	copy(out, m.drawn)
	return out
}

// Snapshot returns a copy of the viewport image, or nil before Create.
func (m *MemorySurface) Snapshot() *image.RGBA {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.target == nil {
		return nil
	}
	out := image.NewRGBA(m.target.Rect)
	copy(out.Pix, m.target.Pix)
	return out
}

// Lifecycle returns how many times the surface was created and destroyed.
func (m *MemorySurface) Lifecycle() (creates, destroys int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.destroys
}
