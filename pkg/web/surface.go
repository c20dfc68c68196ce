package web

import (
	"bytes"
	"errors"
	"image"
	"sync/atomic"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/hub"
)

// Surface is a display surface whose viewport is a browser canvas. Draw
// encodes the texture as JPEG and broadcasts it to /ws/frames clients; with no
// clients connected it skips the encode.
type Surface struct {
	hub     *hub.Hub
	quality int

	width, height int
	texture       *image.NRGBA
	seq           uint64

	sent atomic.Uint64
}

// NewSurface creates a surface broadcasting through h.
func NewSurface(h *hub.Hub, quality int) *Surface {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &Surface{hub: h, quality: quality}
}

// Name returns "web".
func (s *Surface) Name() string { return "web" }

// Create sets the canvas size.
func (s *Surface) Create(width, height int) error {
	s.width, s.height = width, height
	return nil
}

// Resize sets the canvas size.
func (s *Surface) Resize(width, height int) error {
	s.width, s.height = width, height
	return nil
}

// Upload copies the frame into the texture.
func (s *Surface) Upload(b *frame.Buffer) error {
	if b.Format() != frame.FormatRGBA {
		return errors.New("web: surface needs RGBA frames")
	}
	img, err := b.Image()
	if err != nil {
		return err
	}
	s.texture = imaging.Clone(img)
	s.seq = b.Seq()
	return nil
}

// Draw scales the texture to the canvas and sends it.
func (s *Surface) Draw() error {
	if s.texture == nil {
		return errors.New("web: nothing uploaded")
	}
	if s.hub.ClientCount() == 0 {
		return nil
	}

	var img image.Image = s.texture
	if b := s.texture.Bounds(); b.Dx() != s.width || b.Dy() != s.height {
		img = imaging.Resize(s.texture, s.width, s.height, imaging.Linear)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		return err
	}
	s.hub.BroadcastFrame(buf.Bytes())
	s.sent.Add(1)
	return nil
}

// Destroy drops the texture.
func (s *Surface) Destroy() error {
	s.texture = nil
	return nil
}

// Sent returns how many frames were broadcast.
func (s *Surface) Sent() uint64 { return s.sent.Load() }
