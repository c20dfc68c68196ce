package display

import "github.com/teslashibe/go-edgecam/pkg/frame"

// PresentAfterCheck stores b the way a Present that passed its state check
// just before Destroy does.
func (s *Sink) PresentAfterCheck(b *frame.Buffer) { s.pending.Put(b) }
