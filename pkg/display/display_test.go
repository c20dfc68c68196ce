package display_test

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-edgecam/pkg/convert"
	"github.com/teslashibe/go-edgecam/pkg/display"
	"github.com/teslashibe/go-edgecam/pkg/frame"
)

func rgbaFrame(t *testing.T, seq uint64, w, h int, v byte) (*frame.Buffer, *int) {
	t.Helper()
	data := make([]byte, w*h*4)
	for i := range data {
		data[i] = v
	}
	released := new(int)
	b, err := frame.NewWithRelease(data, w, h, frame.FormatRGBA, time.Now(), seq, func() { *released++ })
	if err != nil {
		t.Fatal(err)
	}
	return b, released
}

func TestSinkLifecycle(t *testing.T) {
	surf := display.NewMemorySurface()
	sink := display.NewSink(surf)

	if sink.State() != display.StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", sink.State())
	}
	if err := sink.Resize(10, 10); !errors.Is(err, display.ErrNotReady) {
		t.Errorf("expected ErrNotReady before create, got %v", err)
	}

	if err := sink.Create(8, 6); err != nil {
		t.Fatal(err)
	}
	if sink.State() != display.StateReady {
		t.Fatalf("expected ready, got %s", sink.State())
	}

	if err := sink.Destroy(); err != nil {
		t.Fatal(err)
	}
	if sink.State() != display.StateDestroyed {
		t.Fatalf("expected destroyed, got %s", sink.State())
	}
	if creates, destroys := surf.Lifecycle(); creates != 1 || destroys != 1 {
		t.Errorf("unexpected surface lifecycle %d/%d", creates, destroys)
	}

	b, released := rgbaFrame(t, 1, 2, 2, 0)
	if err := sink.Present(b); !errors.Is(err, display.ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
	if *released != 1 {
		t.Error("frame presented to a destroyed sink must be released")
	}

	if err := sink.Create(8, 6); err != nil {
		t.Fatalf("recreate: %v", err)
	}
}

func TestRecreateDropsStaleFrame(t *testing.T) {
	surf := display.NewMemorySurface()
	sink := display.NewSink(surf)
	if err := sink.Create(4, 4); err != nil {
		t.Fatal(err)
	}
	if err := sink.Destroy(); err != nil {
		t.Fatal(err)
	}

	stale, released := rgbaFrame(t, 7, 4, 4, 200)
	sink.PresentAfterCheck(stale)

	if err := sink.Create(4, 4); err != nil {
		t.Fatal(err)
	}
	if *released != 1 {
		t.Errorf("stale frame should be released on recreate, released %d times", *released)
	}
	drew, err := sink.Refresh()
	if err != nil {
		t.Fatal(err)
	}
	if drew || len(surf.Drawn()) != 0 {
		t.Errorf("a frame from the destroyed surface was drawn: %v", surf.Drawn())
	}
}

func TestResizeIdempotent(t *testing.T) {
	surf := display.NewMemorySurface()
	sink := display.NewSink(surf)
	if err := sink.Create(4, 4); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := sink.Resize(16, 9); err != nil {
			t.Fatal(err)
		}
		if vp := sink.Viewport(); vp != (display.Viewport{Width: 16, Height: 9}) {
			t.Fatalf("resize %d: unexpected viewport %+v", i, vp)
		}
	}

	if err := sink.Resize(0, 9); !errors.Is(err, display.ErrInvalidViewport) {
		t.Errorf("expected ErrInvalidViewport, got %v", err)
	}
}

func TestOnlyNewestIsDrawn(t *testing.T) {
	surf := display.NewMemorySurface()
	sink := display.NewSink(surf)
	if err := sink.Create(2, 2); err != nil {
		t.Fatal(err)
	}

	var releases []*int
	for seq := uint64(1); seq <= 3; seq++ {
		b, released := rgbaFrame(t, seq, 2, 2, byte(seq))
		releases = append(releases, released)
		if err := sink.Present(b); err != nil {
			t.Fatal(err)
		}
	}

	drew, err := sink.Refresh()
	if err != nil || !drew {
		t.Fatalf("refresh: drew=%v err=%v", drew, err)
	}
	if diff := cmp.Diff([]uint64{3}, surf.Drawn()); diff != "" {
		t.Errorf("drawn mismatch (-want +got):\n%s", diff)
	}
	for i, r := range releases {
		if *r != 1 {
			t.Errorf("frame %d released %d times", i+1, *r)
		}
	}

	// nothing new: no redraw
	if drew, _ := sink.Refresh(); drew {
		t.Error("refresh without a new frame should not draw")
	}

	st := sink.Stats()
	if st.Presented != 3 || st.Superseded != 2 || st.Drawn != 1 {
		t.Errorf("unexpected stats %+v", st)
	}

	img := surf.Snapshot()
	if img.Pix[0] != 3 {
		t.Errorf("viewport shows %d, want the newest frame", img.Pix[0])
	}
}

func TestPresentBeforeCreateWaits(t *testing.T) {
	surf := display.NewMemorySurface()
	sink := display.NewSink(surf)

	b, _ := rgbaFrame(t, 7, 2, 2, 1)
	if err := sink.Present(b); err != nil {
		t.Fatal(err)
	}
	if drew, _ := sink.Refresh(); drew {
		t.Fatal("drew without a surface")
	}

	if err := sink.Create(4, 4); err != nil {
		t.Fatal(err)
	}
	if drew, err := sink.Refresh(); !drew || err != nil {
		t.Fatalf("expected draw after create, drew=%v err=%v", drew, err)
	}
	if diff := cmp.Diff([]uint64{7}, surf.Drawn()); diff != "" {
		t.Errorf("drawn mismatch (-want +got):\n%s", diff)
	}
}

func TestResizeRedraws(t *testing.T) {
	surf := display.NewMemorySurface()
	sink := display.NewSink(surf)
	sink.Create(2, 2)

	b, _ := rgbaFrame(t, 1, 2, 2, 200)
	sink.Present(b)
	sink.Refresh()

	if err := sink.Resize(4, 4); err != nil {
		t.Fatal(err)
	}
	if drew, _ := sink.Refresh(); !drew {
		t.Error("resize should redraw the current texture")
	}
	if img := surf.Snapshot(); img.Rect.Dx() != 4 || img.Pix[0] != 200 {
		t.Errorf("unexpected scaled viewport %v first=%d", img.Rect, img.Pix[0])
	}
}

func TestRejectsNonRGBA(t *testing.T) {
	sink := display.NewSink(display.NewMemorySurface())
	sink.Create(2, 2)

	b, _ := frame.New(make([]byte, 4), 2, 2, frame.FormatGray8, time.Now(), 1)
	sink.Present(b)
	if _, err := sink.Refresh(); !errors.Is(err, convert.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if sink.Stats().Errors != 1 {
		t.Errorf("expected one error, got %+v", sink.Stats())
	}
}

func TestRunRefreshesOnTicks(t *testing.T) {
	mock := clock.NewMock()
	surf := display.NewMemorySurface()
	drawn := make(chan uint64, 4)
	surf.OnDraw = func(_ *image.RGBA, seq uint64) { drawn <- seq }

	sink := display.NewSink(surf, display.WithClock(mock))
	sink.Create(2, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx, 16*time.Millisecond) }()

	b, _ := rgbaFrame(t, 42, 2, 2, 9)
	sink.Present(b)

	// the ticker is created inside Run; keep advancing until it fires
	deadline := time.After(2 * time.Second)
	for {
		mock.Add(16 * time.Millisecond)
		select {
		case seq := <-drawn:
			if seq != 42 {
				t.Errorf("drew %d, want 42", seq)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("run: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("refresh loop never drew")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
