package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-edgecam/pkg/capture"
	"github.com/teslashibe/go-edgecam/pkg/convert"
	"github.com/teslashibe/go-edgecam/pkg/display"
	"github.com/teslashibe/go-edgecam/pkg/edge"
	"github.com/teslashibe/go-edgecam/pkg/frame"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
)

const (
	testWidth  = 4
	testHeight = 4
)

var testMode = capture.Mode{Width: testWidth, Height: testHeight, Framerate: 30, Format: frame.FormatGray8}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// gate blocks every Detect call until the test lets it through.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (g *gate) detector() *edge.Mock {
	m := edge.NewMock()
	m.DetectFunc = func(src []byte, w, h int) ([]byte, error) {
		g.entered <- struct{}{}
		<-g.release
		return make([]byte, w*h), nil
	}
	return m
}

func (g *gate) wait(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame reached the detector")
	}
}

func (g *gate) open() { g.release <- struct{}{} }

type recorder struct {
	mu   sync.Mutex
	seqs []uint64
	data [][]byte
}

func (r *recorder) hook(b *frame.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, b.Seq())
	r.data = append(r.data, append([]byte(nil), b.Bytes()...))
}

func (r *recorder) Seqs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seqs...)
}

func (r *recorder) Data(i int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[i]
}

// rig wires a mock camera, the edge processor and a memory display.
type rig struct {
	coord   *pipeline.Coordinator
	cam     *capture.Camera
	drv     *capture.MockDriver
	capClk  *clock.Mock
	sinkClk *clock.Mock
	surf    *display.MemorySurface
	rec     *recorder
}

func newRig(t *testing.T, device string, det edge.Detector, opts ...pipeline.Option) *rig {
	t.Helper()
	r := &rig{
		drv:     capture.NewMockDriver(),
		capClk:  clock.NewMock(),
		sinkClk: clock.NewMock(),
		surf:    display.NewMemorySurface(),
		rec:     &recorder{},
	}
	r.cam = capture.NewCamera(r.drv, device, testMode, capture.WithClock(r.capClk))

	proc, err := edge.NewProcessor(det)
	if err != nil {
		t.Fatal(err)
	}
	sink := display.NewSink(r.surf, display.WithClock(r.sinkClk))

	opts = append([]pipeline.Option{pipeline.WithFrameHook(r.rec.hook)}, opts...)
	r.coord, err = pipeline.New(r.cam, proc, sink, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.coord.Stop(context.Background()) })
	return r
}

func (r *rig) start(t *testing.T) {
	t.Helper()
	if err := r.coord.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// emit captures one frame 100ms after the previous one.
func (r *rig) emit(t *testing.T, v byte) {
	t.Helper()
	before := r.cam.Stats().Captured
	r.capClk.Add(100 * time.Millisecond)
	data := make([]byte, testWidth*testHeight)
	for i := range data {
		data[i] = v
	}
	if err := r.drv.Emit(context.Background(), data); err != nil {
		t.Fatalf("emit: %v", err)
	}
	waitFor(t, "frame captured", func() bool { return r.cam.Stats().Captured > before })
}

func (r *rig) waitPresented(t *testing.T, n int) {
	t.Helper()
	waitFor(t, "frame presented", func() bool { return len(r.rec.Seqs()) >= n })
}

// drawUntil ticks the display clock until n frames have been drawn.
func (r *rig) drawUntil(t *testing.T, n int) {
	t.Helper()
	waitFor(t, "frame drawn", func() bool {
		r.sinkClk.Add(16 * time.Millisecond)
		return len(r.surf.Drawn()) >= n
	})
}

func TestNewValidates(t *testing.T) {
	proc, _ := edge.NewProcessor(edge.NewMock())
	sink := display.NewSink(display.NewMemorySurface())

	if _, err := pipeline.New(nil, proc, sink); !errors.Is(err, pipeline.ErrNilComponent) {
		t.Errorf("expected ErrNilComponent, got %v", err)
	}

	cam := capture.NewCamera(capture.NewMockDriver(), "pipe-validate", testMode)
	if _, err := pipeline.New(cam, proc, sink, pipeline.WithStatsWindow(1)); err == nil {
		t.Error("expected error for a one-sample window")
	}
	if _, err := pipeline.New(cam, proc, sink, pipeline.WithMode("sepia")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestNewestFrameWins(t *testing.T) {
	g := newGate()
	r := newRig(t, "pipe-newest", g.detector())
	r.start(t)

	r.emit(t, 10)
	g.wait(t) // 1 in flight
	r.emit(t, 20)
	r.emit(t, 30) // 3 replaces 2

	g.open()
	r.waitPresented(t, 1)
	r.drawUntil(t, 1)

	g.wait(t) // 3 in flight
	r.emit(t, 40)
	r.emit(t, 50) // 5 replaces 4

	g.open()
	r.waitPresented(t, 2)
	r.drawUntil(t, 2)

	g.wait(t) // 5 in flight
	g.open()
	r.waitPresented(t, 3)
	r.drawUntil(t, 3)

	want := []uint64{1, 3, 5}
	if diff := cmp.Diff(want, r.rec.Seqs()); diff != "" {
		t.Errorf("presented mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, r.surf.Drawn()); diff != "" {
		t.Errorf("drawn mismatch (-want +got):\n%s", diff)
	}

	waitFor(t, "stats published", func() bool {
		rep, ok := r.coord.Stats()
		return ok && rep.FramesProcessed == 3
	})
	rep, _ := r.coord.Stats()
	if rep.FPS == nil || *rep.FPS != 5 {
		t.Errorf("expected 5 fps over frames 1, 3 and 5, got %v", rep.FPS)
	}
	if rep.ProcessingTimeMs == nil {
		t.Error("expected a processing time")
	}
	if rep.ResolutionWidth != testWidth || rep.ResolutionHeight != testHeight {
		t.Errorf("unexpected resolution %dx%d", rep.ResolutionWidth, rep.ResolutionHeight)
	}
	if rep.FramesSkipped != 2 || !rep.Running {
		t.Errorf("unexpected report %+v", rep)
	}

	st := r.cam.Stats()
	if st.Captured != 5 || st.Superseded != 2 || st.Delivered != 3 {
		t.Errorf("unexpected capture stats %+v", st)
	}
}

func TestBackpressureBoundsPending(t *testing.T) {
	g := newGate()
	r := newRig(t, "pipe-backpressure", g.detector())
	r.start(t)

	const n = 6
	r.emit(t, 1)
	g.wait(t)
	for i := 2; i <= n; i++ {
		r.emit(t, byte(i))
	}

	if st := r.cam.Stats(); st.Superseded != n-2 {
		t.Errorf("expected %d superseded with one in flight and one pending, got %+v", n-2, st)
	}

	g.open()
	g.wait(t)
	g.open()
	r.waitPresented(t, 2)

	if diff := cmp.Diff([]uint64{1, n}, r.rec.Seqs()); diff != "" {
		t.Errorf("presented mismatch (-want +got):\n%s", diff)
	}
}

// fakeSource hands out exactly the frames a test queues.
type fakeSource struct {
	frames chan *frame.Buffer
	disc   chan error

	mu      sync.Mutex
	state   capture.State
	stops   int
	stopErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		frames: make(chan *frame.Buffer, 8),
		disc:   make(chan error, 1),
	}
}

func (f *fakeSource) Start(ctx context.Context, res capture.Resolution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = capture.StateRunning
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == capture.StateRunning {
		f.stops++
	}
	f.state = capture.StateStopped
	return f.stopErr
}

func (f *fakeSource) Next(ctx context.Context) (*frame.Buffer, error) {
	select {
	case b := <-f.frames:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSource) Disconnected() <-chan error { return f.disc }
func (f *fakeSource) Stats() capture.Stats       { return capture.Stats{} }
func (f *fakeSource) Name() string               { return "fake" }

func (f *fakeSource) State() capture.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func grayFrame(seq uint64, n int, v byte) *frame.Buffer {
	data := make([]byte, n)
	for i := range data {
		data[i] = v
	}
	return frame.Raw(data, testWidth, testHeight, frame.FormatGray8, time.Now(), seq)
}

func newFakeCoordinator(t *testing.T, src *fakeSource, det edge.Detector, opts ...pipeline.Option) (*pipeline.Coordinator, *recorder) {
	t.Helper()
	proc, err := edge.NewProcessor(det)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	opts = append([]pipeline.Option{pipeline.WithFrameHook(rec.hook)}, opts...)
	coord, err := pipeline.New(src, proc, display.NewSink(display.NewMemorySurface()), opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { coord.Stop(context.Background()) })
	return coord, rec
}

func TestInvalidFrameIsDropped(t *testing.T) {
	src := newFakeSource()
	coord, rec := newFakeCoordinator(t, src, edge.NewMock())

	src.frames <- grayFrame(1, 4, 0) // too short for 4x4
	src.frames <- grayFrame(2, testWidth*testHeight, 0)

	waitFor(t, "valid frame", func() bool { return len(rec.Seqs()) == 1 })
	if diff := cmp.Diff([]uint64{2}, rec.Seqs()); diff != "" {
		t.Errorf("presented mismatch (-want +got):\n%s", diff)
	}
	if coord.State() != pipeline.StateRunning {
		t.Fatalf("a bad frame must not stop the session, state %s", coord.State())
	}

	waitFor(t, "stats published", func() bool {
		rep, _ := coord.Stats()
		return rep.FramesProcessed == 1
	})
	rep, _ := coord.Stats()
	if rep.FramesDropped != 1 || rep.LastError != "" {
		t.Errorf("unexpected report %+v", rep)
	}
	info, ok := coord.Session()
	if !ok || info.FramesDropped != 1 || info.LastSeq != 2 || info.State != "running" {
		t.Errorf("unexpected session %+v", info)
	}
}

func TestUnsupportedFormatStopsSession(t *testing.T) {
	src := newFakeSource()
	coord, rec := newFakeCoordinator(t, src, edge.NewMock())

	src.frames <- frame.Raw(make([]byte, 16), testWidth, testHeight, frame.FormatUnknown, time.Now(), 1)

	waitFor(t, "session stopped", func() bool { return coord.State() == pipeline.StateIdle })
	if !errors.Is(coord.LastError(), convert.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", coord.LastError())
	}
	if src.State() != capture.StateStopped {
		t.Error("source should be stopped")
	}
	if len(rec.Seqs()) != 0 {
		t.Error("nothing should be presented")
	}

	rep, _ := coord.Stats()
	if rep.Running || rep.LastError == "" {
		t.Errorf("report should show the failure: %+v", rep)
	}
}

func TestPassthroughShowsCamera(t *testing.T) {
	src := newFakeSource()
	det := edge.NewMock()
	coord, rec := newFakeCoordinator(t, src, det, pipeline.WithMode(pipeline.ModePassthrough))

	changed := coord.StatsChanged()
	src.frames <- grayFrame(1, testWidth*testHeight, 77)
	waitFor(t, "frame", func() bool { return len(rec.Seqs()) == 1 })

	if got := rec.Data(0)[:4]; !cmp.Equal(got, []byte{77, 77, 77, 255}) {
		t.Errorf("passthrough pixel %v, want gray 77", got)
	}
	if det.CallCount() != 0 {
		t.Error("passthrough must not run the detector")
	}

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Error("stats watchers were not woken")
	}

	waitFor(t, "latest frame", func() bool {
		b := coord.Latest()
		if b == nil {
			return false
		}
		defer b.Release()
		return b.Seq() == 1 && b.Format() == frame.FormatRGBA
	})
}

func TestDisconnectStopsSession(t *testing.T) {
	r := newRig(t, "pipe-disconnect", edge.NewMock())
	r.start(t)
	r.emit(t, 1)
	r.waitPresented(t, 1)

	r.drv.Disconnect(errors.New("usb unplugged"))
	waitFor(t, "session stopped", func() bool { return r.coord.State() == pipeline.StateIdle })

	if !errors.Is(r.coord.LastError(), capture.ErrDisconnected) {
		t.Errorf("expected ErrDisconnected, got %v", r.coord.LastError())
	}
	if _, destroys := r.surf.Lifecycle(); destroys != 1 {
		t.Errorf("display should be destroyed once, got %d", destroys)
	}

	// a new session starts fresh
	r.start(t)
	if r.coord.LastError() != nil {
		t.Errorf("last error should clear on start, got %v", r.coord.LastError())
	}
	r.emit(t, 2)
	r.waitPresented(t, 2)
	if got := r.rec.Seqs(); got[1] != 1 {
		t.Errorf("sequence should restart at 1, got %v", got)
	}
}

func TestStartFailure(t *testing.T) {
	r := newRig(t, "pipe-denied", edge.NewMock())
	r.drv.OpenFunc = func(ctx context.Context, device string, mode capture.Mode) (capture.Mode, error) {
		return capture.Mode{}, &capture.Error{Kind: capture.KindPermissionDenied, Device: device, Err: os.ErrPermission}
	}

	err := r.coord.Start(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if r.coord.State() != pipeline.StateIdle {
		t.Errorf("expected idle, got %s", r.coord.State())
	}
	if !errors.Is(r.coord.LastError(), capture.ErrPermissionDenied) {
		t.Errorf("last error not recorded: %v", r.coord.LastError())
	}
	if _, ok := r.coord.Session(); ok {
		t.Error("no session should exist")
	}
}

func TestStartTwice(t *testing.T) {
	r := newRig(t, "pipe-twice", edge.NewMock())
	r.start(t)
	if err := r.coord.Start(context.Background()); !errors.Is(err, pipeline.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStopDrainsInFlightFrame(t *testing.T) {
	g := newGate()
	r := newRig(t, "pipe-drain", g.detector(), pipeline.WithDrainTimeout(2*time.Second))
	r.start(t)
	r.emit(t, 1)
	g.wait(t)

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.open()
	}()
	if err := r.coord.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if diff := cmp.Diff([]uint64{1}, r.rec.Seqs()); diff != "" {
		t.Errorf("in-flight frame should finish (-want +got):\n%s", diff)
	}
	if r.coord.State() != pipeline.StateIdle {
		t.Errorf("expected idle, got %s", r.coord.State())
	}
	if r.drv.IsOpen() {
		t.Error("device should be closed")
	}

	// second stop is a no-op
	if err := r.coord.Stop(context.Background()); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestStopAbandonsSlowFrame(t *testing.T) {
	g := newGate()
	r := newRig(t, "pipe-abandon", g.detector(), pipeline.WithDrainTimeout(20*time.Millisecond))
	r.start(t)
	r.emit(t, 1)
	g.wait(t)

	if err := r.coord.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.coord.State() != pipeline.StateIdle {
		t.Errorf("expected idle, got %s", r.coord.State())
	}

	g.open()
	time.Sleep(20 * time.Millisecond)
	if got := r.rec.Seqs(); len(got) != 0 {
		t.Errorf("abandoned frame was presented: %v", got)
	}
	if b := r.coord.Latest(); b != nil {
		b.Release()
		t.Error("abandoned frame should not become the latest frame")
	}
}

func TestRestartWaitsForAbandonedCycle(t *testing.T) {
	g := newGate()
	var active, peak atomic.Int32
	det := edge.NewMock()
	det.DetectFunc = func(src []byte, w, h int) ([]byte, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		g.entered <- struct{}{}
		<-g.release
		return make([]byte, w*h), nil
	}

	r := newRig(t, "pipe-restart", det, pipeline.WithDrainTimeout(20*time.Millisecond))
	r.start(t)
	r.emit(t, 1)
	g.wait(t)

	if err := r.coord.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	r.start(t)
	r.emit(t, 2)

	select {
	case <-g.entered:
		t.Fatal("new session processed a frame while the abandoned one was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	g.open() // abandoned cycle finishes and is discarded
	g.wait(t)
	g.open()
	r.waitPresented(t, 1)

	if got := peak.Load(); got != 1 {
		t.Errorf("detector ran %d frames concurrently", got)
	}
	if diff := cmp.Diff([]uint64{1}, r.rec.Seqs()); diff != "" {
		t.Errorf("only the new session's frame should be presented (-want +got):\n%s", diff)
	}
	if r.coord.State() != pipeline.StateRunning {
		t.Errorf("expected running, got %s", r.coord.State())
	}
	waitFor(t, "stats published", func() bool {
		rep, _ := r.coord.Stats()
		return rep.FramesProcessed == 1
	})
}

// syncBuffer is a log sink safe for the pipeline's goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTeardownFailureIsLogged(t *testing.T) {
	src := newFakeSource()
	src.stopErr = errors.New("device wedged")
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	coord, _ := newFakeCoordinator(t, src, edge.NewMock(), pipeline.WithLogger(logger))

	src.frames <- frame.Raw(make([]byte, 16), testWidth, testHeight, frame.FormatUnknown, time.Now(), 1)

	waitFor(t, "session stopped", func() bool { return coord.State() == pipeline.StateIdle })
	waitFor(t, "teardown error logged", func() bool {
		out := logs.String()
		return strings.Contains(out, "session teardown failed") && strings.Contains(out, "device wedged")
	})
}

func TestDroppedFrameWaitsForNextCycle(t *testing.T) {
	src := newFakeSource()
	coord, rec := newFakeCoordinator(t, src, edge.NewMock())

	changed := coord.StatsChanged()
	src.frames <- grayFrame(1, 4, 0) // too short for 4x4
	waitFor(t, "frame dropped", func() bool {
		info, _ := coord.Session()
		return info.FramesDropped == 1
	})
	select {
	case <-changed:
		t.Fatal("a dropped frame must not publish a report")
	case <-time.After(20 * time.Millisecond):
	}

	src.frames <- grayFrame(2, testWidth*testHeight, 0)
	waitFor(t, "valid frame", func() bool { return len(rec.Seqs()) == 1 })
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("completed cycle did not publish")
	}
	rep, _ := coord.Stats()
	if rep.FramesProcessed != 1 || rep.FramesDropped != 1 {
		t.Errorf("unexpected report %+v", rep)
	}
}
