package edge

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-edgecam/pkg/convert"
	"github.com/teslashibe/go-edgecam/pkg/frame"
)

func gray(t *testing.T, w, h int, fill func(x, y int) byte) *frame.Buffer {
	t.Helper()
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = fill(x, y)
		}
	}
	b, err := frame.New(data, w, h, frame.FormatGray8, time.Unix(5, 0), 11)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestNewProcessorRequiresDetector(t *testing.T) {
	if _, err := NewProcessor(nil); !errors.Is(err, ErrBoundaryUnavailable) {
		t.Errorf("expected ErrBoundaryUnavailable, got %v", err)
	}
}

func TestProcessKeepsDimensions(t *testing.T) {
	p, err := NewProcessor(NewCanny(DefaultConfig()))
	if err != nil {
		t.Fatal(err)
	}

	for _, size := range [][2]int{{1, 1}, {3, 2}, {64, 48}, {33, 17}} {
		in := gray(t, size[0], size[1], func(x, y int) byte { return byte(x * y) })
		out, err := p.Process(in)
		if err != nil {
			t.Fatalf("%v: %v", size, err)
		}
		if out.Width() != in.Width() || out.Height() != in.Height() || out.Format() != frame.FormatGray8 {
			t.Errorf("%v: unexpected output %v", size, out)
		}
		if out.Seq() != in.Seq() {
			t.Errorf("%v: seq not carried", size)
		}
	}

	processed, failed := p.Counts()
	if processed != 4 || failed != 0 {
		t.Errorf("unexpected counts %d/%d", processed, failed)
	}
}

func TestProcessErrors(t *testing.T) {
	mock := NewMock()
	p, _ := NewProcessor(mock)

	t.Run("short payload", func(t *testing.T) {
		in := frame.Raw(make([]byte, 5), 4, 4, frame.FormatGray8, time.Now(), 3)
		_, err := p.Process(in)
		if !errors.Is(err, ErrInvalidDimensions) {
			t.Fatalf("expected ErrInvalidDimensions, got %v", err)
		}
		var pe *ProcessingError
		if !errors.As(err, &pe) || pe.Seq != 3 {
			t.Errorf("expected ProcessingError for seq 3, got %v", err)
		}
	})

	t.Run("zero width", func(t *testing.T) {
		in := frame.Raw(nil, 0, 4, frame.FormatGray8, time.Now(), 4)
		if _, err := p.Process(in); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("expected ErrInvalidDimensions, got %v", err)
		}
	})

	t.Run("wrong format", func(t *testing.T) {
		in, _ := frame.New(make([]byte, 16), 2, 2, frame.FormatRGBA, time.Now(), 5)
		if _, err := p.Process(in); !errors.Is(err, convert.ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("wrong result size", func(t *testing.T) {
		mock.DetectFunc = func(src []byte, w, h int) ([]byte, error) { return make([]byte, 1), nil }
		defer func() { mock.DetectFunc = nil }()
		if _, err := p.Process(gray(t, 2, 2, func(int, int) byte { return 0 })); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("expected ErrInvalidDimensions, got %v", err)
		}
	})

	t.Run("detector failure", func(t *testing.T) {
		mock.DetectFunc = func(src []byte, w, h int) ([]byte, error) { return nil, errors.New("boom") }
		defer func() { mock.DetectFunc = nil }()
		if _, err := p.Process(gray(t, 2, 2, func(int, int) byte { return 0 })); !errors.Is(err, ErrBoundaryUnavailable) {
			t.Errorf("expected ErrBoundaryUnavailable, got %v", err)
		}
	})

	t.Run("detector panic", func(t *testing.T) {
		mock.DetectFunc = func(src []byte, w, h int) ([]byte, error) { panic("native crash") }
		defer func() { mock.DetectFunc = nil }()
		if _, err := p.Process(gray(t, 2, 2, func(int, int) byte { return 0 })); !errors.Is(err, ErrBoundaryUnavailable) {
			t.Errorf("expected ErrBoundaryUnavailable, got %v", err)
		}
	})

	if _, failed := p.Counts(); failed != 6 {
		t.Errorf("expected 6 failures, got %d", failed)
	}
}

func TestCannyUniformHasNoEdges(t *testing.T) {
	c := NewCanny(DefaultConfig())
	out, err := c.Detect(make([]byte, 32*24), 32, 24)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("unexpected edge at %d", i)
		}
	}
}

func TestCannyStepEdge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlurSigma = 0
	c := NewCanny(cfg)

	const w, h = 10, 8
	src := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			src[y*w+x] = 255
		}
	}

	out, err := c.Detect(src, w, h)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < h; y++ {
		count := 0
		for x := 0; x < w; x++ {
			switch out[y*w+x] {
			case 255:
				count++
				if x != w/2-1 && x != w/2 {
					t.Errorf("edge at (%d,%d) away from the step", x, y)
				}
			case 0:
			default:
				t.Fatalf("non-binary output %d", out[y*w+x])
			}
		}
		interior := y > 0 && y < h-1
		if interior && count != 1 {
			t.Errorf("row %d: expected a one pixel wide edge, got %d", y, count)
		}
		if !interior && count != 0 {
			t.Errorf("border row %d should be empty, got %d", y, count)
		}
	}
}

func TestCannyClosed(t *testing.T) {
	c := NewCanny(DefaultConfig())
	c.Close()
	if _, err := c.Detect(make([]byte, 4), 2, 2); !errors.Is(err, ErrBoundaryUnavailable) {
		t.Errorf("expected ErrBoundaryUnavailable, got %v", err)
	}
}

func TestFactory(t *testing.T) {
	t.Run("canny", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendCanny
		det, err := New(cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if det.Name() != "canny" {
			t.Errorf("unexpected backend %s", det.Name())
		}
	})

	t.Run("invalid thresholds", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LowThreshold, cfg.HighThreshold = 100, 10
		if _, err := New(cfg, nil); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("opencv availability", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendOpenCV
		_, err := New(cfg, nil)
		if openCVAvailable != (err == nil) {
			t.Errorf("opencv compiled=%v but New returned %v", openCVAvailable, err)
		}
	})
}
