package frame_test

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/teslashibe/go-edgecam/pkg/frame"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		format frame.Format
		w, h   int
		want   int
	}{
		{frame.FormatGray8, 640, 480, 640 * 480},
		{frame.FormatRGBA, 4, 2, 32},
		{frame.FormatNV21, 640, 480, 640*480 + 640*480/2},
		{frame.FormatI420, 3, 3, 9 + 2*2*2},
		{frame.FormatYUYV, 4, 2, 16},
		{frame.FormatYUYV, 3, 1, 8},
		{frame.FormatBGR24, 2, 2, 12},
		{frame.FormatUnknown, 2, 2, -1},
		{frame.FormatGray8, -1, 2, -1},
	}
	for _, tt := range tests {
		if got := tt.format.Size(tt.w, tt.h); got != tt.want {
			t.Errorf("%s.Size(%d,%d) = %d, want %d", tt.format, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]frame.Format{
		"nv21": frame.FormatNV21,
		"NV12": frame.FormatNV12,
		"YU12": frame.FormatI420,
		"grey": frame.FormatGray8,
		"yuyv": frame.FormatYUYV,
		"rgba": frame.FormatRGBA,
	} {
		got, err := frame.ParseFormat(name)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := frame.ParseFormat("mjpeg"); !errors.Is(err, frame.ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestChromaOrderIsExplicit(t *testing.T) {
	if frame.FormatNV21.Info().Chroma != frame.ChromaVU {
		t.Error("nv21 should store V before U")
	}
	if frame.FormatNV12.Info().Chroma != frame.ChromaUV {
		t.Error("nv12 should store U before V")
	}
	if frame.FormatYV12.Info().Chroma != frame.ChromaVU {
		t.Error("yv12 should store V before U")
	}
}

func TestNewValidatesSize(t *testing.T) {
	_, err := frame.New(make([]byte, 10), 4, 4, frame.FormatGray8, time.Now(), 1)
	if !errors.Is(err, frame.ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	var sizeErr *frame.SizeError
	if !errors.As(err, &sizeErr) || sizeErr.Want != 16 || sizeErr.Got != 10 {
		t.Errorf("unexpected size error: %v", err)
	}

	b, err := frame.New(make([]byte, 16), 4, 4, frame.FormatGray8, time.Now(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Width() != 4 || b.Height() != 4 || b.Seq() != 1 {
		t.Errorf("unexpected buffer %v", b)
	}
}

func TestRawSkipsValidation(t *testing.T) {
	b := frame.Raw(make([]byte, 3), 4, 4, frame.FormatGray8, time.Now(), 7)
	if err := b.Validate(); !errors.Is(err, frame.ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize from Validate, got %v", err)
	}
}

func TestReferenceCounting(t *testing.T) {
	released := 0
	b, err := frame.NewWithRelease(make([]byte, 4), 2, 2, frame.FormatGray8, time.Now(), 1, func() { released++ })
	if err != nil {
		t.Fatal(err)
	}

	t.Run("hook runs once at zero", func(t *testing.T) {
		b.Retain()
		b.Release()
		if released != 0 {
			t.Fatalf("released early")
		}
		b.Release()
		if released != 1 {
			t.Fatalf("expected release hook once, got %d", released)
		}
	})

	t.Run("over release panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		b.Release()
	})
}

func TestDeriveKeepsIdentity(t *testing.T) {
	ts := time.Unix(100, 0)
	src, _ := frame.New(make([]byte, 6), 2, 1, frame.FormatBGR24, ts, 42)
	out, err := src.Derive(make([]byte, 2), frame.FormatGray8)
	if err != nil {
		t.Fatal(err)
	}
	if out == src || out.Seq() != 42 || !out.Timestamp().Equal(ts) || out.Format() != frame.FormatGray8 {
		t.Errorf("unexpected derived buffer %v", out)
	}
}

func TestImageSharesPayload(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	b, _ := frame.New(data, 2, 2, frame.FormatGray8, time.Now(), 1)
	img, err := b.Image()
	if err != nil {
		t.Fatal(err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("expected *image.Gray, got %T", img)
	}
	if gray.GrayAt(1, 1).Y != 4 {
		t.Errorf("unexpected pixel %d", gray.GrayAt(1, 1).Y)
	}

	nv, _ := frame.New(make([]byte, frame.FormatNV21.Size(2, 2)), 2, 2, frame.FormatNV21, time.Now(), 1)
	if _, err := nv.Image(); err == nil {
		t.Error("expected error for sensor format image view")
	}
}

func TestPool(t *testing.T) {
	p := frame.NewPool(8)
	b := p.Get()
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	p.Put(b)
	p.Put(make([]byte, 2))
	if got := p.Get(); len(got) != 8 {
		t.Errorf("expected 8 bytes after put, got %d", len(got))
	}
}
