package source

import (
	"context"
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/autocam/internal/capture"
	"github.com/ayusman/autocam/internal/detector"
	"github.com/ayusman/autocam/internal/scene"
)

func newTestSource(t *testing.T, frames int) (*Face, *capture.MockCamera, *detector.MockDetector) {
	t.Helper()

	mats := make([]*gocv.Mat, frames)
	for i := range mats {
		m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		t.Cleanup(func() { m.Close() })
		mats[i] = &m
	}

	cam := capture.NewMockCamera(mats, true)
	det := detector.NewMockDetector()
	return NewFace(cam, det), cam, det
}

func TestFace_Next(t *testing.T) {
	src, _, det := newTestSource(t, 1)
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	ctx := context.Background()

	t.Run("first face nose position", func(t *testing.T) {
		det.Queue(detector.MockResult{Faces: []detector.FaceLandmarks{detector.FaceAt(0.61), detector.FaceAt(0.2)}})

		s, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if s != scene.Position(0.61) {
			t.Errorf("sample = %v, want 0.61", s)
		}
	})

	t.Run("no face is no signal", func(t *testing.T) {
		det.Queue(detector.MockResult{})

		s, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if s.HasSignal() {
			t.Errorf("sample = %v, want no signal", s)
		}
	})

	t.Run("truncated mesh is no signal", func(t *testing.T) {
		det.Queue(detector.MockResult{Faces: []detector.FaceLandmarks{{Points: []detector.Point3D{{X: 0.3}}}}})

		s, err := src.Next(ctx)
		if err != nil || s.HasSignal() {
			t.Errorf("Next() = %v, %v, want no signal without error", s, err)
		}
	})

	t.Run("detector failure is a source error", func(t *testing.T) {
		boom := errors.New("helper exited")
		det.Queue(detector.MockResult{Err: boom})

		s, err := src.Next(ctx)
		var srcErr *Error
		if !errors.As(err, &srcErr) || srcErr.Op != "detect" {
			t.Fatalf("error = %v, want detect source error", err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("error does not wrap detector failure: %v", err)
		}
		if s.HasSignal() {
			t.Errorf("sample = %v, want no signal", s)
		}
	})
}

func TestFace_ReadFailure(t *testing.T) {
	src, _, _ := newTestSource(t, 0)
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	_, err := src.Next(context.Background())
	var srcErr *Error
	if !errors.As(err, &srcErr) || srcErr.Op != "read" {
		t.Fatalf("error = %v, want read source error", err)
	}
	if !errors.Is(err, capture.ErrFrameUnavailable) {
		t.Errorf("error = %v, want ErrFrameUnavailable", err)
	}
}

func TestFace_CancelledContext(t *testing.T) {
	src, _, det := newTestSource(t, 1)
	src.Open()
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if det.Calls() != 0 {
		t.Errorf("detector called %d times after cancel", det.Calls())
	}
}

func TestFace_OpenClose(t *testing.T) {
	src, cam, det := newTestSource(t, 1)

	cam.SetOpenError(errors.New("not permitted"))
	if err := src.Open(); err == nil {
		t.Fatal("expected Open() to fail")
	}

	if err := src.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if cam.CloseCount() != 1 {
		t.Errorf("camera closed %d times, want 1", cam.CloseCount())
	}
	if !det.Closed() {
		t.Error("detector was not closed")
	}
	if got := src.Describe(); got != "camera -1" {
		t.Errorf("Describe() = %q", got)
	}
}
