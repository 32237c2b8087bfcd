// Package source turns camera frames into position samples for the decision engine.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/autocam/internal/capture"
	"github.com/ayusman/autocam/internal/detector"
	"github.com/ayusman/autocam/internal/scene"
)

// Error reports a tick that produced no sample at all, as opposed to a frame
// in which no face was found.
type Error struct {
	Op  string // "read" or "detect"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Face samples the nose tip position of the first face the detector finds.
type Face struct {
	camera   capture.Camera
	detector detector.Detector
}

// NewFace creates a face source. It takes ownership of camera and detector.
func NewFace(camera capture.Camera, det detector.Detector) *Face {
	return &Face{
		camera:   camera,
		detector: det,
	}
}

// Open opens the capture device.
func (f *Face) Open() error {
	return f.camera.Open()
}

// Next captures one frame and returns the nose tip position, or NoSignal
// when no face is visible.
func (f *Face) Next(ctx context.Context) (scene.Sample, error) {
	if err := ctx.Err(); err != nil {
		return scene.NoSignal(), err
	}

	frame, err := f.camera.ReadFrame()
	if err != nil {
		return scene.NoSignal(), &Error{Op: "read", Err: err}
	}
	defer frame.Close()

	faces, err := f.detector.Detect(frame)
	if err != nil {
		return scene.NoSignal(), &Error{Op: "detect", Err: err}
	}
	if len(faces) == 0 {
		return scene.NoSignal(), nil
	}

	x, ok := faces[0].NoseX()
	if !ok {
		return scene.NoSignal(), nil
	}
	return scene.Position(x), nil
}

// Close releases the camera and the detector.
func (f *Face) Close() error {
	return errors.Join(f.camera.Close(), f.detector.Close())
}

// Describe names the device for logs.
func (f *Face) Describe() string {
	return fmt.Sprintf("camera %d", f.camera.DeviceID())
}
