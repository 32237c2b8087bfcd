// Package capture provides camera capture and device discovery using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/autocam/internal/log"
)

// Capture settings. The face mesh only needs a coarse frame and every frame
// is JPEG encoded for the detector, so the device is asked for VGA.
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrFrameUnavailable is returned when the device is open but yields no frame.
	ErrFrameUnavailable = errors.New("no frame available")
)

// Camera is a frame source for the face tracker.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the most recent frame. The caller closes it.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
	DeviceID() int
}

// Device is a Camera backed by an OpenCV VideoCapture.
type Device struct {
	index  int
	logger zerolog.Logger

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	fps    int
	frames uint64
}

// NewCamera creates a Camera for the given device index. The device is not
// touched until Open.
func NewCamera(index int) Camera {
	return &Device{
		index:  index,
		fps:    DefaultFPS,
		logger: log.WithComponent("capture").With().Int("camera", index).Logger(),
	}
}

// Open starts capture. Opening an open device is a no-op.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(d.index)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", d.index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open camera %d: device not available", d.index)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	vc.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
	vc.Set(gocv.VideoCaptureFPS, float64(d.fps))
	// One buffered frame: a tick must see the face where it is now, not
	// where it was a few frames ago.
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	d.vc = vc
	d.frames = 0

	// Drivers may ignore the requested mode; log what we actually got.
	d.logger.Info().
		Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)).
		Float64("fps", vc.Get(gocv.VideoCaptureFPS)).
		Msg("camera opened")
	return nil
}

// Close stops capture and releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil
	}

	err := d.vc.Close()
	d.vc = nil
	d.logger.Info().Uint64("frames", d.frames).Msg("camera closed")
	return err
}

// ReadFrame grabs one frame.
func (d *Device) ReadFrame() (*gocv.Mat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if !d.vc.Read(&mat) {
		mat.Close()
		return nil, fmt.Errorf("read camera %d: %w", d.index, ErrFrameUnavailable)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("read camera %d: empty frame: %w", d.index, ErrFrameUnavailable)
	}

	d.frames++
	return &mat, nil
}

// SetFPS changes the requested capture rate. Non-positive values are ignored.
func (d *Device) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.fps = fps
	if d.vc != nil {
		d.vc.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the requested capture rate.
func (d *Device) FPS() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fps
}

// IsOpen reports whether capture is running.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vc != nil
}

// DeviceID returns the capture device index.
func (d *Device) DeviceID() int {
	return d.index
}
