package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera replays a fixed set of frames. Frames are cloned on read so the
// caller may close what it gets.
type MockCamera struct {
	mu        sync.Mutex
	frames    []*gocv.Mat
	next      int
	loop      bool
	open      bool
	openErr   error
	failReads int
	closed    int
}

// NewMockCamera creates a mock that plays frames in order, starting over when
// loop is set.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
	}
}

// SetOpenError makes Open fail with err until it is set back to nil.
func (c *MockCamera) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// FailReads makes the next n reads fail with ErrFrameUnavailable, as a
// camera that was unplugged or stalled would.
func (c *MockCamera) FailReads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failReads = n
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openErr != nil {
		return c.openErr
	}
	c.open = true
	c.next = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = false
	c.closed++
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil, ErrCameraNotOpen
	}
	if c.failReads > 0 {
		c.failReads--
		return nil, fmt.Errorf("mock camera: stalled: %w", ErrFrameUnavailable)
	}
	if len(c.frames) == 0 {
		return nil, fmt.Errorf("mock camera: %w", ErrFrameUnavailable)
	}

	if c.next >= len(c.frames) {
		if !c.loop {
			return nil, fmt.Errorf("mock camera: no more frames: %w", ErrFrameUnavailable)
		}
		c.next = 0
	}

	frame := c.frames[c.next].Clone()
	c.next++
	return &frame, nil
}

func (c *MockCamera) SetFPS(fps int) {}
func (c *MockCamera) FPS() int       { return DefaultFPS }
func (c *MockCamera) DeviceID() int  { return -1 }

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// CloseCount reports how many times Close was called.
func (c *MockCamera) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetFrames replaces the frames and rewinds.
func (c *MockCamera) SetFrames(frames []*gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.next = 0
}
