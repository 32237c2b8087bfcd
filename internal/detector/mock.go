package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It returns a fixed result, or steps through a queued sequence of results.
type MockDetector struct {
	mu       sync.Mutex
	faces    []FaceLandmarks
	err      error
	sequence []MockResult
	calls    int
	closed   bool
}

// MockResult is one queued Detect result.
type MockResult struct {
	Faces []FaceLandmarks
	Err   error
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFaces sets the faces that will be returned by Detect.
func (m *MockDetector) SetFaces(faces []FaceLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Queue appends results that Detect returns in order before falling back to
// the fixed faces and error.
func (m *MockDetector) Queue(results ...MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = append(m.sequence, results...)
}

// Detect returns the next queued result or the pre-configured faces or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]FaceLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.sequence) > 0 {
		next := m.sequence[0]
		m.sequence = m.sequence[1:]
		return next.Faces, next.Err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.faces, nil
}

// Calls reports how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the mock closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// FaceAt returns a minimal face mesh with the nose tip at horizontal position x.
func FaceAt(x float64) FaceLandmarks {
	face := FaceLandmarks{
		Points: make([]Point3D, NumLandmarks),
		Score:  0.95,
	}

	// A rough frontal face: forehead above, chin below, eyes either side of the nose.
	face.Points[NoseTip] = Point3D{X: x, Y: 0.5, Z: -0.05}
	face.Points[Forehead] = Point3D{X: x, Y: 0.3, Z: 0.0}
	face.Points[Chin] = Point3D{X: x, Y: 0.7, Z: 0.0}
	face.Points[LeftEyeOuter] = Point3D{X: x - 0.08, Y: 0.42, Z: 0.0}
	face.Points[RightEyeOuter] = Point3D{X: x + 0.08, Y: 0.42, Z: 0.0}

	return face
}
