// Package detector provides face landmark detection for head position tracking.
package detector

// Face mesh landmark indices following the MediaPipe Face Mesh topology.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	Forehead      = 10
	NoseTip       = 1
	Chin          = 152
	LeftEyeOuter  = 33
	RightEyeOuter = 263
	NumLandmarks  = 468
)

// Point3D represents a landmark in normalized image coordinates.
// X and Y are in [0, 1] relative to frame width and height.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FaceLandmarks represents the mesh landmarks of one detected face.
type FaceLandmarks struct {
	Points []Point3D `json:"points"`
	Score  float64   `json:"score"`
}

// Landmark returns the point at index i, or false if the mesh does not have it.
func (f *FaceLandmarks) Landmark(i int) (Point3D, bool) {
	if f == nil || i < 0 || i >= len(f.Points) {
		return Point3D{}, false
	}
	return f.Points[i], true
}

// NoseX returns the horizontal position of the nose tip.
func (f *FaceLandmarks) NoseX() (float64, bool) {
	p, ok := f.Landmark(NoseTip)
	return p.X, ok
}
