package detector

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/asana/internal/pose"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu        sync.Mutex
	keypoints pose.KeypointSet
	err       error
	delay     time.Duration
	calls     int
}

// NewMockDetector creates a new MockDetector that reports no person.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetKeypoints sets the keypoints that will be returned by Detect.
func (m *MockDetector) SetKeypoints(set pose.KeypointSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keypoints = set
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes Detect block for d or until its context is done.
func (m *MockDetector) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured keypoints or error.
func (m *MockDetector) Detect(ctx context.Context, _ *gocv.Mat) (pose.KeypointSet, error) {
	m.mu.Lock()
	m.calls++
	set, err, delay := m.keypoints, m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Presets are pixel coordinates in a frame of this size.
const (
	PresetWidth  = 640
	PresetHeight = 480
)

const presetScore = 0.9

// preset scales points given as fractions of the frame into pixels.
func preset(points [pose.NumKeypoints]pose.Point) pose.KeypointSet {
	var scores [pose.NumKeypoints]float64
	for i := range points {
		points[i].X *= PresetWidth
		points[i].Y *= PresetHeight
		scores[i] = presetScore
	}
	return pose.NewKeypointSet(points, scores)
}

// TreeKeypoints returns a standing tree pose in pixel coordinates:
// weight on the left leg, right foot against the left thigh, palms joined overhead.
func TreeKeypoints() pose.KeypointSet {
	return preset(treePoints())
}

func treePoints() [pose.NumKeypoints]pose.Point {
	var p [pose.NumKeypoints]pose.Point
	p[pose.Nose] = pose.Point{X: 0.50, Y: 0.20}
	p[pose.LeftEye] = pose.Point{X: 0.51, Y: 0.19}
	p[pose.RightEye] = pose.Point{X: 0.49, Y: 0.19}
	p[pose.LeftEar] = pose.Point{X: 0.52, Y: 0.20}
	p[pose.RightEar] = pose.Point{X: 0.48, Y: 0.20}
	p[pose.LeftShoulder] = pose.Point{X: 0.55, Y: 0.30}
	p[pose.RightShoulder] = pose.Point{X: 0.45, Y: 0.30}
	p[pose.LeftElbow] = pose.Point{X: 0.56, Y: 0.18}
	p[pose.RightElbow] = pose.Point{X: 0.44, Y: 0.18}
	p[pose.LeftWrist] = pose.Point{X: 0.51, Y: 0.08}
	p[pose.RightWrist] = pose.Point{X: 0.49, Y: 0.08}
	p[pose.LeftHip] = pose.Point{X: 0.53, Y: 0.55}
	p[pose.RightHip] = pose.Point{X: 0.47, Y: 0.55}
	p[pose.LeftKnee] = pose.Point{X: 0.53, Y: 0.72}
	p[pose.RightKnee] = pose.Point{X: 0.36, Y: 0.64}
	p[pose.LeftAnkle] = pose.Point{X: 0.53, Y: 0.90}
	p[pose.RightAnkle] = pose.Point{X: 0.51, Y: 0.62}
	return p
}

// StandingKeypoints returns a person standing upright with arms at their
// sides. It matches none of the presets and is used to train No_Pose.
func StandingKeypoints() pose.KeypointSet {
	p := treePoints()
	p[pose.LeftElbow] = pose.Point{X: 0.56, Y: 0.42}
	p[pose.RightElbow] = pose.Point{X: 0.44, Y: 0.42}
	p[pose.LeftWrist] = pose.Point{X: 0.57, Y: 0.53}
	p[pose.RightWrist] = pose.Point{X: 0.43, Y: 0.53}
	p[pose.RightKnee] = pose.Point{X: 0.47, Y: 0.72}
	p[pose.RightAnkle] = pose.Point{X: 0.47, Y: 0.90}
	return preset(p)
}

// WarriorKeypoints returns a warrior II pose: wide stance, front knee bent,
// arms extended horizontally.
func WarriorKeypoints() pose.KeypointSet {
	var p [pose.NumKeypoints]pose.Point
	p[pose.Nose] = pose.Point{X: 0.50, Y: 0.22}
	p[pose.LeftEye] = pose.Point{X: 0.51, Y: 0.21}
	p[pose.RightEye] = pose.Point{X: 0.49, Y: 0.21}
	p[pose.LeftEar] = pose.Point{X: 0.52, Y: 0.22}
	p[pose.RightEar] = pose.Point{X: 0.48, Y: 0.22}
	p[pose.LeftShoulder] = pose.Point{X: 0.55, Y: 0.32}
	p[pose.RightShoulder] = pose.Point{X: 0.45, Y: 0.32}
	p[pose.LeftElbow] = pose.Point{X: 0.66, Y: 0.32}
	p[pose.RightElbow] = pose.Point{X: 0.34, Y: 0.32}
	p[pose.LeftWrist] = pose.Point{X: 0.77, Y: 0.32}
	p[pose.RightWrist] = pose.Point{X: 0.23, Y: 0.32}
	p[pose.LeftHip] = pose.Point{X: 0.53, Y: 0.55}
	p[pose.RightHip] = pose.Point{X: 0.47, Y: 0.55}
	p[pose.LeftKnee] = pose.Point{X: 0.65, Y: 0.68}
	p[pose.RightKnee] = pose.Point{X: 0.38, Y: 0.72}
	p[pose.LeftAnkle] = pose.Point{X: 0.66, Y: 0.88}
	p[pose.RightAnkle] = pose.Point{X: 0.28, Y: 0.88}
	return preset(p)
}

// ChairKeypoints returns a chair pose seen from the side: knees bent, hips
// pushed back, arms raised forward.
func ChairKeypoints() pose.KeypointSet {
	var p [pose.NumKeypoints]pose.Point
	p[pose.Nose] = pose.Point{X: 0.45, Y: 0.25}
	p[pose.LeftEye] = pose.Point{X: 0.46, Y: 0.24}
	p[pose.RightEye] = pose.Point{X: 0.44, Y: 0.24}
	p[pose.LeftEar] = pose.Point{X: 0.47, Y: 0.25}
	p[pose.RightEar] = pose.Point{X: 0.46, Y: 0.25}
	p[pose.LeftShoulder] = pose.Point{X: 0.50, Y: 0.35}
	p[pose.RightShoulder] = pose.Point{X: 0.48, Y: 0.35}
	p[pose.LeftElbow] = pose.Point{X: 0.44, Y: 0.25}
	p[pose.RightElbow] = pose.Point{X: 0.42, Y: 0.25}
	p[pose.LeftWrist] = pose.Point{X: 0.38, Y: 0.15}
	p[pose.RightWrist] = pose.Point{X: 0.36, Y: 0.15}
	p[pose.LeftHip] = pose.Point{X: 0.58, Y: 0.58}
	p[pose.RightHip] = pose.Point{X: 0.56, Y: 0.58}
	p[pose.LeftKnee] = pose.Point{X: 0.45, Y: 0.68}
	p[pose.RightKnee] = pose.Point{X: 0.43, Y: 0.68}
	p[pose.LeftAnkle] = pose.Point{X: 0.52, Y: 0.88}
	p[pose.RightAnkle] = pose.Point{X: 0.50, Y: 0.88}
	return preset(p)
}

// Presets returns the mock fixtures keyed by the pose they depict.
func Presets() map[pose.Label]pose.KeypointSet {
	return map[pose.Label]pose.KeypointSet{
		pose.Tree:    TreeKeypoints(),
		pose.Warrior: WarriorKeypoints(),
		pose.Chair:   ChairKeypoints(),
	}
}
