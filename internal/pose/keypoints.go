// Package pose provides the body keypoint model, the pose embedding and the
// label enumeration shared by every component that classifies yoga poses.
package pose

import (
	"fmt"
	"math"
)

// Body keypoint indices following the MoveNet convention.
// See: https://www.tensorflow.org/hub/tutorials/movenet
const (
	Nose          = 0
	LeftEye       = 1
	RightEye      = 2
	LeftEar       = 3
	RightEar      = 4
	LeftShoulder  = 5
	RightShoulder = 6
	LeftElbow     = 7
	RightElbow    = 8
	LeftWrist     = 9
	RightWrist    = 10
	LeftHip       = 11
	RightHip      = 12
	LeftKnee      = 13
	RightKnee     = 14
	LeftAnkle     = 15
	RightAnkle    = 16
	NumKeypoints  = 17
)

// Detection gating constants.
const (
	// ScoreCutoff is the score at or below which a keypoint counts as not detected.
	ScoreCutoff = 0.2
	// MaxMissingKeypoints is the number of undetected keypoints a frame may
	// carry before it is considered unusable for classification.
	MaxMissingKeypoints = 4
)

// KeypointNames lists the landmark names in index order.
var KeypointNames = [NumKeypoints]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

var keypointIndex = func() map[string]int {
	m := make(map[string]int, NumKeypoints)
	for i, name := range KeypointNames {
		m[name] = i
	}
	return m
}()

// KeypointIndex returns the landmark index for name.
func KeypointIndex(name string) (int, bool) {
	i, ok := keypointIndex[name]
	return i, ok
}

// Connections lists the skeleton segments drawn between landmarks.
var Connections = [][2]int{
	{Nose, LeftEye}, {Nose, RightEye}, {LeftEye, LeftEar}, {RightEye, RightEar},
	{LeftShoulder, RightShoulder}, {LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip}, {LeftHip, RightHip},
	{LeftHip, LeftKnee}, {LeftKnee, LeftAnkle}, {RightHip, RightKnee}, {RightKnee, RightAnkle},
}

// Point is a 2D position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint is a named landmark with its detection confidence.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// KeypointSet is the keypoints detected in a single frame.
// A well-formed set carries every landmark name exactly once.
type KeypointSet []Keypoint

// NewKeypointSet builds a set in index order from positions and scores.
func NewKeypointSet(points [NumKeypoints]Point, scores [NumKeypoints]float64) KeypointSet {
	set := make(KeypointSet, NumKeypoints)
	for i := range set {
		set[i] = Keypoint{
			Name:  KeypointNames[i],
			X:     points[i].X,
			Y:     points[i].Y,
			Score: scores[i],
		}
	}
	return set
}

// Lookup returns the keypoint with the given name.
func (s KeypointSet) Lookup(name string) (Keypoint, bool) {
	for _, kp := range s {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}

// Points returns the positions of the set in index order.
// It fails with ErrMalformedInput if a landmark is missing, duplicated or unknown.
func (s KeypointSet) Points() ([NumKeypoints]Point, error) {
	var points [NumKeypoints]Point
	var seen [NumKeypoints]bool

	for _, kp := range s {
		i, ok := keypointIndex[kp.Name]
		if !ok {
			return points, fmt.Errorf("%w: unknown keypoint %q", ErrMalformedInput, kp.Name)
		}
		if seen[i] {
			return points, fmt.Errorf("%w: duplicate keypoint %q", ErrMalformedInput, kp.Name)
		}
		if math.IsNaN(kp.X) || math.IsNaN(kp.Y) || math.IsInf(kp.X, 0) || math.IsInf(kp.Y, 0) {
			return points, fmt.Errorf("%w: keypoint %q is not finite", ErrMalformedInput, kp.Name)
		}
		seen[i] = true
		points[i] = Point{X: kp.X, Y: kp.Y}
	}

	for i, ok := range seen {
		if !ok {
			return points, fmt.Errorf("%w: missing keypoint %q", ErrMalformedInput, KeypointNames[i])
		}
	}

	return points, nil
}

// MissingCount returns how many keypoints score at or below ScoreCutoff.
func (s KeypointSet) MissingCount() int {
	n := 0
	for _, kp := range s {
		if kp.Score <= ScoreCutoff {
			n++
		}
	}
	return n
}

// Usable reports whether enough keypoints were detected to classify the frame.
func (s KeypointSet) Usable() bool {
	return len(s) > 0 && s.MissingCount() <= MaxMissingKeypoints
}

// Scale returns a copy of the set with every coordinate multiplied by factor.
func (s KeypointSet) Scale(factor float64) KeypointSet {
	out := make(KeypointSet, len(s))
	for i, kp := range s {
		kp.X *= factor
		kp.Y *= factor
		out[i] = kp
	}
	return out
}

// Translate returns a copy of the set with every coordinate shifted by (dx, dy).
func (s KeypointSet) Translate(dx, dy float64) KeypointSet {
	out := make(KeypointSet, len(s))
	for i, kp := range s {
		kp.X += dx
		kp.Y += dy
		out[i] = kp
	}
	return out
}
