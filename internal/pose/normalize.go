package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// EmbeddingSize is the length of an embedding: x and y for every keypoint.
	EmbeddingSize = NumKeypoints * 2

	// TorsoSizeMultiplier scales the torso length into a minimum pose size.
	TorsoSizeMultiplier = 2.5
)

// Embedding is the translation and scale invariant encoding of a keypoint set,
// laid out as x0, y0, x1, y1, ... in keypoint index order.
type Embedding []float64

// center returns the midpoint of two landmarks.
func center(points *[NumKeypoints]Point, left, right int) Point {
	return Point{
		X: points[left].X*0.5 + points[right].X*0.5,
		Y: points[left].Y*0.5 + points[right].Y*0.5,
	}
}

// distance returns the Euclidean distance between two points.
func distance(a, b Point) float64 {
	return floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 2)
}

// torsoSize returns the distance between the shoulder and hip centers.
func torsoSize(points *[NumKeypoints]Point) float64 {
	hips := center(points, LeftHip, RightHip)
	shoulders := center(points, LeftShoulder, RightShoulder)
	return distance(shoulders, hips)
}

// poseSize returns max(torsoSize * TorsoSizeMultiplier, maxDistance) for points
// that are already hip centered.
func poseSize(centered *[NumKeypoints]Point, torso float64) float64 {
	var maxDist float64
	for _, p := range centered {
		maxDist = math.Max(maxDist, floats.Norm([]float64{p.X, p.Y}, 2))
	}
	return math.Max(torso*TorsoSizeMultiplier, maxDist)
}

// hipCentered translates every point so the hip center sits at the origin.
func hipCentered(points [NumKeypoints]Point) [NumKeypoints]Point {
	hips := center(&points, LeftHip, RightHip)
	for i := range points {
		points[i].X -= hips.X
		points[i].Y -= hips.Y
	}
	return points
}

// PoseSize returns the scale divisor Normalize applies to the keypoint set.
func PoseSize(set KeypointSet) (float64, error) {
	points, err := set.Points()
	if err != nil {
		return 0, err
	}
	centered := hipCentered(points)
	return poseSize(&centered, torsoSize(&points)), nil
}

// Normalize converts a keypoint set into an embedding.
//
// The pose is translated so the hip center is the origin, then divided by the
// pose size: the larger of 2.5 times the torso length and the farthest
// keypoint's distance from the hip center. Scores are not part of the
// embedding and do not gate normalization.
func Normalize(set KeypointSet) (Embedding, error) {
	points, err := set.Points()
	if err != nil {
		return nil, err
	}

	torso := torsoSize(&points)
	centered := hipCentered(points)
	size := poseSize(&centered, torso)
	if size == 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("%w: degenerate pose size %v", ErrMalformedInput, size)
	}

	embedding := make(Embedding, EmbeddingSize)
	for i, p := range centered {
		embedding[2*i] = p.X / size
		embedding[2*i+1] = p.Y / size
	}

	return embedding, nil
}

// Validate checks the embedding length and that every value is finite.
func (e Embedding) Validate() error {
	if len(e) != EmbeddingSize {
		return fmt.Errorf("%w: embedding has %d values, expected %d", ErrMalformedInput, len(e), EmbeddingSize)
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: embedding value %d is not finite", ErrMalformedInput, i)
		}
	}
	return nil
}
