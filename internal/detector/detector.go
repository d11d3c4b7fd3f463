// Package detector extracts body keypoints from camera frames.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/asana/internal/config"
	"github.com/ayusman/asana/internal/pose"
)

// ErrSourceUnavailable is returned when the keypoint source cannot be reached
// or fails to produce a result.
var ErrSourceUnavailable = errors.New("keypoint source unavailable")

// Detector defines the interface for keypoint source implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected keypoints.
	// It returns nil and no error when no person is in frame.
	Detect(ctx context.Context, frame *gocv.Mat) (pose.KeypointSet, error)

	// Close releases any resources held by the detector.
	Close() error
}

// New returns the detector selected by cfg.Detector.Source.
func New(cfg *config.Config, logger *slog.Logger) (Detector, error) {
	timeout := time.Duration(cfg.Detector.TimeoutMs) * time.Millisecond

	switch cfg.Detector.Source {
	case config.SourceRemote:
		return NewRemoteDetector(RemoteOptions{
			BaseURL: cfg.Detector.RemoteURL,
			Timeout: timeout,
		}), nil
	case config.SourceLocal:
		return NewMoveNetDetector(MoveNetOptions{
			ScriptPath:   cfg.Detector.ScriptPath,
			Python:       cfg.Detector.Python,
			IdleShutdown: time.Duration(cfg.Detector.IdleShutdownMs) * time.Millisecond,
			Logger:       logger,
		})
	case config.SourceMock:
		mock := NewMockDetector()
		mock.SetKeypoints(TreeKeypoints())
		return mock, nil
	default:
		return nil, fmt.Errorf("unknown detector source %q", cfg.Detector.Source)
	}
}

// wireKeypoint is the keypoint format shared by the inference server and
// the MoveNet script.
type wireKeypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

type wireResponse struct {
	Keypoints []wireKeypoint `json:"keypoints"`
	AvgScore  float64        `json:"avg_score"`
	Error     string         `json:"error"`
}

// keypointSet converts a decoded response for a frame of the given size.
// Sources report coordinates as fractions of the frame; the returned set is
// in pixels. An empty keypoint list means no person was found.
func (r wireResponse) keypointSet(width, height int) (pose.KeypointSet, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, r.Error)
	}
	if len(r.Keypoints) == 0 {
		return nil, nil
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d", pose.ErrMalformedInput, width, height)
	}
	w, h := float64(width), float64(height)
	set := make(pose.KeypointSet, len(r.Keypoints))
	for i, kp := range r.Keypoints {
		set[i] = pose.Keypoint{Name: kp.Name, X: kp.X * w, Y: kp.Y * h, Score: kp.Score}
	}
	return set, nil
}
