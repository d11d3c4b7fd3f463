package app

import (
	"time"

	"github.com/ayusman/asana/internal/hold"
	"github.com/ayusman/asana/internal/pose"
)

// DetectionStatus summarizes what the pipeline made of a frame.
type DetectionStatus string

const (
	StatusDetected        DetectionStatus = "detected"
	StatusNoPerson        DetectionStatus = "no_person"
	StatusPartial         DetectionStatus = "partial"
	StatusMalformed       DetectionStatus = "malformed"
	StatusSourceError     DetectionStatus = "source_unavailable"
	StatusClassifierError DetectionStatus = "classifier_unavailable"
)

// Message returns the text shown to the user for the status.
func (s DetectionStatus) Message() string {
	switch s {
	case StatusDetected:
		return "Pose detected"
	case StatusNoPerson:
		return "No pose detected"
	case StatusPartial:
		return "Step back so your whole body is visible"
	case StatusSourceError:
		return "Camera or pose service unavailable"
	case StatusClassifierError:
		return "Pose classifier unavailable"
	default:
		return "Waiting for a clear frame"
	}
}

// FrameReport is published for every frame applied to the hold state.
type FrameReport struct {
	Seq                uint64              `json:"seq"`
	Pose               pose.Label          `json:"pose"`
	Detected           pose.Label          `json:"detected,omitempty"`
	DetectionStatus    DetectionStatus     `json:"detection_status"`
	Message            string              `json:"message"`
	SkeletonColor      hold.Color          `json:"skeleton_color"`
	Confidence         float64             `json:"confidence"`
	Holding            bool                `json:"holding"`
	CurrentHoldSeconds float64             `json:"current_hold_seconds"`
	BestHoldSeconds    float64             `json:"best_hold_seconds"`
	Keypoints          pose.KeypointSet    `json:"keypoints,omitempty"`
	Scores             pose.Classification `json:"scores,omitempty"`
	Timestamp          time.Time           `json:"timestamp"`
}

// Reporter receives frame reports. Report is called from the frame loop and
// must not block.
type Reporter interface {
	Report(r FrameReport)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(r FrameReport)

// Report calls f(r).
func (f ReporterFunc) Report(r FrameReport) {
	f(r)
}
