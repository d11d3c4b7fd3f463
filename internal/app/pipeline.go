package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/asana/internal/capture"
	"github.com/ayusman/asana/internal/detector"
	"github.com/ayusman/asana/internal/hold"
	"github.com/ayusman/asana/internal/plugin"
	"github.com/ayusman/asana/internal/pose"
)

const jpegQuality = 80

// frameJob identifies a dispatched frame.
type frameJob struct {
	seq        uint64
	generation uint64
	target     pose.Label
}

// frameResult is the outcome of processing one frame.
type frameResult struct {
	status    DetectionStatus
	keypoints pose.KeypointSet
	scores    pose.Classification
	err       error
	canceled  bool
}

// run is the frame loop of a session. At most one frame is in flight; ticks
// arriving while a frame is still being processed are skipped.
func (a *App) run(ctx context.Context, sess *session) {
	defer close(sess.done)

	ticker := time.NewTicker(a.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx, sess)
		}
	}
}

func (a *App) tick(ctx context.Context, sess *session) {
	if !sess.busy.CompareAndSwap(false, true) {
		a.mu.Lock()
		a.skipped++
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	if ctx.Err() != nil || a.sess != sess {
		a.mu.Unlock()
		sess.busy.Store(false)
		return
	}
	a.seq++
	job := frameJob{seq: a.seq, generation: a.generation, target: a.target}
	frameCtx, cancel := context.WithCancel(ctx)
	a.cancelFrame = cancel
	a.mu.Unlock()

	sess.frames.Add(1)
	go func() {
		defer sess.frames.Done()
		defer sess.busy.Store(false)
		defer cancel()

		a.apply(job, a.evaluate(frameCtx, job))
	}()
}

// evaluate reads a frame and runs detection and classification on it.
func (a *App) evaluate(ctx context.Context, job frameJob) frameResult {
	frame, err := a.config.Camera.ReadFrame()
	if err != nil {
		return frameResult{
			status: StatusSourceError,
			err:    fmt.Errorf("%w: %v", detector.ErrSourceUnavailable, err),
		}
	}
	defer frame.Close()

	if buf, err := capture.EncodeJPEG(frame, jpegQuality); err == nil {
		a.setJPEG(buf, job.seq)
	}

	set, err := a.config.Detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return frameResult{canceled: true}
		}
		if errors.Is(err, pose.ErrMalformedInput) {
			return frameResult{status: StatusMalformed, err: err}
		}
		if !errors.Is(err, detector.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", detector.ErrSourceUnavailable, err)
		}
		return frameResult{status: StatusSourceError, err: err}
	}

	if len(set) == 0 {
		return frameResult{status: StatusNoPerson}
	}
	if !set.Usable() {
		return frameResult{status: StatusPartial, keypoints: set}
	}

	embedding, err := pose.Normalize(set)
	if err != nil {
		return frameResult{status: StatusMalformed, keypoints: set, err: err}
	}

	scores, err := a.config.Classifier.Classify(ctx, embedding)
	if err == nil {
		err = scores.Validate()
	}
	if err != nil {
		if ctx.Err() != nil {
			return frameResult{canceled: true}
		}
		if !errors.Is(err, pose.ErrClassifierUnavailable) {
			err = fmt.Errorf("%w: %v", pose.ErrClassifierUnavailable, err)
		}
		return frameResult{status: StatusClassifierError, keypoints: set, err: err}
	}

	return frameResult{status: StatusDetected, keypoints: set, scores: scores}
}

// apply folds a frame result into the hold state and publishes the report.
// Results of frames dispatched before the latest target change are dropped.
func (a *App) apply(job frameJob, res frameResult) {
	if res.canceled {
		return
	}

	a.mu.Lock()
	if a.sess == nil || job.generation != a.generation || job.seq != a.seq {
		a.mu.Unlock()
		a.logger.Debug("dropping stale frame", "seq", job.seq)
		return
	}

	now := a.now()
	prev := a.state
	event := hold.EventNone
	var confidence float64
	var detected pose.Label

	switch res.status {
	case StatusDetected:
		confidence = res.scores.Probability(job.target)
		detected, _ = res.scores.Best()
		a.state, event = a.state.Update(confidence, now)
	case StatusMalformed:
		// Hold state is left untouched.
	default:
		a.state, event = a.state.Miss(now)
	}
	a.frames++

	state := a.state
	report := FrameReport{
		Seq:                job.seq,
		Pose:               job.target,
		Detected:           detected,
		DetectionStatus:    res.status,
		Message:            res.status.Message(),
		SkeletonColor:      state.Color(),
		Confidence:         confidence,
		Holding:            state.Holding,
		CurrentHoldSeconds: state.CurrentHoldSeconds,
		BestHoldSeconds:    state.BestHoldSeconds,
		Keypoints:          res.keypoints,
		Scores:             res.scores,
		Timestamp:          now,
	}
	a.last = &report
	a.mu.Unlock()

	a.logResult(job, res)

	switch {
	case event == hold.EventHoldStarted:
		a.logger.Debug("hold started", "pose", job.target, "confidence", confidence)
		a.dispatch(plugin.Request{
			Event:       plugin.EventHoldStarted,
			Pose:        string(job.target),
			BestSeconds: state.BestHoldSeconds,
			Timestamp:   now,
		})
	case event == hold.EventHoldStopped && prev.Holding:
		a.logger.Debug("hold stopped", "pose", job.target, "hold_seconds", state.CurrentHoldSeconds)
		a.dispatch(plugin.Request{
			Event:       plugin.EventHoldStopped,
			Pose:        string(job.target),
			HoldSeconds: state.CurrentHoldSeconds,
			BestSeconds: state.BestHoldSeconds,
			Timestamp:   now,
		})
	}

	a.publish(report)
}

func (a *App) logResult(job frameJob, res frameResult) {
	if res.err == nil {
		return
	}
	switch res.status {
	case StatusSourceError:
		a.logger.Debug("keypoint source unavailable", "seq", job.seq, "error", res.err)
	default:
		a.logger.Warn("frame not classified", "seq", job.seq, "status", res.status, "error", res.err)
	}
}

func (a *App) publish(r FrameReport) {
	a.reportersMu.RLock()
	defer a.reportersMu.RUnlock()
	for _, rep := range a.reporters {
		rep.Report(r)
	}
}
