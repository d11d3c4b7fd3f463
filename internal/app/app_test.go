package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/asana/internal/detector"
	"github.com/ayusman/asana/internal/hold"
	"github.com/ayusman/asana/internal/plugin"
	"github.com/ayusman/asana/internal/pose"
)

const waitFor = 3 * time.Second

func TestApp_HoldsTargetPose(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetKeypoints(detector.TreeKeypoints())
	ta := newTestApp(t, det, newSwitchClassifier(pose.Tree, 0.99))

	require.NoError(t, ta.Start(context.Background(), pose.Tree))
	assert.True(t, ta.camera.IsOpen())

	require.Eventually(t, func() bool {
		return ta.Status().Hold.BestHoldSeconds > 0
	}, waitFor, testTick)

	last, ok := ta.reports.last()
	require.True(t, ok)
	assert.Equal(t, pose.Tree, last.Pose)
	assert.Equal(t, pose.Tree, last.Detected)
	assert.Equal(t, StatusDetected, last.DetectionStatus)
	assert.Equal(t, hold.ColorCorrect, last.SkeletonColor)
	assert.True(t, last.Holding)
	assert.InDelta(t, 0.99, last.Confidence, 1e-9)
	assert.Len(t, last.Keypoints, pose.NumKeypoints)

	buf, seq := ta.LatestJPEG()
	assert.NotEmpty(t, buf)
	assert.NotZero(t, seq)

	session, err := ta.Stop()
	require.NoError(t, err)
	assert.False(t, ta.camera.IsOpen())
	assert.Equal(t, pose.Tree, session.Pose)
	assert.Greater(t, session.BestHoldSeconds, 0.0)
	assert.False(t, session.EndedAt.Before(session.StartedAt))

	recorded := ta.recorder.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, session.BestHoldSeconds, recorded[0].BestHoldSeconds)

	assert.False(t, ta.Status().Running)
}

func TestApp_LifecycleErrors(t *testing.T) {
	det := detector.NewMockDetector()
	ta := newTestApp(t, det, newSwitchClassifier(pose.Tree, 0.5))

	_, err := ta.Stop()
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, ta.SetTarget(pose.Chair), ErrNotRunning)

	assert.ErrorIs(t, ta.Start(context.Background(), pose.NoPose), pose.ErrUnknownLabel)
	assert.ErrorIs(t, ta.Start(context.Background(), "Lotus"), pose.ErrUnknownLabel)

	require.NoError(t, ta.Start(context.Background(), pose.Chair))
	assert.ErrorIs(t, ta.Start(context.Background(), pose.Chair), ErrAlreadyRunning)
	assert.ErrorIs(t, ta.SetTarget(pose.NoPose), pose.ErrUnknownLabel)

	_, err = ta.Stop()
	require.NoError(t, err)

	// A stopped app can start a new session.
	require.NoError(t, ta.Start(context.Background(), pose.Dog))
	assert.Equal(t, pose.Dog, ta.Status().Pose)
}

func TestApp_SingleFlight(t *testing.T) {
	det := &concurrencyDetector{delay: 8 * testTick}
	ta := newTestApp(t, det, newSwitchClassifier(pose.Tree, 0.99))

	require.NoError(t, ta.Start(context.Background(), pose.Tree))

	require.Eventually(t, func() bool {
		return det.calls.Load() >= 3
	}, waitFor, testTick)

	_, err := ta.Stop()
	require.NoError(t, err)

	assert.EqualValues(t, 1, det.max.Load(), "frames must never overlap")
	assert.Greater(t, ta.Status().Skipped, uint64(0), "ticks during a slow frame are skipped")
}

func TestApp_SetTargetDropsInFlightResult(t *testing.T) {
	det := newGatedDetector()
	ta := newTestApp(t, det, newSwitchClassifier(pose.Tree, 0.99))

	require.NoError(t, ta.Start(context.Background(), pose.Tree))

	select {
	case <-det.entered:
	case <-time.After(waitFor):
		t.Fatal("detector was never called")
	}

	require.NoError(t, ta.SetTarget(pose.Warrior))
	close(det.release)

	require.Eventually(t, func() bool {
		return len(ta.reports.snapshot()) >= 3
	}, waitFor, testTick)

	for _, r := range ta.reports.snapshot() {
		assert.Equal(t, pose.Warrior, r.Pose, "report of seq %d belongs to the old target", r.Seq)
		assert.False(t, r.Holding)
	}

	// The time spent on Tree is recorded when the target changes.
	recorded := ta.recorder.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, pose.Tree, recorded[0].Pose)
	assert.Zero(t, recorded[0].BestHoldSeconds)
}

func TestApp_SetTargetResetsHold(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetKeypoints(detector.TreeKeypoints())
	cls := newSwitchClassifier(pose.Tree, 0.99)
	ta := newTestApp(t, det, cls)

	require.NoError(t, ta.Start(context.Background(), pose.Tree))
	require.Eventually(t, func() bool {
		return ta.Status().Hold.Holding
	}, waitFor, testTick)

	require.NoError(t, ta.SetTarget(pose.Tree), "same target is a no-op")
	assert.Empty(t, ta.recorder.recorded())

	require.NoError(t, ta.SetTarget(pose.Chair))
	st := ta.Status()
	assert.Equal(t, pose.Chair, st.Pose)
	assert.False(t, st.Hold.Holding)
	assert.Zero(t, st.Hold.BestHoldSeconds)
	assert.Nil(t, st.Last)
}

func TestApp_FrameGating(t *testing.T) {
	partial := detector.TreeKeypoints()
	for i := 0; i <= pose.MaxMissingKeypoints; i++ {
		partial[i].Score = pose.ScoreCutoff
	}

	tests := []struct {
		name      string
		configure func(*detector.MockDetector)
		status    DetectionStatus
	}{
		{
			name:      "no person in frame",
			configure: func(d *detector.MockDetector) { d.SetKeypoints(nil) },
			status:    StatusNoPerson,
		},
		{
			name:      "too many undetected keypoints",
			configure: func(d *detector.MockDetector) { d.SetKeypoints(partial) },
			status:    StatusPartial,
		},
		{
			name: "source unavailable",
			configure: func(d *detector.MockDetector) {
				d.SetError(errors.New("connection refused"))
			},
			status: StatusSourceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := detector.NewMockDetector()
			tt.configure(det)
			cls := newSwitchClassifier(pose.Tree, 0.99)
			ta := newTestApp(t, det, cls)

			require.NoError(t, ta.Start(context.Background(), pose.Tree))
			require.Eventually(t, func() bool {
				return len(ta.reports.snapshot()) >= 2
			}, waitFor, testTick)
			_, err := ta.Stop()
			require.NoError(t, err)

			for _, r := range ta.reports.snapshot() {
				assert.Equal(t, tt.status, r.DetectionStatus)
				assert.False(t, r.Holding)
				assert.Equal(t, hold.ColorNeutral, r.SkeletonColor)
			}
			assert.Zero(t, cls.calls.Load(), "classifier must not run")
		})
	}
}

func TestApp_ClassifierFailureIsAMiss(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetKeypoints(detector.TreeKeypoints())

	var fail atomic.Bool
	cls := pose.ClassifierFunc(func(ctx context.Context, e pose.Embedding) (pose.Classification, error) {
		if fail.Load() {
			return nil, errors.New("model not loaded")
		}
		return oneHot(pose.Tree, 0.99), nil
	})
	ta := newTestApp(t, det, cls)

	require.NoError(t, ta.Start(context.Background(), pose.Tree))
	require.Eventually(t, func() bool {
		return ta.Status().Hold.BestHoldSeconds > 0
	}, waitFor, testTick)

	fail.Store(true)
	require.Eventually(t, func() bool {
		last, ok := ta.reports.last()
		return ok && last.DetectionStatus == StatusClassifierError
	}, waitFor, testTick)

	st := ta.Status()
	assert.False(t, st.Hold.Holding)
	assert.Greater(t, st.Hold.BestHoldSeconds, 0.0, "best hold survives the miss")
}

func TestApp_DispatchesHoldEvents(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetKeypoints(detector.TreeKeypoints())
	cls := newSwitchClassifier(pose.Warrior, 0.99)
	ta := newTestApp(t, det, cls)
	ta.recorder.best[pose.Warrior] = 120

	require.NoError(t, ta.Start(context.Background(), pose.Warrior))
	require.Eventually(t, func() bool {
		return ta.Status().Hold.BestHoldSeconds > 0
	}, waitFor, testTick)

	cls.Set(hold.Threshold)
	require.Eventually(t, func() bool {
		_, ok := ta.dispatcher.find(plugin.EventHoldStopped)
		return ok
	}, waitFor, testTick)

	_, err := ta.Stop()
	require.NoError(t, err)

	events := ta.dispatcher.events()
	require.NotEmpty(t, events)
	assert.Equal(t, plugin.EventHoldStarted, events[0])
	assert.Equal(t, plugin.EventSessionStopped, events[len(events)-1])

	started := 0
	stopped := 0
	for _, e := range events {
		switch e {
		case plugin.EventHoldStarted:
			started++
		case plugin.EventHoldStopped:
			stopped++
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped, "hold_stopped fires once per hold, not per low frame")

	hs, _ := ta.dispatcher.find(plugin.EventHoldStopped)
	assert.Equal(t, string(pose.Warrior), hs.Pose)
	assert.Greater(t, hs.HoldSeconds, 0.0)

	ss, _ := ta.dispatcher.find(plugin.EventSessionStopped)
	assert.InDelta(t, 120, ss.BestSeconds, 1e-9, "personal best comes from the recorded history")
	assert.Less(t, ss.HoldSeconds, ss.BestSeconds)
}

func TestApp_StopsWhenContextDone(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetKeypoints(detector.TreeKeypoints())
	ta := newTestApp(t, det, newSwitchClassifier(pose.Tree, 0.5))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ta.Start(ctx, pose.Tree))
	require.Eventually(t, func() bool {
		return det.Calls() > 0
	}, waitFor, testTick)

	cancel()
	time.Sleep(5 * testTick)
	calls := det.Calls()
	time.Sleep(5 * testTick)
	assert.Equal(t, calls, det.Calls(), "no frames after the context is done")

	// The session still needs an explicit Stop to be recorded.
	_, err := ta.Stop()
	require.NoError(t, err)
	assert.Len(t, ta.recorder.recorded(), 1)
}

func TestDetectionStatus_Message(t *testing.T) {
	for _, s := range []DetectionStatus{
		StatusDetected, StatusNoPerson, StatusPartial,
		StatusMalformed, StatusSourceError, StatusClassifierError,
	} {
		assert.NotEmpty(t, s.Message(), string(s))
	}
}
