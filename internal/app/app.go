// Package app runs a practice session: it pulls camera frames on a fixed tick,
// turns them into pose classifications and drives the hold timer.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/asana/internal/capture"
	"github.com/ayusman/asana/internal/detector"
	"github.com/ayusman/asana/internal/hold"
	"github.com/ayusman/asana/internal/logging"
	"github.com/ayusman/asana/internal/plugin"
	"github.com/ayusman/asana/internal/pose"
	"github.com/ayusman/asana/internal/store"
)

// DefaultTickInterval is used when Config.TickInterval is not set.
const DefaultTickInterval = 400 * time.Millisecond

var (
	// ErrNotRunning is returned when an operation needs an active session.
	ErrNotRunning = errors.New("no session running")
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("session already running")
)

// StatsRecorder persists finished sessions. *store.SessionRepository satisfies it.
type StatsRecorder interface {
	Create(s *store.Session) error
	Stats(now time.Time) (*store.Stats, error)
}

// EventDispatcher delivers hold events to cue plugins. *plugin.Dispatcher satisfies it.
type EventDispatcher interface {
	Dispatch(req plugin.Request)
}

// Config holds the collaborators of an App.
type Config struct {
	Camera       capture.Camera
	Detector     detector.Detector
	Classifier   pose.Classifier
	Recorder     StatsRecorder
	Dispatcher   EventDispatcher
	TickInterval time.Duration
	Logger       *slog.Logger
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Status is a snapshot of the session state.
type Status struct {
	Running   bool         `json:"running"`
	Pose      pose.Label   `json:"pose,omitempty"`
	StartedAt time.Time    `json:"started_at,omitzero"`
	Hold      hold.State   `json:"hold"`
	Frames    uint64       `json:"frames"`
	Skipped   uint64       `json:"skipped"`
	Last      *FrameReport `json:"last,omitempty"`
}

// session is the lifetime of one Start..Stop cycle.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
	frames sync.WaitGroup
	// busy is set while a frame is being processed.
	busy atomic.Bool
}

// App orchestrates the frame loop of a practice session.
type App struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	sess        *session
	target      pose.Label
	startedAt   time.Time
	state       hold.State
	seq         uint64
	generation  uint64
	cancelFrame context.CancelFunc
	last        *FrameReport
	frames      uint64
	skipped     uint64

	reportersMu sync.RWMutex
	reporters   []Reporter

	jpegMu  sync.RWMutex
	jpeg    []byte
	jpegSeq uint64
}

// New creates an App with the given configuration.
func New(config Config) *App {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		config: config,
		logger: logging.OrDefault(config.Logger).With("component", "session"),
		now:    now,
		state:  hold.New(),
	}
}

// AddReporter registers r to receive every frame report.
func (a *App) AddReporter(r Reporter) {
	a.reportersMu.Lock()
	defer a.reportersMu.Unlock()
	a.reporters = append(a.reporters, r)
}

// Start opens the camera and begins a session holding target. The session
// runs until Stop is called or ctx is done.
func (a *App) Start(ctx context.Context, target pose.Label) error {
	if err := checkTarget(target); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess != nil {
		return ErrAlreadyRunning
	}
	if a.config.Camera == nil || a.config.Detector == nil || a.config.Classifier == nil {
		return errors.New("app is missing camera, detector or classifier")
	}
	if err := a.config.Camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sess := &session{cancel: cancel, done: make(chan struct{})}

	a.sess = sess
	a.target = target
	a.startedAt = a.now()
	a.state = hold.New()
	a.generation++
	a.last = nil
	a.frames, a.skipped = 0, 0

	go a.run(loopCtx, sess)

	a.logger.Info("session started", "pose", target, "tick", a.config.TickInterval)
	return nil
}

// SetTarget switches the target pose of the running session. The hold state
// is reset and any frame still in flight is discarded. The time spent on the
// previous target is recorded as its own session.
func (a *App) SetTarget(target pose.Label) error {
	if err := checkTarget(target); err != nil {
		return err
	}

	a.mu.Lock()
	if a.sess == nil {
		a.mu.Unlock()
		return ErrNotRunning
	}
	if target == a.target {
		a.mu.Unlock()
		return nil
	}

	a.invalidateLocked()
	finished := a.finishLocked()
	a.target = target
	a.startedAt = a.now()
	a.state = hold.New()
	a.last = nil
	a.mu.Unlock()

	a.logger.Info("target changed", "from", finished.Pose, "to", target)
	a.record(finished)
	return nil
}

// Stop ends the session, waits for the frame loop to exit, releases the
// camera and records the session. It returns the recorded session.
func (a *App) Stop() (*store.Session, error) {
	a.mu.Lock()
	sess := a.sess
	if sess == nil {
		a.mu.Unlock()
		return nil, ErrNotRunning
	}
	a.invalidateLocked()
	sess.cancel()
	a.mu.Unlock()

	<-sess.done
	sess.frames.Wait()

	if err := a.config.Camera.Close(); err != nil {
		a.logger.Warn("failed to close camera", "error", err)
	}

	a.mu.Lock()
	finished := a.finishLocked()
	a.sess = nil
	a.mu.Unlock()

	a.logger.Info("session stopped",
		"pose", finished.Pose,
		"best_hold_seconds", finished.BestHoldSeconds,
		"duration", finished.Duration(),
	)
	a.record(finished)
	return finished, nil
}

// Status returns a snapshot of the current session.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{
		Running: a.sess != nil,
		Hold:    a.state,
		Frames:  a.frames,
		Skipped: a.skipped,
	}
	if a.sess != nil {
		st.Pose = a.target
		st.StartedAt = a.startedAt
	}
	if a.last != nil {
		last := *a.last
		st.Last = &last
	}
	return st
}

// Running reports whether a session is active.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess != nil
}

// LatestJPEG returns the most recent camera frame as JPEG and its sequence number.
func (a *App) LatestJPEG() ([]byte, uint64) {
	a.jpegMu.RLock()
	defer a.jpegMu.RUnlock()
	return a.jpeg, a.jpegSeq
}

func (a *App) setJPEG(buf []byte, seq uint64) {
	a.jpegMu.Lock()
	defer a.jpegMu.Unlock()
	a.jpeg, a.jpegSeq = buf, seq
}

// invalidateLocked drops results of frames dispatched so far.
func (a *App) invalidateLocked() {
	a.generation++
	if a.cancelFrame != nil {
		a.cancelFrame()
		a.cancelFrame = nil
	}
}

// finishLocked builds the session record for the current target.
func (a *App) finishLocked() *store.Session {
	return &store.Session{
		Pose:            a.target,
		StartedAt:       a.startedAt,
		EndedAt:         a.now(),
		BestHoldSeconds: a.state.BestHoldSeconds,
	}
}

// record persists a finished session and notifies plugins.
func (a *App) record(s *store.Session) {
	personalBest := s.BestHoldSeconds

	if rec := a.config.Recorder; rec != nil {
		if stats, err := rec.Stats(s.EndedAt); err != nil {
			a.logger.Warn("failed to read stats", "error", err)
		} else if prev := stats.BestScores[s.Pose]; prev > personalBest {
			personalBest = prev
		}
		if err := rec.Create(s); err != nil {
			a.logger.Error("failed to record session", "pose", s.Pose, "error", err)
		}
	}

	a.dispatch(plugin.Request{
		Event:       plugin.EventSessionStopped,
		Pose:        string(s.Pose),
		HoldSeconds: s.BestHoldSeconds,
		BestSeconds: personalBest,
		Timestamp:   s.EndedAt,
	})
}

func (a *App) dispatch(req plugin.Request) {
	if a.config.Dispatcher != nil {
		a.config.Dispatcher.Dispatch(req)
	}
}

func checkTarget(target pose.Label) error {
	if !target.Valid() || target == pose.NoPose {
		return fmt.Errorf("%w: %q is not a selectable pose", pose.ErrUnknownLabel, target)
	}
	return nil
}
