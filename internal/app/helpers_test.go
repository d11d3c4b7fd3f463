package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/asana/internal/capture"
	"github.com/ayusman/asana/internal/detector"
	"github.com/ayusman/asana/internal/logging"
	"github.com/ayusman/asana/internal/plugin"
	"github.com/ayusman/asana/internal/pose"
	"github.com/ayusman/asana/internal/store"
)

const testTick = 10 * time.Millisecond

// oneHot spreads the remaining probability mass evenly over the other labels.
func oneHot(label pose.Label, p float64) pose.Classification {
	c := make(pose.Classification, pose.NumLabels)
	for _, l := range pose.Labels {
		c[l] = (1 - p) / float64(pose.NumLabels-1)
	}
	c[label] = p
	return c
}

// switchClassifier answers with a probability that tests can change at any time.
type switchClassifier struct {
	label pose.Label
	p     atomic.Value
	calls atomic.Int64
}

func newSwitchClassifier(label pose.Label, p float64) *switchClassifier {
	c := &switchClassifier{label: label}
	c.p.Store(p)
	return c
}

func (c *switchClassifier) Set(p float64) { c.p.Store(p) }

func (c *switchClassifier) Classify(_ context.Context, _ pose.Embedding) (pose.Classification, error) {
	c.calls.Add(1)
	return oneHot(c.label, c.p.Load().(float64)), nil
}

type collector struct {
	mu      sync.Mutex
	reports []FrameReport
}

func (c *collector) Report(r FrameReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

func (c *collector) snapshot() []FrameReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FrameReport(nil), c.reports...)
}

func (c *collector) last() (FrameReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reports) == 0 {
		return FrameReport{}, false
	}
	return c.reports[len(c.reports)-1], true
}

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []plugin.Request
}

func (d *fakeDispatcher) Dispatch(req plugin.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
}

func (d *fakeDispatcher) events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.requests))
	for i, r := range d.requests {
		out[i] = r.Event
	}
	return out
}

func (d *fakeDispatcher) find(event string) (plugin.Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.requests {
		if r.Event == event {
			return r, true
		}
	}
	return plugin.Request{}, false
}

type fakeRecorder struct {
	mu       sync.Mutex
	sessions []*store.Session
	best     map[pose.Label]float64
}

func (r *fakeRecorder) Create(s *store.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *fakeRecorder) Stats(time.Time) (*store.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := make(map[pose.Label]float64, len(r.best))
	for k, v := range r.best {
		best[k] = v
	}
	return &store.Stats{BestScores: best}, nil
}

func (r *fakeRecorder) recorded() []*store.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*store.Session(nil), r.sessions...)
}

// concurrencyDetector records the highest number of overlapping Detect calls.
type concurrencyDetector struct {
	delay    time.Duration
	inflight atomic.Int64
	max      atomic.Int64
	calls    atomic.Int64
}

func (d *concurrencyDetector) Detect(ctx context.Context, _ *gocv.Mat) (pose.KeypointSet, error) {
	d.calls.Add(1)
	n := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		cur := d.max.Load()
		if n <= cur || d.max.CompareAndSwap(cur, n) {
			break
		}
	}
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return detector.TreeKeypoints(), nil
}

func (d *concurrencyDetector) Close() error { return nil }

// gatedDetector blocks its first call, ignoring cancellation, until release
// is closed. Later calls return immediately.
type gatedDetector struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedDetector() *gatedDetector {
	return &gatedDetector{entered: make(chan struct{}), release: make(chan struct{})}
}

func (d *gatedDetector) Detect(_ context.Context, _ *gocv.Mat) (pose.KeypointSet, error) {
	first := false
	d.once.Do(func() {
		first = true
		close(d.entered)
	})
	if first {
		<-d.release
	}
	return detector.TreeKeypoints(), nil
}

func (d *gatedDetector) Close() error { return nil }

type testApp struct {
	*App
	camera     *capture.MockCamera
	reports    *collector
	dispatcher *fakeDispatcher
	recorder   *fakeRecorder
}

func newTestApp(t *testing.T, det detector.Detector, cls pose.Classifier) *testApp {
	t.Helper()

	camera := capture.NewBlankCamera(64, 48)
	reports := &collector{}
	dispatcher := &fakeDispatcher{}
	recorder := &fakeRecorder{best: make(map[pose.Label]float64)}

	a := New(Config{
		Camera:       camera,
		Detector:     det,
		Classifier:   cls,
		Recorder:     recorder,
		Dispatcher:   dispatcher,
		TickInterval: testTick,
		Logger:       logging.Discard(),
	})
	a.AddReporter(reports)

	t.Cleanup(func() {
		if a.Running() {
			a.Stop()
		}
	})

	return &testApp{App: a, camera: camera, reports: reports, dispatcher: dispatcher, recorder: recorder}
}
