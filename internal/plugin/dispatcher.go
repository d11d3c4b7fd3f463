package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/asana/internal/logging"
)

// DefaultCloseGrace is how long Close lets running plugins finish before
// cancelling them.
const DefaultCloseGrace = 2 * time.Second

// Dispatcher delivers hold events to subscribed plugins in the background.
// Dispatch never blocks the caller on plugin execution.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	logger   *slog.Logger
	grace    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// mu orders wg.Add against Close.
	mu     sync.Mutex
	closed bool
	// sem bounds the number of plugin processes running at once.
	sem chan struct{}
}

// NewDispatcher creates a dispatcher running at most maxConcurrent plugins at once.
func NewDispatcher(manager *Manager, executor *Executor, maxConcurrent int, logger *slog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		logger:   logging.OrDefault(logger).With("component", "plugins"),
		grace:    DefaultCloseGrace,
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// Dispatch starts every plugin subscribed to req.Event. Events arriving while
// all slots are busy are dropped and logged.
func (d *Dispatcher) Dispatch(req Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	for _, p := range d.manager.Subscribers(req.Event) {
		select {
		case d.sem <- struct{}{}:
		default:
			d.logger.Warn("plugin busy, dropping event", "plugin", p.Manifest.Name, "event", req.Event)
			continue
		}

		d.wg.Add(1)
		go func(p *Plugin, req Request) {
			defer d.wg.Done()
			defer func() { <-d.sem }()
			d.run(p, &req)
		}(p, req)
	}
}

func (d *Dispatcher) run(p *Plugin, req *Request) {
	resp, err := d.executor.Execute(d.ctx, p, req)
	if err != nil {
		d.logger.Warn("plugin failed", "plugin", p.Manifest.Name, "event", req.Event, "error", err)
		return
	}
	if !resp.Success {
		d.logger.Warn("plugin reported failure", "plugin", p.Manifest.Name, "event", req.Event, "error", resp.Error)
		return
	}
	d.logger.Debug("plugin ran", "plugin", p.Manifest.Name, "event", req.Event)
}

// Wait blocks until every started plugin has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// SetCloseGrace changes how long Close waits before cancelling plugins.
func (d *Dispatcher) SetCloseGrace(grace time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grace = grace
}

// Close stops accepting events and waits for running plugins. Plugins still
// running after the close grace are cancelled. A session_stopped event
// dispatched just before Close is therefore delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	grace := d.grace
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		d.logger.Warn("cancelling plugins still running at shutdown", "grace", grace)
	}
	d.cancel()
	<-done
}
