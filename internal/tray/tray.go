// Package tray provides a system tray interface for the asana pose coach.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/asana/internal/app"
	"github.com/ayusman/asana/internal/pose"
)

// Tray represents the system tray application.
type Tray struct {
	onSelect   func(target pose.Label)
	onToggle   func(running bool)
	onSettings func()
	onQuit     func()
	target     pose.Label
	running    bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuHold   *systray.MenuItem
	menuPoses  map[pose.Label]*systray.MenuItem
}

// New creates a new Tray with target selected and no session running.
func New(target pose.Label) *Tray {
	if !target.Valid() || target == pose.NoPose {
		target = pose.SelectableLabels[0]
	}
	return &Tray{target: target}
}

// OnSelect sets the callback invoked when a pose is picked from the menu.
func (t *Tray) OnSelect(fn func(target pose.Label)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSelect = fn
}

// OnToggle sets the callback invoked when the session is started or stopped.
func (t *Tray) OnToggle(fn func(running bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Asana")
	systray.SetTooltip("Asana Pose Coach")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(false), "Start or stop the practice session")
	systray.AddSeparator()

	menuPose := systray.AddMenuItem("Pose", "Target pose")
	t.menuPoses = make(map[pose.Label]*systray.MenuItem, len(pose.SelectableLabels))
	for _, label := range pose.SelectableLabels {
		item := menuPose.AddSubMenuItemCheckbox(label.String(), "Practice "+label.String(), label == t.target)
		t.menuPoses[label] = item
		go t.watchPose(label, item)
	}

	t.menuHold = systray.AddMenuItem(holdTitle(app.FrameReport{}), "Current and best hold")
	t.menuHold.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Asana")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) watchPose(label pose.Label, item *systray.MenuItem) {
	for range item.ClickedCh {
		t.handleSelect(label)
	}
}

func (t *Tray) handleSelect(label pose.Label) {
	t.mu.Lock()
	if label == t.target {
		t.mu.Unlock()
		return
	}
	t.target = label
	for l, item := range t.menuPoses {
		if l == label {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	callback := t.onSelect
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(label)
	}
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.running = !t.running
	running := t.running
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
	callback := t.onToggle
	t.mu.Unlock()

	if callback != nil {
		callback(running)
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetRunning updates the toggle item when the session is started or stopped
// outside the tray.
func (t *Tray) SetRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = running
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
}

// Report implements app.Reporter by showing the hold timers in the menu.
func (t *Tray) Report(r app.FrameReport) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuHold != nil {
		t.menuHold.SetTitle(holdTitle(r))
	}
}

// Target returns the currently selected pose.
func (t *Tray) Target() pose.Label {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.target
}

// Running reports whether the tray believes a session is running.
func (t *Tray) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func toggleTitle(running bool) string {
	if running {
		return "● Practicing"
	}
	return "○ Start Practice"
}

func holdTitle(r app.FrameReport) string {
	if r.Holding {
		return fmt.Sprintf("Holding %s: %.1fs (best %.1fs)", r.Pose, r.CurrentHoldSeconds, r.BestHoldSeconds)
	}
	return fmt.Sprintf("Best hold: %.1fs", r.BestHoldSeconds)
}
