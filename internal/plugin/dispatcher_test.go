package plugin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/asana/internal/logging"
)

func TestDispatcher_RunsSubscribers(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "events.log")

	script := "#!/bin/sh\ncat >> " + logFile + "\necho '{\"success\":true}'\n"
	writePlugin(t, tmpDir, "recorder", []string{EventHoldStarted}, script)
	writePlugin(t, tmpDir, "ignored", []string{EventSessionStopped}, "#!/bin/sh\nexit 1\n")

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	d := NewDispatcher(manager, NewExecutor(5000), 2, logging.Discard())
	defer d.Close()

	d.Dispatch(Request{Event: EventHoldStarted, Pose: "Tree", Timestamp: time.Now()})
	d.Wait()

	raw, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("plugin did not run: %v", err)
	}
	if !strings.Contains(string(raw), `"pose":"Tree"`) {
		t.Errorf("expected request with pose Tree, got %s", raw)
	}
	if !strings.Contains(string(raw), `"event":"hold_started"`) {
		t.Errorf("expected hold_started event, got %s", raw)
	}
}

func TestDispatcher_DoesNotBlock(t *testing.T) {
	tmpDir := t.TempDir()
	writePlugin(t, tmpDir, "slow", []string{EventHoldStarted}, "#!/bin/sh\nsleep 10\n")

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	d := NewDispatcher(manager, NewExecutor(30000), 1, logging.Discard())
	d.SetCloseGrace(50 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 5; i++ {
		d.Dispatch(Request{Event: EventHoldStarted, Pose: "Chair"})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Dispatch blocked for %v", elapsed)
	}

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not cancel the running plugin")
	}

	// Dispatch after Close is a no-op.
	d.Dispatch(Request{Event: EventHoldStarted})
	d.Wait()
}

func TestDispatcher_CloseDeliversPendingEvent(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "stopped.log")

	script := "#!/bin/sh\nsleep 0.3\ncat > " + logFile + "\necho '{\"success\":true}'\n"
	writePlugin(t, tmpDir, "chime", []string{EventSessionStopped}, script)

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	d := NewDispatcher(manager, NewExecutor(5000), 2, logging.Discard())
	d.Dispatch(Request{Event: EventSessionStopped, Pose: "Tree", Timestamp: time.Now()})
	d.Close()

	raw, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("plugin was cancelled before finishing: %v", err)
	}
	if !strings.Contains(string(raw), `"event":"session_stopped"`) {
		t.Errorf("expected session_stopped event, got %s", raw)
	}
}
