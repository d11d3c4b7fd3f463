// Package plugin discovers and runs cue plugins, external programs that react
// to hold events with a sound, notification or light.
package plugin

import (
	"encoding/json"
	"slices"
	"time"
)

// Event names delivered to plugins.
const (
	EventHoldStarted    = "hold_started"
	EventHoldStopped    = "hold_stopped"
	EventSessionStopped = "session_stopped"
)

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is sent to a plugin on stdin.
type Request struct {
	Event       string          `json:"event"`
	Pose        string          `json:"pose"`
	HoldSeconds float64         `json:"hold_seconds"`
	BestSeconds float64         `json:"best_seconds"`
	Timestamp   time.Time       `json:"timestamp"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Response is read from a plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the plugin subscribed to event.
func (p *Plugin) Handles(event string) bool {
	return slices.Contains(p.Manifest.Events, event)
}
