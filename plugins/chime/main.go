// Package main provides a cue plugin that plays a short sound when the user
// settles into the target pose.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event       string          `json:"event"`
	Pose        string          `json:"pose"`
	HoldSeconds float64         `json:"hold_seconds"`
	BestSeconds float64         `json:"best_seconds"`
	Config      json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the manifest configuration of the plugin.
type Config struct {
	Sound       string `json:"sound"`
	RecordSound string `json:"record_sound"`
}

// eventHandler handles one event kind.
type eventHandler func(req Request, cfg Config) error

var eventHandlers = map[string]eventHandler{
	"hold_started":    holdStarted,
	"session_stopped": sessionStopped,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	handler, ok := eventHandlers[req.Event]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	if err := handler(req, cfg); err != nil {
		writeErrorResponse(fmt.Sprintf("event %s failed: %v", req.Event, err))
		return
	}

	writeSuccessResponse()
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}

// holdStarted plays the configured sound.
func holdStarted(_ Request, cfg Config) error {
	return playSound(cfg.Sound)
}

// sessionStopped plays the record sound when the session produced a new best.
func sessionStopped(req Request, cfg Config) error {
	if cfg.RecordSound == "" || req.HoldSeconds <= 0 || req.HoldSeconds < req.BestSeconds {
		return nil
	}
	return playSound(cfg.RecordSound)
}

// playSound plays a sound file with the platform player, or rings the
// terminal bell when no file is configured.
func playSound(path string) error {
	if path == "" {
		_, err := fmt.Fprint(os.Stderr, "\a")
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("afplay", path)
	case "windows":
		cmd = exec.Command("powershell", "-c", fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", path))
	default:
		player, err := exec.LookPath("paplay")
		if err != nil {
			player = "aplay"
		}
		cmd = exec.Command(player, path)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
