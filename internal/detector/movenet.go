package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/asana/internal/capture"
	"github.com/ayusman/asana/internal/logging"
	"github.com/ayusman/asana/internal/pose"
)

const (
	scriptName          = "movenet_service.py"
	defaultIdleShutdown = 30 * time.Second
	jpegQuality         = 90
)

// MoveNetOptions configures the local MoveNet subprocess.
type MoveNetOptions struct {
	// ScriptPath overrides the script search.
	ScriptPath string
	// Python is the interpreter used when no virtual environment is found.
	Python string
	// IdleShutdown stops the subprocess after this long without frames.
	IdleShutdown time.Duration
	Logger       *slog.Logger
}

// MoveNetDetector implements Detector using a Python MoveNet subprocess.
// Frames are written to stdin as a 4-byte big-endian length followed by JPEG
// bytes; each frame yields one JSON line on stdout.
type MoveNetDetector struct {
	opts      MoveNetOptions
	script    string
	logger    *slog.Logger
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewMoveNetDetector creates a new MoveNet detector.
// The Python process is started lazily on first detection.
func NewMoveNetDetector(opts MoveNetOptions) (*MoveNetDetector, error) {
	script := opts.ScriptPath
	if script == "" {
		script = findScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if opts.IdleShutdown <= 0 {
		opts.IdleShutdown = defaultIdleShutdown
	}

	return &MoveNetDetector{
		opts:   opts,
		script: script,
		logger: logging.OrDefault(opts.Logger).With("detector", "movenet"),
	}, nil
}

// Detect sends a frame to the subprocess and returns its keypoints.
func (d *MoveNetDetector) Detect(ctx context.Context, frame *gocv.Mat) (pose.KeypointSet, error) {
	data, err := capture.EncodeJPEG(frame, jpegQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pose.ErrMalformedInput, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.ensureStarted(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	stdin, stdout := d.stdin, d.stdout
	go func() {
		line, err := roundTrip(stdin, stdout, data)
		done <- result{line: line, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// The protocol has no cancellation, so the process is killed and
		// restarted on the next frame.
		d.kill()
		<-done
		d.shutdown()
		return nil, ctx.Err()
	}

	if res.err != nil {
		d.shutdown()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, res.err)
	}

	var response wireResponse
	if err := json.Unmarshal([]byte(res.line), &response); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrSourceUnavailable, err)
	}

	d.resetIdleTimer()
	return response.keypointSet(frame.Cols(), frame.Rows())
}

func roundTrip(w io.Writer, r *bufio.Reader, data []byte) (string, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return "", fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("write data: %w", err)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// Close shuts down the Python process.
func (d *MoveNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MoveNetDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	python := findVenvPython()
	if python == "" {
		python = d.opts.Python
	}

	d.cmd = exec.Command(python, d.script)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start movenet service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.logger.Info("movenet service started", "script", d.script, "python", python, "pid", d.cmd.Process.Pid)
	return nil
}

func (d *MoveNetDetector) kill() {
	if d.started && d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
}

func (d *MoveNetDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.logger.Info("movenet service stopped")

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (d *MoveNetDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.opts.IdleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findScript() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}
	home, _ := os.UserHomeDir()

	return firstExisting(
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(home, ".asana", "scripts", scriptName),
	)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	home, _ := os.UserHomeDir()

	return firstExisting(
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(filepath.Dir(execPath), "venv/bin/python"),
		filepath.Join(home, ".asana/venv/bin/python"),
	)
}

func firstExisting(candidates ...string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}
