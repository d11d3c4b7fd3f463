// Package config loads the asana configuration file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains HTTP server settings.
type Server struct {
	Listen    string `toml:"listen"`
	StaticDir string `toml:"static_dir"`
}

// Camera contains capture device settings.
type Camera struct {
	Device int `toml:"device"`
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Detector selects and configures the keypoint source.
type Detector struct {
	// Source is "local" (MoveNet subprocess), "remote" (inference server) or "mock".
	Source         string `toml:"source"`
	RemoteURL      string `toml:"remote_url"`
	ScriptPath     string `toml:"script_path"`
	Python         string `toml:"python"`
	TimeoutMs      int    `toml:"timeout_ms"`
	IdleShutdownMs int    `toml:"idle_shutdown_ms"`
}

// Classifier selects and configures the pose classifier.
type Classifier struct {
	// Kind is "template" (trained from recorded samples) or "remote".
	Kind        string  `toml:"kind"`
	RemoteURL   string  `toml:"remote_url"`
	Temperature float64 `toml:"temperature"`
	// RejectDistance is the embedding distance beyond which the template
	// classifier favours No_Pose over the nearest template.
	RejectDistance float64 `toml:"reject_distance"`
	TimeoutMs      int     `toml:"timeout_ms"`
}

// Session contains frame loop timing.
type Session struct {
	// TickMs is the frame period. Zero picks 400ms for local sources and
	// 500ms for the remote source.
	TickMs int `toml:"tick_ms"`
}

// Storage contains persistence settings.
type Storage struct {
	DataDir string `toml:"data_dir"`
}

// Plugins contains cue plugin settings.
type Plugins struct {
	Dir       string `toml:"dir"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// Logging contains log output settings.
type Logging struct {
	// Format is "auto", "text" or "json".
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Tray contains system tray settings.
type Tray struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values.
type Config struct {
	Server     Server     `toml:"server"`
	Camera     Camera     `toml:"camera"`
	Detector   Detector   `toml:"detector"`
	Classifier Classifier `toml:"classifier"`
	Session    Session    `toml:"session"`
	Storage    Storage    `toml:"storage"`
	Plugins    Plugins    `toml:"plugins"`
	Logging    Logging    `toml:"logging"`
	Tray       Tray       `toml:"tray"`
}

// DefaultConfigPath returns the absolute path of the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load parses and validates the configuration file at path, or the default
// location when path is empty. A missing file yields the defaults. The
// returned config has every path expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if path == "" {
		path = defaultConfigPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, "", false, err
	}

	exists := true
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case err != nil:
		return nil, "", false, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolved, exists, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Storage.DataDir, err = expandPath(c.Storage.DataDir); err != nil {
		return fmt.Errorf("storage.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Plugins.Dir) == "" {
		c.Plugins.Dir = filepath.Join(c.Storage.DataDir, "plugins")
	}
	if c.Plugins.Dir, err = expandPath(c.Plugins.Dir); err != nil {
		return fmt.Errorf("plugins.dir: %w", err)
	}
	if c.Server.StaticDir != "" {
		if c.Server.StaticDir, err = expandPath(c.Server.StaticDir); err != nil {
			return fmt.Errorf("server.static_dir: %w", err)
		}
	}
	if c.Detector.ScriptPath != "" {
		if c.Detector.ScriptPath, err = expandPath(c.Detector.ScriptPath); err != nil {
			return fmt.Errorf("detector.script_path: %w", err)
		}
	}

	c.Detector.Source = strings.ToLower(strings.TrimSpace(c.Detector.Source))
	c.Classifier.Kind = strings.ToLower(strings.TrimSpace(c.Classifier.Kind))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Detector.RemoteURL = strings.TrimRight(strings.TrimSpace(c.Detector.RemoteURL), "/")
	c.Classifier.RemoteURL = strings.TrimSpace(c.Classifier.RemoteURL)
	c.Server.Listen = strings.TrimSpace(c.Server.Listen)
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	return nil
}

// TickInterval returns the frame loop period for the configured source.
func (c *Config) TickInterval() time.Duration {
	if c.Session.TickMs > 0 {
		return time.Duration(c.Session.TickMs) * time.Millisecond
	}
	if c.Detector.Source == SourceRemote {
		return defaultRemoteTick
	}
	return defaultLocalTick
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "asana.db")
}

// LockPath returns the path of the data directory lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Storage.DataDir, "asana.lock")
}

// EnsureDirectories creates the data directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %q: %w", c.Storage.DataDir, err)
	}
	return nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
