package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ayusman/asana/internal/logging"
)

const manifestFile = "plugin.json"

// Events lists every event a plugin may subscribe to.
var Events = []string{EventHoldStarted, EventHoldStopped, EventSessionStopped}

// Manager loads cue plugins from a directory and indexes them by the hold
// events they subscribe to.
type Manager struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	plugins []*Plugin
	byEvent map[string][]*Plugin
}

// NewManager creates a Manager for plugins installed under dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:     dir,
		logger:  slog.Default(),
		byEvent: make(map[string][]*Plugin),
	}
}

// SetLogger replaces the logger used to report skipped manifests.
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.logger = logging.OrDefault(logger)
}

// Discover reloads every <dir>/<name>/plugin.json. A missing directory means
// no plugins. Broken manifests are logged and skipped, and subscriptions to
// unknown events are dropped.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		m.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read plugin dir: %w", err)
	}

	var plugins []*Plugin
	seen := make(map[string]bool)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := m.load(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			m.logger.Warn("skipping plugin", "dir", entry.Name(), "error", err)
			continue
		}
		if p == nil {
			continue
		}
		if seen[p.Manifest.Name] {
			m.logger.Warn("skipping duplicate plugin", "dir", entry.Name(), "plugin", p.Manifest.Name)
			continue
		}
		seen[p.Manifest.Name] = true
		plugins = append(plugins, p)
	}

	m.replace(plugins)
	return nil
}

// load reads one plugin directory. It returns nil without error when the
// directory has no manifest.
func (m *Manager) load(path string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(path, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.Name == "" {
		return nil, errors.New("manifest has no name")
	}

	executable := filepath.Join(path, manifest.Executable)
	if manifest.Executable == "" || filepath.IsAbs(manifest.Executable) ||
		!strings.HasPrefix(executable, filepath.Clean(path)+string(filepath.Separator)) {
		return nil, fmt.Errorf("executable %q must be a file inside the plugin directory", manifest.Executable)
	}

	var events []string
	for _, event := range manifest.Events {
		if !slices.Contains(Events, event) {
			m.logger.Warn("ignoring unknown plugin event", "plugin", manifest.Name, "event", event)
			continue
		}
		if !slices.Contains(events, event) {
			events = append(events, event)
		}
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("plugin %s subscribes to no known event", manifest.Name)
	}
	manifest.Events = events

	return &Plugin{Manifest: manifest, Path: path, Executable: executable}, nil
}

func (m *Manager) replace(plugins []*Plugin) {
	slices.SortFunc(plugins, func(a, b *Plugin) int {
		return strings.Compare(a.Manifest.Name, b.Manifest.Name)
	})
	byEvent := make(map[string][]*Plugin, len(Events))
	for _, p := range plugins {
		for _, event := range p.Manifest.Events {
			byEvent[event] = append(byEvent[event], p)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = plugins
	m.byEvent = byEvent
}

// List returns the loaded plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.plugins)
}

// Subscribers returns the plugins handling event, sorted by name.
func (m *Manager) Subscribers(event string) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.byEvent[event])
}
