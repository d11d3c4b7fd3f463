package config

import "time"

// Keypoint source names.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourceMock   = "mock"
)

// Classifier kinds.
const (
	ClassifierTemplate = "template"
	ClassifierRemote   = "remote"
)

const (
	defaultConfigPath          = "~/.asana/config.toml"
	defaultDataDir             = "~/.asana"
	defaultListen              = ":8080"
	defaultRemoteDetectorURL   = "http://127.0.0.1:8000"
	defaultPython              = "python3"
	defaultDetectorTimeoutMs   = 2000
	defaultIdleShutdownMs      = 30000
	defaultTemperature         = 0.05
	defaultRejectDistance      = 0.5
	defaultClassifierTimeoutMs = 1000
	defaultPluginTimeoutMs     = 5000
	defaultCameraWidth         = 640
	defaultCameraHeight        = 480
	defaultLocalTick           = 400 * time.Millisecond
	defaultRemoteTick          = 500 * time.Millisecond
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Listen: defaultListen,
		},
		Camera: Camera{
			Device: 0,
			Width:  defaultCameraWidth,
			Height: defaultCameraHeight,
		},
		Detector: Detector{
			Source:         SourceRemote,
			RemoteURL:      defaultRemoteDetectorURL,
			Python:         defaultPython,
			TimeoutMs:      defaultDetectorTimeoutMs,
			IdleShutdownMs: defaultIdleShutdownMs,
		},
		Classifier: Classifier{
			Kind:           ClassifierTemplate,
			Temperature:    defaultTemperature,
			RejectDistance: defaultRejectDistance,
			TimeoutMs:      defaultClassifierTimeoutMs,
		},
		Storage: Storage{
			DataDir: defaultDataDir,
		},
		Plugins: Plugins{
			TimeoutMs: defaultPluginTimeoutMs,
		},
		Logging: Logging{
			Format: "auto",
			Level:  "info",
		},
	}
}
