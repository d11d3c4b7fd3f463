package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Session.TickMs < 0 {
		return errors.New("session.tick_ms must not be negative")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be positive")
	}
	if c.Plugins.TimeoutMs <= 0 {
		return errors.New("plugins.timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateDetector() error {
	switch c.Detector.Source {
	case SourceLocal, SourceMock:
	case SourceRemote:
		if err := validateURL("detector.remote_url", c.Detector.RemoteURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("detector.source must be one of %q, %q or %q, got %q",
			SourceLocal, SourceRemote, SourceMock, c.Detector.Source)
	}
	if c.Detector.TimeoutMs <= 0 {
		return errors.New("detector.timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.Kind {
	case ClassifierTemplate:
		if c.Classifier.Temperature <= 0 {
			return errors.New("classifier.temperature must be positive")
		}
		if c.Classifier.RejectDistance <= 0 {
			return errors.New("classifier.reject_distance must be positive")
		}
	case ClassifierRemote:
		if err := validateURL("classifier.remote_url", c.Classifier.RemoteURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("classifier.kind must be %q or %q, got %q",
			ClassifierTemplate, ClassifierRemote, c.Classifier.Kind)
	}
	if c.Classifier.TimeoutMs <= 0 {
		return errors.New("classifier.timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format must be auto, text or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL", field)
	}
	return nil
}
