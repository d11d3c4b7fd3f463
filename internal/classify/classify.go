package classify

import (
	"fmt"
	"time"

	"github.com/ayusman/asana/internal/config"
	"github.com/ayusman/asana/internal/pose"
)

// New returns the classifier selected by cfg.Classifier.Kind.
// Template classifiers start empty; callers load trained templates.
func New(cfg *config.Config) (pose.Classifier, error) {
	switch cfg.Classifier.Kind {
	case config.ClassifierTemplate:
		c := NewTemplateClassifier(cfg.Classifier.Temperature)
		c.SetRejectDistance(cfg.Classifier.RejectDistance)
		return c, nil
	case config.ClassifierRemote:
		timeout := time.Duration(cfg.Classifier.TimeoutMs) * time.Millisecond
		return NewRemoteClassifier(cfg.Classifier.RemoteURL, timeout), nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", cfg.Classifier.Kind)
	}
}
