package classify

import (
	"github.com/ayusman/asana/internal/store"
)

// TemplateSource lists persisted templates. *store.TemplateRepository satisfies it.
type TemplateSource interface {
	List() ([]*store.Template, error)
}

// LoadStored replaces the classifier's templates with the persisted ones and
// returns how many were loaded.
func (c *TemplateClassifier) LoadStored(src TemplateSource) (int, error) {
	stored, err := src.List()
	if err != nil {
		return 0, err
	}

	templates := make([]Template, 0, len(stored))
	for _, t := range stored {
		templates = append(templates, FromStore(t))
	}
	if err := c.LoadTemplates(templates); err != nil {
		return 0, err
	}
	return len(templates), nil
}

// FromStore converts a persisted template.
func FromStore(t *store.Template) Template {
	return Template{
		Label:       t.Pose,
		Embedding:   t.Embedding,
		SampleCount: t.SampleCount,
	}
}

// ToStore converts a trained template for persistence.
func (t Template) ToStore() *store.Template {
	return &store.Template{
		Pose:        t.Label,
		Embedding:   t.Embedding,
		SampleCount: t.SampleCount,
	}
}
