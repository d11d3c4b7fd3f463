// Package classify provides pose.Classifier implementations.
package classify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/asana/internal/pose"
)

// DefaultTemperature scales embedding distances before the softmax.
const DefaultTemperature = 0.05

// DefaultRejectDistance is the embedding distance at which an input is as
// likely to be No_Pose as to match a template.
const DefaultRejectDistance = 0.5

// Template is the reference embedding for one label.
type Template struct {
	Label       pose.Label
	Embedding   pose.Embedding
	SampleCount int
}

// Match is the distance between an input embedding and one template.
type Match struct {
	Label    pose.Label
	Distance float64
}

// TemplateClassifier is a nearest-centroid classifier. Each label with a
// template gets the weight exp(-distance/temperature). No_Pose also receives
// the weight of a template at the reject distance, so an input far from every
// template is classified as No_Pose even when a single template is trained.
// Labels without a template get 0.
type TemplateClassifier struct {
	mu             sync.RWMutex
	templates      map[pose.Label]pose.Embedding
	temperature    float64
	rejectDistance float64
}

// NewTemplateClassifier creates an empty classifier.
// A non-positive temperature selects DefaultTemperature.
func NewTemplateClassifier(temperature float64) *TemplateClassifier {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &TemplateClassifier{
		templates:      make(map[pose.Label]pose.Embedding),
		temperature:    temperature,
		rejectDistance: DefaultRejectDistance,
	}
}

// SetRejectDistance sets the No_Pose reject distance.
// A non-positive distance selects DefaultRejectDistance.
func (c *TemplateClassifier) SetRejectDistance(d float64) {
	if d <= 0 {
		d = DefaultRejectDistance
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectDistance = d
}

// SetTemplate adds or replaces the template for t.Label.
func (c *TemplateClassifier) SetTemplate(t Template) error {
	if !t.Label.Valid() {
		return fmt.Errorf("%w: %q", pose.ErrUnknownLabel, t.Label)
	}
	if err := t.Embedding.Validate(); err != nil {
		return err
	}

	e := make(pose.Embedding, len(t.Embedding))
	copy(e, t.Embedding)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[t.Label] = e
	return nil
}

// LoadTemplates replaces every template.
func (c *TemplateClassifier) LoadTemplates(templates []Template) error {
	next := NewTemplateClassifier(c.temperature)
	for _, t := range templates {
		if err := next.SetTemplate(t); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates = next.templates
	return nil
}

// RemoveTemplate removes the template for label.
func (c *TemplateClassifier) RemoveTemplate(label pose.Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.templates, label)
}

// Labels returns the labels that have a template, in label order.
func (c *TemplateClassifier) Labels() []pose.Label {
	c.mu.RLock()
	defer c.mu.RUnlock()

	labels := make([]pose.Label, 0, len(c.templates))
	for _, label := range pose.Labels {
		if _, ok := c.templates[label]; ok {
			labels = append(labels, label)
		}
	}
	return labels
}

// Match returns the distance to every template, nearest first.
func (c *TemplateClassifier) Match(e pose.Embedding) ([]Match, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := make([]Match, 0, len(c.templates))
	for label, t := range c.templates {
		matches = append(matches, Match{Label: label, Distance: floats.Distance(e, t, 2)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance == matches[j].Distance {
			return matches[i].Label.Index() < matches[j].Label.Index()
		}
		return matches[i].Distance < matches[j].Distance
	})
	return matches, nil
}

// Classify implements pose.Classifier.
func (c *TemplateClassifier) Classify(ctx context.Context, e pose.Embedding) (pose.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches, err := c.Match(e)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no trained templates", pose.ErrClassifierUnavailable)
	}

	c.mu.RLock()
	reject := c.rejectDistance
	c.mu.RUnlock()

	// The last logit is the No_Pose reject term.
	logits := make([]float64, len(matches)+1)
	for i, m := range matches {
		logits[i] = -m.Distance / c.temperature
	}
	logits[len(matches)] = -reject / c.temperature
	// Shift by the max logit so exp never overflows.
	floats.AddConst(-floats.Max(logits), logits)
	for i := range logits {
		logits[i] = math.Exp(logits[i])
	}
	floats.Scale(1/floats.Sum(logits), logits)

	result := make(pose.Classification, pose.NumLabels)
	for _, label := range pose.Labels {
		result[label] = 0
	}
	for i, m := range matches {
		result[m.Label] += logits[i]
	}
	result[pose.NoPose] += logits[len(matches)]
	return result, nil
}
