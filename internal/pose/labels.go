package pose

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Label identifies a yoga pose class.
type Label string

// Pose labels. The spelling matches the classifier's training labels.
const (
	Chair         Label = "Chair"
	Cobra         Label = "Cobra"
	Dog           Label = "Dog"
	NoPose        Label = "No_Pose"
	Shoulderstand Label = "Shoulderstand"
	Triangle      Label = "Traingle"
	Tree          Label = "Tree"
	Warrior       Label = "Warrior"
)

// Labels is the classifier output order. Index i of a classifier's probability
// row belongs to Labels[i]; every component must use this table rather than
// its own ordering.
var Labels = []Label{Chair, Cobra, Dog, NoPose, Shoulderstand, Triangle, Tree, Warrior}

// SelectableLabels are the labels a user can pick as target pose.
var SelectableLabels = []Label{Tree, Chair, Cobra, Warrior, Dog, Shoulderstand, Triangle}

// NumLabels is the number of pose classes.
var NumLabels = len(Labels)

// Index returns the classifier output index of l, or -1 if l is unknown.
func (l Label) Index() int {
	for i, label := range Labels {
		if label == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is part of the label enumeration.
func (l Label) Valid() bool {
	return l.Index() >= 0
}

func (l Label) String() string {
	return string(l)
}

// ParseLabel resolves a label name case-insensitively.
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	for _, label := range Labels {
		if strings.EqualFold(string(label), s) {
			return label, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}

// Classification maps every label to its probability for one frame.
type Classification map[Label]float64

// FromProbabilities builds a Classification from a probability row in
// Labels order.
func FromProbabilities(row []float64) (Classification, error) {
	if len(row) != NumLabels {
		return nil, fmt.Errorf("%w: got %d probabilities, expected %d", ErrClassifierUnavailable, len(row), NumLabels)
	}
	c := make(Classification, NumLabels)
	for i, p := range row {
		c[Labels[i]] = p
	}
	return c, c.Validate()
}

// Probability returns the probability of l, or 0 if absent.
func (c Classification) Probability(l Label) float64 {
	return c[l]
}

// Validate checks that every entry is a known label with a probability in [0, 1].
func (c Classification) Validate() error {
	for label, p := range c {
		if !label.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: probability %v for %s out of range", ErrClassifierUnavailable, p, label)
		}
	}
	return nil
}

// Best returns the label with the highest probability.
func (c Classification) Best() (Label, float64) {
	labels := make([]Label, 0, len(c))
	for label := range c {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		return labels[i].Index() < labels[j].Index()
	})

	var best Label
	bestP := -1.0
	for _, label := range labels {
		if c[label] > bestP {
			best, bestP = label, c[label]
		}
	}
	if bestP < 0 {
		return NoPose, 0
	}
	return best, bestP
}

// Classifier maps an embedding to a probability for every label.
type Classifier interface {
	Classify(ctx context.Context, e Embedding) (Classification, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, e Embedding) (Classification, error)

// Classify calls f(ctx, e).
func (f ClassifierFunc) Classify(ctx context.Context, e Embedding) (Classification, error) {
	return f(ctx, e)
}
