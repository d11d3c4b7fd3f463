package classify

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/asana/internal/pose"
)

// ErrNoSamples is returned when training is attempted without samples.
var ErrNoSamples = errors.New("no samples provided")

// Sample is one recorded example of a pose. Either field may be set; raw
// keypoints are normalized before use.
type Sample struct {
	Keypoints pose.KeypointSet `json:"keypoints,omitempty"`
	Embedding pose.Embedding   `json:"embedding,omitempty"`
}

// Resolve returns the sample's embedding, normalizing keypoints if needed.
func (s Sample) Resolve() (pose.Embedding, error) {
	if len(s.Embedding) > 0 {
		if err := s.Embedding.Validate(); err != nil {
			return nil, err
		}
		return s.Embedding, nil
	}
	if len(s.Keypoints) == 0 {
		return nil, fmt.Errorf("%w: sample has neither keypoints nor embedding", pose.ErrMalformedInput)
	}
	return pose.Normalize(s.Keypoints)
}

// Trainer processes recorded samples into pose templates.
type Trainer struct{}

// NewTrainer creates a new Trainer instance.
func NewTrainer() *Trainer {
	return &Trainer{}
}

// Train averages the sample embeddings into a template for label.
func (t *Trainer) Train(label pose.Label, samples []pose.Embedding) (Template, error) {
	if !label.Valid() {
		return Template{}, fmt.Errorf("%w: %q", pose.ErrUnknownLabel, label)
	}
	if len(samples) == 0 {
		return Template{}, ErrNoSamples
	}

	sum := make([]float64, pose.EmbeddingSize)
	for i, e := range samples {
		if err := e.Validate(); err != nil {
			return Template{}, fmt.Errorf("sample %d: %w", i, err)
		}
		floats.Add(sum, e)
	}
	floats.Scale(1/float64(len(samples)), sum)

	return Template{
		Label:       label,
		Embedding:   pose.Embedding(sum),
		SampleCount: len(samples),
	}, nil
}

// TrainSamples resolves every sample and averages them.
func (t *Trainer) TrainSamples(label pose.Label, samples []Sample) (Template, error) {
	embeddings := make([]pose.Embedding, 0, len(samples))
	for i, s := range samples {
		e, err := s.Resolve()
		if err != nil {
			return Template{}, fmt.Errorf("sample %d: %w", i, err)
		}
		embeddings = append(embeddings, e)
	}
	return t.Train(label, embeddings)
}
