package classify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/asana/internal/classify"
	"github.com/ayusman/asana/internal/detector"
	"github.com/ayusman/asana/internal/hold"
	"github.com/ayusman/asana/internal/pose"
)

func trainedClassifier(t *testing.T) *classify.TemplateClassifier {
	t.Helper()
	c := classify.NewTemplateClassifier(0)
	trainer := classify.NewTrainer()

	for label, set := range detector.Presets() {
		tmpl, err := trainer.TrainSamples(label, []classify.Sample{{Keypoints: set}})
		require.NoError(t, err)
		require.NoError(t, c.SetTemplate(tmpl))
	}
	return c
}

func TestTemplateClassifier_RecognizesPresets(t *testing.T) {
	c := trainedClassifier(t)

	for label, set := range detector.Presets() {
		t.Run(label.String(), func(t *testing.T) {
			// Shifted and scaled input must classify the same way.
			e, err := pose.Normalize(set.Scale(640).Translate(12, -30))
			require.NoError(t, err)

			got, err := c.Classify(context.Background(), e)
			require.NoError(t, err)
			require.NoError(t, got.Validate())

			best, p := got.Best()
			assert.Equal(t, label, best)
			assert.Greater(t, p, hold.Threshold)
		})
	}
}

func TestTemplateClassifier_CoversEveryLabel(t *testing.T) {
	c := trainedClassifier(t)
	e, err := pose.Normalize(detector.TreeKeypoints())
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), e)
	require.NoError(t, err)

	assert.Len(t, got, pose.NumLabels)
	assert.Zero(t, got.Probability(pose.Cobra))
	sum := 0.0
	for _, p := range got {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestTemplateClassifier_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no templates", func(t *testing.T) {
		c := classify.NewTemplateClassifier(0.05)
		_, err := c.Classify(ctx, make(pose.Embedding, pose.EmbeddingSize))
		assert.True(t, errors.Is(err, pose.ErrClassifierUnavailable), err)
	})

	t.Run("wrong width", func(t *testing.T) {
		c := trainedClassifier(t)
		_, err := c.Classify(ctx, pose.Embedding{1, 2, 3})
		assert.ErrorIs(t, err, pose.ErrMalformedInput)
	})

	t.Run("canceled context", func(t *testing.T) {
		c := trainedClassifier(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.Classify(cctx, make(pose.Embedding, pose.EmbeddingSize))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unknown template label", func(t *testing.T) {
		c := classify.NewTemplateClassifier(0.05)
		err := c.SetTemplate(classify.Template{Label: "Lotus", Embedding: make(pose.Embedding, pose.EmbeddingSize)})
		assert.ErrorIs(t, err, pose.ErrUnknownLabel)
	})
}

func TestTemplateClassifier_LoadAndRemove(t *testing.T) {
	c := trainedClassifier(t)
	assert.Equal(t, []pose.Label{pose.Chair, pose.Tree, pose.Warrior}, c.Labels())

	c.RemoveTemplate(pose.Chair)
	assert.Equal(t, []pose.Label{pose.Tree, pose.Warrior}, c.Labels())

	require.NoError(t, c.LoadTemplates([]classify.Template{
		{Label: pose.Dog, Embedding: make(pose.Embedding, pose.EmbeddingSize)},
	}))
	assert.Equal(t, []pose.Label{pose.Dog}, c.Labels())

	err := c.LoadTemplates([]classify.Template{{Label: pose.Cobra, Embedding: pose.Embedding{1}}})
	assert.Error(t, err)
	assert.Equal(t, []pose.Label{pose.Dog}, c.Labels(), "failed load must keep previous templates")
}

func TestTemplateClassifier_MatchOrder(t *testing.T) {
	c := trainedClassifier(t)
	e, err := pose.Normalize(detector.WarriorKeypoints())
	require.NoError(t, err)

	matches, err := c.Match(e)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, pose.Warrior, matches[0].Label)
	assert.InDelta(t, 0, matches[0].Distance, 1e-9)
	assert.LessOrEqual(t, matches[1].Distance, matches[2].Distance)
}

func singleTemplate(t *testing.T, label pose.Label, set pose.KeypointSet) *classify.TemplateClassifier {
	t.Helper()
	c := classify.NewTemplateClassifier(0)
	tmpl, err := classify.NewTrainer().TrainSamples(label, []classify.Sample{{Keypoints: set}})
	require.NoError(t, err)
	require.NoError(t, c.SetTemplate(tmpl))
	return c
}

func TestTemplateClassifier_RejectsDistantPose(t *testing.T) {
	c := singleTemplate(t, pose.Tree, detector.TreeKeypoints())
	ctx := context.Background()

	standing, err := pose.Normalize(detector.StandingKeypoints())
	require.NoError(t, err)
	got, err := c.Classify(ctx, standing)
	require.NoError(t, err)
	require.NoError(t, got.Validate())

	assert.LessOrEqual(t, got.Probability(pose.Tree), hold.Threshold,
		"a lone template must not claim every input")
	best, _ := got.Best()
	assert.Equal(t, pose.NoPose, best)

	tree, err := pose.Normalize(detector.TreeKeypoints().Translate(-40, 25))
	require.NoError(t, err)
	got, err = c.Classify(ctx, tree)
	require.NoError(t, err)
	assert.Greater(t, got.Probability(pose.Tree), hold.Threshold)
}

func TestTemplateClassifier_RejectDistance(t *testing.T) {
	c := singleTemplate(t, pose.Tree, detector.TreeKeypoints())
	standing, err := pose.Normalize(detector.StandingKeypoints())
	require.NoError(t, err)

	// Past the Tree distance the reject term no longer wins.
	c.SetRejectDistance(3)
	got, err := c.Classify(context.Background(), standing)
	require.NoError(t, err)
	best, _ := got.Best()
	assert.Equal(t, pose.Tree, best)

	c.SetRejectDistance(0)
	got, err = c.Classify(context.Background(), standing)
	require.NoError(t, err)
	best, _ = got.Best()
	assert.Equal(t, pose.NoPose, best, "non-positive distance restores the default")
}

func TestTemplateClassifier_TrainedNoPose(t *testing.T) {
	c := trainedClassifier(t)
	tmpl, err := classify.NewTrainer().TrainSamples(pose.NoPose, []classify.Sample{{Keypoints: detector.StandingKeypoints()}})
	require.NoError(t, err)
	require.NoError(t, c.SetTemplate(tmpl))

	e, err := pose.Normalize(detector.StandingKeypoints())
	require.NoError(t, err)
	got, err := c.Classify(context.Background(), e)
	require.NoError(t, err)
	require.NoError(t, got.Validate())

	assert.Greater(t, got.Probability(pose.NoPose), hold.Threshold)
	for _, label := range pose.SelectableLabels {
		assert.Less(t, got.Probability(label), 1-hold.Threshold, label)
	}
}
