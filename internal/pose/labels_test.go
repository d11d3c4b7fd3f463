package pose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabels_TrainingOrder(t *testing.T) {
	want := map[Label]int{
		Chair:         0,
		Cobra:         1,
		Dog:           2,
		NoPose:        3,
		Shoulderstand: 4,
		Triangle:      5,
		Tree:          6,
		Warrior:       7,
	}
	require.Len(t, Labels, len(want))
	for label, idx := range want {
		assert.Equal(t, idx, label.Index(), label)
	}
	assert.Equal(t, -1, Label("Lotus").Index())
}

func TestSelectableLabels_ExcludeNoPose(t *testing.T) {
	for _, l := range SelectableLabels {
		assert.True(t, l.Valid())
		assert.NotEqual(t, NoPose, l)
	}
	assert.Len(t, SelectableLabels, NumLabels-1)
}

func TestParseLabel(t *testing.T) {
	l, err := ParseLabel(" tree ")
	require.NoError(t, err)
	assert.Equal(t, Tree, l)

	l, err = ParseLabel("traingle")
	require.NoError(t, err)
	assert.Equal(t, Triangle, l)

	_, err = ParseLabel("lotus")
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestFromProbabilities(t *testing.T) {
	t.Run("maps rows in label order", func(t *testing.T) {
		c, err := FromProbabilities([]float64{0, 0, 0, 0.01, 0, 0, 0.98, 0.01})
		require.NoError(t, err)
		assert.Equal(t, 0.98, c.Probability(Tree))
		assert.Equal(t, 0.01, c.Probability(NoPose))

		best, p := c.Best()
		assert.Equal(t, Tree, best)
		assert.Equal(t, 0.98, p)
	})

	t.Run("rejects wrong width", func(t *testing.T) {
		_, err := FromProbabilities([]float64{1})
		assert.ErrorIs(t, err, ErrClassifierUnavailable)
	})

	t.Run("rejects out of range values", func(t *testing.T) {
		_, err := FromProbabilities([]float64{0, 0, 0, 0, 0, 0, 1.5, 0})
		assert.ErrorIs(t, err, ErrClassifierUnavailable)
	})
}

func TestClassification_Validate(t *testing.T) {
	assert.NoError(t, Classification{Tree: 1}.Validate())
	assert.ErrorIs(t, Classification{"Lotus": 0.5}.Validate(), ErrUnknownLabel)
}

func TestClassification_BestEmpty(t *testing.T) {
	best, p := Classification{}.Best()
	assert.Equal(t, NoPose, best)
	assert.Zero(t, p)
}

func TestClassifierFunc(t *testing.T) {
	var c Classifier = ClassifierFunc(func(ctx context.Context, e Embedding) (Classification, error) {
		return Classification{Chair: float64(len(e))}, nil
	})
	got, err := c.Classify(context.Background(), make(Embedding, 1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got[Chair])
}
