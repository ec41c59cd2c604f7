package recognition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	a := Embedding{1, 0, 0}
	b := Embedding{0, 1, 0}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity(a, Embedding{-2, 0, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(a, Embedding{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(a, Embedding{0, 0, 0}))
}

func TestEmbedding_Normalize(t *testing.T) {
	n := Embedding{3, 4}.Normalize()
	assert.InDelta(t, 1.0, n.Norm(), 1e-6)
	assert.InDelta(t, 0.6, float64(n[0]), 1e-6)
}

func TestEmbedding_Validate(t *testing.T) {
	assert.NoError(t, Embedding{0.1, 0.2}.Validate())
	assert.Error(t, Embedding{}.Validate())
	assert.Error(t, Embedding{float32(math.NaN())}.Validate())
}
