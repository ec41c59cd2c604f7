package recognition

import (
	"math"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// EmbeddingDim - размерность эмбеддинга лица.
const EmbeddingDim = 512

// Embedding - вектор признаков лица.
type Embedding []float32

// Validate проверяет размерность и отсутствие NaN/Inf.
func (e Embedding) Validate() error {
	if len(e) == 0 {
		return shared.ErrInvalidEmbedding
	}
	for _, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return shared.ErrInvalidEmbedding
		}
	}
	return nil
}

// Norm возвращает евклидову норму.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize возвращает копию единичной длины. Нулевой вектор возвращается как есть.
func (e Embedding) Normalize() Embedding {
	n := e.Norm()
	out := make(Embedding, len(e))
	if n == 0 {
		copy(out, e)
		return out
	}
	for i, v := range e {
		out[i] = float32(float64(v) / n)
	}
	return out
}

// CosineSimilarity возвращает сходство в [-1, 1].
// Для векторов разной длины или нулевых векторов возвращает 0.
func CosineSimilarity(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
