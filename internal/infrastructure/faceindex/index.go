// Package faceindex holds the in-process gallery of enrolled face embeddings
// and the recognizer built on top of it.
package faceindex

import (
	"context"
	"sync"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// EmbeddingSource loads every stored embedding keyed by student id.
type EmbeddingSource interface {
	Embeddings(ctx context.Context) (map[string]recognition.Embedding, error)
}

// Index is a brute-force cosine similarity index. Embeddings are normalised
// on insert so Search is a dot product per entry.
type Index struct {
	mu      sync.RWMutex
	vectors map[string]recognition.Embedding
}

// New creates an empty index.
func New() *Index {
	return &Index{vectors: make(map[string]recognition.Embedding)}
}

// Add inserts or replaces a student's embedding.
func (x *Index) Add(_ context.Context, studentID string, e recognition.Embedding) error {
	if err := e.Validate(); err != nil {
		return err
	}
	n := e.Normalize()

	x.mu.Lock()
	x.vectors[studentID] = n
	x.mu.Unlock()
	return nil
}

// Search returns the most similar entry at or above threshold.
func (x *Index) Search(_ context.Context, e recognition.Embedding, threshold float64) (recognition.Match, bool, error) {
	if err := e.Validate(); err != nil {
		return recognition.Match{}, false, err
	}
	q := e.Normalize()

	x.mu.RLock()
	defer x.mu.RUnlock()

	var (
		best  recognition.Match
		found bool
	)
	for id, v := range x.vectors {
		if len(v) != len(q) {
			continue
		}
		sim := dot(q, v)
		if sim < threshold {
			continue
		}
		// ties resolve to the smaller id so results are stable
		if !found || sim > best.Similarity || (sim == best.Similarity && id < best.StudentID) {
			best = recognition.Match{StudentID: id, Similarity: sim}
			found = true
		}
	}
	return best, found, nil
}

// Remove deletes a student's embedding.
func (x *Index) Remove(_ context.Context, studentID string) error {
	x.mu.Lock()
	delete(x.vectors, studentID)
	x.mu.Unlock()
	return nil
}

// Count returns the gallery size.
func (x *Index) Count(context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors), nil
}

// Load replaces the gallery with the source contents. Invalid embeddings are
// skipped and logged. Returns the number of loaded entries.
func (x *Index) Load(ctx context.Context, src EmbeddingSource, log *logger.Logger) (int, error) {
	all, err := src.Embeddings(ctx)
	if err != nil {
		return 0, err
	}

	next := make(map[string]recognition.Embedding, len(all))
	for id, e := range all {
		if err := e.Validate(); err != nil {
			if log != nil {
				log.Warn("skipping invalid embedding", logger.StudentID(id), logger.Err(err))
			}
			continue
		}
		next[id] = e.Normalize()
	}

	x.mu.Lock()
	x.vectors = next
	x.mu.Unlock()
	return len(next), nil
}

func dot(a, b recognition.Embedding) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

var _ recognition.FaceIndex = (*Index)(nil)
