package jobs

import (
	"context"
	"fmt"

	"github.com/scholarmaster/campus-attendance/internal/infrastructure/faceindex"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH FACE INDEX JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshFaceIndexJob rebuilds the in-memory face gallery from the stored
// embeddings, picking up enrolments made on other nodes.
type RefreshFaceIndexJob struct {
	statsHolder

	index  *faceindex.Index
	source faceindex.EmbeddingSource
	log    *logger.Logger
}

// NewRefreshFaceIndexJob creates the job.
func NewRefreshFaceIndexJob(index *faceindex.Index, source faceindex.EmbeddingSource, log *logger.Logger) *RefreshFaceIndexJob {
	if log == nil {
		log = logger.Default()
	}
	return &RefreshFaceIndexJob{index: index, source: source, log: log.With(logger.Component("job.refresh_face_index"))}
}

// Name returns the job name.
func (j *RefreshFaceIndexJob) Name() string { return "refresh_face_index" }

// Description returns a human-readable description.
func (j *RefreshFaceIndexJob) Description() string {
	return "Reloads enrolled face embeddings into the recognition index"
}

// Run executes the reload.
func (j *RefreshFaceIndexJob) Run(ctx context.Context) error {
	stats := newStats()
	defer j.store(stats)

	n, err := j.index.Load(ctx, j.source, j.log)
	if err != nil {
		stats.Error = err.Error()
		return fmt.Errorf("refresh face index: %w", err)
	}
	stats.Counters["loaded"] = n

	j.log.Info("face index refreshed", logger.Int("embeddings", n))
	return nil
}
