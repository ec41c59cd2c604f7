// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

// EmbeddingStore persists enrolled face embeddings so the in-memory index
// can be rebuilt on restart.
type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, studentID string, e recognition.Embedding) error
}

// PrivacyHasher derives the de-identified student hash.
type PrivacyHasher interface {
	Hash(id string) (string, error)
}

// publish emits an event if a publisher is configured. Bus failures are
// logged and never fail the command.
func publish(ctx context.Context, p shared.EventPublisher, event shared.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(event); err != nil {
		logger.FromContext(ctx).Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}

func now(c timeutil.Clock) time.Time {
	if c == nil {
		return time.Now()
	}
	return c.Now()
}
