package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSCRIPT & PRESENCE QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// LatestTranscriptResult - последняя расшифровка, если она есть.
type LatestTranscriptResult struct {
	Available bool   `json:"available"`
	Text      string `json:"text,omitempty"`
}

// LatestTranscriptHandler отдаёт последнюю готовую расшифровку.
// Каждая расшифровка отдаётся один раз.
type LatestTranscriptHandler struct {
	transcriber recognition.Transcriber
}

// NewLatestTranscriptHandler создаёт обработчик.
func NewLatestTranscriptHandler(t recognition.Transcriber) *LatestTranscriptHandler {
	return &LatestTranscriptHandler{transcriber: t}
}

// Handle не блокируется.
func (h *LatestTranscriptHandler) Handle(context.Context) *LatestTranscriptResult {
	text, ok := h.transcriber.TranscribeLatest()
	if !ok {
		return &LatestTranscriptResult{}
	}
	return &LatestTranscriptResult{Available: true, Text: text}
}

// ZonePresenceQuery - кто был замечен в зоне за последние Within.
type ZonePresenceQuery struct {
	Zone string

	// Within - по умолчанию 15 минут.
	Within time.Duration
}

// Validate проверяет параметры.
func (q *ZonePresenceQuery) Validate() error {
	q.Zone = strings.TrimSpace(q.Zone)
	if q.Zone == "" {
		return shared.NewDomainError("recognition", "Presence", shared.ErrValidation, "zone is required")
	}
	if q.Within <= 0 {
		q.Within = 15 * time.Minute
	}
	return nil
}

// ZonePresenceResult - наблюдения в зоне, сначала свежие.
type ZonePresenceResult struct {
	Zone      string                 `json:"zone"`
	Sightings []recognition.Sighting `json:"sightings"`
}

// ZonePresenceHandler обрабатывает ZonePresenceQuery.
type ZonePresenceHandler struct {
	presence recognition.PresenceTracker
}

// NewZonePresenceHandler создаёт обработчик.
func NewZonePresenceHandler(p recognition.PresenceTracker) *ZonePresenceHandler {
	return &ZonePresenceHandler{presence: p}
}

// Handle выполняет запрос.
func (h *ZonePresenceHandler) Handle(ctx context.Context, q ZonePresenceQuery) (*ZonePresenceResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s, err := h.presence.InZone(ctx, q.Zone, q.Within)
	if err != nil {
		return nil, fmt.Errorf("zone_presence: %w", err)
	}
	if s == nil {
		s = []recognition.Sighting{}
	}
	return &ZonePresenceResult{Zone: q.Zone, Sightings: s}, nil
}
