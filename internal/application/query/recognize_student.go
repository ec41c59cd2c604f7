package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOGNIZE STUDENT QUERY
// Определяет студента по кадру. Побочные эффекты ограничены фиксацией
// наблюдения и событием student.recognized: отметку посещаемости делает
// подписчик события.
// ══════════════════════════════════════════════════════════════════════════════

// RecognizeStudentQuery содержит кадр и место съёмки.
type RecognizeStudentQuery struct {
	Image []byte

	// Zone - аудитория или зона, где стоит камера. Необязательна.
	Zone string

	// CapturedAt по умолчанию - текущее время.
	CapturedAt time.Time
}

// Validate проверяет параметры запроса.
func (q *RecognizeStudentQuery) Validate() error {
	if len(q.Image) == 0 {
		return shared.NewDomainError("recognition", "Recognize", shared.ErrInvalidInput, "image is required")
	}
	q.Zone = strings.TrimSpace(q.Zone)
	return nil
}

// RecognizeStudentResult - итог распознавания.
type RecognizeStudentResult struct {
	Recognized bool        `json:"recognized"`
	Student    *StudentDTO `json:"student,omitempty"`
	Confidence float64     `json:"confidence"`
	Zone       string      `json:"zone,omitempty"`
}

// RecognizeStudentHandler обрабатывает RecognizeStudentQuery.
type RecognizeStudentHandler struct {
	recognizer recognition.Recognizer
	presence   recognition.PresenceTracker
	publisher  shared.EventPublisher
	clock      timeutil.Clock
}

// NewRecognizeStudentHandler создаёт обработчик. presence, publisher и clock
// могут быть nil.
func NewRecognizeStudentHandler(
	recognizer recognition.Recognizer,
	presence recognition.PresenceTracker,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
) *RecognizeStudentHandler {
	return &RecognizeStudentHandler{
		recognizer: recognizer,
		presence:   presence,
		publisher:  publisher,
		clock:      clock,
	}
}

// Handle выполняет распознавание.
func (h *RecognizeStudentHandler) Handle(ctx context.Context, q RecognizeStudentQuery) (*RecognizeStudentResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	at := q.CapturedAt
	if at.IsZero() {
		at = now(h.clock)
	}

	id, ok, err := h.recognizer.Identify(ctx, recognition.Observation{
		Image:      q.Image,
		Zone:       shared.Zone(q.Zone),
		CapturedAt: at,
	})
	if err != nil {
		return nil, fmt.Errorf("recognize_student: %w", err)
	}
	if !ok {
		return &RecognizeStudentResult{Zone: q.Zone}, nil
	}

	dto := NewStudentDTO(id.Student)
	res := &RecognizeStudentResult{
		Recognized: true,
		Student:    &dto,
		Confidence: id.Confidence.Float64(),
		Zone:       q.Zone,
	}

	log := logger.FromContext(ctx)
	if h.presence != nil && q.Zone != "" {
		// наблюдение вспомогательное, ответ от него не зависит
		err := h.presence.Seen(ctx, recognition.Sighting{
			StudentID:  dto.ID,
			Zone:       q.Zone,
			Confidence: res.Confidence,
			SeenAt:     at,
		})
		if err != nil {
			log.Warn("не удалось сохранить наблюдение", logger.StudentID(dto.ID), logger.Err(err))
		}
	}

	if h.publisher != nil {
		event := shared.NewStudentRecognizedEvent(dto.ID, q.Zone, res.Confidence, at)
		if err := h.publisher.Publish(event); err != nil {
			log.Warn("не удалось опубликовать событие", logger.StudentID(dto.ID), logger.Err(err))
		}
	}

	return res, nil
}

func now(c timeutil.Clock) time.Time {
	if c == nil {
		return time.Now()
	}
	return c.Now()
}
