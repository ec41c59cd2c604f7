package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STUDENT RECOGNIZED HANDLER
// Автоматическая отметка: каждое уверенное распознавание записывается
// через attendance.Recorder на занятие, идущее в момент кадра
// (seen_at в часовом поясе кампуса).
// ═══════════════════════════════════════════════════════════════════════════

// OnStudentRecognizedHandler отмечает распознанных студентов.
type OnStudentRecognizedHandler struct {
	students      student.Repository
	recorder      attendance.Recorder
	minConfidence float64
	location      *time.Location
	log           *logger.Logger
}

// NewOnStudentRecognizedHandler создаёт обработчик. Распознавания с
// уверенностью ниже minConfidence игнорируются. loc - часовой пояс
// кампуса, по нему ищется занятие в расписании; nil означает UTC.
func NewOnStudentRecognizedHandler(
	students student.Repository,
	recorder attendance.Recorder,
	minConfidence float64,
	loc *time.Location,
	log *logger.Logger,
) *OnStudentRecognizedHandler {
	if log == nil {
		log = logger.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &OnStudentRecognizedHandler{
		students:      students,
		recorder:      recorder,
		minConfidence: minConfidence,
		location:      loc,
		log:           log.With(logger.Component("on_student_recognized")),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnStudentRecognizedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventStudentRecognized {
		return nil
	}

	confidence := payloadFloat(event.Payload(), "confidence")
	if confidence < h.minConfidence {
		h.log.Debug("низкая уверенность, отметка пропущена",
			logger.StudentID(event.AggregateID()),
			logger.Float64("confidence", confidence),
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := h.students.GetByID(ctx, event.AggregateID())
	if errors.Is(err, shared.ErrNotFound) {
		// студента удалили между распознаванием и обработкой
		return nil
	}
	if err != nil {
		return fmt.Errorf("on_student_recognized: %w", err)
	}

	// старые события без seen_at отмечаются по времени публикации
	seenAt, ok := payloadTime(event.Payload(), "seen_at")
	if !ok {
		seenAt = event.OccurredAt()
	}

	if err := h.recorder.RecordAttendance(ctx, s, seenAt.In(h.location)); err != nil {
		return fmt.Errorf("on_student_recognized: record: %w", err)
	}
	return nil
}
