package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ATTENDANCE MARKED HANDLER
// Дублирует каждую отметку в локальный журнал с хэш-цепочкой. Журнал
// переживает потерю связи с центральной базой и проверяется отдельно.
// ═══════════════════════════════════════════════════════════════════════════

// OnAttendanceMarkedHandler копирует отметки в зеркальное хранилище.
type OnAttendanceMarkedHandler struct {
	mirror  attendance.Repository
	log     *logger.Logger
	timeout time.Duration
}

// NewOnAttendanceMarkedHandler создаёт обработчик.
func NewOnAttendanceMarkedHandler(mirror attendance.Repository, log *logger.Logger) *OnAttendanceMarkedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnAttendanceMarkedHandler{
		mirror:  mirror,
		log:     log.With(logger.Component("on_attendance_marked")),
		timeout: 5 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnAttendanceMarkedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventAttendanceMarked {
		return nil
	}

	rec, err := recordFromEvent(event)
	if err != nil {
		// повтор не поможет
		h.log.Error("некорректное событие отметки", logger.Err(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	stored, err := h.mirror.MarkPresent(ctx, rec)
	if err != nil {
		return fmt.Errorf("on_attendance_marked: mirror: %w", err)
	}
	if !stored {
		h.log.Debug("отметка уже есть в журнале",
			logger.StudentID(rec.StudentID),
			logger.Subject(rec.Subject),
		)
	}
	return nil
}

func recordFromEvent(event shared.Event) (attendance.Record, error) {
	p := event.Payload()

	status, err := attendance.ParseStatus(payloadString(p, "status"))
	if err != nil {
		return attendance.Record{}, err
	}
	at, ok := payloadTime(p, "marked_at")
	if !ok {
		at = event.OccurredAt()
	}

	rec := attendance.Record{
		ID:          payloadString(p, "record_id"),
		Timestamp:   at,
		StudentID:   event.AggregateID(),
		StudentName: payloadString(p, "student_name"),
		Subject:     payloadString(p, "subject"),
		Room:        payloadString(p, "room"),
		Status:      status,
		Date:        shared.DateKeyOf(at),
	}
	if rec.StudentID == "" || rec.Subject == "" {
		return attendance.Record{}, fmt.Errorf("attendance event %q lacks student or subject", rec.ID)
	}
	return rec, nil
}
