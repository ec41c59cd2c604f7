package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON TRUANCY DETECTED HANDLER
// Превращает подтверждённый прогул в тревогу уровня Warning, адресованную
// преподавателям. Пока студент остаётся не на месте, событие приходит на
// каждое наблюдение, поэтому тревога по одному студенту поднимается не
// чаще раза за окно.
// ═══════════════════════════════════════════════════════════════════════════

// TruancyAlertConfig содержит настройки обработчика.
type TruancyAlertConfig struct {
	// Window - окно подавления повторных тревог по одному студенту.
	Window time.Duration

	// Timeout - ограничение на обработку одного события.
	Timeout time.Duration
}

// DefaultTruancyAlertConfig возвращает настройки по умолчанию.
func DefaultTruancyAlertConfig() TruancyAlertConfig {
	return TruancyAlertConfig{
		Window:  15 * time.Minute,
		Timeout: 5 * time.Second,
	}
}

// OnTruancyDetectedHandler поднимает тревогу о прогуле.
type OnTruancyDetectedHandler struct {
	alerts    compliance.AlertService
	publisher shared.EventPublisher
	log       *logger.Logger
	config    TruancyAlertConfig
}

// NewOnTruancyDetectedHandler создаёт обработчик. publisher может быть nil.
func NewOnTruancyDetectedHandler(
	alerts compliance.AlertService,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config TruancyAlertConfig,
) *OnTruancyDetectedHandler {
	if log == nil {
		log = logger.Default()
	}
	if config.Window <= 0 {
		config.Window = DefaultTruancyAlertConfig().Window
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTruancyAlertConfig().Timeout
	}
	return &OnTruancyDetectedHandler{
		alerts:    alerts,
		publisher: publisher,
		log:       log.With(logger.Component("on_truancy_detected")),
		config:    config,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnTruancyDetectedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventTruancyDetected {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	studentID := event.AggregateID()
	p := event.Payload()
	room := payloadString(p, "expected_room")
	foundIn := payloadString(p, "found_in")
	subject := payloadString(p, "subject")

	// 1. Подавляем повтор по тому же студенту
	recent, err := h.alerts.Recent(ctx, room, h.config.Window)
	if err != nil {
		return fmt.Errorf("on_truancy_detected: recent alerts: %w", err)
	}
	for _, a := range recent {
		if a.Severity == compliance.SeverityWarning && a.Metadata["student_id"] == studentID {
			h.log.Debug("тревога о прогуле уже поднята", logger.StudentID(studentID))
			return nil
		}
	}

	// 2. Поднимаем тревогу
	alert := compliance.Alert{
		ID:        uuid.NewString(),
		Timestamp: event.OccurredAt(),
		Severity:  compliance.SeverityWarning,
		Message:   fmt.Sprintf("Student %s expected in %s for %s, found in %s", studentID, room, subject, foundIn),
		Zone:      room,
		Metadata: map[string]interface{}{
			"student_id": studentID,
			"found_in":   foundIn,
			"subject":    subject,
			"teacher":    payloadString(p, "teacher"),
			"detections": payloadInt(p, "detections"),
		},
	}
	if err := h.alerts.Trigger(ctx, alert); err != nil {
		return fmt.Errorf("on_truancy_detected: trigger: %w", err)
	}

	h.log.Info("тревога о прогуле",
		logger.StudentID(studentID),
		logger.Zone(room),
		logger.String("recipient", alert.Recipient()),
	)

	// 3. Сообщаем остальным подписчикам
	if h.publisher != nil {
		raised := shared.NewAlertRaisedEvent(alert.ID, alert.Severity.String(), alert.Message, alert.Zone, alert.Recipient())
		if err := h.publisher.Publish(raised); err != nil {
			h.log.Warn("не удалось опубликовать событие тревоги", logger.Err(err))
		}
	}
	return nil
}
