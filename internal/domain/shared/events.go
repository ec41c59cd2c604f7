package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one records something that happened on campus
// and is fanned out through the event bus.
const (
	// Student events
	EventStudentRegistered EventType = "student.registered"
	EventStudentRecognized EventType = "student.recognized"

	// Attendance events
	EventAttendanceMarked EventType = "attendance.marked"
	EventAbsenteesMarked  EventType = "attendance.absentees_marked"

	// Compliance events
	EventTruancyDetected EventType = "compliance.truancy_detected"
	EventAlertRaised     EventType = "compliance.alert_raised"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Student Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentRegisteredEvent is emitted when a student is enrolled together with
// a face embedding.
type StudentRegisteredEvent struct {
	BaseEvent
	Name            string `json:"name"`
	ClassIdentifier string `json:"class_identifier"`
}

// Payload implements Event interface.
func (e StudentRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"name":             e.Name,
		"class_identifier": e.ClassIdentifier,
	}
}

// NewStudentRegisteredEvent creates a new StudentRegisteredEvent.
func NewStudentRegisteredEvent(studentID, name, classIdentifier string) StudentRegisteredEvent {
	return StudentRegisteredEvent{
		BaseEvent:       NewBaseEvent(EventStudentRegistered, studentID),
		Name:            name,
		ClassIdentifier: classIdentifier,
	}
}

// StudentRecognizedEvent is emitted when a face is matched to an enrolled student.
type StudentRecognizedEvent struct {
	BaseEvent
	Zone       string    `json:"zone"`
	Confidence float64   `json:"confidence"`
	SeenAt     time.Time `json:"seen_at"`
}

// Payload implements Event interface.
func (e StudentRecognizedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"zone":       e.Zone,
		"confidence": e.Confidence,
		"seen_at":    e.SeenAt,
	}
}

// NewStudentRecognizedEvent creates a new StudentRecognizedEvent.
// seenAt is the capture time of the frame, not the publish time.
func NewStudentRecognizedEvent(studentID, zone string, confidence float64, seenAt time.Time) StudentRecognizedEvent {
	return StudentRecognizedEvent{
		BaseEvent:  NewBaseEvent(EventStudentRecognized, studentID),
		Zone:       zone,
		Confidence: confidence,
		SeenAt:     seenAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Attendance Events
// ═══════════════════════════════════════════════════════════════════════════

// AttendanceMarkedEvent is emitted after an attendance record is persisted.
type AttendanceMarkedEvent struct {
	BaseEvent
	RecordID    string    `json:"record_id"`
	StudentName string    `json:"student_name"`
	Subject     string    `json:"subject"`
	Room        string    `json:"room"`
	Status      string    `json:"status"`
	MarkedAt    time.Time `json:"marked_at"`
}

// Payload implements Event interface.
func (e AttendanceMarkedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"record_id":    e.RecordID,
		"student_name": e.StudentName,
		"subject":      e.Subject,
		"room":         e.Room,
		"status":       e.Status,
		"marked_at":    e.MarkedAt,
	}
}

// NewAttendanceMarkedEvent creates a new AttendanceMarkedEvent.
func NewAttendanceMarkedEvent(recordID, studentID, studentName, subject, room, status string, markedAt time.Time) AttendanceMarkedEvent {
	return AttendanceMarkedEvent{
		BaseEvent:   NewBaseEvent(EventAttendanceMarked, studentID),
		RecordID:    recordID,
		StudentName: studentName,
		Subject:     subject,
		Room:        room,
		Status:      status,
		MarkedAt:    markedAt,
	}
}

// AbsenteesMarkedEvent is emitted by the end-of-slot sweep.
type AbsenteesMarkedEvent struct {
	BaseEvent
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Payload implements Event interface.
func (e AbsenteesMarkedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"date":  e.Date,
		"count": e.Count,
	}
}

// NewAbsenteesMarkedEvent creates a new AbsenteesMarkedEvent.
func NewAbsenteesMarkedEvent(date string, count int) AbsenteesMarkedEvent {
	return AbsenteesMarkedEvent{
		BaseEvent: NewBaseEvent(EventAbsenteesMarked, "attendance"),
		Date:      date,
		Count:     count,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Compliance Events
// ═══════════════════════════════════════════════════════════════════════════

// TruancyDetectedEvent is emitted once a location mismatch has been
// confirmed often enough to be considered persistent.
type TruancyDetectedEvent struct {
	BaseEvent
	ExpectedRoom string `json:"expected_room"`
	FoundIn      string `json:"found_in"`
	Subject      string `json:"subject"`
	Teacher      string `json:"teacher"`
	Detections   int    `json:"detections"`
}

// Payload implements Event interface.
func (e TruancyDetectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"expected_room": e.ExpectedRoom,
		"found_in":      e.FoundIn,
		"subject":       e.Subject,
		"teacher":       e.Teacher,
		"detections":    e.Detections,
	}
}

// NewTruancyDetectedEvent creates a new TruancyDetectedEvent.
func NewTruancyDetectedEvent(studentID, expectedRoom, foundIn, subject, teacher string, detections int) TruancyDetectedEvent {
	return TruancyDetectedEvent{
		BaseEvent:    NewBaseEvent(EventTruancyDetected, studentID),
		ExpectedRoom: expectedRoom,
		FoundIn:      foundIn,
		Subject:      subject,
		Teacher:      teacher,
		Detections:   detections,
	}
}

// AlertRaisedEvent is emitted whenever an alert is stored.
type AlertRaisedEvent struct {
	BaseEvent
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Zone      string `json:"zone"`
	Recipient string `json:"recipient"`
}

// Payload implements Event interface.
func (e AlertRaisedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"severity":  e.Severity,
		"message":   e.Message,
		"zone":      e.Zone,
		"recipient": e.Recipient,
	}
}

// NewAlertRaisedEvent creates a new AlertRaisedEvent.
func NewAlertRaisedEvent(alertID, severity, message, zone, recipient string) AlertRaisedEvent {
	return AlertRaisedEvent{
		BaseEvent: NewBaseEvent(EventAlertRaised, alertID),
		Severity:  severity,
		Message:   message,
		Zone:      zone,
		Recipient: recipient,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
