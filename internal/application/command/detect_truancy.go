package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DETECT TRUANCY COMMAND
// Compares where a student was seen with where the timetable expects them.
// A mismatch only counts as truancy after it has been confirmed Threshold
// times in a row; a match resets the count.
// ══════════════════════════════════════════════════════════════════════════════

// DetectTruancyCommand contains one location observation.
type DetectTruancyCommand struct {
	StudentID       string
	CurrentLocation string

	// At defaults to the handler clock.
	At time.Time
}

// Validate validates the command.
func (c DetectTruancyCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return shared.WrapError("compliance", "DetectTruancy", shared.ErrValidation, "student_id is required", shared.ErrInvalidStudentID)
	}
	if !shared.Zone(c.CurrentLocation).IsValid() {
		return shared.NewDomainError("compliance", "DetectTruancy", shared.ErrValidation, "current_location is required")
	}
	return nil
}

// SessionInfo describes the scheduled session the observation fell into.
type SessionInfo struct {
	Subject string `json:"subject"`
	Room    string `json:"room"`
	Teacher string `json:"teacher"`
	Time    string `json:"time"`
}

// DetectTruancyResult is the compliance verdict.
type DetectTruancyResult struct {
	StudentID        string       `json:"student_id"`
	Compliant        bool         `json:"compliant"`
	Message          string       `json:"message"`
	ExpectedLocation string       `json:"expected_location,omitempty"`
	CurrentLocation  string       `json:"current_location"`
	Violations       int          `json:"violations"`
	Session          *SessionInfo `json:"session,omitempty"`
}

// DetectTruancyHandler handles DetectTruancyCommand.
type DetectTruancyHandler struct {
	students   student.Repository
	schedule   schedule.Repository
	violations compliance.ViolationCounter
	publisher  shared.EventPublisher
	clock      timeutil.Clock
	threshold  int
}

// NewDetectTruancyHandler creates a new DetectTruancyHandler. A non-positive
// threshold falls back to compliance.DefaultDebounceThreshold.
func NewDetectTruancyHandler(
	students student.Repository,
	sched schedule.Repository,
	violations compliance.ViolationCounter,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	threshold int,
) *DetectTruancyHandler {
	if threshold <= 0 {
		threshold = compliance.DefaultDebounceThreshold
	}
	return &DetectTruancyHandler{
		students:   students,
		schedule:   sched,
		violations: violations,
		publisher:  publisher,
		clock:      clock,
		threshold:  threshold,
	}
}

// Handle executes the command.
func (h *DetectTruancyHandler) Handle(ctx context.Context, cmd DetectTruancyCommand) (*DetectTruancyResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s, err := h.students.GetByID(ctx, strings.TrimSpace(cmd.StudentID))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.WrapError("compliance", "DetectTruancy", shared.ErrNotFound,
			fmt.Sprintf("Student %s not found", cmd.StudentID), shared.ErrStudentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("detect_truancy: get student: %w", err)
	}

	at := cmd.At
	if at.IsZero() {
		at = now(h.clock)
	}
	current := shared.Zone(strings.TrimSpace(cmd.CurrentLocation))

	res := &DetectTruancyResult{StudentID: s.ID(), CurrentLocation: current.String()}

	entry, err := h.schedule.EntryAt(ctx, s, schedule.DayOf(at), schedule.ClockOf(at))
	if errors.Is(err, shared.ErrNotFound) {
		res.Compliant = true
		res.Message = compliance.ComplianceMessage(true, "", "")
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("detect_truancy: schedule: %w", err)
	}

	expected := shared.Zone(entry.Room)
	res.ExpectedLocation = expected.String()
	res.Session = &SessionInfo{
		Subject: entry.Subject,
		Room:    entry.Room,
		Teacher: entry.Teacher,
		Time:    entry.Slot.String(),
	}

	if compliance.IsInExpectedLocation(current, expected) {
		if err := h.violations.Reset(ctx, s.ID()); err != nil {
			return nil, fmt.Errorf("detect_truancy: reset violations: %w", err)
		}
		res.Compliant = true
		res.Message = compliance.ComplianceMessage(true, expected, entry.Subject)
		return res, nil
	}

	count, err := h.violations.Increment(ctx, s.ID())
	if err != nil {
		return nil, fmt.Errorf("detect_truancy: count violation: %w", err)
	}
	res.Violations = count

	if !compliance.RequiresDebounce(count, h.threshold) {
		res.Compliant = true
		res.Message = fmt.Sprintf("Potential mismatch detected (%d/%d)", count, h.threshold)
		return res, nil
	}

	res.Compliant = false
	res.Message = fmt.Sprintf("PERSISTENT TRUANCY: Expected in %s for %s, found in %s (verified %d+ times)",
		expected, entry.Subject, current, h.threshold)

	logger.FromContext(ctx).Warn("persistent truancy",
		logger.StudentID(s.ID()),
		logger.Zone(current.String()),
		logger.Subject(entry.Subject),
		logger.Int("violations", count),
	)

	publish(ctx, h.publisher, shared.NewTruancyDetectedEvent(
		s.ID(), entry.Room, current.String(), entry.Subject, entry.Teacher, count,
	))

	return res, nil
}
