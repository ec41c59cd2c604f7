package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK ATTENDANCE COMMAND
// Writes one attendance record per student, day and subject.
// ══════════════════════════════════════════════════════════════════════════════

// MarkAttendanceCommand contains the data to mark attendance.
type MarkAttendanceCommand struct {
	StudentID string
	Subject   string
	Room      string

	// IsTruant marks the record Truant instead of Present.
	IsTruant bool

	// Status overrides IsTruant when set. Used by the absentee sweep.
	Status attendance.Status

	// Timestamp defaults to the handler clock.
	Timestamp time.Time
}

// Validate validates the command.
func (c MarkAttendanceCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return shared.WrapError("attendance", "Mark", shared.ErrValidation, "student_id is required", shared.ErrInvalidStudentID)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return shared.WrapError("attendance", "Mark", shared.ErrValidation, "subject is required", shared.ErrEmptyValue)
	}
	if c.Status != "" && !c.Status.IsValid() {
		return shared.WrapError("attendance", "Mark", shared.ErrValidation, "unknown status "+string(c.Status), shared.ErrInvalidAttendanceStatus)
	}
	return nil
}

func (c MarkAttendanceCommand) status() attendance.Status {
	switch {
	case c.Status != "":
		return c.Status
	case c.IsTruant:
		return attendance.StatusTruant
	default:
		return attendance.StatusPresent
	}
}

// MarkAttendanceResult contains the stored record.
type MarkAttendanceResult struct {
	Record attendance.Record
}

// MarkAttendanceHandler handles MarkAttendanceCommand.
type MarkAttendanceHandler struct {
	students  student.Repository
	records   attendance.Repository
	guard     attendance.DuplicateGuard
	publisher shared.EventPublisher
	clock     timeutil.Clock
}

// NewMarkAttendanceHandler creates a new MarkAttendanceHandler.
// guard, publisher and clock may be nil.
func NewMarkAttendanceHandler(
	students student.Repository,
	records attendance.Repository,
	guard attendance.DuplicateGuard,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
) *MarkAttendanceHandler {
	return &MarkAttendanceHandler{
		students:  students,
		records:   records,
		guard:     guard,
		publisher: publisher,
		clock:     clock,
	}
}

// Handle executes the command. Duplicates for the same student, day and
// subject fail with shared.ErrAttendanceAlreadyMarked.
func (h *MarkAttendanceHandler) Handle(ctx context.Context, cmd MarkAttendanceCommand) (*MarkAttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s, err := h.students.GetByID(ctx, strings.TrimSpace(cmd.StudentID))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.WrapError("attendance", "Mark", shared.ErrNotFound,
			fmt.Sprintf("Student %s not found", cmd.StudentID), shared.ErrStudentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mark_attendance: get student: %w", err)
	}

	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = now(h.clock)
	}

	rec, err := attendance.NewRecord(attendance.NewRecordParams{
		ID:        uuid.NewString(),
		Student:   s,
		Subject:   cmd.Subject,
		Room:      cmd.Room,
		Status:    cmd.status(),
		Timestamp: ts,
	})
	if err != nil {
		return nil, err
	}

	duplicate := shared.WrapError("attendance", "Mark", shared.ErrAlreadyExists,
		fmt.Sprintf("Attendance already marked for %s in %s today", s.Name(), rec.Subject),
		shared.ErrAttendanceAlreadyMarked)

	key := rec.Key()
	if h.guard != nil {
		claimed, err := h.guard.Claim(ctx, key)
		if err != nil {
			// the store below still rejects duplicates
			logger.FromContext(ctx).Warn("duplicate guard unavailable", logger.Err(err))
		} else if !claimed {
			return nil, duplicate
		}
	}

	stored, err := h.store(ctx, rec)
	if err != nil || !stored {
		h.release(ctx, key)
		if err != nil {
			return nil, err
		}
		return nil, duplicate
	}

	publish(ctx, h.publisher, shared.NewAttendanceMarkedEvent(
		rec.ID, rec.StudentID, rec.StudentName, rec.Subject, rec.Room, rec.Status.String(), rec.Timestamp,
	))

	return &MarkAttendanceResult{Record: rec}, nil
}

func (h *MarkAttendanceHandler) store(ctx context.Context, rec attendance.Record) (bool, error) {
	marked, err := h.records.IsAlreadyMarked(ctx, rec.Key())
	if err != nil {
		return false, fmt.Errorf("mark_attendance: check duplicate: %w", err)
	}
	if marked {
		return false, nil
	}

	stored, err := h.records.MarkPresent(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("mark_attendance: store: %w", err)
	}
	return stored, nil
}

// release frees the guard key after a failed or rejected write.
func (h *MarkAttendanceHandler) release(ctx context.Context, key attendance.Key) {
	if h.guard == nil {
		return
	}
	if err := h.guard.Release(ctx, key); err != nil {
		logger.FromContext(ctx).Warn("failed to release duplicate guard", logger.Err(err))
	}
}
