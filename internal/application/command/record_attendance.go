package command

import (
	"context"
	"errors"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ATTENDANCE
// attendance.Recorder backed by the timetable and MarkAttendanceHandler.
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRecorder resolves the subject and room scheduled for the student
// at the given moment and marks attendance for it.
type AttendanceRecorder struct {
	mark     *MarkAttendanceHandler
	schedule schedule.Repository
}

// NewAttendanceRecorder creates a recorder.
func NewAttendanceRecorder(mark *MarkAttendanceHandler, sched schedule.Repository) *AttendanceRecorder {
	return &AttendanceRecorder{mark: mark, schedule: sched}
}

// RecordAttendance implements attendance.Recorder. A sighting outside any
// timetable slot records nothing. Marking the same student twice for one
// slot is not an error.
func (r *AttendanceRecorder) RecordAttendance(ctx context.Context, s student.Student, at time.Time) error {
	entry, err := r.schedule.EntryAt(ctx, s, schedule.DayOf(at), schedule.ClockOf(at))
	if errors.Is(err, shared.ErrNotFound) {
		logger.FromContext(ctx).Debug("no scheduled slot, sighting not recorded",
			logger.StudentID(s.ID()), logger.Time("at", at))
		return nil
	}
	if err != nil {
		return err
	}
	subject, room := entry.Subject, entry.Room

	_, err = r.mark.Handle(ctx, MarkAttendanceCommand{
		StudentID: s.ID(),
		Subject:   subject,
		Room:      room,
		Timestamp: at,
	})
	if errors.Is(err, shared.ErrAlreadyExists) {
		logger.FromContext(ctx).Debug("attendance already recorded",
			logger.StudentID(s.ID()), logger.Subject(subject))
		return nil
	}
	return err
}

var _ attendance.Recorder = (*AttendanceRecorder)(nil)
