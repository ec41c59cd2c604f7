package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK ABSENTEES COMMAND
// End-of-day sweep: every finished slot without a record becomes Absent.
// ══════════════════════════════════════════════════════════════════════════════

// MarkAbsenteesCommand selects the moment of the sweep. Slots that end
// after At are left alone.
type MarkAbsenteesCommand struct {
	At time.Time
}

// MarkAbsenteesResult summarizes the sweep.
type MarkAbsenteesResult struct {
	Date     shared.DateKey `json:"date"`
	Students int            `json:"students"`
	Slots    int            `json:"slots"`
	Marked   int            `json:"marked"`
}

// MarkAbsenteesHandler handles MarkAbsenteesCommand.
type MarkAbsenteesHandler struct {
	students  student.Repository
	schedule  schedule.Repository
	records   attendance.Repository
	publisher shared.EventPublisher
	clock     timeutil.Clock
	pageSize  int
}

// NewMarkAbsenteesHandler creates a new MarkAbsenteesHandler.
func NewMarkAbsenteesHandler(
	students student.Repository,
	sched schedule.Repository,
	records attendance.Repository,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
) *MarkAbsenteesHandler {
	return &MarkAbsenteesHandler{
		students:  students,
		schedule:  sched,
		records:   records,
		publisher: publisher,
		clock:     clock,
		pageSize:  200,
	}
}

// Handle executes the sweep. It is idempotent: a second run on the same
// day finds every slot already recorded.
func (h *MarkAbsenteesHandler) Handle(ctx context.Context, cmd MarkAbsenteesCommand) (*MarkAbsenteesResult, error) {
	at := cmd.At
	if at.IsZero() {
		at = now(h.clock)
	}
	day := schedule.DayOf(at)
	clock := schedule.ClockOf(at)
	date := shared.DateKeyOf(at)

	res := &MarkAbsenteesResult{Date: date}
	log := logger.FromContext(ctx)

	for offset := 0; ; offset += h.pageSize {
		page, err := h.students.List(ctx, student.ListOptions{Limit: h.pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("mark_absentees: list students: %w", err)
		}

		for _, s := range page {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Students++

			marked, slots, err := h.sweepStudent(ctx, s, day, clock, at)
			res.Slots += slots
			res.Marked += marked
			if err != nil {
				log.Error("absentee sweep failed for student", logger.StudentID(s.ID()), logger.Err(err))
			}
		}

		if len(page) < h.pageSize {
			break
		}
	}

	publish(ctx, h.publisher, shared.NewAbsenteesMarkedEvent(date.String(), res.Marked))
	return res, nil
}

func (h *MarkAbsenteesHandler) sweepStudent(ctx context.Context, s student.Student, day schedule.Day, clock schedule.Clock, at time.Time) (marked, slots int, err error) {
	entries, err := h.schedule.ForStudent(ctx, s, day)
	if err != nil {
		return 0, 0, err
	}

	for _, e := range entries {
		if e.Slot.End > clock {
			continue
		}
		slots++

		rec, err := attendance.NewRecord(attendance.NewRecordParams{
			ID:        uuid.NewString(),
			Student:   s,
			Subject:   e.Subject,
			Room:      e.Room,
			Status:    attendance.StatusAbsent,
			Timestamp: at,
		})
		if err != nil {
			return marked, slots, err
		}

		done, err := h.records.IsAlreadyMarked(ctx, rec.Key())
		if err != nil {
			return marked, slots, err
		}
		if done {
			continue
		}

		ok, err := h.records.MarkPresent(ctx, rec)
		if err != nil {
			return marked, slots, err
		}
		if ok {
			marked++
		}
	}
	return marked, slots, nil
}
