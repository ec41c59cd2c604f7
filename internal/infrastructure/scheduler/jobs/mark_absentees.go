package jobs

import (
	"context"
	"fmt"

	"github.com/scholarmaster/campus-attendance/internal/application/command"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK ABSENTEES JOB
// ══════════════════════════════════════════════════════════════════════════════

// AbsenteeSweeper runs the end-of-day absentee sweep.
type AbsenteeSweeper interface {
	Handle(ctx context.Context, cmd command.MarkAbsenteesCommand) (*command.MarkAbsenteesResult, error)
}

// MarkAbsenteesJob marks every finished, unrecorded slot of the day as Absent.
type MarkAbsenteesJob struct {
	statsHolder

	sweeper AbsenteeSweeper
	log     *logger.Logger
}

// NewMarkAbsenteesJob creates the job.
func NewMarkAbsenteesJob(sweeper AbsenteeSweeper, log *logger.Logger) *MarkAbsenteesJob {
	if log == nil {
		log = logger.Default()
	}
	return &MarkAbsenteesJob{sweeper: sweeper, log: log.With(logger.Component("job.mark_absentees"))}
}

// Name returns the job name.
func (j *MarkAbsenteesJob) Name() string { return "mark_absentees" }

// Description returns a human-readable description.
func (j *MarkAbsenteesJob) Description() string {
	return "Marks students absent for finished classes without an attendance record"
}

// Run executes the sweep.
func (j *MarkAbsenteesJob) Run(ctx context.Context) error {
	stats := newStats()
	defer j.store(stats)

	res, err := j.sweeper.Handle(logger.WithContext(ctx, j.log), command.MarkAbsenteesCommand{})
	if err != nil {
		stats.Error = err.Error()
		return fmt.Errorf("mark absentees: %w", err)
	}

	stats.Details["date"] = res.Date.String()
	stats.Counters["students"] = res.Students
	stats.Counters["slots"] = res.Slots
	stats.Counters["marked"] = res.Marked

	j.log.Info("absentee sweep completed",
		logger.String("date", res.Date.String()),
		logger.Int("students", res.Students),
		logger.Int("slots", res.Slots),
		logger.Int("marked", res.Marked),
	)
	return nil
}
