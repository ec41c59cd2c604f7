package command

import (
	"context"
	"fmt"

	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAN TIMETABLE COMMAND
// Places required sessions into free weekday slots on top of the current
// timetable and optionally saves them.
// ══════════════════════════════════════════════════════════════════════════════

// PlanTimetableCommand contains the planning input.
type PlanTimetableCommand struct {
	Teachers     map[string]*schedule.Teacher
	Requirements []schedule.Requirement

	// DryRun computes the plan without saving it.
	DryRun bool
}

// Validate validates the command.
func (c PlanTimetableCommand) Validate() error {
	if len(c.Requirements) == 0 {
		return shared.NewDomainError("schedule", "Plan", shared.ErrValidation, "no requirements given")
	}
	for i, r := range c.Requirements {
		if r.Subject == "" || r.Room == "" || r.Sessions <= 0 {
			return shared.NewDomainError("schedule", "Plan", shared.ErrValidation,
				fmt.Sprintf("requirement %d: subject, room and a positive session count are required", i+1))
		}
	}
	return nil
}

// PlanTimetableResult contains the placed sessions.
type PlanTimetableResult struct {
	Scheduled  []schedule.Entry
	Shortfalls []string
	Saved      int
}

// PlanTimetableHandler handles PlanTimetableCommand.
type PlanTimetableHandler struct {
	schedule schedule.Repository
	planner  *schedule.Planner
}

// NewPlanTimetableHandler creates a new PlanTimetableHandler.
func NewPlanTimetableHandler(sched schedule.Repository) *PlanTimetableHandler {
	return &PlanTimetableHandler{schedule: sched, planner: schedule.NewPlanner()}
}

// Handle executes the command. Teacher hour counters in cmd.Teachers are
// updated in place.
func (h *PlanTimetableHandler) Handle(ctx context.Context, cmd PlanTimetableCommand) (*PlanTimetableResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	existing, err := h.schedule.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan_timetable: load timetable: %w", err)
	}

	plan := h.planner.Plan(existing, cmd.Teachers, cmd.Requirements)
	res := &PlanTimetableResult{Scheduled: plan.Scheduled, Shortfalls: plan.Shortfalls}
	if cmd.DryRun {
		return res, nil
	}

	for _, e := range plan.Scheduled {
		if err := h.schedule.Save(ctx, e); err != nil {
			return res, fmt.Errorf("plan_timetable: save %s %s %s: %w", e.Day, e.Slot, e.Room, err)
		}
		res.Saved++
	}
	return res, nil
}
