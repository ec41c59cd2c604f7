package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

func TestPlanner_PlacesSessionsWithoutConflicts(t *testing.T) {
	teachers := map[string]*Teacher{
		"Ms. Davis": {Name: "Ms. Davis", MaxHours: 10},
	}
	reqs := []Requirement{{
		Department: "CS", Program: student.ProgramUG, Year: 1, Section: student.SectionA,
		Subject: "Data Structures", Teacher: "Ms. Davis", Room: "Lab 1", Sessions: 3,
	}}

	res := NewPlanner().Plan(nil, teachers, reqs)

	require.Len(t, res.Scheduled, 3)
	assert.Empty(t, res.Shortfalls)
	assert.Equal(t, 3, teachers["Ms. Davis"].CurrentHours)

	// Consecutive Monday slots.
	assert.Equal(t, Monday, res.Scheduled[0].Day)
	assert.Equal(t, "09:00-10:00", res.Scheduled[0].Slot.String())
	assert.Equal(t, "10:00-11:00", res.Scheduled[1].Slot.String())
}

func TestPlanner_AvoidsBusyRoom(t *testing.T) {
	existing := []Entry{{
		Day: Monday, Slot: TimeSlot{Start: NewClock(9, 0), End: NewClock(10, 0)},
		Subject: "Chemistry", Teacher: "Dr. Roy", Room: "Lab 1",
	}}
	teachers := map[string]*Teacher{"Ms. Davis": {Name: "Ms. Davis", MaxHours: 5}}
	reqs := []Requirement{{Subject: "Algo", Teacher: "Ms. Davis", Room: "Lab 1", Sessions: 1}}

	res := NewPlanner().Plan(existing, teachers, reqs)

	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, "10:00-11:00", res.Scheduled[0].Slot.String())
}

func TestPlanner_RespectsMaxHoursAndUnknownTeacher(t *testing.T) {
	teachers := map[string]*Teacher{"Ms. Davis": {Name: "Ms. Davis", MaxHours: 2}}
	reqs := []Requirement{
		{Subject: "Algo", Teacher: "Ms. Davis", Room: "Lab 1", Sessions: 4},
		{Subject: "Art", Teacher: "Nobody", Room: "Studio", Sessions: 1},
	}

	res := NewPlanner().Plan(nil, teachers, reqs)

	assert.Len(t, res.Scheduled, 2)
	require.Len(t, res.Shortfalls, 2)
	assert.Contains(t, res.Shortfalls[0], "scheduled 2/4")
	assert.Contains(t, res.Shortfalls[1], "Nobody")
}
