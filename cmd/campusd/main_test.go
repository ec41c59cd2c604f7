package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/application/command"
	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"serve"},
		{"worker"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"timetable", "import"},
		{"timetable", "export"},
		{"timetable", "plan"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	plan, _, err := root.Find([]string{"timetable", "plan"})
	require.NoError(t, err)
	assert.NotNil(t, plan.Flags().Lookup("dry-run"))
	assert.Equal(t, "data/requirements.yaml", plan.Flags().Lookup("requirements").DefValue)
}

func TestPrintPlan(t *testing.T) {
	var buf bytes.Buffer
	err := printPlan(&buf, &command.PlanTimetableResult{
		Scheduled: []schedule.Entry{{
			Day:        schedule.Day("Monday"),
			Department: "CS",
			Program:    student.ProgramUG,
			Year:       2,
			Section:    student.SectionB,
			Subject:    "Math",
			Teacher:    "Dr. Rao",
			Room:       "101",
		}},
		Shortfalls: []string{"Physics: 1 session unplaced"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SUBJECT")
	assert.Contains(t, out, "Math")
	assert.Contains(t, out, "Dr. Rao")
	assert.Contains(t, out, "shortfall: Physics: 1 session unplaced")
}
