package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

func TestParseDay(t *testing.T) {
	d, err := ParseDay("mon")
	require.NoError(t, err)
	assert.Equal(t, Monday, d)

	d, err = ParseDay("Saturday")
	require.NoError(t, err)
	assert.Equal(t, Saturday, d)

	_, err = ParseDay("Funday")
	assert.True(t, shared.IsValidation(err))
}

func TestDayOf(t *testing.T) {
	// 2024-03-11 is a Monday.
	assert.Equal(t, Monday, DayOf(time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)))
}

func TestParseTimeSlot(t *testing.T) {
	slot, err := ParseTimeSlot("9:00-10:30")
	require.NoError(t, err)
	assert.Equal(t, "09:00-10:30", slot.String())
	assert.Equal(t, 90*time.Minute, slot.Duration())

	assert.True(t, slot.Contains(NewClock(9, 0)))
	assert.True(t, slot.Contains(NewClock(10, 29)))
	assert.False(t, slot.Contains(NewClock(10, 30)))
	assert.False(t, slot.Contains(NewClock(8, 59)))

	_, err = ParseTimeSlot("10:00-09:00")
	assert.Error(t, err)
	_, err = ParseTimeSlot("garbage")
	assert.Error(t, err)
	_, err = ParseTimeSlot("25:00-26:00")
	assert.Error(t, err)
}

func TestEntry_MatchesStudent(t *testing.T) {
	s := student.MustNew(student.Params{
		ID: "S1", Name: "Ana", Department: "CS",
		Program: student.ProgramUG, Year: 2, Section: student.SectionB,
	})

	e := Entry{Department: "CS", Program: student.ProgramUG, Year: 2, Section: student.SectionB}
	assert.True(t, e.MatchesStudent(s))

	e.Department = ""
	assert.True(t, e.MatchesStudent(s))

	e.Section = student.SectionA
	assert.False(t, e.MatchesStudent(s))
}

func TestEntry_Validate(t *testing.T) {
	e := Entry{Day: Monday, Slot: TimeSlot{Start: NewClock(9, 0), End: NewClock(10, 0)}, Subject: "Math", Room: "LH-1"}
	assert.NoError(t, e.Validate())

	e.Room = ""
	assert.Error(t, e.Validate())

	e.Room = "LH-1"
	e.Day = "Someday"
	assert.Error(t, e.Validate())
}

func TestFirstContaining(t *testing.T) {
	entries := []Entry{
		{Subject: "Math", Slot: TimeSlot{Start: NewClock(9, 0), End: NewClock(10, 0)}},
		{Subject: "Physics", Slot: TimeSlot{Start: NewClock(10, 0), End: NewClock(11, 0)}},
	}

	e, ok := FirstContaining(entries, NewClock(10, 15))
	require.True(t, ok)
	assert.Equal(t, "Physics", e.Subject)

	_, ok = FirstContaining(entries, NewClock(12, 0))
	assert.False(t, ok)
}
