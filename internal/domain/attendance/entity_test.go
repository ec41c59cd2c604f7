package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

func testStudent() student.Student {
	return student.MustNew(student.Params{
		ID: "S1", Name: "Ana", Role: "Student", Department: "CS",
		Program: student.ProgramUG, Year: 2, Section: student.SectionB,
	})
}

func TestNewRecord(t *testing.T) {
	ts := time.Date(2024, 3, 11, 9, 15, 0, 0, time.UTC)

	r, err := NewRecord(NewRecordParams{
		ID:        "r1",
		Student:   testStudent(),
		Subject:   " Physics ",
		Room:      "LH-101",
		Status:    StatusPresent,
		Timestamp: ts,
	})
	require.NoError(t, err)

	assert.Equal(t, "S1", r.StudentID)
	assert.Equal(t, "Ana", r.StudentName)
	assert.Equal(t, "Physics", r.Subject)
	assert.Equal(t, shared.DateKey("2024-03-11"), r.Date)
	assert.True(t, r.IsCompliant())
	assert.Equal(t, "S1:2024-03-11:Physics", r.Key().String())
}

func TestNewRecord_Invalid(t *testing.T) {
	_, err := NewRecord(NewRecordParams{Student: testStudent(), Subject: "", Status: StatusPresent})
	assert.True(t, shared.IsValidation(err))

	_, err = NewRecord(NewRecordParams{Subject: "Math", Status: StatusPresent})
	assert.True(t, shared.IsValidation(err))

	_, err = NewRecord(NewRecordParams{Student: testStudent(), Subject: "Math", Status: "Sleeping"})
	assert.True(t, errors.Is(err, shared.ErrInvalidAttendanceStatus))
}

func TestRecord_TruantIsNotCompliant(t *testing.T) {
	r, err := NewRecord(NewRecordParams{Student: testStudent(), Subject: "Math", Status: StatusTruant})
	require.NoError(t, err)
	assert.False(t, r.IsCompliant())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("present")
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, st)

	_, err = ParseStatus("gone")
	assert.Error(t, err)
}

func TestFilter_Matches(t *testing.T) {
	r := Record{StudentID: "S1", Date: "2024-03-11", Subject: "Math", Status: StatusPresent}

	assert.True(t, Filter{}.Matches(r))
	assert.True(t, Filter{StudentID: "S1", Subject: "Math"}.Matches(r))
	assert.False(t, Filter{Date: "2024-03-12"}.Matches(r))
	assert.False(t, Filter{Status: StatusAbsent}.Matches(r))
}
