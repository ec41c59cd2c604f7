package student

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

func validParams() Params {
	return Params{
		ID:         "S1",
		Name:       "Ana",
		Role:       "Student",
		Department: "CS",
		Program:    ProgramUG,
		Year:       2,
		Section:    SectionB,
	}
}

func TestNew_Valid(t *testing.T) {
	p := validParams()
	p.PrivacyHash = "abc:def"

	s, err := New(p)
	require.NoError(t, err)

	assert.Equal(t, "S1", s.ID())
	assert.Equal(t, "Ana", s.Name())
	assert.Equal(t, "Student", s.Role())
	assert.Equal(t, "CS", s.Department())
	assert.Equal(t, ProgramUG, s.Program())
	assert.Equal(t, Year(2), s.Year())
	assert.Equal(t, SectionB, s.Section())
	assert.Equal(t, "abc:def", s.PrivacyHash())
	assert.True(t, s.HasPrivacyHash())
	assert.Equal(t, p, s.Params())
}

func TestStudent_ClassIdentifier(t *testing.T) {
	s := MustNew(validParams())
	assert.Equal(t, "CS-UG-2-B", s.ClassIdentifier())
	assert.Equal(t, s.ClassIdentifier(), s.ClassIdentifier())
}

func TestNew_AcceptsValuesOutsideInvariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"blank id", func(p *Params) { p.ID = "  " }},
		{"blank name", func(p *Params) { p.Name = " " }},
		{"other program", func(p *Params) { p.Program = "PhD" }},
		{"empty program", func(p *Params) { p.Program = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			s, err := New(p)
			require.NoError(t, err)
			assert.Equal(t, p, s.Params())
		})
	}

	s := MustNew(Params{ID: "S3", Name: "Cy", Program: "PhD", Year: 1, Section: SectionA})
	assert.False(t, s.Program().IsValid())
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		cause  error
	}{
		{"empty id", func(p *Params) { p.ID = "" }, shared.ErrInvalidStudentID},
		{"empty name", func(p *Params) { p.Name = "" }, shared.ErrEmptyValue},
		{"year zero", func(p *Params) { p.Year = 0 }, shared.ErrInvalidYear},
		{"year five", func(p *Params) { p.Year = 5 }, shared.ErrInvalidYear},
		{"section D", func(p *Params) { p.Section = "D" }, shared.ErrInvalidSection},
		{"lowercase section", func(p *Params) { p.Section = "a" }, shared.ErrInvalidSection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			s, err := New(p)
			require.Error(t, err)
			assert.True(t, s.IsZero())
			assert.True(t, errors.Is(err, shared.ErrValidation))
			assert.True(t, errors.Is(err, tt.cause))
			assert.True(t, shared.IsValidation(err))

			var de *shared.DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "student", de.Domain)
		})
	}
}

func TestNew_YearBoundaries(t *testing.T) {
	for _, y := range []Year{1, 2, 3, 4} {
		p := validParams()
		p.Year = y
		_, err := New(p)
		assert.NoError(t, err, "year %d", y)
	}
}

func TestStudent_ValueEquality(t *testing.T) {
	a := MustNew(validParams())
	b := MustNew(validParams())

	assert.True(t, a.Equal(b))
	assert.Equal(t, a, b)

	c := a.WithPrivacyHash("x:y")
	assert.False(t, a.Equal(c))
	assert.Empty(t, a.PrivacyHash())
}

func TestClassFilter_Matches(t *testing.T) {
	s := MustNew(validParams())

	assert.True(t, ClassFilter{}.Matches(s))
	assert.True(t, ClassFilter{Department: "CS", Year: 2}.Matches(s))
	assert.False(t, ClassFilter{Section: SectionA}.Matches(s))
	assert.False(t, ClassFilter{Program: ProgramPG}.Matches(s))
	assert.True(t, ClassFilter{}.IsEmpty())
}
