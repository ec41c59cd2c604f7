package student

import (
	"fmt"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Program определяет уровень образовательной программы.
type Program string

const (
	// ProgramUG - бакалавриат.
	ProgramUG Program = "UG"
	// ProgramPG - магистратура.
	ProgramPG Program = "PG"
)

// IsValid проверяет, что программа из закрытого набора.
func (p Program) IsValid() bool {
	switch p {
	case ProgramUG, ProgramPG:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление программы.
func (p Program) String() string {
	return string(p)
}

// Section - учебная группа внутри курса.
type Section string

const (
	// SectionA - секция A.
	SectionA Section = "A"
	// SectionB - секция B.
	SectionB Section = "B"
	// SectionC - секция C.
	SectionC Section = "C"
)

// IsValid проверяет, что секция одна из A, B, C.
func (s Section) IsValid() bool {
	switch s {
	case SectionA, SectionB, SectionC:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление секции.
func (s Section) String() string {
	return string(s)
}

// Year - курс обучения, от 1 до 4.
type Year int

const (
	// MinYear - первый курс.
	MinYear Year = 1
	// MaxYear - последний курс.
	MaxYear Year = 4
)

// IsValid проверяет диапазон курса.
func (y Year) IsValid() bool {
	return y >= MinYear && y <= MaxYear
}

// Int возвращает значение курса.
func (y Year) Int() int {
	return int(y)
}

// DefaultRole - роль по умолчанию при регистрации.
const DefaultRole = "Student"

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - неизменяемый value object, описывающий студента.
// Все поля заданы при создании и доступны только через геттеры,
// поэтому значение можно свободно передавать между горутинами.
type Student struct {
	id          string
	name        string
	role        string
	department  string
	program     Program
	year        Year
	section     Section
	privacyHash string
}

// Params содержит параметры для создания студента.
type Params struct {
	ID         string
	Name       string
	Role       string
	Department string
	Program    Program
	Year       Year
	Section    Section

	// PrivacyHash - необязательный непрозрачный хэш для обезличенного
	// сопоставления и логирования. Пустая строка означает отсутствие.
	PrivacyHash string
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// New создаёт студента с проверкой инвариантов.
// При нарушении возвращает *shared.DomainError вида shared.ErrValidation;
// частично созданный объект никогда не возвращается.
func New(p Params) (Student, error) {
	if err := p.Validate(); err != nil {
		return Student{}, err
	}

	return Student{
		id:          p.ID,
		name:        p.Name,
		role:        p.Role,
		department:  p.Department,
		program:     p.Program,
		year:        p.Year,
		section:     p.Section,
		privacyHash: p.PrivacyHash,
	}, nil
}

// MustNew как New, но паникует при ошибке. Только для тестов и фикстур.
func MustNew(p Params) Student {
	s, err := New(p)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate проверяет параметры без создания объекта.
// Программа не проверяется: вызывающий код использует Program.IsValid.
func (p Params) Validate() error {
	if p.ID == "" {
		return validationError("Student ID cannot be empty", shared.ErrInvalidStudentID)
	}
	if p.Name == "" {
		return validationError("Student name cannot be empty", shared.ErrEmptyValue)
	}
	if !p.Year.IsValid() {
		return validationError(fmt.Sprintf("Invalid year: %d. Must be 1-4", p.Year), shared.ErrInvalidYear)
	}
	if !p.Section.IsValid() {
		return validationError(fmt.Sprintf("Invalid section: %s. Must be A, B, or C", p.Section), shared.ErrInvalidSection)
	}
	return nil
}

func validationError(msg string, cause error) error {
	return shared.WrapError("student", "New", shared.ErrValidation, msg, cause)
}

// ══════════════════════════════════════════════════════════════════════════════
// GETTERS
// ══════════════════════════════════════════════════════════════════════════════

func (s Student) ID() string          { return s.id }
func (s Student) Name() string        { return s.name }
func (s Student) Role() string        { return s.role }
func (s Student) Department() string  { return s.department }
func (s Student) Program() Program    { return s.program }
func (s Student) Year() Year          { return s.year }
func (s Student) Section() Section    { return s.section }
func (s Student) PrivacyHash() string { return s.privacyHash }

// HasPrivacyHash сообщает, задан ли хэш.
func (s Student) HasPrivacyHash() bool {
	return s.privacyHash != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// BUSINESS METHODS
// ══════════════════════════════════════════════════════════════════════════════

// ClassIdentifier возвращает идентификатор учебной группы в формате
// "department-program-year-section", например "CS-UG-2-B".
func (s Student) ClassIdentifier() string {
	return fmt.Sprintf("%s-%s-%d-%s", s.department, s.program, s.year, s.section)
}

// Equal сравнивает студентов по значению всех полей.
func (s Student) Equal(other Student) bool {
	return s == other
}

// IsZero сообщает, что это пустое значение (не созданное через New).
func (s Student) IsZero() bool {
	return s == Student{}
}

// Params возвращает параметры, из которых можно воссоздать студента.
func (s Student) Params() Params {
	return Params{
		ID:          s.id,
		Name:        s.name,
		Role:        s.role,
		Department:  s.department,
		Program:     s.program,
		Year:        s.year,
		Section:     s.section,
		PrivacyHash: s.privacyHash,
	}
}

// WithPrivacyHash возвращает копию студента с указанным хэшем.
func (s Student) WithPrivacyHash(hash string) Student {
	s.privacyHash = hash
	return s
}

// String возвращает краткое описание для логов, без персональных данных.
func (s Student) String() string {
	return fmt.Sprintf("Student(%s, %s)", s.id, s.ClassIdentifier())
}
