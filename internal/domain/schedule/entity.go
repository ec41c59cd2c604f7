// Package schedule содержит модель расписания: дни, слоты, занятия
// и порт хранилища расписания.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAY
// ══════════════════════════════════════════════════════════════════════════════

// Day - день недели в полной английской форме, как в расписании.
type Day string

const (
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
	Saturday  Day = "Saturday"
	Sunday    Day = "Sunday"
)

// Weekdays - учебные дни, используемые планировщиком.
var Weekdays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday}

// IsValid проверяет, что день известен.
func (d Day) IsValid() bool {
	_, ok := dayIndex[d]
	return ok
}

// String возвращает строковое представление дня.
func (d Day) String() string {
	return string(d)
}

var dayIndex = map[Day]time.Weekday{
	Sunday: time.Sunday, Monday: time.Monday, Tuesday: time.Tuesday,
	Wednesday: time.Wednesday, Thursday: time.Thursday, Friday: time.Friday,
	Saturday: time.Saturday,
}

// DayOf возвращает день недели момента t в его часовом поясе.
func DayOf(t time.Time) Day {
	return Day(t.Weekday().String())
}

// ParseDay принимает полную ("Monday") или короткую ("Mon") форму без учёта регистра.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	for d := range dayIndex {
		if strings.EqualFold(s, string(d)) || strings.EqualFold(s, string(d)[:3]) {
			return d, nil
		}
	}
	return "", shared.WrapError("schedule", "ParseDay", shared.ErrValidation, fmt.Sprintf("unknown day %q", s), shared.ErrInvalidDay)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK & TIME SLOT
// ══════════════════════════════════════════════════════════════════════════════

// Clock - время суток в минутах от полуночи.
type Clock int

// ClockOf возвращает время суток момента t.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// NewClock собирает время из часов и минут.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock разбирает "H:MM" или "HH:MM".
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: %w", s, shared.ErrInvalidTimeSlot)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, shared.ErrInvalidTimeSlot)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, shared.ErrInvalidTimeSlot)
	}
	return NewClock(hour, minute), nil
}

// String возвращает время в формате HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// TimeSlot - полуоткрытый интервал [Start, End).
type TimeSlot struct {
	Start Clock
	End   Clock
}

// NewTimeSlot создаёт слот, Start должен быть раньше End.
func NewTimeSlot(start, end Clock) (TimeSlot, error) {
	if start >= end {
		return TimeSlot{}, shared.WrapError("schedule", "NewTimeSlot", shared.ErrValidation,
			fmt.Sprintf("slot start %s must be before end %s", start, end), shared.ErrInvalidTimeSlot)
	}
	return TimeSlot{Start: start, End: end}, nil
}

// ParseTimeSlot разбирает "09:00-10:00".
func ParseTimeSlot(s string) (TimeSlot, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return TimeSlot{}, shared.WrapError("schedule", "ParseTimeSlot", shared.ErrValidation, fmt.Sprintf("invalid slot %q", s), shared.ErrInvalidTimeSlot)
	}
	start, err := ParseClock(a)
	if err != nil {
		return TimeSlot{}, err
	}
	end, err := ParseClock(b)
	if err != nil {
		return TimeSlot{}, err
	}
	return NewTimeSlot(start, end)
}

// Contains проверяет Start <= c < End.
func (t TimeSlot) Contains(c Clock) bool {
	return c >= t.Start && c < t.End
}

// Overlaps проверяет пересечение двух слотов.
func (t TimeSlot) Overlaps(o TimeSlot) bool {
	return t.Start < o.End && o.Start < t.End
}

// Duration возвращает длительность слота.
func (t TimeSlot) Duration() time.Duration {
	return time.Duration(t.End-t.Start) * time.Minute
}

// String возвращает слот в формате "HH:MM-HH:MM".
func (t TimeSlot) String() string {
	return t.Start.String() + "-" + t.End.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - одно занятие в расписании.
type Entry struct {
	Day        Day
	Slot       TimeSlot
	Faculty    string
	Department string
	Program    student.Program
	Year       student.Year
	Section    student.Section
	Subject    string
	Teacher    string
	Room       string
}

// Validate проверяет обязательные поля занятия.
func (e Entry) Validate() error {
	if !e.Day.IsValid() {
		return shared.WrapError("schedule", "Validate", shared.ErrValidation, fmt.Sprintf("unknown day %q", e.Day), shared.ErrInvalidDay)
	}
	if e.Slot.Start >= e.Slot.End {
		return shared.WrapError("schedule", "Validate", shared.ErrValidation, "invalid slot "+e.Slot.String(), shared.ErrInvalidTimeSlot)
	}
	if strings.TrimSpace(e.Subject) == "" {
		return shared.WrapError("schedule", "Validate", shared.ErrValidation, "subject cannot be empty", shared.ErrEmptyValue)
	}
	if strings.TrimSpace(e.Room) == "" {
		return shared.WrapError("schedule", "Validate", shared.ErrValidation, "room cannot be empty", shared.ErrEmptyValue)
	}
	return nil
}

// MatchesStudent проверяет, что занятие предназначено группе студента.
// Пустой Department в занятии означает общее занятие для всех кафедр.
func (e Entry) MatchesStudent(s student.Student) bool {
	if e.Department != "" && e.Department != s.Department() {
		return false
	}
	return e.Program == s.Program() && e.Year == s.Year() && e.Section == s.Section()
}

// SameClass проверяет, что два занятия относятся к одной группе.
func (e Entry) SameClass(o Entry) bool {
	return e.Faculty == o.Faculty && e.Department == o.Department &&
		e.Program == o.Program && e.Year == o.Year && e.Section == o.Section
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище расписания.
type Repository interface {
	// ForStudent возвращает занятия группы студента в указанный день,
	// отсортированные по началу.
	ForStudent(ctx context.Context, s student.Student, day Day) ([]Entry, error)

	// EntryAt возвращает первое занятие, слот которого содержит clock.
	// Возвращает shared.ErrScheduleEntryNotFound, если занятия нет.
	EntryAt(ctx context.Context, s student.Student, day Day, clock Clock) (Entry, error)

	// Save добавляет занятие.
	Save(ctx context.Context, e Entry) error

	// All возвращает всё расписание.
	All(ctx context.Context) ([]Entry, error)

	// Delete удаляет занятие по дню, началу и аудитории.
	// Возвращает false, если такого занятия нет.
	Delete(ctx context.Context, day Day, start Clock, room string) (bool, error)
}

// FirstContaining возвращает первое занятие, содержащее clock.
// Общая логика для реализаций Repository.EntryAt.
func FirstContaining(entries []Entry, clock Clock) (Entry, bool) {
	for _, e := range entries {
		if e.Slot.Contains(clock) {
			return e, true
		}
	}
	return Entry{}, false
}
