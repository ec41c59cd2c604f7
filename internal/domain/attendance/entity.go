// Package attendance содержит доменную модель посещаемости:
// записи о присутствии, их статусы и порты хранения.
package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - итог отметки студента на занятии.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusTruant  Status = "Truant"
	StatusLate    Status = "Late"
)

// IsValid проверяет, что статус известен.
func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusTruant, StatusLate:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// ParseStatus разбирает статус без учёта регистра.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusPresent, StatusAbsent, StatusTruant, StatusLate} {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", shared.ErrInvalidAttendanceStatus
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record - одна запись о посещении занятия.
type Record struct {
	ID          string
	Timestamp   time.Time
	StudentID   string
	StudentName string
	Subject     string
	Room        string
	Status      Status
	Date        shared.DateKey
}

// NewRecordParams содержит параметры новой записи.
type NewRecordParams struct {
	ID        string
	Student   student.Student
	Subject   string
	Room      string
	Status    Status
	Timestamp time.Time
}

// NewRecord создаёт запись с проверкой полей.
// Дата вычисляется из Timestamp в его часовом поясе.
func NewRecord(p NewRecordParams) (Record, error) {
	if p.Student.IsZero() || p.Student.ID() == "" {
		return Record{}, shared.WrapError("attendance", "NewRecord", shared.ErrValidation, "student is required", shared.ErrInvalidStudentID)
	}
	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		return Record{}, shared.WrapError("attendance", "NewRecord", shared.ErrValidation, "subject cannot be empty", shared.ErrEmptyValue)
	}
	if !p.Status.IsValid() {
		return Record{}, shared.WrapError("attendance", "NewRecord", shared.ErrValidation, "unknown status "+string(p.Status), shared.ErrInvalidAttendanceStatus)
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return Record{
		ID:          p.ID,
		Timestamp:   ts,
		StudentID:   p.Student.ID(),
		StudentName: p.Student.Name(),
		Subject:     subject,
		Room:        strings.TrimSpace(p.Room),
		Status:      p.Status,
		Date:        shared.DateKeyOf(ts),
	}, nil
}

// IsCompliant возвращает true, если студент был на месте.
func (r Record) IsCompliant() bool {
	return r.Status == StatusPresent
}

// Key - ключ уникальности записи: студент, дата, предмет.
func (r Record) Key() Key {
	return Key{StudentID: r.StudentID, Date: r.Date, Subject: r.Subject}
}

// Key идентифицирует отметку студента за день по предмету.
type Key struct {
	StudentID string
	Date      shared.DateKey
	Subject   string
}

// String возвращает ключ в виде "student:date:subject".
func (k Key) String() string {
	return k.StudentID + ":" + k.Date.String() + ":" + k.Subject
}

// ══════════════════════════════════════════════════════════════════════════════
// FILTER
// ══════════════════════════════════════════════════════════════════════════════

// Filter задаёт выборку записей. Пустые поля не фильтруют.
type Filter struct {
	StudentID string
	Date      shared.DateKey
	Subject   string
	Status    Status
	Limit     int
}

// Matches проверяет запись по фильтру.
func (f Filter) Matches(r Record) bool {
	if f.StudentID != "" && f.StudentID != r.StudentID {
		return false
	}
	if f.Date != "" && f.Date != r.Date {
		return false
	}
	if f.Subject != "" && f.Subject != r.Subject {
		return false
	}
	if f.Status != "" && f.Status != r.Status {
		return false
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище записей посещаемости.
type Repository interface {
	// MarkPresent сохраняет запись. Возвращает false без ошибки, если
	// запись с тем же Key уже существует.
	MarkPresent(ctx context.Context, r Record) (bool, error)

	// Find возвращает записи по фильтру в порядке времени.
	Find(ctx context.Context, f Filter) ([]Record, error)

	// IsAlreadyMarked проверяет наличие записи по ключу.
	IsAlreadyMarked(ctx context.Context, k Key) (bool, error)
}

// Recorder - минимальный порт фиксации посещения: один студент, один момент.
type Recorder interface {
	RecordAttendance(ctx context.Context, s student.Student, at time.Time) error
}

// DuplicateGuard - быстрая проверка повторной отметки перед записью
// в основное хранилище (например, через Redis SETNX).
type DuplicateGuard interface {
	// Claim атомарно занимает ключ; false - ключ уже занят.
	Claim(ctx context.Context, k Key) (bool, error)

	// Release освобождает ключ, если запись не удалась.
	Release(ctx context.Context, k Key) error
}
