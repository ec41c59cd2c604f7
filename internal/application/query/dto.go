// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// Плоские представления сущностей для транспортного слоя.
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO - студент в ответах API.
type StudentDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department"`
	Program    string `json:"program"`
	Year       int    `json:"year"`
	Section    string `json:"section"`

	// Class - идентификатор группы, например "CS-UG-2-B".
	Class string `json:"class"`

	// PrivacyHash наружу не отдаётся, только признак наличия.
	HasPrivacyHash bool `json:"has_privacy_hash"`
}

// NewStudentDTO строит DTO из сущности.
func NewStudentDTO(s student.Student) StudentDTO {
	return StudentDTO{
		ID:             s.ID(),
		Name:           s.Name(),
		Role:           s.Role(),
		Department:     s.Department(),
		Program:        s.Program().String(),
		Year:           int(s.Year()),
		Section:        s.Section().String(),
		Class:          s.ClassIdentifier(),
		HasPrivacyHash: s.HasPrivacyHash(),
	}
}

// AttendanceDTO - запись посещаемости в ответах API.
type AttendanceDTO struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Date        string    `json:"date"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Subject     string    `json:"subject"`
	Room        string    `json:"room,omitempty"`
	Status      string    `json:"status"`
}

// NewAttendanceDTO строит DTO из записи.
func NewAttendanceDTO(r attendance.Record) AttendanceDTO {
	return AttendanceDTO{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		Date:        r.Date.String(),
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		Subject:     r.Subject,
		Room:        r.Room,
		Status:      r.Status.String(),
	}
}
