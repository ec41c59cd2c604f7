package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ATTENDANCE QUERY
// Выборка записей посещаемости со сводкой по статусам.
// ══════════════════════════════════════════════════════════════════════════════

// GetAttendanceQuery содержит фильтр. Пустые поля не фильтруют.
type GetAttendanceQuery struct {
	StudentID string
	Date      string
	Subject   string
	Status    string

	// Limit - по умолчанию 200, максимум 1000.
	Limit int
}

// Validate проверяет и нормализует фильтр.
func (q *GetAttendanceQuery) Validate() error {
	q.StudentID = strings.TrimSpace(q.StudentID)
	q.Subject = strings.TrimSpace(q.Subject)

	if q.Date != "" {
		d, err := shared.ParseDateKey(q.Date)
		if err != nil {
			return shared.WrapError("attendance", "Query", shared.ErrValidation, "date must be YYYY-MM-DD", err)
		}
		q.Date = d.String()
	}
	if q.Status != "" {
		s, err := attendance.ParseStatus(q.Status)
		if err != nil {
			return err
		}
		q.Status = s.String()
	}

	if q.Limit <= 0 {
		q.Limit = 200
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
	return nil
}

func (q GetAttendanceQuery) filter() attendance.Filter {
	return attendance.Filter{
		StudentID: q.StudentID,
		Date:      shared.DateKey(q.Date),
		Subject:   q.Subject,
		Status:    attendance.Status(q.Status),
		Limit:     q.Limit,
	}
}

// GetAttendanceResult - записи и сводка.
type GetAttendanceResult struct {
	Records []AttendanceDTO `json:"records"`

	// Summary - количество записей по статусам.
	Summary map[string]int `json:"summary"`
}

// GetAttendanceHandler обрабатывает GetAttendanceQuery.
type GetAttendanceHandler struct {
	records attendance.Repository
}

// NewGetAttendanceHandler создаёт обработчик.
func NewGetAttendanceHandler(records attendance.Repository) *GetAttendanceHandler {
	return &GetAttendanceHandler{records: records}
}

// Handle возвращает записи по фильтру.
func (h *GetAttendanceHandler) Handle(ctx context.Context, q GetAttendanceQuery) (*GetAttendanceResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	recs, err := h.records.Find(ctx, q.filter())
	if err != nil {
		return nil, fmt.Errorf("get_attendance: %w", err)
	}

	res := &GetAttendanceResult{
		Records: make([]AttendanceDTO, 0, len(recs)),
		Summary: make(map[string]int),
	}
	for _, r := range recs {
		res.Records = append(res.Records, NewAttendanceDTO(r))
		res.Summary[r.Status.String()]++
	}
	return res, nil
}
