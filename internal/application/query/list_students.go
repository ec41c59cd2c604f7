package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// Постраничный список всех студентов или одной учебной группы.
// ══════════════════════════════════════════════════════════════════════════════

// ListStudentsQuery содержит фильтр и пагинацию.
type ListStudentsQuery struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Фильтр по группе (пустые поля не фильтруют)
	// ─────────────────────────────────────────────────────────────────────────

	Department string
	Program    string
	Year       int
	Section    string

	// ─────────────────────────────────────────────────────────────────────────
	// Пагинация
	// ─────────────────────────────────────────────────────────────────────────

	// Limit - по умолчанию 50, максимум 500.
	Limit  int
	Offset int
}

// Validate нормализует параметры.
func (q *ListStudentsQuery) Validate() error {
	if q.Offset < 0 {
		return shared.NewDomainError("student", "List", shared.ErrValidation, "offset cannot be negative")
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	q.Department = strings.TrimSpace(q.Department)
	q.Program = strings.ToUpper(strings.TrimSpace(q.Program))
	q.Section = strings.ToUpper(strings.TrimSpace(q.Section))
	return nil
}

func (q ListStudentsQuery) filtered() bool {
	return q.Department != "" || q.Program != "" || q.Year != 0 || q.Section != ""
}

func (q ListStudentsQuery) class() student.ClassFilter {
	return student.ClassFilter{
		Department: q.Department,
		Program:    student.Program(q.Program),
		Year:       student.Year(q.Year),
		Section:    student.Section(q.Section),
	}
}

// ListStudentsResult - страница студентов.
type ListStudentsResult struct {
	Students []StudentDTO `json:"students"`
	Total    int          `json:"total"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
}

// ListStudentsHandler обрабатывает ListStudentsQuery.
type ListStudentsHandler struct {
	students student.Repository
}

// NewListStudentsHandler создаёт обработчик.
func NewListStudentsHandler(students student.Repository) *ListStudentsHandler {
	return &ListStudentsHandler{students: students}
}

// Handle возвращает страницу студентов.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*ListStudentsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	res := &ListStudentsResult{Limit: q.Limit, Offset: q.Offset}

	var page []student.Student
	if q.filtered() {
		// группа целиком помещается в память, режем сами
		all, err := h.students.FindByClass(ctx, q.class())
		if err != nil {
			return nil, fmt.Errorf("list_students: find by class: %w", err)
		}
		res.Total = len(all)
		if q.Offset < len(all) {
			page = all[q.Offset:min(len(all), q.Offset+q.Limit)]
		}
	} else {
		total, err := h.students.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("list_students: count: %w", err)
		}
		res.Total = total

		page, err = h.students.List(ctx, student.ListOptions{Limit: q.Limit, Offset: q.Offset})
		if err != nil {
			return nil, fmt.Errorf("list_students: list: %w", err)
		}
	}

	res.Students = make([]StudentDTO, 0, len(page))
	for _, s := range page {
		res.Students = append(res.Students, NewStudentDTO(s))
	}
	return res, nil
}
