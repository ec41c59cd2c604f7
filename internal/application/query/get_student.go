package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentQuery запрашивает одного студента по ID.
type GetStudentQuery struct {
	StudentID string
}

// GetStudentHandler обрабатывает GetStudentQuery.
type GetStudentHandler struct {
	students student.Repository
}

// NewGetStudentHandler создаёт обработчик.
func NewGetStudentHandler(students student.Repository) *GetStudentHandler {
	return &GetStudentHandler{students: students}
}

// Handle возвращает студента или ошибку вида shared.ErrNotFound.
func (h *GetStudentHandler) Handle(ctx context.Context, q GetStudentQuery) (*StudentDTO, error) {
	id := strings.TrimSpace(q.StudentID)
	if id == "" {
		return nil, shared.ErrInvalidStudentID
	}

	s, err := h.students.GetByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.WrapError("student", "Get", shared.ErrNotFound,
			fmt.Sprintf("Student %s not found", id), shared.ErrStudentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get_student: %w", err)
	}

	dto := NewStudentDTO(s)
	return &dto, nil
}
