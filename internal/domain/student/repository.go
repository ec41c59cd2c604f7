package student

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения студентов.
type Repository interface {
	// Save создаёт студента или обновляет существующего.
	Save(ctx context.Context, s Student) error

	// GetByID возвращает студента по ID.
	// Возвращает shared.ErrStudentNotFound, если студент не найден.
	GetByID(ctx context.Context, id string) (Student, error)

	// List возвращает студентов с пагинацией, отсортированных по ID.
	List(ctx context.Context, opts ListOptions) ([]Student, error)

	// FindByClass возвращает студентов учебной группы.
	FindByClass(ctx context.Context, class ClassFilter) ([]Student, error)

	// Delete удаляет студента.
	// Возвращает shared.ErrStudentNotFound, если студент не найден.
	Delete(ctx context.Context, id string) error

	// Count возвращает общее количество студентов.
	Count(ctx context.Context) (int, error)
}

// ListOptions содержит параметры пагинации.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions возвращает параметры по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 100}
}

// ClassFilter описывает учебную группу. Пустые поля не фильтруют.
type ClassFilter struct {
	Department string
	Program    Program
	Year       Year
	Section    Section
}

// Matches проверяет, относится ли студент к группе.
func (f ClassFilter) Matches(s Student) bool {
	if f.Department != "" && f.Department != s.Department() {
		return false
	}
	if f.Program != "" && f.Program != s.Program() {
		return false
	}
	if f.Year != 0 && f.Year != s.Year() {
		return false
	}
	if f.Section != "" && f.Section != s.Section() {
		return false
	}
	return true
}

// IsEmpty сообщает, что фильтр не задан.
func (f ClassFilter) IsEmpty() bool {
	return f == ClassFilter{}
}
