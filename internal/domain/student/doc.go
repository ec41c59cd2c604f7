// Package student содержит доменную модель студента кампуса.
//
// Пакет определяет:
//
//   - Value object: Student (неизменяемый, сравнимый по значению)
//   - Перечисления: Program (UG/PG), Year (1-4), Section (A/B/C)
//   - Интерфейс репозитория: Repository
//
// # Создание студента
//
//	s, err := student.New(student.Params{
//	    ID:         "S1",
//	    Name:       "Ana",
//	    Role:       student.DefaultRole,
//	    Department: "CS",
//	    Program:    student.ProgramUG,
//	    Year:       2,
//	    Section:    student.SectionB,
//	})
//	if shared.IsValidation(err) {
//	    // ...
//	}
//	s.ClassIdentifier() // "CS-UG-2-B"
//
// Role и Department - свободные строки; Program, Year и Section
// проверяются при создании.
package student
