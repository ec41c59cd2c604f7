// Package compliance содержит правила соответствия расписанию
// (прогулы) и правила тревог (шум, безопасность).
// Все функции чистые и не зависят от инфраструктуры.
package compliance

import (
	"context"
	"fmt"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// DefaultDebounceThreshold - сколько подтверждений несоответствия нужно,
// чтобы считать прогул устойчивым.
const DefaultDebounceThreshold = 30

// ══════════════════════════════════════════════════════════════════════════════
// LOCATION COMPLIANCE
// ══════════════════════════════════════════════════════════════════════════════

// IsInExpectedLocation проверяет, находится ли студент там, где должен.
// Пустая ожидаемая зона означает свободное время и всегда соответствует.
func IsInExpectedLocation(current, expected shared.Zone) bool {
	if expected == "" {
		return true
	}
	return current.SameAs(expected)
}

// ComplianceMessage формирует сообщение для человека.
func ComplianceMessage(compliant bool, expected shared.Zone, subject string) string {
	if expected == "" {
		return "Free Period"
	}
	if compliant {
		return "Compliant"
	}
	if subject != "" {
		return fmt.Sprintf("TRUANCY: Expected in %s for %s", expected, subject)
	}
	return fmt.Sprintf("TRUANCY: Expected in %s", expected)
}

// RequiresDebounce сообщает, что нарушение подтверждено достаточно раз.
func RequiresDebounce(violations, threshold int) bool {
	return violations >= threshold
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// ViolationCounter считает подряд идущие несоответствия по студенту.
type ViolationCounter interface {
	// Increment увеличивает счётчик и возвращает новое значение.
	Increment(ctx context.Context, studentID string) (int, error)

	// Reset обнуляет счётчик.
	Reset(ctx context.Context, studentID string) error
}
