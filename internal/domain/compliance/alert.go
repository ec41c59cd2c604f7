package compliance

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEVERITY
// ══════════════════════════════════════════════════════════════════════════════

// Severity - уровень тревоги.
type Severity string

const (
	// SeveritySecurity - попытки подмены лица, несанкционированный доступ.
	SeveritySecurity Severity = "Security"
	// SeverityWarning - прогулы, шум.
	SeverityWarning Severity = "Warning"
	// SeverityCritical - крики, насилие, длительный громкий шум.
	SeverityCritical Severity = "Critical"
	// SeverityGrooming - нарушения формы одежды.
	SeverityGrooming Severity = "Grooming"
)

// IsValid проверяет, что уровень известен.
func (s Severity) IsValid() bool {
	switch s {
	case SeveritySecurity, SeverityWarning, SeverityCritical, SeverityGrooming:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление.
func (s Severity) String() string {
	return string(s)
}

// Recipient возвращает роль, которой направляется тревога.
func (s Severity) Recipient() string {
	switch s {
	case SeveritySecurity:
		return "Security"
	case SeverityWarning:
		return "Faculty"
	case SeverityCritical:
		return "Dean"
	case SeverityGrooming:
		return "Disciplinary Committee"
	default:
		return "Admin"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERT
// ══════════════════════════════════════════════════════════════════════════════

// Alert - одна тревога.
type Alert struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Severity  Severity               `json:"type"`
	Message   string                 `json:"msg"`
	Zone      string                 `json:"zone"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// RequiresImmediateAction - тревоги безопасности и критические.
func (a Alert) RequiresImmediateAction() bool {
	return a.Severity == SeveritySecurity || a.Severity == SeverityCritical
}

// Recipient возвращает роль-получателя.
func (a Alert) Recipient() string {
	return a.Severity.Recipient()
}

// AlertService - порт хранения и отправки тревог.
type AlertService interface {
	// Trigger сохраняет тревогу. Действие необратимо.
	Trigger(ctx context.Context, a Alert) error

	// Recent возвращает тревоги за последние window, по зоне или все,
	// если zone пустая.
	Recent(ctx context.Context, zone string, window time.Duration) ([]Alert, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOISE RULES
// ══════════════════════════════════════════════════════════════════════════════

// AudioMetrics - характеристики аудиофрагмента.
type AudioMetrics struct {
	// DBLevel - нормализованная громкость 0..1.
	DBLevel          float64 `json:"db_level"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
	IsVoiceDetected  bool    `json:"is_voice_detected"`
}

// NoiseRules - пороги шума. Громкость нормализована в 0..1.
type NoiseRules struct {
	LectureThreshold float64
	BreakThreshold   float64
	ScreamThreshold  float64
	DebounceWindow   time.Duration
}

// DefaultNoiseRules возвращает пороги по умолчанию:
// 40 дБ на лекции, 80 дБ на перемене, 85 дБ - крик.
func DefaultNoiseRules() NoiseRules {
	return NoiseRules{
		LectureThreshold: 0.40,
		BreakThreshold:   0.80,
		ScreamThreshold:  0.85,
		DebounceWindow:   5 * time.Minute,
	}
}

// ShouldTrigger проверяет превышение порога с учётом режима.
func (r NoiseRules) ShouldTrigger(level float64, lectureMode bool) bool {
	threshold := r.BreakThreshold
	if lectureMode {
		threshold = r.LectureThreshold
	}
	return level > threshold
}

// Severity определяет уровень тревоги по громкости.
func (r NoiseRules) Severity(level float64) Severity {
	if level > r.ScreamThreshold {
		return SeverityCritical
	}
	return SeverityWarning
}

// ShouldDebounce подавляет тревогу, если за окно уже была такая же.
func ShouldDebounce(recentCount int) bool {
	return recentCount > 0
}
