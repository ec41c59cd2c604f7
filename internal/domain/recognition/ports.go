// Package recognition описывает порты распознавания лиц и расшифровки речи.
// Модели детекции, эмбеддингов и транскрипции - внешние сервисы;
// здесь только контракты и чистая математика над эмбеддингами.
package recognition

import (
	"context"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// DefaultMatchThreshold - минимальное косинусное сходство для совпадения.
const DefaultMatchThreshold = 0.6

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// BBox - рамка лица [x1, y1, x2, y2] в пикселях.
type BBox [4]float64

// Face - результат детекции одного лица.
type Face struct {
	BBox       BBox      `json:"bbox"`
	Embedding  Embedding `json:"embedding"`
	Confidence float64   `json:"confidence"`
}

// Observation - одно наблюдение с камеры.
type Observation struct {
	Image      []byte
	Zone       shared.Zone
	CapturedAt time.Time
}

// Match - результат поиска в галерее.
type Match struct {
	StudentID  string
	Similarity float64
}

// Identification - студент, распознанный в наблюдении.
type Identification struct {
	Student    student.Student
	Confidence shared.Confidence
	Face       Face
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// FaceDetector находит лица на изображении и считает эмбеддинги.
type FaceDetector interface {
	DetectFaces(ctx context.Context, image []byte) ([]Face, error)
}

// FaceIndex - галерея эмбеддингов зарегистрированных студентов.
type FaceIndex interface {
	// Add добавляет или заменяет эмбеддинг студента.
	Add(ctx context.Context, studentID string, e Embedding) error

	// Search возвращает лучшее совпадение со сходством не ниже threshold.
	Search(ctx context.Context, e Embedding, threshold float64) (Match, bool, error)

	// Remove удаляет эмбеддинг студента. Отсутствие - не ошибка.
	Remove(ctx context.Context, studentID string) error

	// Count возвращает размер галереи.
	Count(ctx context.Context) (int, error)
}

// Recognizer определяет студента по одному наблюдению.
// ok == false означает, что никто не распознан; это не ошибка.
type Recognizer interface {
	Identify(ctx context.Context, obs Observation) (id Identification, ok bool, err error)
}

// Transcriber отдаёт последнюю готовую расшифровку.
// Не блокируется: если нового результата нет, возвращает ok == false.
type Transcriber interface {
	TranscribeLatest() (text string, ok bool)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE
// ══════════════════════════════════════════════════════════════════════════════

// Sighting - факт распознавания студента в зоне.
type Sighting struct {
	StudentID  string    `json:"student_id"`
	Zone       string    `json:"zone"`
	Confidence float64   `json:"confidence"`
	SeenAt     time.Time `json:"seen_at"`
}

// PresenceTracker хранит последние места, где видели студентов.
type PresenceTracker interface {
	// Seen фиксирует наблюдение.
	Seen(ctx context.Context, s Sighting) error

	// LastSeen возвращает последнее наблюдение студента.
	LastSeen(ctx context.Context, studentID string) (Sighting, bool, error)

	// InZone возвращает студентов, последний раз замеченных в зоне
	// не раньше чем within назад.
	InZone(ctx context.Context, zone string, within time.Duration) ([]Sighting, error)
}
