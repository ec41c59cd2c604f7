// Package memory provides in-process implementations of the storage ports.
// They back the single-node mode (no PostgreSQL, no Redis) and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository.
type StudentRepository struct {
	mu         sync.RWMutex
	students   map[string]student.Student
	embeddings map[string]recognition.Embedding
}

// NewStudentRepository creates an empty repository.
func NewStudentRepository() *StudentRepository {
	return &StudentRepository{
		students:   make(map[string]student.Student),
		embeddings: make(map[string]recognition.Embedding),
	}
}

// Save inserts or replaces a student.
func (r *StudentRepository) Save(_ context.Context, s student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[s.ID()] = s
	return nil
}

// GetByID returns a student or shared.ErrStudentNotFound.
func (r *StudentRepository) GetByID(_ context.Context, id string) (student.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.students[id]
	if !ok {
		return student.Student{}, shared.ErrStudentNotFound
	}
	return s, nil
}

// List returns students ordered by ID.
func (r *StudentRepository) List(_ context.Context, opts student.ListOptions) ([]student.Student, error) {
	all := r.sorted(func(student.Student) bool { return true })
	if opts.Offset >= len(all) {
		return []student.Student{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

// FindByClass returns students of a class ordered by ID.
func (r *StudentRepository) FindByClass(_ context.Context, class student.ClassFilter) ([]student.Student, error) {
	return r.sorted(class.Matches), nil
}

// Delete removes a student.
func (r *StudentRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[id]; !ok {
		return shared.ErrStudentNotFound
	}
	delete(r.students, id)
	delete(r.embeddings, id)
	return nil
}

// Count returns the number of students.
func (r *StudentRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students), nil
}

// SaveEmbedding stores the enrolment embedding of a student.
func (r *StudentRepository) SaveEmbedding(_ context.Context, id string, e recognition.Embedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[id]; !ok {
		return shared.ErrStudentNotFound
	}
	r.embeddings[id] = append(recognition.Embedding(nil), e...)
	return nil
}

// Embeddings returns a copy of every stored embedding.
func (r *StudentRepository) Embeddings(_ context.Context) (map[string]recognition.Embedding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]recognition.Embedding, len(r.embeddings))
	for id, e := range r.embeddings {
		out[id] = e
	}
	return out, nil
}

func (r *StudentRepository) sorted(keep func(student.Student) bool) []student.Student {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]student.Student, 0, len(r.students))
	for _, s := range r.students {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements attendance.Repository.
type AttendanceRepository struct {
	mu      sync.RWMutex
	records []attendance.Record
	keys    map[attendance.Key]struct{}
}

// NewAttendanceRepository creates an empty repository.
func NewAttendanceRepository() *AttendanceRepository {
	return &AttendanceRepository{keys: make(map[attendance.Key]struct{})}
}

// MarkPresent appends the record unless its key already exists.
func (r *AttendanceRepository) MarkPresent(_ context.Context, rec attendance.Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := rec.Key()
	if _, ok := r.keys[k]; ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.keys[k] = struct{}{}
	r.records = append(r.records, rec)
	return true, nil
}

// Find returns matching records in insertion order.
func (r *AttendanceRepository) Find(_ context.Context, f attendance.Filter) ([]attendance.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []attendance.Record
	for _, rec := range r.records {
		if !f.Matches(rec) {
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// IsAlreadyMarked reports whether the key exists.
func (r *AttendanceRepository) IsAlreadyMarked(_ context.Context, k attendance.Key) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[k]
	return ok, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COUNTERS & GUARDS
// ══════════════════════════════════════════════════════════════════════════════

// ViolationCounter implements compliance.ViolationCounter.
type ViolationCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewViolationCounter creates a counter.
func NewViolationCounter() *ViolationCounter {
	return &ViolationCounter{counts: make(map[string]int)}
}

// Increment bumps and returns the counter.
func (c *ViolationCounter) Increment(_ context.Context, studentID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[studentID]++
	return c.counts[studentID], nil
}

// Reset clears the counter.
func (c *ViolationCounter) Reset(_ context.Context, studentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, studentID)
	return nil
}

// AttendanceGuard implements attendance.DuplicateGuard.
type AttendanceGuard struct {
	mu     sync.Mutex
	claims map[attendance.Key]struct{}
}

// NewAttendanceGuard creates a guard.
func NewAttendanceGuard() *AttendanceGuard {
	return &AttendanceGuard{claims: make(map[attendance.Key]struct{})}
}

// Claim takes the key.
func (g *AttendanceGuard) Claim(_ context.Context, k attendance.Key) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.claims[k]; ok {
		return false, nil
	}
	g.claims[k] = struct{}{}
	return true, nil
}

// Release frees the key.
func (g *AttendanceGuard) Release(_ context.Context, k attendance.Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, k)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERTS
// ══════════════════════════════════════════════════════════════════════════════

// AlertStore implements compliance.AlertService with a capped slice.
type AlertStore struct {
	mu        sync.RWMutex
	alerts    []compliance.Alert
	retention int
	now       func() time.Time
}

// NewAlertStore keeps at most retention alerts.
func NewAlertStore(retention int) *AlertStore {
	if retention <= 0 {
		retention = 100
	}
	return &AlertStore{retention: retention, now: time.Now}
}

// Trigger stores an alert.
func (s *AlertStore) Trigger(_ context.Context, a compliance.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	if len(s.alerts) > s.retention {
		s.alerts = s.alerts[len(s.alerts)-s.retention:]
	}
	return nil
}

// Recent returns alerts newer than window, newest first.
func (s *AlertStore) Recent(_ context.Context, zone string, window time.Duration) ([]compliance.Alert, error) {
	cutoff := s.now().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []compliance.Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if a.Timestamp.Before(cutoff) {
			continue
		}
		if zone != "" && a.Zone != zone {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSCRIPTS
// ══════════════════════════════════════════════════════════════════════════════

// TranscriptBuffer is a ring of finished transcripts.
// It implements recognition.Transcriber.
type TranscriptBuffer struct {
	mu    sync.Mutex
	items []string
	size  int
	read  int
}

// NewTranscriptBuffer keeps the last size transcripts.
func NewTranscriptBuffer(size int) *TranscriptBuffer {
	if size <= 0 {
		size = 32
	}
	return &TranscriptBuffer{size: size}
}

// Push adds a transcript. Blank text is ignored.
func (b *TranscriptBuffer) Push(_ context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, text)
	if len(b.items) > b.size {
		drop := len(b.items) - b.size
		b.items = b.items[drop:]
		b.read = max(0, b.read-drop)
	}
	return nil
}

// TranscribeLatest returns the newest transcript not yet returned.
func (b *TranscriptBuffer) TranscribeLatest() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.read >= len(b.items) {
		return "", false
	}
	b.read = len(b.items)
	return b.items[len(b.items)-1], true
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE
// ══════════════════════════════════════════════════════════════════════════════

// PresenceTracker implements recognition.PresenceTracker.
type PresenceTracker struct {
	mu   sync.RWMutex
	last map[string]recognition.Sighting
	now  func() time.Time
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{last: make(map[string]recognition.Sighting), now: time.Now}
}

// Seen records a sighting.
func (t *PresenceTracker) Seen(_ context.Context, s recognition.Sighting) error {
	if s.SeenAt.IsZero() {
		s.SeenAt = t.now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[s.StudentID] = s
	return nil
}

// LastSeen returns the last sighting of a student.
func (t *PresenceTracker) LastSeen(_ context.Context, studentID string) (recognition.Sighting, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.last[studentID]
	return s, ok, nil
}

// InZone returns recent sightings in zone, newest first.
func (t *PresenceTracker) InZone(_ context.Context, zone string, within time.Duration) ([]recognition.Sighting, error) {
	cutoff := t.now().Add(-within)

	t.mu.RLock()
	out := make([]recognition.Sighting, 0)
	for _, s := range t.last {
		if strings.EqualFold(s.Zone, zone) && !s.SeenAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SeenAt.After(out[j].SeenAt) })
	return out, nil
}

var (
	_ student.Repository          = (*StudentRepository)(nil)
	_ attendance.Repository       = (*AttendanceRepository)(nil)
	_ attendance.DuplicateGuard   = (*AttendanceGuard)(nil)
	_ compliance.ViolationCounter = (*ViolationCounter)(nil)
	_ compliance.AlertService     = (*AlertStore)(nil)
	_ recognition.Transcriber     = (*TranscriptBuffer)(nil)
	_ recognition.PresenceTracker = (*PresenceTracker)(nil)
)
