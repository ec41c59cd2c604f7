// Package timetable stores the campus timetable and teacher workloads in
// YAML files. It is the default schedule.Repository when no database is
// configured and the import/export format for the timetable command.
package timetable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// FILE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// Row is one timetable entry as written in the YAML file.
type Row struct {
	Day        string `yaml:"day"`
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
	Faculty    string `yaml:"faculty,omitempty"`
	Department string `yaml:"department,omitempty"`
	Program    string `yaml:"program"`
	Year       int    `yaml:"year"`
	Section    string `yaml:"section"`
	Subject    string `yaml:"subject"`
	Teacher    string `yaml:"teacher,omitempty"`
	Room       string `yaml:"room"`
}

// File is the root document of a timetable file.
type File struct {
	Entries []Row `yaml:"entries"`
}

// ToEntry converts the row into a validated schedule entry.
func (r Row) ToEntry() (schedule.Entry, error) {
	day, err := schedule.ParseDay(r.Day)
	if err != nil {
		return schedule.Entry{}, err
	}
	slot, err := schedule.ParseTimeSlot(r.Start + "-" + r.End)
	if err != nil {
		return schedule.Entry{}, err
	}

	e := schedule.Entry{
		Day:        day,
		Slot:       slot,
		Faculty:    strings.TrimSpace(r.Faculty),
		Department: strings.TrimSpace(r.Department),
		Program:    programOf(r),
		Year:       yearOf(r.Year),
		Section:    sectionOf(r),
		Subject:    strings.TrimSpace(r.Subject),
		Teacher:    strings.TrimSpace(r.Teacher),
		Room:       strings.TrimSpace(r.Room),
	}
	if err := e.Validate(); err != nil {
		return schedule.Entry{}, err
	}
	return e, nil
}

func programOf(r Row) student.Program {
	return student.Program(strings.ToUpper(strings.TrimSpace(r.Program)))
}

func sectionOf(r Row) student.Section {
	return student.Section(strings.ToUpper(strings.TrimSpace(r.Section)))
}

func yearOf(y int) student.Year {
	return student.Year(y)
}

// RowOf converts an entry into its file representation.
func RowOf(e schedule.Entry) Row {
	return Row{
		Day:        e.Day.String(),
		Start:      e.Slot.Start.String(),
		End:        e.Slot.End.String(),
		Faculty:    e.Faculty,
		Department: e.Department,
		Program:    e.Program.String(),
		Year:       e.Year.Int(),
		Section:    e.Section.String(),
		Subject:    e.Subject,
		Teacher:    e.Teacher,
		Room:       e.Room,
	}
}

// Decode parses a timetable document. Row numbers in errors are 1-based.
func Decode(data []byte) ([]schedule.Entry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse timetable: %w", err)
	}

	entries := make([]schedule.Entry, 0, len(f.Entries))
	for i, row := range f.Entries {
		e, err := row.ToEntry()
		if err != nil {
			return nil, fmt.Errorf("timetable row %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Encode renders entries as a timetable document.
func Encode(entries []schedule.Entry) ([]byte, error) {
	f := File{Entries: make([]Row, 0, len(entries))}
	for _, e := range entries {
		f.Entries = append(f.Entries, RowOf(e))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode timetable: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is a schedule.Repository backed by a YAML file. The whole timetable
// is kept in memory and rewritten on every change.
type Store struct {
	path string

	mu      sync.RWMutex
	entries []schedule.Entry
}

// Open loads the timetable at path. A missing file is an empty timetable.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file from disk.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.entries = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read timetable %s: %w", s.path, err)
	}

	entries, err := Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ForStudent returns the student's classes on day ordered by start time.
func (s *Store) ForStudent(ctx context.Context, st student.Student, day schedule.Day) ([]schedule.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schedule.Entry
	for _, e := range s.entries {
		if e.Day == day && e.MatchesStudent(st) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Slot.Start < out[j].Slot.Start })
	return out, nil
}

// EntryAt returns the student's class running at clock.
func (s *Store) EntryAt(ctx context.Context, st student.Student, day schedule.Day, clock schedule.Clock) (schedule.Entry, error) {
	entries, err := s.ForStudent(ctx, st, day)
	if err != nil {
		return schedule.Entry{}, err
	}
	if e, ok := schedule.FirstContaining(entries, clock); ok {
		return e, nil
	}
	return schedule.Entry{}, shared.ErrScheduleEntryNotFound
}

// Save appends an entry and persists the file.
func (s *Store) Save(ctx context.Context, e schedule.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(append([]schedule.Entry(nil), s.entries...), e)
	if err := writeFile(s.path, next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// All returns a copy of the timetable.
func (s *Store) All(ctx context.Context) ([]schedule.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schedule.Entry(nil), s.entries...), nil
}

// Delete removes entries matching day, start and room.
func (s *Store) Delete(ctx context.Context, day schedule.Day, start schedule.Clock, room string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]schedule.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Day == day && e.Slot.Start == start && e.Room == room {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(s.entries) {
		return false, nil
	}
	if err := writeFile(s.path, kept); err != nil {
		return false, err
	}
	s.entries = kept
	return true, nil
}

// ReplaceAll swaps the whole timetable.
func (s *Store) ReplaceAll(ctx context.Context, entries []schedule.Entry) error {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append([]schedule.Entry(nil), entries...)
	if err := writeFile(s.path, next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

func writeFile(path string, entries []schedule.Entry) error {
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to a sibling temp file and renames it over path.
func WriteAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", path, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

var _ schedule.Repository = (*Store)(nil)
