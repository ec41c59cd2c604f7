package command

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/faceindex"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/memory"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/timetable"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

// monday is 2024-03-11, a Monday.
var monday = time.Date(2024, 3, 11, 10, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fakeDetector struct {
	faces []recognition.Face
	err   error
}

func (f fakeDetector) DetectFaces(context.Context, []byte) ([]recognition.Face, error) {
	return f.faces, f.err
}

func ana() student.Student {
	return student.MustNew(student.Params{
		ID: "S1", Name: "Ana", Department: "CS",
		Program: student.ProgramUG, Year: 2, Section: student.SectionB,
	})
}

func entry(day schedule.Day, from, to int, subject, room string) schedule.Entry {
	return schedule.Entry{
		Day:        day,
		Slot:       schedule.TimeSlot{Start: schedule.NewClock(from, 0), End: schedule.NewClock(to, 0)},
		Department: "CS",
		Program:    student.ProgramUG,
		Year:       2,
		Section:    student.SectionB,
		Subject:    subject,
		Teacher:    "Dr. Rao",
		Room:       room,
	}
}

func openTimetable(t *testing.T, entries ...schedule.Entry) *timetable.Store {
	t.Helper()
	store, err := timetable.Open(filepath.Join(t.TempDir(), "timetable.yaml"))
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, store.Save(context.Background(), e))
	}
	return store
}

func seedStudents(t *testing.T, list ...student.Student) *memory.StudentRepository {
	t.Helper()
	repo := memory.NewStudentRepository()
	for _, s := range list {
		require.NoError(t, repo.Save(context.Background(), s))
	}
	return repo
}

type staticHasher string

func (h staticHasher) Hash(string) (string, error) { return string(h), nil }

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER STUDENT
// ══════════════════════════════════════════════════════════════════════════════

func TestRegisterStudent(t *testing.T) {
	ctx := context.Background()
	students := memory.NewStudentRepository()
	index := faceindex.New()
	events := &recordingPublisher{}
	face := recognition.Face{Embedding: recognition.Embedding{0.2, 0.9, 0.1}, Confidence: 0.97}

	h := NewRegisterStudentHandler(students, students, fakeDetector{faces: []recognition.Face{face}}, index, staticHasher("h4sh"), events)

	cmd := RegisterStudentCommand{
		ID: " S1 ", Name: "Ana", Department: "CS", Program: "ug", Year: 2, Section: "b",
		Image: []byte("jpeg"),
	}
	res, err := h.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "S1", res.Student.ID())
	assert.Equal(t, "CS-UG-2-B", res.Student.ClassIdentifier())
	assert.Equal(t, "h4sh", res.Student.PrivacyHash())
	assert.InDelta(t, 0.97, res.FaceConfidence, 1e-9)

	n, _ := index.Count(ctx)
	assert.Equal(t, 1, n)
	stored, _ := students.Embeddings(ctx)
	assert.Contains(t, stored, "S1")
	assert.Equal(t, []shared.EventType{shared.EventStudentRegistered}, events.types())

	_, err = h.Handle(ctx, cmd)
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Contains(t, err.Error(), "Student S1 already registered")
}

func TestRegisterStudent_FaceRules(t *testing.T) {
	ctx := context.Background()
	face := recognition.Face{Embedding: recognition.Embedding{1, 0}}
	cmd := RegisterStudentCommand{ID: "S2", Name: "Bo", Department: "CS", Program: "UG", Year: 1, Section: "A", Image: []byte("x")}

	tests := []struct {
		name  string
		faces []recognition.Face
		want  error
	}{
		{"no face", nil, shared.ErrNoFaceDetected},
		{"two faces", []recognition.Face{face, face}, shared.ErrMultipleFacesDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			students := memory.NewStudentRepository()
			h := NewRegisterStudentHandler(students, students, fakeDetector{faces: tt.faces}, faceindex.New(), nil, nil)

			_, err := h.Handle(ctx, cmd)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, shared.IsValidation(err))

			n, _ := students.Count(ctx)
			assert.Zero(t, n)
		})
	}

	_, err := NewRegisterStudentHandler(memory.NewStudentRepository(), nil, fakeDetector{}, faceindex.New(), nil, nil).
		Handle(ctx, RegisterStudentCommand{ID: "S3", Name: "Cy", Program: "UG", Year: 1, Section: "A"})
	assert.True(t, shared.IsValidation(err), "image is required")
}

type failingEmbeddings struct{}

func (failingEmbeddings) SaveEmbedding(context.Context, string, recognition.Embedding) error {
	return errors.New("disk full")
}

func TestRegisterStudent_RollsBackOnEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	students := memory.NewStudentRepository()
	index := faceindex.New()
	face := recognition.Face{Embedding: recognition.Embedding{1, 0}}

	h := NewRegisterStudentHandler(students, failingEmbeddings{}, fakeDetector{faces: []recognition.Face{face}}, index, nil, nil)
	_, err := h.Handle(ctx, RegisterStudentCommand{ID: "S1", Name: "Ana", Department: "CS", Program: "UG", Year: 2, Section: "B", Image: []byte("x")})
	require.Error(t, err)

	_, err = students.GetByID(ctx, "S1")
	assert.True(t, shared.IsNotFound(err))
	n, _ := index.Count(ctx)
	assert.Zero(t, n)
}

// ══════════════════════════════════════════════════════════════════════════════
// MARK & RECORD ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

func TestMarkAttendance(t *testing.T) {
	ctx := context.Background()
	records := memory.NewAttendanceRepository()
	events := &recordingPublisher{}
	h := NewMarkAttendanceHandler(seedStudents(t, ana()), records, memory.NewAttendanceGuard(), events, timeutil.NewFixedClock(monday))

	res, err := h.Handle(ctx, MarkAttendanceCommand{StudentID: "S1", Subject: "Math", Room: "Room 101"})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, res.Record.Status)
	assert.Equal(t, "Ana", res.Record.StudentName)
	assert.Equal(t, monday, res.Record.Timestamp)
	assert.Equal(t, []shared.EventType{shared.EventAttendanceMarked}, events.types())

	_, err = h.Handle(ctx, MarkAttendanceCommand{StudentID: "S1", Subject: "Math"})
	assert.ErrorIs(t, err, shared.ErrAttendanceAlreadyMarked)
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Contains(t, err.Error(), "Attendance already marked for Ana in Math today")

	res, err = h.Handle(ctx, MarkAttendanceCommand{StudentID: "S1", Subject: "Physics", IsTruant: true})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusTruant, res.Record.Status)

	_, err = h.Handle(ctx, MarkAttendanceCommand{StudentID: "nobody", Subject: "Math"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, MarkAttendanceCommand{StudentID: "S1"})
	assert.True(t, shared.IsValidation(err))

	all, err := records.Find(ctx, attendance.Filter{StudentID: "S1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMarkAttendance_NextDayIsNewKey(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFixedClock(monday)
	h := NewMarkAttendanceHandler(seedStudents(t, ana()), memory.NewAttendanceRepository(), nil, nil, clock)

	_, err := h.Handle(ctx, MarkAttendanceCommand{StudentID: "S1", Subject: "Math"})
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	_, err = h.Handle(ctx, MarkAttendanceCommand{StudentID: "S1", Subject: "Math"})
	assert.NoError(t, err)
}

func TestAttendanceRecorder(t *testing.T) {
	ctx := context.Background()
	records := memory.NewAttendanceRepository()
	mark := NewMarkAttendanceHandler(seedStudents(t, ana()), records, nil, nil, nil)
	rec := NewAttendanceRecorder(mark, openTimetable(t, entry(schedule.Monday, 10, 11, "Physics", "Lab 2")))

	require.NoError(t, rec.RecordAttendance(ctx, ana(), monday))
	require.NoError(t, rec.RecordAttendance(ctx, ana(), monday.Add(10*time.Minute)), "second sighting in the same slot")
	require.NoError(t, rec.RecordAttendance(ctx, ana(), monday.Add(3*time.Hour)), "outside any slot")

	all, err := records.Find(ctx, attendance.Filter{StudentID: "S1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Physics", all[0].Subject)
	assert.Equal(t, "Lab 2", all[0].Room)
}

func TestAttendanceRecorder_UnscheduledSightingIsIgnored(t *testing.T) {
	ctx := context.Background()
	records := memory.NewAttendanceRepository()
	mark := NewMarkAttendanceHandler(seedStudents(t, ana()), records, nil, nil, nil)
	rec := NewAttendanceRecorder(mark, openTimetable(t, entry(schedule.Monday, 10, 11, "Physics", "Lab 2")))

	afternoon := time.Date(monday.Year(), monday.Month(), monday.Day(), 13, 30, 0, 0, monday.Location())
	require.NoError(t, rec.RecordAttendance(ctx, ana(), afternoon))

	all, err := records.Find(ctx, attendance.Filter{StudentID: "S1"})
	require.NoError(t, err)
	assert.Empty(t, all)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRUANCY
// ══════════════════════════════════════════════════════════════════════════════

func TestDetectTruancy(t *testing.T) {
	ctx := context.Background()
	events := &recordingPublisher{}
	sched := openTimetable(t, entry(schedule.Monday, 10, 11, "Physics", "Lab 2"))
	h := NewDetectTruancyHandler(seedStudents(t, ana()), sched, memory.NewViolationCounter(), events, timeutil.NewFixedClock(monday), 3)

	res, err := h.Handle(ctx, DetectTruancyCommand{StudentID: "S1", CurrentLocation: "lab 2"})
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.Equal(t, "Compliant", res.Message)
	require.NotNil(t, res.Session)
	assert.Equal(t, "10:00-11:00", res.Session.Time)

	for i := 1; i < 3; i++ {
		res, err = h.Handle(ctx, DetectTruancyCommand{StudentID: "S1", CurrentLocation: "Cafeteria"})
		require.NoError(t, err)
		assert.True(t, res.Compliant)
		assert.Equal(t, i, res.Violations)
	}
	assert.Empty(t, events.types())

	res, err = h.Handle(ctx, DetectTruancyCommand{StudentID: "S1", CurrentLocation: "Cafeteria"})
	require.NoError(t, err)
	assert.False(t, res.Compliant)
	assert.Equal(t, "PERSISTENT TRUANCY: Expected in Lab 2 for Physics, found in Cafeteria (verified 3+ times)", res.Message)
	assert.Equal(t, []shared.EventType{shared.EventTruancyDetected}, events.types())

	res, err = h.Handle(ctx, DetectTruancyCommand{StudentID: "S1", CurrentLocation: "Lab 2"})
	require.NoError(t, err)
	assert.True(t, res.Compliant)

	res, err = h.Handle(ctx, DetectTruancyCommand{StudentID: "S1", CurrentLocation: "Cafeteria"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Violations, "a match resets the count")
}

func TestDetectTruancy_FreePeriodAndErrors(t *testing.T) {
	ctx := context.Background()
	h := NewDetectTruancyHandler(seedStudents(t, ana()), openTimetable(t), memory.NewViolationCounter(), nil, nil, 0)

	res, err := h.Handle(ctx, DetectTruancyCommand{StudentID: "S1", CurrentLocation: "Library", At: monday})
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.Equal(t, "Free Period", res.Message)
	assert.Nil(t, res.Session)

	_, err = h.Handle(ctx, DetectTruancyCommand{StudentID: "ghost", CurrentLocation: "Library"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, DetectTruancyCommand{StudentID: "S1", CurrentLocation: "  "})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// NOISE
// ══════════════════════════════════════════════════════════════════════════════

func TestEvaluateNoise(t *testing.T) {
	ctx := context.Background()
	alerts := memory.NewAlertStore(10)
	events := &recordingPublisher{}
	h := NewEvaluateNoiseHandler(alerts, events, nil, compliance.DefaultNoiseRules())

	res, err := h.Handle(ctx, EvaluateNoiseCommand{Zone: "Room 101", Metrics: compliance.AudioMetrics{DBLevel: 0.5}})
	require.NoError(t, err)
	assert.False(t, res.Triggered, "0.5 is below the break threshold")

	res, err = h.Handle(ctx, EvaluateNoiseCommand{Zone: "Room 101", LectureMode: true, Metrics: compliance.AudioMetrics{DBLevel: 0.5}})
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	require.NotNil(t, res.Alert)
	assert.Equal(t, compliance.SeverityWarning, res.Alert.Severity)
	assert.Equal(t, res.Alert.Recipient(), res.Recipient)

	res, err = h.Handle(ctx, EvaluateNoiseCommand{Zone: "Room 101", LectureMode: true, Metrics: compliance.AudioMetrics{DBLevel: 0.6}})
	require.NoError(t, err)
	assert.True(t, res.Debounced)
	assert.Nil(t, res.Alert)

	res, err = h.Handle(ctx, EvaluateNoiseCommand{Zone: "Room 101", Metrics: compliance.AudioMetrics{DBLevel: 0.9}})
	require.NoError(t, err)
	require.NotNil(t, res.Alert, "a different severity is not debounced")
	assert.Equal(t, compliance.SeverityCritical, res.Alert.Severity)

	res, err = h.Handle(ctx, EvaluateNoiseCommand{Zone: "Room 202", LectureMode: true, Metrics: compliance.AudioMetrics{DBLevel: 0.5}})
	require.NoError(t, err)
	assert.NotNil(t, res.Alert, "other zones have their own window")

	recent, _ := alerts.Recent(ctx, "", time.Hour)
	assert.Len(t, recent, 3)
	assert.Equal(t, []shared.EventType{shared.EventAlertRaised, shared.EventAlertRaised, shared.EventAlertRaised}, events.types())

	_, err = h.Handle(ctx, EvaluateNoiseCommand{Zone: "Room 101", Metrics: compliance.AudioMetrics{DBLevel: 1.5}})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// ABSENTEES
// ══════════════════════════════════════════════════════════════════════════════

func TestMarkAbsentees(t *testing.T) {
	ctx := context.Background()
	students := seedStudents(t, ana())
	records := memory.NewAttendanceRepository()
	sched := openTimetable(t,
		entry(schedule.Monday, 9, 10, "Math", "Room 101"),
		entry(schedule.Monday, 10, 11, "Physics", "Lab 2"),
		entry(schedule.Monday, 16, 17, "Chemistry", "Lab 1"),
		entry(schedule.Tuesday, 9, 10, "History", "Room 5"),
	)
	events := &recordingPublisher{}

	mark := NewMarkAttendanceHandler(students, records, nil, nil, nil)
	_, err := mark.Handle(ctx, MarkAttendanceCommand{StudentID: "S1", Subject: "Math", Timestamp: monday.Add(-time.Hour)})
	require.NoError(t, err)

	noon := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	h := NewMarkAbsenteesHandler(students, sched, records, events, timeutil.NewFixedClock(noon))

	res, err := h.Handle(ctx, MarkAbsenteesCommand{})
	require.NoError(t, err)
	assert.Equal(t, shared.DateKey("2024-03-11"), res.Date)
	assert.Equal(t, 1, res.Students)
	assert.Equal(t, 2, res.Slots, "chemistry has not ended yet")
	assert.Equal(t, 1, res.Marked)
	assert.Equal(t, []shared.EventType{shared.EventAbsenteesMarked}, events.types())

	absent, err := records.Find(ctx, attendance.Filter{Status: attendance.StatusAbsent})
	require.NoError(t, err)
	require.Len(t, absent, 1)
	assert.Equal(t, "Physics", absent[0].Subject)

	res, err = h.Handle(ctx, MarkAbsenteesCommand{})
	require.NoError(t, err)
	assert.Zero(t, res.Marked, "second run is a no-op")

	res, err = h.Handle(ctx, MarkAbsenteesCommand{At: noon.Add(6 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Marked)
}

// ══════════════════════════════════════════════════════════════════════════════
// PLANNING
// ══════════════════════════════════════════════════════════════════════════════

func TestPlanTimetable(t *testing.T) {
	ctx := context.Background()
	sched := openTimetable(t)
	h := NewPlanTimetableHandler(sched)

	req := schedule.Requirement{
		Department: "CS", Program: student.ProgramUG, Year: 2, Section: student.SectionB,
		Subject: "Algorithms", Teacher: "Dr. Rao", Room: "Room 101", Sessions: 3,
	}

	dry, err := h.Handle(ctx, PlanTimetableCommand{
		Teachers:     map[string]*schedule.Teacher{"Dr. Rao": {Name: "Dr. Rao", MaxHours: 10}},
		Requirements: []schedule.Requirement{req},
		DryRun:       true,
	})
	require.NoError(t, err)
	assert.Len(t, dry.Scheduled, 3)
	assert.Zero(t, dry.Saved)

	teachers := map[string]*schedule.Teacher{"Dr. Rao": {Name: "Dr. Rao", MaxHours: 2}}
	res, err := h.Handle(ctx, PlanTimetableCommand{Teachers: teachers, Requirements: []schedule.Requirement{req}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
	require.Len(t, res.Shortfalls, 1)
	assert.Contains(t, res.Shortfalls[0], "scheduled 2/3")
	assert.Equal(t, 2, teachers["Dr. Rao"].CurrentHours)

	all, err := sched.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = h.Handle(ctx, PlanTimetableCommand{})
	assert.True(t, shared.IsValidation(err))
}
