package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

func newStudent(id string, section student.Section) student.Student {
	return student.MustNew(student.Params{
		ID: id, Name: "Name " + id, Role: student.DefaultRole, Department: "CS",
		Program: student.ProgramUG, Year: 2, Section: section,
	})
}

func TestStudentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewStudentRepository()

	require.NoError(t, repo.Save(ctx, newStudent("S2", student.SectionA)))
	require.NoError(t, repo.Save(ctx, newStudent("S1", student.SectionB)))
	require.NoError(t, repo.Save(ctx, newStudent("S3", student.SectionB)))

	got, err := repo.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "Name S1", got.Name())

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	list, err := repo.List(ctx, student.ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "S2", list[0].ID())

	class, err := repo.FindByClass(ctx, student.ClassFilter{Section: student.SectionB})
	require.NoError(t, err)
	assert.Len(t, class, 2)

	require.NoError(t, repo.SaveEmbedding(ctx, "S1", recognition.Embedding{1, 0}))
	emb, err := repo.Embeddings(ctx)
	require.NoError(t, err)
	assert.Len(t, emb, 1)

	require.NoError(t, repo.Delete(ctx, "S1"))
	assert.ErrorIs(t, repo.Delete(ctx, "S1"), shared.ErrStudentNotFound)
	n, _ := repo.Count(ctx)
	assert.Equal(t, 2, n)
}

func TestAttendanceRepository_Unique(t *testing.T) {
	ctx := context.Background()
	repo := NewAttendanceRepository()
	s := newStudent("S1", student.SectionB)
	at := time.Date(2024, 3, 11, 9, 15, 0, 0, time.UTC)

	rec, err := attendance.NewRecord(attendance.NewRecordParams{Student: s, Subject: "Math", Room: "Room-101", Status: attendance.StatusPresent, Timestamp: at})
	require.NoError(t, err)

	ok, err := repo.MarkPresent(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPresent(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	marked, _ := repo.IsAlreadyMarked(ctx, rec.Key())
	assert.True(t, marked)

	found, err := repo.Find(ctx, attendance.Filter{Date: "2024-03-11"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.NotEmpty(t, found[0].ID)
}

func TestGuardAndCounter(t *testing.T) {
	ctx := context.Background()

	g := NewAttendanceGuard()
	k := attendance.Key{StudentID: "S1", Date: "2024-03-11", Subject: "Math"}
	ok, _ := g.Claim(ctx, k)
	assert.True(t, ok)
	ok, _ = g.Claim(ctx, k)
	assert.False(t, ok)
	require.NoError(t, g.Release(ctx, k))
	ok, _ = g.Claim(ctx, k)
	assert.True(t, ok)

	c := NewViolationCounter()
	n, _ := c.Increment(ctx, "S1")
	assert.Equal(t, 1, n)
	n, _ = c.Increment(ctx, "S1")
	assert.Equal(t, 2, n)
	require.NoError(t, c.Reset(ctx, "S1"))
	n, _ = c.Increment(ctx, "S1")
	assert.Equal(t, 1, n)
}

func TestAlertStore_RecentAndRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	s := NewAlertStore(2)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Trigger(ctx, compliance.Alert{Severity: compliance.SeverityWarning, Zone: "Lab-1", Timestamp: now.Add(-10 * time.Minute)}))
	require.NoError(t, s.Trigger(ctx, compliance.Alert{Severity: compliance.SeverityWarning, Zone: "Lab-1", Timestamp: now.Add(-time.Minute)}))
	require.NoError(t, s.Trigger(ctx, compliance.Alert{Severity: compliance.SeverityCritical, Zone: "Room-101"}))

	all, _ := s.Recent(ctx, "", time.Hour)
	require.Len(t, all, 2)
	assert.Equal(t, compliance.SeverityCritical, all[0].Severity)

	lab, _ := s.Recent(ctx, "Lab-1", 5*time.Minute)
	assert.Len(t, lab, 1)
}

func TestTranscriptBuffer(t *testing.T) {
	ctx := context.Background()
	b := NewTranscriptBuffer(2)

	_, ok := b.TranscribeLatest()
	assert.False(t, ok)

	require.NoError(t, b.Push(ctx, "first"))
	require.NoError(t, b.Push(ctx, "  "))
	require.NoError(t, b.Push(ctx, "second"))

	text, ok := b.TranscribeLatest()
	assert.True(t, ok)
	assert.Equal(t, "second", text)

	_, ok = b.TranscribeLatest()
	assert.False(t, ok)
}

func TestPresenceTracker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	p := NewPresenceTracker()
	p.now = func() time.Time { return now }

	require.NoError(t, p.Seen(ctx, recognition.Sighting{StudentID: "S1", Zone: "Lab-1", SeenAt: now.Add(-time.Minute)}))
	require.NoError(t, p.Seen(ctx, recognition.Sighting{StudentID: "S2", Zone: "lab-1"}))
	require.NoError(t, p.Seen(ctx, recognition.Sighting{StudentID: "S3", Zone: "Lab-1", SeenAt: now.Add(-time.Hour)}))

	in, err := p.InZone(ctx, "LAB-1", 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, "S2", in[0].StudentID)

	last, ok, _ := p.LastSeen(ctx, "S3")
	assert.True(t, ok)
	assert.Equal(t, "Lab-1", last.Zone)
}
