package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

func openLedger(t *testing.T, every int) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"), Options{CheckpointEvery: every})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func record(t *testing.T, id, subject string, at time.Time) attendance.Record {
	t.Helper()
	s := student.MustNew(student.Params{
		ID: id, Name: "Student " + id, Department: "CS",
		Program: student.ProgramUG, Year: 1, Section: student.SectionA,
	})
	rec, err := attendance.NewRecord(attendance.NewRecordParams{
		Student: s, Subject: subject, Room: "Room-101", Status: attendance.StatusPresent, Timestamp: at,
	})
	require.NoError(t, err)
	return rec
}

func TestLedger_AppendAndFind(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, 10)
	at := time.Date(2024, 3, 11, 9, 5, 0, 0, time.UTC)

	ok, err := l.MarkPresent(ctx, record(t, "S1", "Math", at))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.MarkPresent(ctx, record(t, "S1", "Math", at.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, ok, "same student, date and subject")

	ok, err = l.MarkPresent(ctx, record(t, "S2", "Math", at))
	require.NoError(t, err)
	assert.True(t, ok)

	marked, err := l.IsAlreadyMarked(ctx, attendance.Key{StudentID: "S2", Date: "2024-03-11", Subject: "Math"})
	require.NoError(t, err)
	assert.True(t, marked)

	recs, err := l.Find(ctx, attendance.Filter{Date: "2024-03-11"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "S1", recs[0].StudentID)
	assert.Equal(t, at, recs[0].Timestamp)
	assert.Equal(t, attendance.StatusPresent, recs[0].Status)
}

func TestLedger_VerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, 2)
	at := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := l.MarkPresent(ctx, record(t, fmt.Sprintf("S%d", i), "Physics", at))
		require.NoError(t, err)
	}

	report, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 5, report.Entries)
	assert.Equal(t, 2, report.Checkpoints)
	assert.NotEmpty(t, report.Head)

	_, err = l.db.Exec(`UPDATE ledger_entries SET status = 'Absent' WHERE seq = 3`)
	require.NoError(t, err)

	report, err = l.Verify(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrLedgerCorrupted)
	assert.False(t, report.Valid)
	assert.Equal(t, int64(3), report.BrokenAt)
}

func TestMerkleRoot(t *testing.T) {
	assert.Len(t, MerkleRoot(nil), 64)
	assert.Equal(t, "a", MerkleRoot([]string{"a"}))
	assert.Equal(t, MerkleRoot([]string{"a", "b", "c", "c"}), MerkleRoot([]string{"a", "b", "c"}))
	assert.NotEqual(t, MerkleRoot([]string{"a", "b"}), MerkleRoot([]string{"b", "a"}))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ", Options{})
	assert.Error(t, err)
}
