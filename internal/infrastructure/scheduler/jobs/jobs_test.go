package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/application/command"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/faceindex"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/ledger"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/memory"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

type fakeSweeper struct {
	res *command.MarkAbsenteesResult
	err error
}

func (f fakeSweeper) Handle(context.Context, command.MarkAbsenteesCommand) (*command.MarkAbsenteesResult, error) {
	return f.res, f.err
}

func TestMarkAbsenteesJob(t *testing.T) {
	j := NewMarkAbsenteesJob(fakeSweeper{res: &command.MarkAbsenteesResult{Date: "2024-03-11", Students: 4, Slots: 9, Marked: 2}}, logger.Nop())
	assert.Equal(t, "mark_absentees", j.Name())
	assert.Nil(t, j.LastRun())

	require.NoError(t, j.Run(context.Background()))
	stats := j.LastRun()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Counters["marked"])
	assert.Equal(t, "2024-03-11", stats.Details["date"])

	boom := errors.New("db down")
	j = NewMarkAbsenteesJob(fakeSweeper{err: boom}, logger.Nop())
	assert.ErrorIs(t, j.Run(context.Background()), boom)
	assert.Equal(t, "db down", j.LastRun().Error)
}

func TestRefreshFaceIndexJob(t *testing.T) {
	ctx := context.Background()
	students := memory.NewStudentRepository()
	s := student.MustNew(student.Params{ID: "S1", Name: "Ana", Department: "CS", Program: student.ProgramUG, Year: 2, Section: student.SectionB})
	require.NoError(t, students.Save(ctx, s))
	require.NoError(t, students.SaveEmbedding(ctx, "S1", recognition.Embedding{0.3, 0.4}))

	index := faceindex.New()
	j := NewRefreshFaceIndexJob(index, students, logger.Nop())
	require.NoError(t, j.Run(ctx))

	n, _ := index.Count(ctx)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, j.LastRun().Counters["loaded"])
}

type fakeVerifier struct {
	report ledger.Report
	err    error
}

func (f fakeVerifier) Verify(context.Context) (ledger.Report, error) {
	return f.report, f.err
}

func TestVerifyLedgerJob(t *testing.T) {
	ctx := context.Background()
	alerts := memory.NewAlertStore(10)

	ok := NewVerifyLedgerJob(fakeVerifier{report: ledger.Report{Entries: 5, Valid: true}}, alerts, logger.Nop())
	require.NoError(t, ok.Run(ctx))
	assert.Equal(t, 5, ok.LastRun().Counters["entries"])

	broken := NewVerifyLedgerJob(fakeVerifier{
		report: ledger.Report{Entries: 5, BrokenAt: 3, Reason: "entry hash mismatch"},
		err:    shared.ErrLedgerCorrupted,
	}, alerts, logger.Nop())
	assert.ErrorIs(t, broken.Run(ctx), shared.ErrLedgerCorrupted)

	recent, err := alerts.Recent(ctx, "edge-ledger", time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, compliance.SeveritySecurity, recent[0].Severity)
	assert.True(t, recent[0].RequiresImmediateAction())
	assert.Contains(t, recent[0].Message, "entry 3")

	io := NewVerifyLedgerJob(fakeVerifier{err: errors.New("disk i/o")}, alerts, logger.Nop())
	assert.Error(t, io.Run(ctx))
	recent, _ = alerts.Recent(ctx, "", time.Hour)
	assert.Len(t, recent, 1, "plain failures raise no alert")
}
