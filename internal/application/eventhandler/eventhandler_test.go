package eventhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/memory"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// jsonEvent mimics an event received from another node.
type jsonEvent struct {
	typ     shared.EventType
	id      string
	at      time.Time
	payload map[string]interface{}
}

func (e jsonEvent) EventType() shared.EventType { return e.typ }
func (e jsonEvent) AggregateID() string { return e.id }
func (e jsonEvent) OccurredAt() time.Time { return e.at }
func (e jsonEvent) Payload() map[string]interface{} { return e.payload }

type recordingPublisher struct{ events []shared.Event }

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestOnTruancyDetected(t *testing.T) {
	ctx := context.Background()
	alerts := memory.NewAlertStore(10)
	events := &recordingPublisher{}
	h := NewOnTruancyDetectedHandler(alerts, events, logger.Nop(), DefaultTruancyAlertConfig())

	ev := shared.NewTruancyDetectedEvent("S1", "Lab 2", "Cafeteria", "Physics", "Dr. Rao", 30)
	require.NoError(t, h.Handle(ev))
	require.NoError(t, h.Handle(ev), "repeat within the window")

	recent, err := alerts.Recent(ctx, "Lab 2", time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	a := recent[0]
	assert.Equal(t, compliance.SeverityWarning, a.Severity)
	assert.Equal(t, "Faculty", a.Recipient())
	assert.Equal(t, "Student S1 expected in Lab 2 for Physics, found in Cafeteria", a.Message)
	assert.Equal(t, 30, a.Metadata["detections"])

	require.Len(t, events.events, 1)
	assert.Equal(t, shared.EventAlertRaised, events.events[0].EventType())

	require.NoError(t, h.Handle(shared.NewTruancyDetectedEvent("S2", "Lab 2", "Gym", "Physics", "Dr. Rao", 30)))
	recent, _ = alerts.Recent(ctx, "Lab 2", time.Hour)
	assert.Len(t, recent, 2, "another student gets its own alert")

	require.NoError(t, h.Handle(shared.NewAbsenteesMarkedEvent("2024-03-11", 1)), "other events are ignored")
}

func TestOnAttendanceMarked(t *testing.T) {
	ctx := context.Background()
	mirror := memory.NewAttendanceRepository()
	h := NewOnAttendanceMarkedHandler(mirror, logger.Nop())
	at := time.Date(2024, 3, 11, 10, 5, 0, 0, time.UTC)

	local := shared.NewAttendanceMarkedEvent("r1", "S1", "Ana", "Physics", "Lab 2", "Present", at)
	require.NoError(t, h.Handle(local))
	require.NoError(t, h.Handle(local), "a duplicate is not an error")

	remote := jsonEvent{
		typ: shared.EventAttendanceMarked,
		id:  "S2",
		at:  at,
		payload: map[string]interface{}{
			"record_id":    "r2",
			"student_name": "Bo",
			"subject":      "Physics",
			"room":         "Lab 2",
			"status":       "Truant",
			"marked_at":    "2024-03-11T10:07:00Z",
		},
	}
	require.NoError(t, h.Handle(remote))

	recs, err := mirror.Find(ctx, attendance.Filter{Date: "2024-03-11"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "S1", recs[0].StudentID)
	assert.Equal(t, attendance.StatusTruant, recs[1].Status)
	assert.Equal(t, 7, recs[1].Timestamp.Minute())

	broken := remote
	broken.payload = map[string]interface{}{"status": "Sleeping"}
	assert.NoError(t, h.Handle(broken), "malformed events are dropped, not retried")
}

type fakeRecorder struct {
	calls []string
	at    []time.Time
}

func (f *fakeRecorder) RecordAttendance(_ context.Context, s student.Student, at time.Time) error {
	f.calls = append(f.calls, s.ID())
	f.at = append(f.at, at)
	return nil
}

func TestOnStudentRecognized(t *testing.T) {
	students := memory.NewStudentRepository()
	require.NoError(t, students.Save(context.Background(), student.MustNew(student.Params{
		ID: "S1", Name: "Ana", Department: "CS", Program: student.ProgramUG, Year: 2, Section: student.SectionB,
	})))
	rec := &fakeRecorder{}
	h := NewOnStudentRecognizedHandler(students, rec, 0.7, time.UTC, logger.Nop())

	seen := time.Date(2024, 3, 11, 9, 15, 0, 0, time.UTC)
	require.NoError(t, h.Handle(shared.NewStudentRecognizedEvent("S1", "Lab 2", 0.93, seen)))
	require.NoError(t, h.Handle(shared.NewStudentRecognizedEvent("S1", "Lab 2", 0.5, seen)))
	require.NoError(t, h.Handle(shared.NewStudentRecognizedEvent("ghost", "Lab 2", 0.99, seen)))

	remote := jsonEvent{
		typ:     shared.EventStudentRecognized,
		id:      "S1",
		at:      time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC),
		payload: map[string]interface{}{"zone": "Lab 2", "confidence": float64(0.8)},
	}
	require.NoError(t, h.Handle(remote))

	assert.Equal(t, []string{"S1", "S1"}, rec.calls)
	assert.True(t, seen.Equal(rec.at[0]))
	assert.True(t, remote.at.Equal(rec.at[1]), "falls back to the publish time")
}

func TestOnStudentRecognized_UsesCaptureTimeInCampusZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)

	students := memory.NewStudentRepository()
	require.NoError(t, students.Save(context.Background(), student.MustNew(student.Params{
		ID: "S1", Name: "Ana", Department: "CS", Program: student.ProgramUG, Year: 2, Section: student.SectionB,
	})))
	rec := &fakeRecorder{}
	h := NewOnStudentRecognizedHandler(students, rec, 0.7, ist, logger.Nop())

	captured := time.Date(2024, 3, 11, 10, 30, 0, 0, ist)
	remote := jsonEvent{
		typ: shared.EventStudentRecognized,
		id:  "S1",
		at:  time.Date(2026, 10, 17, 4, 43, 22, 0, time.UTC),
		payload: map[string]interface{}{
			"zone":       "Lab 2",
			"confidence": float64(0.9),
			"seen_at":    captured.UTC().Format(time.RFC3339Nano),
		},
	}
	require.NoError(t, h.Handle(remote))

	require.Len(t, rec.at, 1)
	got := rec.at[0]
	assert.True(t, captured.Equal(got))
	assert.Equal(t, ist, got.Location())
	assert.Equal(t, 10, got.Hour())
	assert.Equal(t, time.Monday, got.Weekday())
}
