package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

const scheduleColumns = `day, start_minute, end_minute, faculty, department, program, year, section, subject, teacher, room`

// ScheduleRepository implements schedule.Repository for PostgreSQL.
type ScheduleRepository struct {
	conn *Connection
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(conn *Connection) *ScheduleRepository {
	return &ScheduleRepository{conn: conn}
}

// ForStudent returns the class sessions of a student on day, ordered by start.
func (r *ScheduleRepository) ForStudent(ctx context.Context, s student.Student, day schedule.Day) ([]schedule.Entry, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	query := `
		SELECT ` + scheduleColumns + `
		FROM schedule_entries
		WHERE day = $1 AND program = $2 AND year = $3 AND section = $4
		  AND (department = '' OR department = $5)
		ORDER BY start_minute, id
	`

	rows, err := r.conn.Query(ctx, query,
		string(day), string(s.Program()), s.Year().Int(), string(s.Section()), s.Department(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// EntryAt returns the first session of the student's class containing clock.
func (r *ScheduleRepository) EntryAt(ctx context.Context, s student.Student, day schedule.Day, clock schedule.Clock) (schedule.Entry, error) {
	entries, err := r.ForStudent(ctx, s, day)
	if err != nil {
		return schedule.Entry{}, err
	}
	e, ok := schedule.FirstContaining(entries, clock)
	if !ok {
		return schedule.Entry{}, shared.ErrScheduleEntryNotFound
	}
	return e, nil
}

// Save inserts a session. A session with the same day, start and room is replaced.
func (r *ScheduleRepository) Save(ctx context.Context, e schedule.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	query := `
		INSERT INTO schedule_entries (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (day, start_minute, room) DO UPDATE SET
			end_minute = EXCLUDED.end_minute,
			faculty = EXCLUDED.faculty,
			department = EXCLUDED.department,
			program = EXCLUDED.program,
			year = EXCLUDED.year,
			section = EXCLUDED.section,
			subject = EXCLUDED.subject,
			teacher = EXCLUDED.teacher
	`

	_, err := r.conn.Exec(ctx, query,
		string(e.Day), int(e.Slot.Start), int(e.Slot.End), e.Faculty, e.Department,
		string(e.Program), e.Year.Int(), string(e.Section), e.Subject, e.Teacher, e.Room,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule entry: %w", err)
	}

	return nil
}

// All returns the whole timetable.
func (r *ScheduleRepository) All(ctx context.Context) ([]schedule.Entry, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `SELECT `+scheduleColumns+` FROM schedule_entries ORDER BY day, start_minute, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Delete removes the session identified by day, start and room.
func (r *ScheduleRepository) Delete(ctx context.Context, day schedule.Day, start schedule.Clock, room string) (bool, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	result, err := r.conn.Exec(ctx,
		"DELETE FROM schedule_entries WHERE day = $1 AND start_minute = $2 AND room = $3",
		string(day), int(start), room,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete schedule entry: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// ReplaceAll swaps the timetable in one transaction.
func (r *ScheduleRepository) ReplaceAll(ctx context.Context, entries []schedule.Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM schedule_entries"); err != nil {
			return fmt.Errorf("failed to clear schedule: %w", err)
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`INSERT INTO schedule_entries (`+scheduleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				string(e.Day), int(e.Slot.Start), int(e.Slot.End), e.Faculty, e.Department,
				string(e.Program), e.Year.Int(), string(e.Section), e.Subject, e.Teacher, e.Room,
			)
		}

		return tx.SendBatch(ctx, batch).Close()
	})
}

func scanEntries(rows pgx.Rows) ([]schedule.Entry, error) {
	var out []schedule.Entry
	for rows.Next() {
		var (
			e                 schedule.Entry
			day, program, sec string
			start, end, year  int
		)
		if err := rows.Scan(&day, &start, &end, &e.Faculty, &e.Department, &program, &year, &sec, &e.Subject, &e.Teacher, &e.Room); err != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
		}
		e.Day = schedule.Day(day)
		e.Slot = schedule.TimeSlot{Start: schedule.Clock(start), End: schedule.Clock(end)}
		e.Program = student.Program(program)
		e.Year = student.Year(year)
		e.Section = student.Section(sec)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule: %w", err)
	}
	return out, nil
}
