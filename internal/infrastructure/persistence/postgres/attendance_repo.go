package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// AttendanceRepository implements attendance.Repository for PostgreSQL.
// Uniqueness of (student, date, subject) is enforced by the table constraint.
type AttendanceRepository struct {
	conn *Connection
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(conn *Connection) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

// MarkPresent inserts the record. Returns false when the key is already taken.
func (r *AttendanceRepository) MarkPresent(ctx context.Context, rec attendance.Record) (bool, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	date, err := dateOf(rec.Date)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO attendance_records (id, student_id, student_name, subject, room, status, date, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, date, subject) DO NOTHING
	`

	result, err := r.conn.Exec(ctx, query,
		rec.ID, rec.StudentID, rec.StudentName, rec.Subject, rec.Room,
		string(rec.Status), date, rec.Timestamp.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert attendance record: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// Find returns records matching the filter, oldest first.
func (r *AttendanceRepository) Find(ctx context.Context, f attendance.Filter) ([]attendance.Record, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.Date != "" {
		date, err := dateOf(f.Date)
		if err != nil {
			return nil, err
		}
		add("date = $%d", date)
	}
	if f.Subject != "" {
		add("subject = $%d", f.Subject)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT id, student_id, student_name, subject, room, status, date, marked_at FROM attendance_records`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY marked_at"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var out []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance: %w", err)
	}

	return out, nil
}

// IsAlreadyMarked reports whether a record exists for the key.
func (r *AttendanceRepository) IsAlreadyMarked(ctx context.Context, k attendance.Key) (bool, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	date, err := dateOf(k.Date)
	if err != nil {
		return false, err
	}

	var exists bool
	err = r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM attendance_records WHERE student_id = $1 AND date = $2 AND subject = $3)",
		k.StudentID, date, k.Subject,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check attendance: %w", err)
	}

	return exists, nil
}

func scanRecord(row pgx.Row) (attendance.Record, error) {
	var (
		rec    attendance.Record
		status string
		date   time.Time
	)
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.Subject, &rec.Room, &status, &date, &rec.Timestamp); err != nil {
		return attendance.Record{}, fmt.Errorf("failed to scan attendance record: %w", err)
	}
	rec.Status = attendance.Status(status)
	rec.Date = shared.DateKey(date.Format(shared.DateKeyLayout))
	return rec, nil
}

func dateOf(d shared.DateKey) (time.Time, error) {
	t, err := time.Parse(shared.DateKeyLayout, d.String())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", d, err)
	}
	return t, nil
}
