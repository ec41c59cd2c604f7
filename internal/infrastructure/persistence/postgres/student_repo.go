package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const studentColumns = `id, name, role, department, program, year, section, privacy_hash`

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Save inserts a student or updates every field of an existing one.
func (r *StudentRepository) Save(ctx context.Context, s student.Student) error {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	query := `
		INSERT INTO students (` + studentColumns + `, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			department = EXCLUDED.department,
			program = EXCLUDED.program,
			year = EXCLUDED.year,
			section = EXCLUDED.section,
			privacy_hash = EXCLUDED.privacy_hash,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID(),
		s.Name(),
		s.Role(),
		s.Department(),
		string(s.Program()),
		s.Year().Int(),
		string(s.Section()),
		s.PrivacyHash(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}

	return nil
}

// Create inserts a student and fails with shared.ErrStudentAlreadyExists on
// a duplicate ID.
func (r *StudentRepository) Create(ctx context.Context, s student.Student) error {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	query := `INSERT INTO students (` + studentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.conn.Exec(ctx, query,
		s.ID(), s.Name(), s.Role(), s.Department(),
		string(s.Program()), s.Year().Int(), string(s.Section()), s.PrivacyHash(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}

	return nil
}

// GetByID returns a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (student.Student, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	row := r.conn.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	return scanStudent(row)
}

// List returns students ordered by ID.
func (r *StudentRepository) List(ctx context.Context, opts student.ListOptions) ([]student.Student, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	if opts.Limit <= 0 {
		opts = student.DefaultListOptions()
	}

	rows, err := r.conn.Query(ctx,
		`SELECT `+studentColumns+` FROM students ORDER BY id LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// FindByClass returns students of a class. Empty filter fields match anything.
func (r *StudentRepository) FindByClass(ctx context.Context, class student.ClassFilter) ([]student.Student, error) {
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

	if class.Department != "" {
		add("department = $%d", class.Department)
	}
	if class.Program != "" {
		add("program = $%d", string(class.Program))
	}
	if class.Year != 0 {
		add("year = $%d", class.Year.Int())
	}
	if class.Section != "" {
		add("section = $%d", string(class.Section))
	}

	query := `SELECT ` + studentColumns + ` FROM students`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find students by class: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// Delete removes a student.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	result, err := r.conn.Exec(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete student: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}

	return nil
}

// Count returns the total number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	var count int
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Face embeddings
// ─────────────────────────────────────────────────────────────────────────────

// SaveEmbedding stores the enrolment embedding of a student.
func (r *StudentRepository) SaveEmbedding(ctx context.Context, id string, e recognition.Embedding) error {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	result, err := r.conn.Exec(ctx,
		"UPDATE students SET embedding = $1, updated_at = NOW() WHERE id = $2",
		[]float32(e), id,
	)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}

// Embeddings returns every stored embedding keyed by student ID.
func (r *StudentRepository) Embeddings(ctx context.Context) (map[string]recognition.Embedding, error) {
	rows, err := r.conn.Query(ctx, "SELECT id, embedding FROM students WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]recognition.Embedding)
	for rows.Next() {
		var (
			id  string
			vec []float32
		)
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		out[id] = recognition.Embedding(vec)
	}

	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanStudent(row pgx.Row) (student.Student, error) {
	var (
		p       student.Params
		program string
		year    int
		section string
	)

	err := row.Scan(&p.ID, &p.Name, &p.Role, &p.Department, &program, &year, &section, &p.PrivacyHash)
	if err != nil {
		if IsNoRows(err) {
			return student.Student{}, shared.ErrStudentNotFound
		}
		return student.Student{}, fmt.Errorf("failed to scan student: %w", err)
	}

	p.Program = student.Program(program)
	p.Year = student.Year(year)
	p.Section = student.Section(section)

	s, err := student.New(p)
	if err != nil {
		return student.Student{}, fmt.Errorf("stored student %s is invalid: %w", p.ID, err)
	}
	return s, nil
}

func scanStudents(rows pgx.Rows) ([]student.Student, error) {
	var out []student.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}
	return out, nil
}
