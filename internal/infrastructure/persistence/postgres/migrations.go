package postgres

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_attendance", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_schedule", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_alerts", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    role VARCHAR(50) NOT NULL DEFAULT 'Student',
    department VARCHAR(100) NOT NULL DEFAULT '',
    program VARCHAR(4) NOT NULL,
    year SMALLINT NOT NULL,
    section VARCHAR(2) NOT NULL,
    privacy_hash TEXT NOT NULL DEFAULT '',
    embedding REAL[],
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_program CHECK (program IN ('UG', 'PG')),
    CONSTRAINT valid_year CHECK (year BETWEEN 1 AND 4),
    CONSTRAINT valid_section CHECK (section IN ('A', 'B', 'C'))
);

CREATE INDEX IF NOT EXISTS idx_students_class ON students(department, program, year, section);
`

const migration001Down = `
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS attendance_records (
    id UUID PRIMARY KEY,
    student_id VARCHAR(64) NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    student_name VARCHAR(200) NOT NULL,
    subject VARCHAR(200) NOT NULL,
    room VARCHAR(100) NOT NULL DEFAULT '',
    status VARCHAR(16) NOT NULL,
    date DATE NOT NULL,
    marked_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_status CHECK (status IN ('Present', 'Absent', 'Truant', 'Late')),
    CONSTRAINT uq_attendance_student_date_subject UNIQUE (student_id, date, subject)
);

CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance_records(date DESC);
CREATE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance_records(student_id, date DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS attendance_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS schedule_entries (
    id SERIAL PRIMARY KEY,
    day VARCHAR(10) NOT NULL,
    start_minute SMALLINT NOT NULL,
    end_minute SMALLINT NOT NULL,
    faculty VARCHAR(100) NOT NULL DEFAULT '',
    department VARCHAR(100) NOT NULL DEFAULT '',
    program VARCHAR(4) NOT NULL,
    year SMALLINT NOT NULL,
    section VARCHAR(2) NOT NULL,
    subject VARCHAR(200) NOT NULL,
    teacher VARCHAR(200) NOT NULL DEFAULT '',
    room VARCHAR(100) NOT NULL,

    CONSTRAINT valid_slot CHECK (start_minute < end_minute),
    CONSTRAINT uq_schedule_room_slot UNIQUE (day, start_minute, room)
);

CREATE INDEX IF NOT EXISTS idx_schedule_class_day ON schedule_entries(program, year, section, day);
`

const migration003Down = `
DROP TABLE IF EXISTS schedule_entries;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: ALERTS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS alerts (
    id UUID PRIMARY KEY,
    severity VARCHAR(16) NOT NULL,
    message TEXT NOT NULL,
    zone VARCHAR(100) NOT NULL DEFAULT '',
    metadata JSONB,
    raised_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_alerts_zone_time ON alerts(zone, raised_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS alerts;
`
