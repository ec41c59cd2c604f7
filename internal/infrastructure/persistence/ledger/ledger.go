// Package ledger implements the tamper-evident edge attendance ledger.
//
// Every record is appended to a local SQLite file with
// hash = blake2b-256(prev_hash || canonical record), so rewriting any row
// breaks every later link. Every CheckpointEvery records a Merkle root over
// that block of hashes is stored as well.
package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// DefaultCheckpointEvery is the Merkle block size.
const DefaultCheckpointEvery = 100

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	student_id TEXT NOT NULL,
	student_name TEXT NOT NULL,
	subject TEXT NOT NULL,
	room TEXT NOT NULL,
	status TEXT NOT NULL,
	date TEXT NOT NULL,
	marked_at INTEGER NOT NULL,
	prev_hash TEXT NOT NULL,
	hash TEXT NOT NULL,
	UNIQUE (student_id, date, subject)
);
CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger_entries(date);
CREATE TABLE IF NOT EXISTS ledger_checkpoints (
	block INTEGER PRIMARY KEY,
	first_seq INTEGER NOT NULL,
	last_seq INTEGER NOT NULL,
	root TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Ledger is a SQLite-backed hash chain of attendance records.
// It implements attendance.Repository.
type Ledger struct {
	db              *sql.DB
	checkpointEvery int

	// SQLite allows a single writer; appends are serialised here so the
	// chain head read and the insert happen atomically.
	mu sync.Mutex
}

// Options configures Open.
type Options struct {
	CheckpointEvery int
}

// Open opens (or creates) the ledger at path.
func Open(path string, opts Options) (*Ledger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}

	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	dsn := clean + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}

	return &Ledger{db: db, checkpointEvery: opts.CheckpointEvery}, nil
}

// Close releases the SQLite connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Ping checks the database handle.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// HASHING
// ══════════════════════════════════════════════════════════════════════════════

// canonicalRecord fixes the field order that goes into the hash.
type canonicalRecord struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Subject     string `json:"subject"`
	Room        string `json:"room"`
	Status      string `json:"status"`
	Date        string `json:"date"`
	MarkedAt    int64  `json:"marked_at"`
}

func canonical(r attendance.Record) canonicalRecord {
	return canonicalRecord{
		ID:          r.ID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		Subject:     r.Subject,
		Room:        r.Room,
		Status:      string(r.Status),
		Date:        r.Date.String(),
		MarkedAt:    r.Timestamp.UTC().UnixMilli(),
	}
}

// ChainHash returns hex(blake2b-256(prevHash || json(record))).
func ChainHash(prevHash string, r attendance.Record) (string, error) {
	payload, err := json.Marshal(canonical(r))
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(prevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MerkleRoot folds hashes pairwise; an odd node is paired with itself.
func MerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		sum := blake2b.Sum256([]byte("EMPTY"))
		return hex.EncodeToString(sum[:])
	}

	level := append([]string(nil), hashes...)
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			sum := blake2b.Sum256([]byte(level[i] + right))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		level = next
	}
	return level[0]
}

// ══════════════════════════════════════════════════════════════════════════════
// attendance.Repository
// ══════════════════════════════════════════════════════════════════════════════

// MarkPresent appends the record to the chain. Returns false when
// (student, date, subject) is already recorded.
func (l *Ledger) MarkPresent(ctx context.Context, rec attendance.Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE student_id = ? AND date = ? AND subject = ?)`,
		rec.StudentID, rec.Date.String(), rec.Subject,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ledger duplicate: %w", err)
	}
	if exists {
		return false, nil
	}

	var prevHash string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM ledger_entries ORDER BY seq DESC LIMIT 1`).Scan(&prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("read chain head: %w", err)
	}

	hash, err := ChainHash(prevHash, rec)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries (id, student_id, student_name, subject, room, status, date, marked_at, prev_hash, hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StudentID, rec.StudentName, rec.Subject, rec.Room,
		string(rec.Status), rec.Date.String(), rec.Timestamp.UTC().UnixMilli(), prevHash, hash,
	)
	if err != nil {
		return false, fmt.Errorf("append ledger entry: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("read ledger seq: %w", err)
	}
	if err := l.checkpoint(ctx, tx, seq); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit ledger tx: %w", err)
	}
	return true, nil
}

// checkpoint stores a Merkle root when seq closes a block.
func (l *Ledger) checkpoint(ctx context.Context, tx *sql.Tx, seq int64) error {
	if seq%int64(l.checkpointEvery) != 0 {
		return nil
	}

	first := seq - int64(l.checkpointEvery) + 1
	hashes, err := queryHashes(ctx, tx, first, seq)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_checkpoints (block, first_seq, last_seq, root, created_at) VALUES (?, ?, ?, ?, ?)`,
		seq/int64(l.checkpointEvery), first, seq, MerkleRoot(hashes), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store checkpoint: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryHashes(ctx context.Context, q queryer, first, last int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT hash FROM ledger_entries WHERE seq BETWEEN ? AND ? ORDER BY seq`, first, last)
	if err != nil {
		return nil, fmt.Errorf("load block hashes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan block hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Find returns records matching the filter in chain order.
func (l *Ledger) Find(ctx context.Context, f attendance.Filter) ([]attendance.Record, error) {
	var (
		conds []string
		args  []any
	)
	if f.StudentID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, f.Date.String())
	}
	if f.Subject != "" {
		conds = append(conds, "subject = ?")
		args = append(args, f.Subject)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT id, student_id, student_name, subject, room, status, date, marked_at FROM ledger_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []attendance.Record
	for rows.Next() {
		var (
			rec      attendance.Record
			status   string
			date     string
			markedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.Subject, &rec.Room, &status, &date, &markedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		rec.Status = attendance.Status(status)
		rec.Date = shared.DateKey(date)
		rec.Timestamp = time.UnixMilli(markedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// IsAlreadyMarked reports whether the key is in the ledger.
func (l *Ledger) IsAlreadyMarked(ctx context.Context, k attendance.Key) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE student_id = ? AND date = ? AND subject = ?)`,
		k.StudentID, k.Date.String(), k.Subject,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	return exists, nil
}

var _ attendance.Repository = (*Ledger)(nil)
