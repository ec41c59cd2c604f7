package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
)

// Report is the outcome of a full chain walk.
type Report struct {
	Entries     int    `json:"entries"`
	Checkpoints int    `json:"checkpoints"`
	Head        string `json:"head"`
	Valid       bool   `json:"valid"`

	// BrokenAt is the sequence number of the first bad entry, 0 when valid.
	BrokenAt int64  `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Verify walks the chain, recomputing every link and every checkpoint root.
// A broken chain is reported in Report and returned as shared.ErrLedgerCorrupted.
func (l *Ledger) Verify(ctx context.Context) (Report, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT seq, id, student_id, student_name, subject, room, status, date, marked_at, prev_hash, hash
FROM ledger_entries ORDER BY seq`)
	if err != nil {
		return Report{}, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var (
		report = Report{Valid: true}
		prev   string
		hashes = make(map[int64]string)
	)

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		var (
			seq            int64
			rec            attendance.Record
			status, date   string
			markedAt       int64
			prevHash, hash string
		)
		if err := rows.Scan(&seq, &rec.ID, &rec.StudentID, &rec.StudentName, &rec.Subject, &rec.Room,
			&status, &date, &markedAt, &prevHash, &hash); err != nil {
			return Report{}, fmt.Errorf("scan ledger entry: %w", err)
		}
		rec.Status = attendance.Status(status)
		rec.Date = shared.DateKey(date)
		rec.Timestamp = time.UnixMilli(markedAt).UTC()

		report.Entries++

		if report.Valid {
			if prevHash != prev {
				report.fail(seq, "prev_hash does not match previous entry")
			} else if want, err := ChainHash(prevHash, rec); err != nil {
				return Report{}, err
			} else if want != hash {
				report.fail(seq, "entry hash mismatch")
			}
		}

		hashes[seq] = hash
		prev = hash
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("iterate ledger: %w", err)
	}
	report.Head = prev

	if err := l.verifyCheckpoints(ctx, hashes, &report); err != nil {
		return Report{}, err
	}

	if !report.Valid {
		return report, shared.WrapError("attendance", "Verify", shared.ErrInvalidState,
			fmt.Sprintf("ledger broken at seq %d: %s", report.BrokenAt, report.Reason), shared.ErrLedgerCorrupted)
	}
	return report, nil
}

func (l *Ledger) verifyCheckpoints(ctx context.Context, hashes map[int64]string, report *Report) error {
	rows, err := l.db.QueryContext(ctx, `SELECT first_seq, last_seq, root FROM ledger_checkpoints ORDER BY block`)
	if err != nil {
		return fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			first, last int64
			root        string
		)
		if err := rows.Scan(&first, &last, &root); err != nil {
			return fmt.Errorf("scan checkpoint: %w", err)
		}
		report.Checkpoints++

		if !report.Valid {
			continue
		}

		block := make([]string, 0, last-first+1)
		for seq := first; seq <= last; seq++ {
			h, ok := hashes[seq]
			if !ok {
				report.fail(seq, "entry missing from checkpointed block")
				break
			}
			block = append(block, h)
		}
		if report.Valid && MerkleRoot(block) != root {
			report.fail(first, "checkpoint root mismatch")
		}
	}
	return rows.Err()
}

func (r *Report) fail(seq int64, reason string) {
	r.Valid = false
	r.BrokenAt = seq
	r.Reason = reason
}
