package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/ledger"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// VERIFY LEDGER JOB
// ══════════════════════════════════════════════════════════════════════════════

// LedgerVerifier walks the attendance hash chain.
type LedgerVerifier interface {
	Verify(ctx context.Context) (ledger.Report, error)
}

// VerifyLedgerJob checks the edge ledger and raises a Security alert when
// the chain is broken.
type VerifyLedgerJob struct {
	statsHolder

	ledger LedgerVerifier
	alerts compliance.AlertService
	log    *logger.Logger

	// Zone is stored on the raised alert.
	Zone string
}

// NewVerifyLedgerJob creates the job. alerts may be nil.
func NewVerifyLedgerJob(l LedgerVerifier, alerts compliance.AlertService, log *logger.Logger) *VerifyLedgerJob {
	if log == nil {
		log = logger.Default()
	}
	return &VerifyLedgerJob{
		ledger: l,
		alerts: alerts,
		log:    log.With(logger.Component("job.verify_ledger")),
		Zone:   "edge-ledger",
	}
}

// Name returns the job name.
func (j *VerifyLedgerJob) Name() string { return "verify_ledger" }

// Description returns a human-readable description.
func (j *VerifyLedgerJob) Description() string {
	return "Verifies the hash chain and checkpoints of the edge attendance ledger"
}

// Run executes the verification. A broken chain fails the run.
func (j *VerifyLedgerJob) Run(ctx context.Context) error {
	stats := newStats()
	defer j.store(stats)

	report, err := j.ledger.Verify(ctx)
	stats.Counters["entries"] = report.Entries
	stats.Counters["checkpoints"] = report.Checkpoints
	stats.Details["head"] = report.Head

	if err == nil {
		j.log.Info("ledger verified",
			logger.Int("entries", report.Entries),
			logger.Int("checkpoints", report.Checkpoints),
		)
		return nil
	}
	stats.Error = err.Error()

	if !errors.Is(err, shared.ErrLedgerCorrupted) {
		return fmt.Errorf("verify ledger: %w", err)
	}

	j.log.Error("ledger chain broken",
		logger.Int64("seq", report.BrokenAt),
		logger.String("reason", report.Reason),
	)

	if j.alerts != nil {
		alert := compliance.Alert{
			ID:       uuid.NewString(),
			Severity: compliance.SeveritySecurity,
			Message:  fmt.Sprintf("Attendance ledger broken at entry %d: %s", report.BrokenAt, report.Reason),
			Zone:     j.Zone,
			Metadata: map[string]interface{}{
				"broken_at": report.BrokenAt,
				"entries":   report.Entries,
			},
		}
		if aerr := j.alerts.Trigger(ctx, alert); aerr != nil {
			j.log.Error("failed to raise ledger alert", logger.Err(aerr))
		}
	}
	return err
}
