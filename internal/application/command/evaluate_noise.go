package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE NOISE COMMAND
// Applies the noise rules to one audio measurement and raises at most one
// alert per zone and severity within the debounce window.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateNoiseCommand contains one audio measurement.
type EvaluateNoiseCommand struct {
	Zone        string
	Metrics     compliance.AudioMetrics
	LectureMode bool

	// At defaults to the handler clock.
	At time.Time
}

// Validate validates the command.
func (c EvaluateNoiseCommand) Validate() error {
	if !shared.Zone(c.Zone).IsValid() {
		return shared.NewDomainError("compliance", "EvaluateNoise", shared.ErrValidation, "zone is required")
	}
	if c.Metrics.DBLevel < 0 || c.Metrics.DBLevel > 1 {
		return shared.WrapError("compliance", "EvaluateNoise", shared.ErrValidation,
			"db_level must be between 0 and 1", shared.ErrValueOutOfRange)
	}
	return nil
}

// EvaluateNoiseResult reports what happened to the measurement.
type EvaluateNoiseResult struct {
	Triggered bool              `json:"triggered"`
	Debounced bool              `json:"debounced"`
	Alert     *compliance.Alert `json:"alert,omitempty"`
	Recipient string            `json:"recipient,omitempty"`
}

// EvaluateNoiseHandler handles EvaluateNoiseCommand.
type EvaluateNoiseHandler struct {
	alerts    compliance.AlertService
	publisher shared.EventPublisher
	clock     timeutil.Clock
	rules     compliance.NoiseRules
}

// NewEvaluateNoiseHandler creates a new EvaluateNoiseHandler.
func NewEvaluateNoiseHandler(
	alerts compliance.AlertService,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	rules compliance.NoiseRules,
) *EvaluateNoiseHandler {
	if rules.DebounceWindow <= 0 {
		rules = compliance.DefaultNoiseRules()
	}
	return &EvaluateNoiseHandler{alerts: alerts, publisher: publisher, clock: clock, rules: rules}
}

// Handle executes the command.
func (h *EvaluateNoiseHandler) Handle(ctx context.Context, cmd EvaluateNoiseCommand) (*EvaluateNoiseResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	level := cmd.Metrics.DBLevel
	if !h.rules.ShouldTrigger(level, cmd.LectureMode) {
		return &EvaluateNoiseResult{}, nil
	}

	zone := strings.TrimSpace(cmd.Zone)
	severity := h.rules.Severity(level)

	recent, err := h.alerts.Recent(ctx, zone, h.rules.DebounceWindow)
	if err != nil {
		return nil, fmt.Errorf("evaluate_noise: recent alerts: %w", err)
	}
	same := 0
	for _, a := range recent {
		if a.Severity == severity {
			same++
		}
	}
	if compliance.ShouldDebounce(same) {
		return &EvaluateNoiseResult{Triggered: true, Debounced: true}, nil
	}

	at := cmd.At
	if at.IsZero() {
		at = now(h.clock)
	}

	mode := "break"
	if cmd.LectureMode {
		mode = "lecture"
	}

	alert := compliance.Alert{
		ID:        uuid.NewString(),
		Timestamp: at,
		Severity:  severity,
		Message:   fmt.Sprintf("Noise level %.0f%% exceeds the %s threshold in %s", level*100, mode, zone),
		Zone:      zone,
		Metadata: map[string]interface{}{
			"db_level":          level,
			"lecture_mode":      cmd.LectureMode,
			"voice_detected":    cmd.Metrics.IsVoiceDetected,
			"spectral_centroid": cmd.Metrics.SpectralCentroid,
		},
	}
	if err := h.alerts.Trigger(ctx, alert); err != nil {
		return nil, fmt.Errorf("evaluate_noise: trigger: %w", err)
	}

	publish(ctx, h.publisher, shared.NewAlertRaisedEvent(
		alert.ID, alert.Severity.String(), alert.Message, alert.Zone, alert.Recipient(),
	))

	return &EvaluateNoiseResult{Triggered: true, Alert: &alert, Recipient: alert.Recipient()}, nil
}
