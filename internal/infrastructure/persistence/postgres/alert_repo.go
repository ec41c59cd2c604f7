package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
)

// AlertRepository keeps the durable alert history.
// It implements compliance.AlertService.
type AlertRepository struct {
	conn *Connection
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{conn: conn}
}

// Trigger stores the alert.
func (r *AlertRepository) Trigger(ctx context.Context, a compliance.Alert) error {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	var meta []byte
	if len(a.Metadata) > 0 {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal alert metadata: %w", err)
		}
		meta = b
	}

	_, err := r.conn.Exec(ctx,
		"INSERT INTO alerts (id, severity, message, zone, metadata, raised_at) VALUES ($1, $2, $3, $4, $5, $6)",
		a.ID, string(a.Severity), a.Message, a.Zone, meta, a.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// Recent returns alerts raised within window, newest first.
// An empty zone returns alerts from every zone.
func (r *AlertRepository) Recent(ctx context.Context, zone string, window time.Duration) ([]compliance.Alert, error) {
	ctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	since := time.Now().Add(-window).UTC()

	rows, err := r.conn.Query(ctx, `
		SELECT id, severity, message, zone, metadata, raised_at
		FROM alerts
		WHERE raised_at >= $1 AND ($2 = '' OR zone = $2)
		ORDER BY raised_at DESC
	`, since, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []compliance.Alert
	for rows.Next() {
		var (
			a        compliance.Alert
			severity string
			meta     []byte
		)
		if err := rows.Scan(&a.ID, &severity, &a.Message, &a.Zone, &meta, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Severity = compliance.Severity(severity)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal alert metadata: %w", err)
			}
		}
		out = append(out, a)
	}

	return out, rows.Err()
}
