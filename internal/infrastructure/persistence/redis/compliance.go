package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// VIOLATION COUNTER
// ══════════════════════════════════════════════════════════════════════════════

// ViolationCounter implements compliance.ViolationCounter with INCR + TTL.
// Counters expire on their own if a student stops being seen.
type ViolationCounter struct {
	cache *Cache
	ttl   time.Duration
}

// NewViolationCounter creates a counter. Zero ttl uses TTLViolation.
func NewViolationCounter(cache *Cache, ttl time.Duration) *ViolationCounter {
	if ttl <= 0 {
		ttl = TTLViolation
	}
	return &ViolationCounter{cache: cache, ttl: ttl}
}

// Increment bumps the counter of a student.
func (v *ViolationCounter) Increment(ctx context.Context, studentID string) (int, error) {
	n, err := v.cache.IncrWithTTL(ctx, ViolationKey(studentID), v.ttl)
	if err != nil {
		return 0, fmt.Errorf("increment violations: %w", err)
	}
	return int(n), nil
}

// Reset clears the counter of a student.
func (v *ViolationCounter) Reset(ctx context.Context, studentID string) error {
	return v.cache.Delete(ctx, ViolationKey(studentID))
}

var _ compliance.ViolationCounter = (*ViolationCounter)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE GUARD
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceGuard implements attendance.DuplicateGuard with SETNX.
type AttendanceGuard struct {
	cache *Cache
	ttl   time.Duration
}

// NewAttendanceGuard creates a guard whose claims live for a campus day.
func NewAttendanceGuard(cache *Cache) *AttendanceGuard {
	return &AttendanceGuard{cache: cache, ttl: TTLAttendanceGuard}
}

// Claim takes the key. false means another caller already holds it.
func (g *AttendanceGuard) Claim(ctx context.Context, k attendance.Key) (bool, error) {
	return g.cache.SetNX(ctx, AttendanceKey(k.String()), time.Now().Unix(), g.ttl)
}

// Release frees the key after a failed write.
func (g *AttendanceGuard) Release(ctx context.Context, k attendance.Key) error {
	return g.cache.Delete(ctx, AttendanceKey(k.String()))
}

var _ attendance.DuplicateGuard = (*AttendanceGuard)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// ALERT STORE
// ══════════════════════════════════════════════════════════════════════════════

// AlertStore keeps the most recent alerts in a capped list and fans them out
// on the alerts pub/sub channel. It implements compliance.AlertService.
type AlertStore struct {
	cache     *Cache
	retention int
}

// NewAlertStore creates a store that keeps at most retention alerts.
func NewAlertStore(cache *Cache, retention int) *AlertStore {
	if retention <= 0 {
		retention = 100
	}
	return &AlertStore{cache: cache, retention: retention}
}

// Trigger records and publishes an alert.
func (s *AlertStore) Trigger(ctx context.Context, a compliance.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	if err := s.cache.PushCapped(ctx, KeyAlerts, a, s.retention); err != nil {
		return fmt.Errorf("store alert: %w", err)
	}
	if err := s.cache.Publish(ctx, PubSubChannel("alerts"), a); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Recent returns alerts newer than window, newest first, filtered by zone
// when zone is not empty.
func (s *AlertStore) Recent(ctx context.Context, zone string, window time.Duration) ([]compliance.Alert, error) {
	raw, err := s.cache.Range(ctx, KeyAlerts, s.retention)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	cutoff := time.Now().Add(-window)
	var out []compliance.Alert
	for _, item := range raw {
		var a compliance.Alert
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		if a.Timestamp.Before(cutoff) {
			continue
		}
		if zone != "" && a.Zone != zone {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

var _ compliance.AlertService = (*AlertStore)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSCRIPT BUFFER
// ══════════════════════════════════════════════════════════════════════════════

// TranscriptBuffer shares finished lecture transcripts between processes.
// The worker pushes, the API takes the newest unread one.
//
// Layout:
//   - "lecture:transcripts" is the capped history, newest first
//   - "lecture:transcripts:unread" holds the newest transcript until it is read
type TranscriptBuffer struct {
	cache   *Cache
	size    int
	timeout time.Duration
	log     *logger.Logger
}

// NewTranscriptBuffer creates a buffer keeping size transcripts.
func NewTranscriptBuffer(cache *Cache, size int, log *logger.Logger) *TranscriptBuffer {
	if size <= 0 {
		size = 32
	}
	if log == nil {
		log = logger.Default()
	}
	return &TranscriptBuffer{
		cache:   cache,
		size:    size,
		timeout: time.Second,
		log:     log.With(logger.Component("transcript_buffer")),
	}
}

// Push stores a transcript and marks it unread. Blank text is ignored.
func (b *TranscriptBuffer) Push(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	data, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	pipe := b.cache.Client().TxPipeline()
	pipe.LPush(ctx, KeyTranscripts, data)
	pipe.LTrim(ctx, KeyTranscripts, 0, int64(b.size-1))
	pipe.Set(ctx, KeyTranscriptUnread, data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push transcript: %w", err)
	}
	return nil
}

// TranscribeLatest returns the newest transcript not yet returned. A second
// call without a Push in between returns false.
func (b *TranscriptBuffer) TranscribeLatest() (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var text string
	err := b.cache.Take(ctx, KeyTranscriptUnread, &text)
	switch {
	case errors.Is(err, ErrCacheMiss):
		return "", false
	case err != nil:
		b.log.Warn("failed to read transcript", logger.Err(err))
		return "", false
	}
	return text, text != ""
}

var _ recognition.Transcriber = (*TranscriptBuffer)(nil)
