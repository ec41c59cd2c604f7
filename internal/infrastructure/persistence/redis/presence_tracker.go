package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
)

// PresenceTracker records where students were last recognised.
//
// Layout:
//   - "presence:{student_id}" holds the last sighting as JSON, with TTL
//   - "presence:zone:{zone}" is a sorted set of student IDs scored by unix time
//   - "pubsub:presence" broadcasts every sighting
type PresenceTracker struct {
	cache *Cache
	ttl   time.Duration
}

const (
	prefixPresence     = "presence:"
	prefixPresenceZone = "presence:zone:"
	channelPresence    = "pubsub:presence"

	// TTLPresence is how long a sighting is remembered.
	TTLPresence = 12 * time.Hour
)

// NewPresenceTracker creates a new PresenceTracker.
func NewPresenceTracker(cache *Cache) *PresenceTracker {
	return &PresenceTracker{cache: cache, ttl: TTLPresence}
}

// Seen records a sighting. A student moving zones is removed from the old zone set.
func (t *PresenceTracker) Seen(ctx context.Context, s recognition.Sighting) error {
	if s.StudentID == "" {
		return ErrCacheKeyEmpty
	}
	if s.SeenAt.IsZero() {
		s.SeenAt = time.Now()
	}
	zone := strings.ToLower(s.Zone)

	previous, found, err := t.LastSeen(ctx, s.StudentID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	pipe := t.cache.Client().TxPipeline()
	pipe.Set(ctx, prefixPresence+s.StudentID, data, t.ttl)
	if found && strings.ToLower(previous.Zone) != zone {
		pipe.ZRem(ctx, prefixPresenceZone+strings.ToLower(previous.Zone), s.StudentID)
	}
	pipe.ZAdd(ctx, prefixPresenceZone+zone, redis.Z{
		Score:  float64(s.SeenAt.Unix()),
		Member: s.StudentID,
	})
	pipe.Expire(ctx, prefixPresenceZone+zone, t.ttl)
	pipe.Publish(ctx, channelPresence, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record sighting: %w", err)
	}
	return nil
}

// LastSeen returns the last sighting of a student.
func (t *PresenceTracker) LastSeen(ctx context.Context, studentID string) (recognition.Sighting, bool, error) {
	var s recognition.Sighting
	if err := t.cache.Get(ctx, prefixPresence+studentID, &s); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return recognition.Sighting{}, false, nil
		}
		return recognition.Sighting{}, false, err
	}
	return s, true, nil
}

// InZone returns sightings in zone newer than within, most recent first.
func (t *PresenceTracker) InZone(ctx context.Context, zone string, within time.Duration) ([]recognition.Sighting, error) {
	cutoff := time.Now().Add(-within).Unix()

	ids, err := t.cache.Client().ZRevRangeByScore(ctx, prefixPresenceZone+strings.ToLower(zone), &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query zone presence: %w", err)
	}
	if len(ids) == 0 {
		return []recognition.Sighting{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = prefixPresence + id
	}

	values, err := t.cache.Client().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sightings: %w", err)
	}

	out := make([]recognition.Sighting, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var s recognition.Sighting
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

var _ recognition.PresenceTracker = (*PresenceTracker)(nil)
