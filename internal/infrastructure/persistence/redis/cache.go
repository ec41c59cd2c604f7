// Package redis keeps the hot campus state that several processes share:
// cached students, truancy counters, the double-marking guard, recent
// transcripts and alerts, and who was last seen in which zone.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the connection and pool setup for NewCache.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr is host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	// ErrCacheMiss means the key does not exist.
	ErrCacheMiss = errors.New("cache: key not found")
	// ErrCacheConnection means the first ping failed.
	ErrCacheConnection = errors.New("cache: connection failed")
	// ErrCacheSerialization wraps JSON encode and decode failures.
	ErrCacheSerialization = errors.New("cache: serialization failed")
	// ErrCacheKeyEmpty rejects calls with an empty key or channel.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")
	// ErrCacheNilValue rejects Set with a nil value.
	ErrCacheNilValue = errors.New("cache: value cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

const (
	PrefixStudent    = "student:"
	PrefixViolation  = "violation:"
	PrefixAttendance = "attendance:"
	PrefixPubSub     = "pubsub:"

	KeyTranscripts      = "lecture:transcripts"
	KeyTranscriptUnread = "lecture:transcripts:unread"
	KeyAlerts           = "alerts:recent"
)

const (
	// TTLStudentCache is the TTL for cached student records.
	TTLStudentCache = 10 * time.Minute

	// TTLViolation bounds how long truancy sightings accumulate.
	TTLViolation = 2 * time.Hour

	// TTLAttendanceGuard covers a full campus day.
	TTLAttendanceGuard = 24 * time.Hour
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache is a go-redis client that stores values as JSON.
type Cache struct {
	client redis.UniversalClient
}

// NewCache dials Redis and fails unless the first ping succeeds.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps a client the caller already opened.
func NewCacheFromClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Client exposes the raw client for pipelines and sorted sets.
func (c *Cache) Client() redis.UniversalClient { return c.client }

// Close closes the client.
func (c *Cache) Close() error { return c.client.Close() }

// Ping checks that Redis answers.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func encode(key string, v any) ([]byte, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return data, nil
}

func decode(data []byte, err error, dest any) error {
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// Set stores value under key. A zero ttl keeps it until deleted.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if value == nil {
		return ErrCacheNilValue
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the value at key into dest, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, key).Bytes()
	return decode(data, err, dest)
}

// Take is Get followed by delete in one GETDEL, so exactly one caller sees
// the value.
func (c *Cache) Take(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.GetDel(ctx, key).Bytes()
	return decode(data, err, dest)
}

// Delete removes keys. Missing keys are ignored.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *Cache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := encode(key, value)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, data, ttl).Result()
}

// IncrWithTTL increments a counter and restarts its ttl in one transaction.
func (c *Cache) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, ErrCacheKeyEmpty
	}
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// PushCapped prepends value and keeps only the newest limit items.
func (c *Cache) PushCapped(ctx context.Context, key string, value any, limit int) error {
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	if limit > 0 {
		pipe.LTrim(ctx, key, 0, int64(limit-1))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Range returns up to n raw items, newest first. n <= 0 returns them all.
func (c *Cache) Range(ctx context.Context, key string, n int) ([]string, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	return c.client.LRange(ctx, key, 0, stop).Result()
}

// Publish sends message as JSON on channel.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	data, err := encode(channel, message)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, channel, data).Err()
}

// StudentKey generates a cache key for student data.
func StudentKey(studentID string) string {
	return PrefixStudent + studentID
}

// ViolationKey generates the truancy counter key of a student.
func ViolationKey(studentID string) string {
	return PrefixViolation + studentID
}

// AttendanceKey generates the double-marking guard key.
func AttendanceKey(k string) string {
	return PrefixAttendance + k
}

// PubSubChannel generates a pub/sub channel name.
func PubSubChannel(eventType string) string {
	return PrefixPubSub + eventType
}
