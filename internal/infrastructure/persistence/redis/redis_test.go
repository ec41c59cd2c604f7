package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/memory"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

func TestCache_JSONValues(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	type slot struct {
		Subject string `json:"subject"`
		Room    string `json:"room"`
	}

	var got slot
	assert.ErrorIs(t, cache.Get(ctx, "slot", &got), ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "slot", slot{"Physics", "Lab 2"}, time.Minute))
	require.NoError(t, cache.Get(ctx, "slot", &got))
	assert.Equal(t, slot{"Physics", "Lab 2"}, got)
	assert.Equal(t, time.Minute, mr.TTL("slot"))

	got = slot{}
	require.NoError(t, cache.Take(ctx, "slot", &got))
	assert.Equal(t, "Physics", got.Subject)
	assert.ErrorIs(t, cache.Take(ctx, "slot", &got), ErrCacheMiss, "taken once")

	require.NoError(t, mr.Set("broken", "{not json"))
	assert.ErrorIs(t, cache.Get(ctx, "broken", &got), ErrCacheSerialization)

	assert.ErrorIs(t, cache.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", nil, 0), ErrCacheNilValue)
	assert.ErrorIs(t, cache.Publish(ctx, "", "x"), ErrCacheKeyEmpty)
	assert.NoError(t, cache.Delete(ctx))
}

func TestCache_SetNXAndCappedList(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	ok, err := cache.SetNX(ctx, "guard", "S1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = cache.SetNX(ctx, "guard", "S2", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 1; i <= 4; i++ {
		require.NoError(t, cache.PushCapped(ctx, "recent", i, 3))
	}
	items, err := cache.Range(ctx, "recent", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2"}, items)

	items, err = cache.Range(ctx, "recent", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, items)
}

func TestCache_Ping(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, cache.Ping(context.Background()))
	mr.Close()
	assert.Error(t, cache.Ping(context.Background()))
}

// ══════════════════════════════════════════════════════════════════════════════
// VIOLATION COUNTER
// ══════════════════════════════════════════════════════════════════════════════

func TestViolationCounter(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	c := NewViolationCounter(cache, time.Hour)

	n, err := c.Increment(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Increment(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, time.Hour, mr.TTL(ViolationKey("S1")))

	n, err = c.Increment(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "counters are per student")

	require.NoError(t, c.Reset(ctx, "S1"))
	assert.False(t, mr.Exists(ViolationKey("S1")))

	n, err = c.Increment(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestViolationCounter_Expires(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	c := NewViolationCounter(cache, time.Minute)

	_, err := c.Increment(ctx, "S1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	n, err := c.Increment(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE GUARD
// ══════════════════════════════════════════════════════════════════════════════

func TestAttendanceGuard(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	g := NewAttendanceGuard(cache)
	key := attendance.Key{StudentID: "S1", Date: shared.DateKey("2024-03-11"), Subject: "Physics"}

	ok, err := g.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, TTLAttendanceGuard, mr.TTL(AttendanceKey(key.String())))

	ok, err = g.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "second claim on the same key")

	other := key
	other.Subject = "Math"
	ok, err = g.Claim(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, g.Release(ctx, key))
	ok, err = g.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "claim after release")
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSCRIPT BUFFER
// ══════════════════════════════════════════════════════════════════════════════

func TestTranscriptBuffer_ReturnsOnlyNewText(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	b := NewTranscriptBuffer(cache, 4, logger.Nop())

	_, ok := b.TranscribeLatest()
	assert.False(t, ok, "empty buffer")

	require.NoError(t, b.Push(ctx, "hello class"))

	text, ok := b.TranscribeLatest()
	require.True(t, ok)
	assert.Equal(t, "hello class", text)

	_, ok = b.TranscribeLatest()
	assert.False(t, ok, "nothing new since the last read")

	require.NoError(t, b.Push(ctx, "first"))
	require.NoError(t, b.Push(ctx, "second"))
	require.NoError(t, b.Push(ctx, "   "))

	text, ok = b.TranscribeLatest()
	require.True(t, ok)
	assert.Equal(t, "second", text)

	_, ok = b.TranscribeLatest()
	assert.False(t, ok)
}

func TestTranscriptBuffer_SharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	worker := NewTranscriptBuffer(cache, 4, logger.Nop())
	api := NewTranscriptBuffer(cache, 4, logger.Nop())

	require.NoError(t, worker.Push(ctx, "photosynthesis"))

	text, ok := api.TranscribeLatest()
	require.True(t, ok)
	assert.Equal(t, "photosynthesis", text)

	_, ok = worker.TranscribeLatest()
	assert.False(t, ok, "already read through the other instance")
}

func TestTranscriptBuffer_CapsHistory(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	b := NewTranscriptBuffer(cache, 3, logger.Nop())

	for _, s := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, b.Push(ctx, s))
	}

	items, err := mr.List(KeyTranscripts)
	require.NoError(t, err)
	assert.Equal(t, []string{`"e"`, `"d"`, `"c"`}, items)
}

func TestTranscriptBuffer_RedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	b := NewTranscriptBuffer(cache, 4, logger.Nop())
	mr.Close()

	text, ok := b.TranscribeLatest()
	assert.False(t, ok)
	assert.Empty(t, text)
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERT STORE
// ══════════════════════════════════════════════════════════════════════════════

func TestAlertStore(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	s := NewAlertStore(cache, 2)

	require.NoError(t, s.Trigger(ctx, compliance.Alert{Severity: compliance.SeverityWarning, Message: "noise", Zone: "Lab 2"}))
	require.NoError(t, s.Trigger(ctx, compliance.Alert{Severity: compliance.SeverityCritical, Message: "loud", Zone: "Lab 3"}))

	recent, err := s.Recent(ctx, "Lab 2", time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.NotEmpty(t, recent[0].ID)
	assert.Equal(t, "noise", recent[0].Message)

	all, err := s.Recent(ctx, "", time.Hour)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "loud", all[0].Message, "newest first")

	require.NoError(t, s.Trigger(ctx, compliance.Alert{Severity: compliance.SeverityWarning, Message: "again", Zone: "Lab 3"}))
	recent, err = s.Recent(ctx, "Lab 2", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, recent, "oldest alert fell out of retention")

	old := compliance.Alert{Severity: compliance.SeverityWarning, Message: "stale", Zone: "Lab 9", Timestamp: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, s.Trigger(ctx, old))
	recent, err = s.Recent(ctx, "Lab 9", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, recent, "outside the window")
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE
// ══════════════════════════════════════════════════════════════════════════════

func TestPresenceTracker(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	p := NewPresenceTracker(cache)
	now := time.Now()

	_, found, err := p.LastSeen(ctx, "S1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, p.Seen(ctx, recognition.Sighting{StudentID: "S1", Zone: "Lab 2", Confidence: 0.9, SeenAt: now.Add(-time.Minute)}))
	require.NoError(t, p.Seen(ctx, recognition.Sighting{StudentID: "S2", Zone: "Lab 2", Confidence: 0.8, SeenAt: now}))

	in, err := p.InZone(ctx, "lab 2", 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, "S2", in[0].StudentID, "most recent first")

	require.NoError(t, p.Seen(ctx, recognition.Sighting{StudentID: "S1", Zone: "Lab 3", Confidence: 0.95, SeenAt: now}))

	in, err = p.InZone(ctx, "Lab 2", 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "S2", in[0].StudentID)

	last, found, err := p.LastSeen(ctx, "S1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Lab 3", last.Zone)

	require.NoError(t, p.Seen(ctx, recognition.Sighting{StudentID: "S3", Zone: "Lab 4", SeenAt: now.Add(-time.Hour)}))
	in, err = p.InZone(ctx, "Lab 4", 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, in)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT CACHE
// ══════════════════════════════════════════════════════════════════════════════

func TestStudentCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	repo := memory.NewStudentRepository()
	ana := student.MustNew(student.Params{
		ID: "S1", Name: "Ana", Department: "CS", Program: student.ProgramUG, Year: 2, Section: student.SectionB,
	})
	require.NoError(t, repo.Save(ctx, ana))

	c := NewStudentCache(cache, repo, logger.Nop())

	got, err := c.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, ana, got)
	assert.True(t, mr.Exists(StudentKey("S1")))

	got, err = c.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, ana, got, "served from the cache")

	renamed := student.MustNew(student.Params{
		ID: "S1", Name: "Ana Maria", Department: "CS", Program: student.ProgramUG, Year: 2, Section: student.SectionB,
	})
	require.NoError(t, c.Save(ctx, renamed))
	assert.False(t, mr.Exists(StudentKey("S1")))

	got, err = c.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.Name())

	_, err = c.GetByID(ctx, "ghost")
	assert.True(t, shared.IsNotFound(err))
	assert.False(t, mr.Exists(StudentKey("ghost")))
}
