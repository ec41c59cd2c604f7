package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

func TestParseCronExpression_Next(t *testing.T) {
	loc := time.UTC
	ce, err := ParseCronExpression("30 17 * * 1-6")
	require.NoError(t, err)

	// Saturday 2024-03-09 18:00 -> Monday 2024-03-11 17:30
	next := ce.Next(time.Date(2024, 3, 9, 18, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 11, 17, 30, 0, 0, loc), next)

	// strictly after the given minute
	next = ce.Next(time.Date(2024, 3, 11, 17, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 12, 17, 30, 0, 0, loc), next)
}

func TestParseCronExpression_Fields(t *testing.T) {
	ce, err := ParseCronExpression("10,40 8-10/2 * * *")
	require.NoError(t, err)

	var got []string
	at := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at = ce.Next(at)
		got = append(got, at.Format("15:04"))
	}
	assert.Equal(t, []string{"08:10", "08:40", "10:10", "10:40"}, got)

	for _, bad := range []string{"", "* * * *", "60 * * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *", "1,,2 * * * *"} {
		_, err := ParseCronExpression(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 15m")
	require.NoError(t, err)
	assert.Equal(t, "@every 15m0s", s.String())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(15*time.Minute), s.Next(base))

	_, err = ParseSchedule("@every nope")
	assert.Error(t, err)

	s, err = ParseSchedule("0 * * * *")
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", s.String())
}

type countingJob struct {
	name  string
	calls int32
	err   error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(context.Context) error {
	atomic.AddInt32(&j.calls, 1)
	return j.err
}

func newTestScheduler() *Scheduler {
	cfg := DefaultConfig()
	cfg.Logger = logger.Nop()
	cfg.TickInterval = 5 * time.Millisecond
	return New(cfg)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := newTestScheduler()
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}

	require.NoError(t, s.Register(ok, Every(10*time.Millisecond)))
	require.NoError(t, s.Register(bad, Every(10*time.Millisecond)))
	assert.ErrorIs(t, s.Register(ok, Every(time.Second)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)

	var failed int32
	s.OnJobError(func(string, error) { atomic.AddInt32(&failed, 1) })

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&ok.calls) >= 2 && atomic.LoadInt32(&failed) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "bad", jobs[0].Name)
	assert.GreaterOrEqual(t, jobs[0].FailCount, int64(1))
	assert.NotEmpty(t, s.History(0))
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "sweep"}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "sweep")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)
	assert.Equal(t, int32(1), job.calls)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, s.SetEnabled("sweep", false))
	assert.False(t, s.ListJobs()[0].Enabled)
}
