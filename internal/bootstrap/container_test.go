package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmaster/campus-attendance/config"
	"github.com/scholarmaster/campus-attendance/internal/application/command"
	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/memory"
	httpapi "github.com/scholarmaster/campus-attendance/internal/interface/http"
	"github.com/scholarmaster/campus-attendance/pkg/circuitbreaker"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	return &config.Config{
		App: config.AppConfig{
			Name:        "campus",
			Environment: config.EnvDevelopment,
			Version:     "test",
			Timezone:    "UTC",
			Location:    time.UTC,
		},
		HTTP: config.HTTPConfig{Host: "127.0.0.1", Port: 8000, MaxUploadBytes: 1 << 20},
		Redis: config.RedisConfig{Disabled: true},
		Ledger: config.LedgerConfig{
			Enabled:         true,
			Path:            filepath.Join(dir, "ledger.db"),
			CheckpointEvery: 2,
		},
		Timetable: config.TimetableConfig{
			Path:         filepath.Join(dir, "timetable.yaml"),
			TeachersPath: filepath.Join(dir, "teachers.yaml"),
		},
		Recognition: config.RecognitionConfig{
			ServiceURL:     "http://127.0.0.1:1",
			RequestTimeout: time.Second,
			MatchThreshold: 0.6,
		},
		Transcription: config.TranscriptionConfig{
			ServiceURL:     "http://127.0.0.1:1",
			RequestTimeout: time.Second,
			BufferSize:     4,
		},
		Compliance: config.ComplianceConfig{
			TruancyThreshold: 30,
			ViolationTTL:     time.Hour,
			LectureNoise:     0.40,
			BreakNoise:       0.80,
			ScreamNoise:      0.85,
			AlertDebounce:    5 * time.Minute,
			AlertRetention:   10,
		},
		Scheduler: config.SchedulerConfig{
			Enabled:              true,
			AbsenteeCron:         "30 17 * * 1-6",
			IndexRefreshInterval: time.Minute,
			LedgerVerifyInterval: time.Minute,
			JobTimeout:           time.Minute,
		},
		Features: config.LoadFeatureFlags(),
	}
}

func newContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 11, 10, 30, 0, 0, time.UTC))
	c, err := New(context.Background(), cfg, logger.Nop(), Options{SkipRedis: true, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_LedgerBackedWithoutDatabase(t *testing.T) {
	c := newContainer(t, testConfig(t))

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Cache)
	require.NotNil(t, c.Ledger)
	assert.Equal(t, attendance.Repository(c.Ledger), c.Records)
	assert.IsType(t, &memory.StudentRepository{}, c.Students)
	assert.IsType(t, &memory.PresenceTracker{}, c.Presence)
}

func TestNew_MemoryOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Enabled = false
	c := newContainer(t, cfg)

	assert.Nil(t, c.Ledger)
	assert.IsType(t, &memory.AttendanceRepository{}, c.Records)

	s, err := c.Scheduler()
	require.NoError(t, err)
	var names []string
	for _, j := range s.ListJobs() {
		names = append(names, j.Name)
	}
	assert.ElementsMatch(t, []string{"mark_absentees", "refresh_face_index"}, names)
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, logger.Nop(), Options{})
	assert.Error(t, err)
}

func TestMarkAttendanceIsChained(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t, testConfig(t))

	s := student.MustNew(student.Params{ID: "S1", Name: "Ana", Department: "CS", Program: student.ProgramUG, Year: 2, Section: student.SectionB})
	require.NoError(t, c.Students.Save(ctx, s))

	for _, subject := range []string{"Math", "Physics", "Chemistry"} {
		_, err := c.Commands.MarkAttendance.Handle(ctx, command.MarkAttendanceCommand{StudentID: "S1", Subject: subject, Room: "101"})
		require.NoError(t, err)
	}

	records, err := c.Records.Find(ctx, attendance.Filter{StudentID: "S1"})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	report, err := c.Ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Entries)
	assert.Equal(t, 1, report.Checkpoints)
}

func TestScheduler_RegistersJobs(t *testing.T) {
	c := newContainer(t, testConfig(t))

	s, err := c.Scheduler()
	require.NoError(t, err)

	var names []string
	for _, j := range s.ListJobs() {
		names = append(names, j.Name)
	}
	assert.ElementsMatch(t, []string{"mark_absentees", "refresh_face_index", "verify_ledger"}, names)

	cfg := testConfig(t)
	cfg.Scheduler.AbsenteeCron = "not a cron"
	_, err = newContainer(t, cfg).Scheduler()
	assert.Error(t, err)
}

func TestHealthAndHTTP(t *testing.T) {
	c := newContainer(t, testConfig(t))

	status := c.Health.Check(context.Background())
	assert.True(t, status.Healthy, "face service is optional")
	assert.True(t, status.Degraded)
	assert.True(t, status.Checks["ledger"].Healthy)
	assert.False(t, status.Checks["face_service"].Critical)
	breaker, ok := status.Checks["face_service"].Details.(circuitbreaker.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "face-service", breaker.Name)

	auth, err := c.LoadAuth()
	require.NoError(t, err)
	assert.Nil(t, auth)

	srv := httpapi.NewServer(httpapi.DefaultConfig(), c.HTTPDependencies(auth))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadAuth_MissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{Enabled: true, UsersPath: filepath.Join(t.TempDir(), "users.yaml")}
	c := newContainer(t, cfg)

	_, err := c.LoadAuth()
	assert.Error(t, err)
}
