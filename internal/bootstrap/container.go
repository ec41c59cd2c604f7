// Package bootstrap собирает приложение из конфигурации: хранилища,
// внешние клиенты, шину событий, обработчики команд и запросов.
//
// Режим хранения выбирается по конфигурации:
//   - DATABASE_URL задан - студенты, посещаемость и тревоги в PostgreSQL;
//   - Redis доступен - счётчики, защита от дублей, присутствие, расшифровки
//     и межпроцессная шина событий;
//   - ничего нет - всё в памяти процесса, посещаемость в edge-журнале.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scholarmaster/campus-attendance/config"
	"github.com/scholarmaster/campus-attendance/internal/application/command"
	"github.com/scholarmaster/campus-attendance/internal/application/eventhandler"
	"github.com/scholarmaster/campus-attendance/internal/application/query"
	"github.com/scholarmaster/campus-attendance/internal/domain/attendance"
	"github.com/scholarmaster/campus-attendance/internal/domain/compliance"
	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/internal/domain/student"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/external/asr"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/external/facesvc"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/faceindex"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/messaging"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/ledger"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/memory"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/postgres"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/redis"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/timetable"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/scheduler"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/scholarmaster/campus-attendance/internal/interface/http"
	"github.com/scholarmaster/campus-attendance/internal/interface/http/handlers"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/privacy"
	"github.com/scholarmaster/campus-attendance/pkg/retry"
	"github.com/scholarmaster/campus-attendance/pkg/timeutil"
)

// embeddingRepository - хранилище студентов, которое умеет хранить эмбеддинги.
type embeddingRepository interface {
	student.Repository
	command.EmbeddingStore
	faceindex.EmbeddingSource
}

// eventBus - шина событий с освобождением ресурсов.
type eventBus interface {
	shared.EventBus
	Close() error
}

// transcriptBuffer принимает расшифровки от Scribe и отдаёт последнюю.
type transcriptBuffer interface {
	asr.Sink
	recognition.Transcriber
}

// Options управляет сборкой.
type Options struct {
	// SkipRedis запускает без Redis даже если он настроен.
	SkipRedis bool

	// Clock подменяет системные часы (для тестов).
	Clock timeutil.Clock
}

// Commands - обработчики команд.
type Commands struct {
	RegisterStudent  *command.RegisterStudentHandler
	MarkAttendance   *command.MarkAttendanceHandler
	DetectTruancy    *command.DetectTruancyHandler
	EvaluateNoise    *command.EvaluateNoiseHandler
	MarkAbsentees    *command.MarkAbsenteesHandler
	PlanTimetable    *command.PlanTimetableHandler
	RecordAttendance *command.AttendanceRecorder
}

// Queries - обработчики запросов.
type Queries struct {
	RecognizeStudent *query.RecognizeStudentHandler
	GetStudent       *query.GetStudentHandler
	ListStudents     *query.ListStudentsHandler
	GetAttendance    *query.GetAttendanceHandler
	LatestTranscript *query.LatestTranscriptHandler
	ZonePresence     *query.ZonePresenceHandler
}

// Container держит все собранные зависимости процесса.
type Container struct {
	Config *config.Config
	Log    *logger.Logger
	Clock  timeutil.Clock

	// Хранилища. DB, Cache и Ledger равны nil, если не настроены.
	DB       *postgres.Connection
	Cache    *redis.Cache
	Ledger   *ledger.Ledger
	Students student.Repository
	Faces    embeddingRepository
	Records  attendance.Repository
	Schedule schedule.Repository
	Alerts   compliance.AlertService
	Presence recognition.PresenceTracker

	// Распознавание и речь.
	Index       *faceindex.Index
	Detector    *facesvc.Client
	Speech      *asr.Client
	Scribe      *asr.Scribe
	Transcripts transcriptBuffer

	Bus        eventBus
	Dispatcher *messaging.Dispatcher
	Health     *handlers.CompositeHealthChecker

	Commands Commands
	Queries  Queries

	closers []func() error
}

// New собирает контейнер. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (c *Container, err error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if log == nil {
		log = logger.Default()
	}
	if cfg.Features == nil {
		cfg.Features = config.LoadFeatureFlags()
	}
	loc := cfg.App.Location
	if loc == nil {
		loc = timeutil.LoadLocation(cfg.App.Timezone)
		cfg.App.Location = loc
	}

	c = &Container{
		Config: cfg,
		Log:    log,
		Clock:  opts.Clock,
		Health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	if c.Clock == nil {
		c.Clock = timeutil.NewSystemClock(loc)
	}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.HasDatabase() {
		if err := c.connectDatabase(ctx); err != nil {
			return nil, err
		}
	} else {
		log.Warn("DATABASE_URL не задан, студенты хранятся в памяти процесса")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled && !opts.SkipRedis {
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			if cfg.IsProduction() {
				return nil, fmt.Errorf("connect redis: %w", err)
			}
			log.Warn("Redis недоступен, работаем в памяти процесса", logger.Err(err))
		} else {
			c.Cache = cache
			c.closers = append(c.closers, cache.Close)
			c.Health.AddCheck("redis", handlers.NewPingCheck(cache))
			log.Info("подключено к Redis", logger.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EDGE-ЖУРНАЛ ПОСЕЩАЕМОСТИ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path, ledger.Options{CheckpointEvery: cfg.Ledger.CheckpointEvery})
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		c.Ledger = l
		c.closers = append(c.closers, l.Close)
		c.Health.AddCheck("ledger", handlers.NewPingCheck(l))
		log.Info("edge-журнал открыт", logger.String("path", cfg.Ledger.Path))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	if err := c.initRepositories(); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	if err := c.initEventBus(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ВНЕШНИЕ КЛИЕНТЫ
	// ─────────────────────────────────────────────────────────────────────────
	faceCfg := facesvc.DefaultConfig(cfg.Recognition.ServiceURL)
	faceCfg.Timeout = cfg.Recognition.RequestTimeout
	faceCfg.MaxImageBytes = cfg.HTTP.MaxUploadBytes
	c.Detector = facesvc.NewClient(faceCfg, log)
	c.Health.AddDetailedCheck("face_service", handlers.NewExternalServiceCheck(c.Detector), false)

	c.Speech = asr.NewClient(cfg.Transcription.ServiceURL, cfg.Transcription.RequestTimeout, log)
	c.Scribe = asr.NewScribe(c.Speech, c.Transcripts, cfg.Transcription.BufferSize, 2, log)

	c.Index = faceindex.New()
	n, err := c.Index.Load(ctx, c.Faces, log)
	if err != nil {
		return nil, fmt.Errorf("load face index: %w", err)
	}
	log.Info("галерея лиц загружена", logger.Int("embeddings", n))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	c.initApplication()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if err := c.registerEventHandlers(); err != nil {
		return nil, err
	}

	return c, nil
}

// connectDatabase подключается к PostgreSQL с повторами и применяет миграции.
func (c *Container) connectDatabase(ctx context.Context) error {
	cfg := c.Config.Database
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.URL
	pgCfg.MaxConns = cfg.MaxConns
	pgCfg.MinConns = cfg.MinConns
	pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	pgCfg.QueryTimeout = cfg.QueryTimeout

	retrier := retry.Database()
	retrier.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.Log.Warn("postgres недоступен, повтор",
			logger.Int("attempt", attempt),
			logger.Duration("backoff", delay),
			logger.Err(err),
		)
	}

	var conn *postgres.Connection
	err := retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		conn, err = postgres.NewConnection(ctx, pgCfg)
		return err
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	c.DB = conn
	c.closers = append(c.closers, func() error { conn.Close(); return nil })
	c.Health.AddDetailedCheck("postgres", func(ctx context.Context) (any, error) {
		stats, err := conn.Health(ctx)
		if err != nil {
			return nil, err
		}
		return stats, nil
	}, true)
	c.Log.Info("подключено к PostgreSQL")

	applied, err := postgres.NewMigrator(conn).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		c.Log.Info("миграции применены", logger.Int("count", applied))
	}
	return nil
}

// initRepositories выбирает реализацию каждого хранилища.
func (c *Container) initRepositories() error {
	cfg := c.Config

	// Студенты и эмбеддинги.
	if c.DB != nil {
		repo := postgres.NewStudentRepository(c.DB)
		c.Faces = repo
		c.Students = repo
		if c.Cache != nil {
			c.Students = redis.NewStudentCache(c.Cache, repo, c.Log)
		}
	} else {
		repo := memory.NewStudentRepository()
		c.Faces = repo
		c.Students = repo
	}

	// Посещаемость: PostgreSQL, иначе edge-журнал, иначе память.
	switch {
	case c.DB != nil:
		c.Records = postgres.NewAttendanceRepository(c.DB)
	case c.Ledger != nil:
		c.Records = c.Ledger
	default:
		c.Records = memory.NewAttendanceRepository()
	}

	// Расписание.
	if cfg.Timetable.UseDatabase && c.DB != nil {
		c.Schedule = postgres.NewScheduleRepository(c.DB)
	} else {
		store, err := timetable.Open(cfg.Timetable.Path)
		if err != nil {
			return fmt.Errorf("open timetable: %w", err)
		}
		c.Schedule = store
	}

	// Тревоги.
	switch {
	case c.DB != nil:
		c.Alerts = postgres.NewAlertRepository(c.DB)
	case c.Cache != nil:
		c.Alerts = redis.NewAlertStore(c.Cache, cfg.Compliance.AlertRetention)
	default:
		c.Alerts = memory.NewAlertStore(cfg.Compliance.AlertRetention)
	}

	// Присутствие и расшифровки.
	if c.Cache != nil {
		c.Presence = redis.NewPresenceTracker(c.Cache)
		c.Transcripts = redis.NewTranscriptBuffer(c.Cache, cfg.Transcription.BufferSize, c.Log)
	} else {
		c.Presence = memory.NewPresenceTracker()
		c.Transcripts = memory.NewTranscriptBuffer(cfg.Transcription.BufferSize)
	}
	return nil
}

// initEventBus поднимает шину: через Redis pub/sub, если он есть.
func (c *Container) initEventBus(ctx context.Context) error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = c.Log

	if c.Cache != nil {
		bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:         c.Cache.Client(),
			LocalBusConfig: local,
			Logger:         c.Log,
		})
		if err != nil {
			return fmt.Errorf("redis event bus: %w", err)
		}
		c.Bus = bus
	} else {
		c.Bus = messaging.NewInMemoryEventBus(local)
	}
	c.closers = append(c.closers, c.Bus.Close)

	dcfg := messaging.DefaultDispatcherConfig(c.Bus)
	dcfg.Logger = c.Log
	c.Dispatcher = messaging.NewDispatcher(dcfg)
	c.Dispatcher.Use(messaging.RecoveryMiddleware(c.Log))
	c.Dispatcher.Use(messaging.LoggingMiddleware(c.Log))
	return nil
}

// violationCounter и guard - Redis, если он есть.
func (c *Container) violationCounter() compliance.ViolationCounter {
	if c.Cache != nil {
		return redis.NewViolationCounter(c.Cache, c.Config.Compliance.ViolationTTL)
	}
	return memory.NewViolationCounter()
}

func (c *Container) duplicateGuard() attendance.DuplicateGuard {
	if c.Cache != nil {
		return redis.NewAttendanceGuard(c.Cache)
	}
	return memory.NewAttendanceGuard()
}

func (c *Container) initApplication() {
	cfg := c.Config
	hasher := privacy.NewHasher(cfg.App.PrivacyPepper, privacy.DefaultParams())

	rules := compliance.NoiseRules{
		LectureThreshold: cfg.Compliance.LectureNoise,
		BreakThreshold:   cfg.Compliance.BreakNoise,
		ScreamThreshold:  cfg.Compliance.ScreamNoise,
		DebounceWindow:   cfg.Compliance.AlertDebounce,
	}

	mark := command.NewMarkAttendanceHandler(c.Students, c.Records, c.duplicateGuard(), c.Bus, c.Clock)
	c.Commands = Commands{
		RegisterStudent:  command.NewRegisterStudentHandler(c.Students, c.Faces, c.Detector, c.Index, hasher, c.Bus),
		MarkAttendance:   mark,
		DetectTruancy:    command.NewDetectTruancyHandler(c.Students, c.Schedule, c.violationCounter(), c.Bus, c.Clock, cfg.Compliance.TruancyThreshold),
		EvaluateNoise:    command.NewEvaluateNoiseHandler(c.Alerts, c.Bus, c.Clock, rules),
		MarkAbsentees:    command.NewMarkAbsenteesHandler(c.Students, c.Schedule, c.Records, c.Bus, c.Clock),
		PlanTimetable:    command.NewPlanTimetableHandler(c.Schedule),
		RecordAttendance: command.NewAttendanceRecorder(mark, c.Schedule),
	}

	recognizer := faceindex.NewRecognizer(c.Detector, c.Index, c.Students, cfg.Recognition.MatchThreshold)
	c.Queries = Queries{
		RecognizeStudent: query.NewRecognizeStudentHandler(recognizer, c.Presence, c.Bus, c.Clock),
		GetStudent:       query.NewGetStudentHandler(c.Students),
		ListStudents:     query.NewListStudentsHandler(c.Students),
		GetAttendance:    query.NewGetAttendanceHandler(c.Records),
		LatestTranscript: query.NewLatestTranscriptHandler(c.Transcripts),
		ZonePresence:     query.NewZonePresenceHandler(c.Presence),
	}
}

func (c *Container) registerEventHandlers() error {
	flags := c.Config.Features

	truancy := eventhandler.NewOnTruancyDetectedHandler(c.Alerts, c.Bus, c.Log, eventhandler.DefaultTruancyAlertConfig())
	if err := c.Dispatcher.Register(shared.EventTruancyDetected, "truancy_alert", truancy.Handle); err != nil {
		return err
	}

	recognized := eventhandler.NewOnStudentRecognizedHandler(c.Students, c.Commands.RecordAttendance, c.Config.Recognition.MatchThreshold, c.Config.App.Location, c.Log)
	if err := c.Dispatcher.Register(shared.EventStudentRecognized, "auto_attendance", recognized.Handle); err != nil {
		return err
	}

	// Зеркало в edge-журнал нужно только когда основное хранилище - не журнал.
	if c.Ledger != nil && c.Records != attendance.Repository(c.Ledger) {
		mirror := eventhandler.NewOnAttendanceMarkedHandler(c.Ledger, c.Log)
		gated := func(event shared.Event) error {
			if !flags.IsEnabled(config.FeatureEdgeLedger, nil) {
				return nil
			}
			return mirror.Handle(event)
		}
		if err := c.Dispatcher.Register(shared.EventAttendanceMarked, "edge_ledger_mirror", gated); err != nil {
			return err
		}
	}
	return nil
}

// StartDispatcher подписывает обработчики событий на шину.
func (c *Container) StartDispatcher() error {
	return c.Dispatcher.Start()
}

// ═══════════════════════════════════════════════════════════════════════════
// HTTP И ФОНОВЫЕ ЗАДАЧИ
// ═══════════════════════════════════════════════════════════════════════════

// HTTPDependencies возвращает зависимости REST API.
// auth может быть nil - тогда /api/v1 открыт.
func (c *Container) HTTPDependencies(auth *handlers.BasicAuth) httpapi.Dependencies {
	return httpapi.Dependencies{
		RegisterStudent:  c.Commands.RegisterStudent,
		MarkAttendance:   c.Commands.MarkAttendance,
		DetectTruancy:    c.Commands.DetectTruancy,
		EvaluateNoise:    c.Commands.EvaluateNoise,
		MarkAbsentees:    c.Commands.MarkAbsentees,
		RecognizeStudent: c.Queries.RecognizeStudent,
		GetStudent:       c.Queries.GetStudent,
		ListStudents:     c.Queries.ListStudents,
		GetAttendance:    c.Queries.GetAttendance,
		LatestTranscript: c.Queries.LatestTranscript,
		ZonePresence:     c.Queries.ZonePresence,
		Audio:            c.Scribe,
		Features:         c.Config.Features,
		Auth:             auth,
		Logger:           c.Log,
		HealthChecker:    c.Health,
	}
}

// LoadAuth читает учётные записи персонала, если аутентификация включена.
func (c *Container) LoadAuth() (*handlers.BasicAuth, error) {
	if !c.Config.Auth.Enabled {
		return nil, nil
	}
	auth, err := handlers.LoadBasicAuth(c.Config.App.Name, c.Config.Auth.UsersPath)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return auth, nil
}

// Scheduler регистрирует периодические задачи.
func (c *Container) Scheduler() (*scheduler.Scheduler, error) {
	cfg := c.Config
	s := scheduler.New(scheduler.Config{
		Logger:     c.Log,
		Timezone:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	s.OnJobError(func(name string, err error) {
		c.Log.Error("задача завершилась с ошибкой", logger.String("job", name), logger.Err(err))
	})

	if cfg.Features.IsEnabled(config.FeatureAbsenteeSweep, nil) {
		spec, err := scheduler.ParseSchedule(cfg.Scheduler.AbsenteeCron)
		if err != nil {
			return nil, fmt.Errorf("SCHEDULER_ABSENTEE_CRON: %w", err)
		}
		if err := s.Register(jobs.NewMarkAbsenteesJob(c.Commands.MarkAbsentees, c.Log), spec); err != nil {
			return nil, err
		}
	}

	if cfg.Scheduler.IndexRefreshInterval > 0 {
		job := jobs.NewRefreshFaceIndexJob(c.Index, c.Faces, c.Log)
		if err := s.Register(job, scheduler.Every(cfg.Scheduler.IndexRefreshInterval)); err != nil {
			return nil, err
		}
	}

	if c.Ledger != nil && cfg.Scheduler.LedgerVerifyInterval > 0 {
		job := jobs.NewVerifyLedgerJob(c.Ledger, c.Alerts, c.Log)
		if err := s.Register(job, scheduler.Every(cfg.Scheduler.LedgerVerifyInterval)); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Close останавливает диспетчер и закрывает ресурсы в обратном порядке.
func (c *Container) Close() error {
	if c.Dispatcher != nil {
		c.Dispatcher.Stop()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
