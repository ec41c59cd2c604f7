package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scholarmaster/campus-attendance/internal/bootstrap"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

func newWorkerCmd() *cobra.Command {
	var runOnce string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs",
		Long: `Runs the scheduled jobs: the end-of-day absentee sweep, face index
refresh and edge ledger verification.

With --run JOB the job runs once and its result is printed as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), runOnce)
		},
	}
	cmd.Flags().StringVar(&runOnce, "run", "", "run a single job once and exit (mark_absentees, refresh_face_index, verify_ledger)")
	return cmd
}

func runWorker(ctx context.Context, runOnce string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	log = log.With(logger.Component("worker"))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩА И APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("close resources", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := app.Scheduler()
	if err != nil {
		return err
	}

	// Разовый запуск задачи
	if runOnce != "" {
		res, runErr := sched.RunNow(ctx, runOnce)
		if res.JobName == "" {
			return runErr
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if runErr != nil {
			return fmt.Errorf("job %s failed: %w", runOnce, runErr)
		}
		return nil
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, j := range sched.ListJobs() {
		log.Info("job registered",
			logger.String("job", j.Name),
			logger.String("schedule", j.Schedule),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, stopping scheduler...")

	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop", logger.Err(err))
	}
	log.Info("shutdown completed successfully")
	return nil
}
