package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/spf13/cobra"

	"github.com/scholarmaster/campus-attendance/internal/bootstrap"
	httpapi "github.com/scholarmaster/campus-attendance/internal/interface/http"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run background jobs in this process")
	return cmd
}

func runServe(ctx context.Context, withScheduler bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	log.Info("starting Campus Attendance API",
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Location.String()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩА, КЛИЕНТЫ, APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		log.Info("closing resources...")
		if err := app.Close(); err != nil {
			log.Error("close resources", logger.Err(err))
		}
	}()

	auth, err := app.LoadAuth()
	if err != nil {
		return err
	}
	if auth == nil {
		log.Warn("аутентификация выключена, /api/v1 открыт")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if err := app.StartDispatcher(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.ConfigFrom(cfg.HTTP)
	httpCfg.Version = cfg.App.Version
	server := httpapi.NewServer(httpCfg, app.HTTPDependencies(auth))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ЗАПУСК СЕРВИСОВ
	// ─────────────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Scribe.Run(runCtx)
	}()

	if withScheduler && cfg.Scheduler.Enabled {
		sched, err := app.Scheduler()
		if err != nil {
			return err
		}
		if err := sched.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	}

	errCh := server.StartAsync()
	log.Info("Campus Attendance API is running", logger.String("addr", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", logger.Err(err))
	}

	cancel()
	wg.Wait()

	log.Info("shutdown completed successfully")
	return nil
}
