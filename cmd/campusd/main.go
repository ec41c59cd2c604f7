// Package main - точка входа Campus Attendance.
//
// Один бинарник, несколько команд:
//   - serve     - REST API, обработчики событий, расшифровка аудио и,
//     если включён планировщик, фоновые задачи;
//   - worker    - только фоновые задачи (вечерняя отметка отсутствующих,
//     обновление галереи лиц, проверка edge-журнала);
//   - migrate   - миграции PostgreSQL;
//   - timetable - импорт расписания и автоматическое планирование занятий.
//
// Вся конфигурация берётся из переменных окружения (см. config.Config).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scholarmaster/campus-attendance/config"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// version подставляется при сборке: -ldflags "-X main.version=1.2.3".
var version = "dev"

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "campusd",
		Short:         "Campus attendance, truancy and noise monitoring service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newTimetableCmd(),
	)
	return root
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// loadRuntime загружает конфигурацию и настраивает логирование.
func loadRuntime() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if version != "dev" {
		cfg.App.Version = version
	}
	return cfg, setupLogger(cfg), nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	format := logger.Format(cfg.Observability.Format)
	if format != logger.FormatText {
		format = logger.FormatJSON
	}

	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.Level),
		Format:    format,
		AddCaller: cfg.IsDevelopment(),
	}).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}
