package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scholarmaster/campus-attendance/config"
	"github.com/scholarmaster/campus-attendance/internal/application/command"
	"github.com/scholarmaster/campus-attendance/internal/domain/schedule"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/postgres"
	"github.com/scholarmaster/campus-attendance/internal/infrastructure/persistence/timetable"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
)

// scheduleRepo - расписание вместе с функцией закрытия ресурсов.
type scheduleRepo struct {
	replaceableSchedule
	close func()
}

// replaceableSchedule - расписание с заменой всех занятий.
type replaceableSchedule interface {
	schedule.Repository
	ReplaceAll(ctx context.Context, entries []schedule.Entry) error
}

// openSchedule открывает настроенное хранилище расписания:
// таблицу PostgreSQL при TIMETABLE_USE_DATABASE, иначе YAML-файл.
func openSchedule(ctx context.Context, cfg *config.Config) (*scheduleRepo, error) {
	if cfg.Timetable.UseDatabase {
		conn, err := connectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &scheduleRepo{replaceableSchedule: postgres.NewScheduleRepository(conn), close: conn.Close}, nil
	}

	store, err := timetable.Open(cfg.Timetable.Path)
	if err != nil {
		return nil, err
	}
	return &scheduleRepo{replaceableSchedule: store, close: func() {}}, nil
}

func newTimetableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timetable",
		Short: "Import, export and plan the timetable",
	}
	cmd.AddCommand(newTimetableImportCmd(), newTimetableExportCmd(), newTimetablePlanCmd())
	return cmd
}

func newTimetableImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the timetable with the entries of a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			entries, err := timetable.Decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			repo, err := openSchedule(ctx, cfg)
			if err != nil {
				return err
			}
			defer repo.close()

			if err := repo.ReplaceAll(ctx, entries); err != nil {
				return err
			}
			log.Info("timetable imported", logger.Int("entries", len(entries)), logger.String("source", args[0]))
			return nil
		},
	}
}

func newTimetableExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the timetable as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			repo, err := openSchedule(ctx, cfg)
			if err != nil {
				return err
			}
			defer repo.close()

			entries, err := repo.All(ctx)
			if err != nil {
				return err
			}
			data, err := timetable.Encode(entries)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newTimetablePlanCmd() *cobra.Command {
	var (
		requirementsPath string
		dryRun           bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Place required sessions into free slots",
		Long: `Reads teacher workloads from TIMETABLE_TEACHERS_PATH and a requirements
file, places each required session into a free weekday slot and saves the
result together with the updated teacher hours.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}

			teachers, err := timetable.LoadTeachers(cfg.Timetable.TeachersPath)
			if err != nil {
				return err
			}
			reqs, err := timetable.LoadRequirements(requirementsPath)
			if err != nil {
				return err
			}

			repo, err := openSchedule(ctx, cfg)
			if err != nil {
				return err
			}
			defer repo.close()

			res, err := command.NewPlanTimetableHandler(repo).Handle(ctx, command.PlanTimetableCommand{
				Teachers:     teachers,
				Requirements: reqs,
				DryRun:       dryRun,
			})
			if err != nil {
				return err
			}
			if err := printPlan(cmd.OutOrStdout(), res); err != nil {
				return err
			}

			if dryRun {
				return nil
			}
			if err := timetable.SaveTeachers(cfg.Timetable.TeachersPath, teachers); err != nil {
				return fmt.Errorf("save teacher hours: %w", err)
			}
			log.Info("timetable planned",
				logger.Int("saved", res.Saved),
				logger.Int("shortfalls", len(res.Shortfalls)),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&requirementsPath, "requirements", "r", "data/requirements.yaml", "planning requirements file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without saving it")
	return cmd
}

func printPlan(out io.Writer, res *command.PlanTimetableResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tSLOT\tCLASS\tSUBJECT\tTEACHER\tROOM")
	for _, e := range res.Scheduled {
		class := fmt.Sprintf("%s %s-%d%s", e.Department, e.Program, e.Year, e.Section)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Day, e.Slot, class, e.Subject, e.Teacher, e.Room)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, s := range res.Shortfalls {
		fmt.Fprintf(out, "shortfall: %s\n", s)
	}
	return nil
}
