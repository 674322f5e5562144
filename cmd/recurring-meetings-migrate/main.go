package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/migration"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// recurring-meetings-migrate links every historical report to a recurring meeting.
//
// Safe to re-run: each phase checks the current state first. Typical rollout:
//
//	recurring-meetings-migrate --dry-run
//	recurring-meetings-migrate
//	recurring-meetings-migrate status
//	recurring-meetings-migrate drop-report-type   (once nothing reads report_type; the run leaves it nullable)
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Migration failed:", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	dryRun          bool
	connectAttempts int
	logLevel        string
}

type session struct {
	settings *config.Settings
	db       *gorm.DB
	logger   *logrus.Logger
}

func (s *session) migrator(opts cliOptions) *migration.Migrator {
	return migration.New(s.db, s.settings, s.logger, migration.WithDryRun(opts.dryRun))
}

func connect(opts cliOptions) (*session, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := settings.Database.Validate(); err != nil {
		return nil, err
	}
	if settings.Database.ConnectAttempts == 0 {
		settings.Database.ConnectAttempts = opts.connectAttempts
	}

	level := settings.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := config.NewLogger(level)
	config.SetLogger(logger)

	db, err := config.ConnectDatabaseWithRetry(settings.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &session{settings: settings, db: db, logger: logger}, nil
}

func (s *session) close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newRootCmd() *cobra.Command {
	var opts cliOptions

	cmd := &cobra.Command{
		Use:           "recurring-meetings-migrate",
		Short:         "Create recurring meetings from historical reports and link every report to one",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(opts)
			if err != nil {
				return err
			}
			defer s.close()

			summary, err := s.migrator(opts).Run(cmd.Context())
			if err != nil {
				return err
			}
			if opts.dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Dry run finished: %d recurring meetings would be created\n", summary.CreatedMeetings)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "Print the plan and roll back instead of committing")
	cmd.PersistentFlags().IntVar(&opts.connectAttempts, "connect-attempts", 5, "Database connection attempts when DB_CONNECT_ATTEMPTS is unset")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL")

	cmd.AddCommand(newStatusCmd(&opts), newBaselineCmd(&opts), newDropReportTypeCmd(&opts))
	return cmd
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration state without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(*opts)
			if err != nil {
				return err
			}
			defer s.close()

			report, err := s.migrator(*opts).Status(cmd.Context())
			if err != nil {
				return err
			}
			if report.Complete() {
				fmt.Fprintln(cmd.OutOrStdout(), "Migration complete")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Migration pending")
			}
			return nil
		},
	}
}

func newBaselineCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "baseline",
		Short: "Create the pre-recurring-meeting schema on an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(*opts)
			if err != nil {
				return err
			}
			defer s.close()
			return s.migrator(*opts).ApplyBaseline(cmd.Context())
		},
	}
}

func newDropReportTypeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop-report-type",
		Short: "Remove reports.report_type once every report is linked",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(*opts)
			if err != nil {
				return err
			}
			defer s.close()
			return s.migrator(*opts).DropLegacyReportType(cmd.Context())
		},
	}
}
