// Package migration links every report to a recurring meeting.
//
// Historical reports are grouped by (leader_person_id, report_type, location,
// google_maps_link); each group becomes one weekly recurring meeting dated at the
// group's earliest report. Each phase checks the current state first, so a run
// interrupted at any point can simply be started again.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iemipdd12/reports_backend/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	ErrMissingTable    = errors.New("required table does not exist")
	ErrMissingColumn   = errors.New("required column does not exist")
	ErrUnlinkedReports = errors.New("reports without recurring meeting remain")
	ErrEmptyGroup      = errors.New("recurring meeting group matched no reports")

	errDryRunRollback = errors.New("dry run: rolling back")
)

const tracerName = "github.com/iemipdd12/reports_backend/migration"

// Summary is the final state reported after a run.
type Summary struct {
	RecurringMeetings int64 `json:"recurring_meetings"`
	TotalReports      int64 `json:"total_reports"`
	LinkedReports     int64 `json:"linked_reports"`
	CreatedMeetings   int   `json:"created_meetings"`
}

func (s Summary) Unlinked() int64 {
	return s.TotalReports - s.LinkedReports
}

type Migrator struct {
	db       *gorm.DB
	settings *config.Settings
	logger   *logrus.Logger
	schema   SchemaManager
	out      io.Writer
	tracer   trace.Tracer
	dryRun   bool
}

type Option func(*Migrator)

// WithSchemaManager replaces the MySQL catalog/DDL implementation.
func WithSchemaManager(s SchemaManager) Option {
	return func(m *Migrator) { m.schema = s }
}

// WithOutput redirects the operator progress lines (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(m *Migrator) { m.out = w }
}

// WithDryRun makes every phase report its plan and roll back instead of committing.
func WithDryRun(dryRun bool) Option {
	return func(m *Migrator) { m.dryRun = dryRun }
}

func New(db *gorm.DB, settings *config.Settings, logger *logrus.Logger, opts ...Option) *Migrator {
	m := &Migrator{
		db:       db,
		settings: settings,
		logger:   logger,
		out:      os.Stdout,
		tracer:   otel.Tracer(tracerName),
	}
	if m.logger == nil {
		m.logger = config.GetLogger()
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.schema == nil {
		database := ""
		if settings != nil {
			database = settings.Database.Name
		}
		m.schema = NewMySQLSchema(database)
	}
	return m
}

func (m *Migrator) printf(format string, args ...interface{}) {
	fmt.Fprintf(m.out, format+"\n", args...)
}

func (m *Migrator) startPhase(ctx context.Context, name string) (context.Context, trace.Span, *logrus.Entry) {
	ctx, span := m.tracer.Start(ctx, "migration."+name)
	entry := m.logger.WithFields(logrus.Fields{
		"module": "migration",
		"phase":  name,
		"dryRun": m.dryRun,
	})
	return ctx, span, entry
}

func endPhase(span trace.Span, entry *logrus.Entry, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Error("phase failed")
	}
	span.End()
}

// Run brings the database to the final schema: EnsureSchema, Backfill,
// TightenConstraint, RelaxLegacyReportType and Verify, in that order.
func (m *Migrator) Run(ctx context.Context) (*Summary, error) {
	if m.dryRun {
		return m.DryRun(ctx)
	}

	m.printf("Checking current migration state...")
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	created, err := m.Backfill(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.TightenConstraint(ctx); err != nil {
		return nil, err
	}
	if err := m.RelaxLegacyReportType(ctx); err != nil {
		return nil, err
	}
	summary, err := m.Verify(ctx)
	if summary != nil {
		summary.CreatedMeetings = created
	}
	if err != nil {
		return summary, err
	}
	m.printf("Migration completed successfully")
	return summary, nil
}
