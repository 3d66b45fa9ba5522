package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/nfe-ingest/internal/application/ingestion"
	"github.com/turtacn/nfe-ingest/internal/config"
	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/storage/filesystem"
	ops "github.com/turtacn/nfe-ingest/internal/interfaces/http"
	"github.com/turtacn/nfe-ingest/internal/interfaces/http/handlers"
	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

const ledgerCountTimeout = 5 * time.Second

type runFlags struct {
	source sourceFlags
	date   string
	days   int
	root   string
	ledger string
	dryRun bool
}

// apply folds flag overrides into a copy of cfg.
func (f *runFlags) apply(cfg config.Config) (config.Config, error) {
	if f.days < 0 {
		return cfg, apperrors.Configuration("--days must be positive")
	}
	if f.days > 0 {
		cfg.Ingestion.Days = f.days
	}
	if f.root != "" {
		cfg.Storage.RootDir = f.root
	}
	if f.ledger != "" {
		cfg.Ledger.Driver = f.ledger
	}
	if f.dryRun {
		cfg.Ledger.Driver = config.LedgerMemory
	}
	return cfg, nil
}

func (f *runFlags) runDate() (time.Time, error) {
	if f.date == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation(invoice.DateLayout, f.date, time.Local)
	if err != nil {
		return time.Time{}, apperrors.Wrap(err, apperrors.CodeConfiguration, "--date must be YYYY-MM-DD")
	}
	return d, nil
}

// RunSummary is the printable form of a run report. LedgerRecords is set when
// the ledger can report its size.
type RunSummary struct {
	*ingestion.RunReport
	LedgerRecords *int64 `json:"ledger_records,omitempty"`
}

func (s RunSummary) String() string {
	t := s.Totals
	out := fmt.Sprintf("run %s (date %s): %d identifiers, %d invalid, %d windows (%d aborted), "+
		"received %d, new %d, already ingested %d, decode failed %d, store failed %d, ledger failed %d",
		s.RunID, s.RunDate, s.Identifiers, len(s.InvalidIdentifiers), len(s.Windows), s.Aborted,
		t.Received, t.New, t.AlreadyIngested, t.DecodeFailed, t.StoreFailed, t.LedgerFailed)
	if s.LedgerRecords != nil {
		out += fmt.Sprintf("; ledger holds %d fingerprints", *s.LedgerRecords)
	}
	return out
}

func (s RunSummary) TableHeaders() []string {
	return []string{"CNPJ", "DATE", "STATE", "PAGES", "RECEIVED", "NEW", "SKIPPED", "FAILED"}
}

func (s RunSummary) TableRows() [][]string {
	rows := make([][]string, 0, len(s.Windows))
	for _, w := range s.Windows {
		c := w.Counts
		rows = append(rows, []string{
			w.CNPJ, w.Date, string(w.State),
			strconv.Itoa(w.Pages), strconv.Itoa(c.Received), strconv.Itoa(c.New),
			strconv.Itoa(c.AlreadyIngested), strconv.Itoa(c.DecodeFailed + c.StoreFailed + c.LedgerFailed),
		})
	}
	return rows
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest the trailing window of every CNPJ in the identifier file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runIngestion(cmd, cliCtx, flags)
		},
	}

	flags.source.register(cmd)
	f := cmd.Flags()
	f.StringVar(&flags.date, "date", "", "run date YYYY-MM-DD; windows end the day before (default today)")
	f.IntVar(&flags.days, "days", 0, "number of trailing days to query (default ingestion.days)")
	f.StringVar(&flags.root, "root", "", "storage root directory (default storage.root_dir)")
	f.StringVar(&flags.ledger, "ledger", "", "ledger driver: sqlite, postgres, redis or memory")
	f.BoolVar(&flags.dryRun, "dry-run", false, "use an in-memory ledger; nothing is remembered between runs")
	return cmd
}

func runIngestion(cmd *cobra.Command, cliCtx *CLIContext, flags *runFlags) error {
	log := cliCtx.Logger
	cfg, err := flags.apply(*cliCtx.Config)
	if err != nil {
		return err
	}
	runDate, err := flags.runDate()
	if err != nil {
		return err
	}

	raw, source, err := flags.source.load(cfg.Ingestion)
	if err != nil {
		return err
	}
	log.Info("Identifier list loaded", logging.String("source", source), logging.Int("values", len(raw)))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector, metrics, err := newMetrics(log)
	if err != nil {
		return err
	}
	api, err := newSiegClient(cfg.Sieg, log, metrics)
	if err != nil {
		return err
	}

	ledger, ledgerCheck, err := openLedger(ctx, cfg.Ledger, log)
	if err != nil {
		return err
	}
	defer ledger.Close()

	sinks, err := openSinks(ctx, &cfg, log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	pacer, err := ingestion.NewPacer(cfg.Ingestion.Pacer, cfg.Ingestion.PaceInterval)
	if err != nil {
		return err
	}

	opts := []ingestion.Option{
		ingestion.WithDays(cfg.Ingestion.Days),
		ingestion.WithPacer(pacer),
		ingestion.WithSinks(sinks.sinks...),
		ingestion.WithMetrics(metrics),
	}
	if !runDate.IsZero() {
		opts = append(opts, ingestion.WithRunDate(runDate))
	}
	svc := ingestion.NewService(api, invoice.NewDecoder(), filesystem.NewWriter(cfg.Storage.RootDir, log), ledger, log, opts...)

	if cfg.Ops.Enabled {
		checkers := append([]handlers.HealthChecker{ledgerCheck}, sinks.checkers...)
		srv := ops.NewServer(cfg.Ops.Addr, ops.NewRouter(ops.RouterConfig{
			HealthHandler:    handlers.NewHealthHandler(Version, checkers...),
			StatusHandler:    handlers.NewStatusHandler(svc),
			Logger:           log,
			MetricsCollector: collector,
		}), log)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("Ops server shutdown failed", logging.Err(err))
			}
		}()
	}

	if cliCtx.ConfigPath != "" {
		watchConfig(cliCtx.ConfigPath, log)
	}

	log.Info("Starting run",
		logging.String("ledger", cfg.Ledger.Driver),
		logging.String("root", cfg.Storage.RootDir),
		logging.Any("sinks", svc.Sinks()))

	report, runErr := svc.Run(ctx, raw)
	if report != nil {
		summary := RunSummary{RunReport: report, LedgerRecords: ledgerSize(ledger, log)}
		if err := PrintResult(cmd, summary); err != nil {
			return err
		}
	}
	return runErr
}

// ledgerSize counts the ledger when it supports it. The run context may
// already be canceled here, so the count gets its own deadline.
func ledgerSize(ledger invoice.Ledger, log logging.Logger) *int64 {
	counter, ok := ledger.(invoice.Counter)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), ledgerCountTimeout)
	defer cancel()
	n, err := counter.Count(ctx, "")
	if err != nil {
		log.Warn("Ledger count failed", logging.Err(err))
		return nil
	}
	return &n
}

// watchConfig logs edits to the config file made while a run is in progress.
// The running pipeline keeps the configuration it started with.
func watchConfig(path string, log logging.Logger) {
	err := config.Watch(path,
		func(*config.Config) {
			log.Warn("Configuration file changed; the new values apply to the next run", logging.String("path", path))
		},
		func(err error) {
			log.Warn("Configuration file changed but is invalid", logging.String("path", path), logging.Err(err))
		})
	if err != nil {
		log.Debug("Configuration watch disabled", logging.Err(err))
	}
}
