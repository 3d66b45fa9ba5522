package ingestion

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/client"
	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

// DefaultDays is the trailing window length used when none is configured.
const DefaultDays = 5

// Option configures a Service.
type Option func(*Service)

// WithDays sets how many days before the run date are queried.
func WithDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.days = days
		}
	}
}

// WithPacer sets the pacer used between API calls.
func WithPacer(p Pacer) Option {
	return func(s *Service) {
		if p != nil {
			s.pacer = p
		}
	}
}

// WithSinks appends post-ingest sinks.
func WithSinks(sinks ...Sink) Option {
	return func(s *Service) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides time.Now. Unless WithRunDate is given, the clock's
// date at the start of Run is the run date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunDate pins the run date; windows end the day before it.
func WithRunDate(d time.Time) Option {
	return func(s *Service) { s.runDate = d }
}

// Service runs ingestion for a list of taxpayer identifiers. A Service runs
// one identifier, one day and one page at a time.
type Service struct {
	fetcher Fetcher
	decoder Decoder
	store   Store
	ledger  invoice.Ledger
	sinks   []Sink
	pacer   Pacer
	metrics Metrics
	now     func() time.Time
	runDate time.Time
	days    int
	logger  logging.Logger

	mu   sync.RWMutex
	last *RunReport
}

// NewService wires the pipeline components.
func NewService(fetcher Fetcher, decoder Decoder, store Store, ledger invoice.Ledger, logger logging.Logger, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		decoder: decoder,
		store:   store,
		ledger:  ledger,
		pacer:   NewFixedPacer(2*time.Second, nil),
		metrics: noopMetrics{},
		now:     time.Now,
		days:    DefaultDays,
		logger:  logging.OrDefault(logger).Named("ingestion"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sinks returns the configured sink names.
func (s *Service) Sinks() []string {
	names := make([]string, 0, len(s.sinks))
	for _, sink := range s.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// LastReport returns a copy of the most recent run report, or nil.
func (s *Service) LastReport() *RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	return s.last.clone()
}

func (s *Service) setLast(r *RunReport) {
	s.mu.Lock()
	s.last = r.clone()
	s.mu.Unlock()
}

// Run normalizes rawIdentifiers, drops the invalid ones and ingests the
// trailing window of every valid identifier. Window failures are recorded in
// the report and never stop the run; only context cancellation does, in which
// case the partial report is returned with a CodeCanceled error.
func (s *Service) Run(ctx context.Context, rawIdentifiers []string) (*RunReport, error) {
	started := s.now()
	runDate := started
	if !s.runDate.IsZero() {
		runDate = s.runDate
	}
	report := &RunReport{
		RunID:     uuid.NewString(),
		RunDate:   runDate.Format(invoice.DateLayout),
		StartedAt: started,
	}
	log := s.logger.With(logging.String("run_id", report.RunID))

	valid, rejected := invoice.NormalizeTaxpayerIDs(rawIdentifiers)
	report.Identifiers = len(valid)
	report.InvalidIdentifiers = rejected
	for _, raw := range rejected {
		log.Warn("Invalid taxpayer identifier skipped",
			logging.String("raw", raw),
			logging.String("code", string(apperrors.CodeInvalidIdentifier)))
	}

	log.Info("Ingestion run started",
		logging.Int("identifiers", len(valid)),
		logging.Int("rejected", len(rejected)),
		logging.Int("days", s.days),
		logging.Date(report.RunDate))

	s.metrics.RunStarted()
	var runErr error

run:
	for _, id := range valid {
		for _, w := range invoice.TrailingWindows(id, runDate, s.days) {
			wr := s.ingestWindow(ctx, report.RunID, w)
			report.addWindow(wr)
			if wr.State == WindowCanceled {
				break run
			}
		}
	}

	if err := ctx.Err(); err != nil {
		report.Canceled = true
		runErr = apperrors.Wrap(err, apperrors.CodeCanceled, "ingestion run interrupted")
	}

	report.FinishedAt = s.now()
	s.metrics.RunFinished(report.Duration())
	s.setLast(report)

	log.Info("Ingestion run finished",
		logging.Int("windows", len(report.Windows)),
		logging.Int("aborted", report.Aborted),
		logging.Int("received", report.Totals.Received),
		logging.Int("new", report.Totals.New),
		logging.Int("already_ingested", report.Totals.AlreadyIngested),
		logging.Bool("canceled", report.Canceled),
		logging.Duration("duration", report.Duration()))
	return report, runErr
}

// IngestWindow pages through one query window and processes every document.
func (s *Service) IngestWindow(ctx context.Context, w invoice.QueryWindow) WindowReport {
	return s.ingestWindow(ctx, "", w)
}

func (s *Service) ingestWindow(ctx context.Context, runID string, w invoice.QueryWindow) WindowReport {
	start := time.Now()
	wr := WindowReport{CNPJ: w.TaxpayerID.String(), Date: w.Day()}
	log := s.logger.With(logging.CNPJ(wr.CNPJ), logging.Date(wr.Date))
	pageSize := s.fetcher.PageSize()

	finish := func(state WindowState, err error) WindowReport {
		wr.State = state
		if err != nil {
			wr.Error = err.Error()
		}
		wr.Duration = time.Since(start)
		s.metrics.ObserveWindow(string(state))
		return wr
	}

	for skip := 0; ; skip += pageSize {
		if err := ctx.Err(); err != nil {
			return finish(WindowCanceled, err)
		}

		page, err := s.fetcher.FetchPage(ctx, wr.CNPJ, wr.Date, skip)
		wr.Pages++

		if err != nil {
			if ctx.Err() != nil || apperrors.IsCode(err, apperrors.CodeCanceled) {
				return finish(WindowCanceled, err)
			}
			log.Error("Window aborted",
				logging.Skip(skip),
				logging.String("code", string(apperrors.GetCode(err))),
				logging.Err(err))
			if perr := s.pacer.Wait(ctx); perr != nil {
				return finish(WindowCanceled, err)
			}
			return finish(WindowAborted, err)
		}

		if page.Outcome == client.OutcomeEmpty || page.Len() == 0 {
			log.Debug("No documents", logging.Skip(skip))
			if perr := s.pacer.Wait(ctx); perr != nil {
				return finish(WindowCanceled, perr)
			}
			return finish(WindowDone, nil)
		}

		for i, raw := range page.Documents {
			result := s.processDocument(ctx, runID, w, raw, i+1)
			wr.Counts.add(result)
			s.metrics.ObserveDocument(string(result))
		}

		more := page.Len() >= pageSize
		if more {
			if perr := s.pacer.Wait(ctx); perr != nil {
				return finish(WindowCanceled, perr)
			}
		}
		if perr := s.pacer.Wait(ctx); perr != nil {
			return finish(WindowCanceled, perr)
		}
		if !more {
			if wr.Counts.New == 0 {
				log.Info("No new documents in window", logging.Int("received", wr.Counts.Received))
			}
			return finish(WindowDone, nil)
		}
	}
}

// processDocument runs one payload through dedup, decode, store and record.
// index is the 1-based position on its page.
func (s *Service) processDocument(ctx context.Context, runID string, w invoice.QueryWindow, raw string, index int) DocumentResult {
	key := invoice.FingerprintOf(raw)
	log := s.logger.With(
		logging.CNPJ(w.TaxpayerID.String()),
		logging.Date(w.Day()),
		logging.Int("index", index),
		logging.Fingerprint(key.String()))

	seen, err := s.ledger.Exists(ctx, key)
	if err != nil {
		log.Error("Ledger lookup failed", logging.String("code", string(apperrors.GetCode(err))), logging.Err(err))
		return ResultLedgerFailed
	}
	if seen {
		log.Debug("Document already ingested")
		return ResultAlreadyIngested
	}

	doc, err := s.decoder.Decode(raw)
	if err != nil {
		log.Warn("Document could not be decoded", logging.String("code", string(apperrors.GetCode(err))), logging.Err(err))
		return ResultDecodeFailed
	}

	path, err := s.store.Store(ctx, doc, index)
	if err != nil {
		log.Error("Document could not be stored", logging.String("code", string(apperrors.GetCode(err))), logging.Err(err))
		return ResultStoreFailed
	}

	created, err := s.ledger.Record(ctx, key, w.TaxpayerID)
	if err != nil {
		log.Error("Ledger record failed", logging.String("path", path), logging.String("code", string(apperrors.GetCode(err))), logging.Err(err))
		return ResultLedgerFailed
	}
	if !created {
		log.Debug("Document recorded concurrently", logging.String("path", path))
		return ResultAlreadyIngested
	}

	log.Info("Document stored", logging.String("path", path))
	s.deliver(ctx, log, invoice.IngestedDocument{
		RunID:        runID,
		Key:          key,
		Window:       w,
		Index:        index,
		Path:         path,
		RelativePath: s.relative(path),
		Document:     doc,
		IngestedAt:   s.now(),
	})
	return ResultNew
}

func (s *Service) deliver(ctx context.Context, log logging.Logger, doc invoice.IngestedDocument) {
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, doc); err != nil {
			s.metrics.ObserveSinkFailure(sink.Name())
			log.Warn("Sink delivery failed",
				logging.String("sink", sink.Name()),
				logging.String("code", string(apperrors.GetCode(err))),
				logging.Err(err))
		}
	}
}

func (s *Service) relative(path string) string {
	rel, err := filepath.Rel(s.store.Root(), path)
	if err != nil {
		return path
	}
	return rel
}
