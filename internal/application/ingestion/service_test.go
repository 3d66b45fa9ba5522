package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/memory"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/storage/filesystem"
	"github.com/turtacn/nfe-ingest/internal/testutil"
	"github.com/turtacn/nfe-ingest/pkg/client"
	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

const testCNPJ = "11222333000144"

type fetchCall struct {
	cnpj string
	date string
	skip int
}

// scriptedFetcher serves pages by (cnpj, date, skip). Unscripted requests
// get the API's "no documents" reply.
type scriptedFetcher struct {
	mu       sync.Mutex
	pageSize int
	pages    map[string][]string
	errs     map[string]error
	calls    []fetchCall
}

func newScriptedFetcher(pageSize int) *scriptedFetcher {
	return &scriptedFetcher{pageSize: pageSize, pages: map[string][]string{}, errs: map[string]error{}}
}

func scriptKey(cnpj, date string, skip int) string { return fmt.Sprintf("%s|%s|%d", cnpj, date, skip) }

func (f *scriptedFetcher) serve(cnpj, date string, skip int, docs ...string) {
	f.pages[scriptKey(cnpj, date, skip)] = docs
}

func (f *scriptedFetcher) fail(cnpj, date string, skip int, err error) {
	f.errs[scriptKey(cnpj, date, skip)] = err
}

func (f *scriptedFetcher) FetchPage(_ context.Context, cnpj, date string, skip int) (*client.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{cnpj, date, skip})
	k := scriptKey(cnpj, date, skip)
	if err, ok := f.errs[k]; ok {
		return &client.Page{CNPJ: cnpj, Date: date, Skip: skip, Outcome: client.OutcomeFailed, Attempts: 3}, err
	}
	if docs, ok := f.pages[k]; ok {
		return &client.Page{CNPJ: cnpj, Date: date, Skip: skip, Outcome: client.OutcomeSuccess, Documents: docs, Attempts: 1}, nil
	}
	return &client.Page{CNPJ: cnpj, Date: date, Skip: skip, Outcome: client.OutcomeEmpty, Attempts: 1}, nil
}

func (f *scriptedFetcher) PageSize() int { return f.pageSize }

type countingPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

type recordingSink struct {
	name string
	err  error
	got  []invoice.IngestedDocument
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, doc invoice.IngestedDocument) error {
	s.got = append(s.got, doc)
	return s.err
}

type recordingMetrics struct {
	documents    map[string]int
	windows      map[string]int
	sinkFailures map[string]int
	started      int
	finished     int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{documents: map[string]int{}, windows: map[string]int{}, sinkFailures: map[string]int{}}
}

func (m *recordingMetrics) ObserveDocument(r string)    { m.documents[r]++ }
func (m *recordingMetrics) ObserveWindow(s string)      { m.windows[s]++ }
func (m *recordingMetrics) ObserveSinkFailure(s string) { m.sinkFailures[s]++ }
func (m *recordingMetrics) RunStarted()                 { m.started++ }
func (m *recordingMetrics) RunFinished(time.Duration)   { m.finished++ }

type harness struct {
	fetcher *scriptedFetcher
	ledger  *memory.Ledger
	writer  *filesystem.Writer
	pacer   *countingPacer
	metrics *recordingMetrics
	root    string
}

func newHarness(t *testing.T, pageSize int) *harness {
	t.Helper()
	root := t.TempDir()
	return &harness{
		fetcher: newScriptedFetcher(pageSize),
		ledger:  memory.NewLedger(),
		writer:  filesystem.NewWriter(root, logging.NewNopLogger()),
		pacer:   &countingPacer{},
		metrics: newRecordingMetrics(),
		root:    root,
	}
}

// runDay is the clock date whose single trailing window is 2024-05-10.
var runDay = time.Date(2024, 5, 11, 9, 30, 0, 0, time.UTC)

func (h *harness) service(opts ...Option) *Service {
	base := []Option{
		WithDays(1),
		WithPacer(h.pacer),
		WithMetrics(h.metrics),
		WithClock(func() time.Time { return runDay }),
	}
	return NewService(h.fetcher, invoice.NewDecoder(), h.writer, h.ledger, logging.NewNopLogger(), append(base, opts...)...)
}

func window(date string) invoice.QueryWindow {
	d, _ := time.Parse(invoice.DateLayout, date)
	return invoice.QueryWindow{TaxpayerID: testCNPJ, Date: d}
}

func numberedDocs(from, n int) []string {
	docs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, testutil.NFeBase64(fmt.Sprint(from+i), testCNPJ, "2024-05-10T10:00:00-03:00"))
	}
	return docs
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, 50)
	h.fetcher.serve(testCNPJ, "2024-05-10", 0,
		testutil.NFeBase64("1234", testCNPJ, "2024-05-10T08:15:00-03:00"),
		testutil.NFeBase64("", testCNPJ, "2024-05-10T09:00:00-03:00"),
	)
	svc := h.service()

	report, err := svc.Run(context.Background(), []string{"11.222.333/0001-44"})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "2024-05-11", report.RunDate)
	require.Len(t, report.Windows, 1)
	assert.Equal(t, WindowDone, report.Windows[0].State)
	assert.Equal(t, 2, report.Totals.New)
	assert.Equal(t, 2, h.ledger.Len())

	dir := filepath.Join(h.root, "2024", "Maio", testCNPJ)
	content, err := os.ReadFile(filepath.Join(dir, "1234.xml"))
	require.NoError(t, err)
	assert.Equal(t, testutil.NFeXML("1234", testCNPJ, "2024-05-10T08:15:00-03:00"), string(content))
	assert.FileExists(t, filepath.Join(dir, "2.xml"))

	again, err := svc.Run(context.Background(), []string{testCNPJ})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Totals.New)
	assert.Equal(t, 2, again.Totals.AlreadyIngested)
	assert.Equal(t, 2, h.ledger.Len())
	assert.NotEqual(t, report.RunID, again.RunID)
}

func TestRun_InvalidIdentifiersNeverFetched(t *testing.T) {
	h := newHarness(t, 50)
	report, err := h.service().Run(context.Background(), []string{"abc", "123", "", testCNPJ, "11222333000144"})
	require.NoError(t, err)

	assert.Equal(t, []string{"abc", "123"}, report.InvalidIdentifiers)
	assert.Equal(t, 1, report.Identifiers)
	require.Len(t, h.fetcher.calls, 1)
	assert.Equal(t, testCNPJ, h.fetcher.calls[0].cnpj)
}

func TestRun_QueriesTrailingDaysOldestFirst(t *testing.T) {
	h := newHarness(t, 50)
	report, err := h.service(WithDays(3)).Run(context.Background(), []string{testCNPJ})
	require.NoError(t, err)

	require.Len(t, h.fetcher.calls, 3)
	assert.Equal(t, "2024-05-08", h.fetcher.calls[0].date)
	assert.Equal(t, "2024-05-09", h.fetcher.calls[1].date)
	assert.Equal(t, "2024-05-10", h.fetcher.calls[2].date)
	assert.Len(t, report.Windows, 3)
	assert.Equal(t, 1, h.metrics.started)
	assert.Equal(t, 1, h.metrics.finished)
	assert.Equal(t, 3, h.metrics.windows[string(WindowDone)])
}

func TestIngestWindow_PaginatesUntilShortPage(t *testing.T) {
	h := newHarness(t, 50)
	h.fetcher.serve(testCNPJ, "2024-05-10", 0, numberedDocs(1, 50)...)
	h.fetcher.serve(testCNPJ, "2024-05-10", 50, numberedDocs(51, 50)...)
	h.fetcher.serve(testCNPJ, "2024-05-10", 100, numberedDocs(101, 3)...)

	wr := h.service().IngestWindow(context.Background(), window("2024-05-10"))

	require.Len(t, h.fetcher.calls, 3)
	assert.Equal(t, 0, h.fetcher.calls[0].skip)
	assert.Equal(t, 50, h.fetcher.calls[1].skip)
	assert.Equal(t, 100, h.fetcher.calls[2].skip)
	assert.Equal(t, WindowDone, wr.State)
	assert.Equal(t, 3, wr.Pages)
	assert.Equal(t, 103, wr.Counts.New)
	assert.Equal(t, 103, h.ledger.Len())
	// one wait per call plus one per continuation
	assert.Equal(t, 5, h.pacer.waits)
}

func TestIngestWindow_FullLastPageRequestsOneMore(t *testing.T) {
	h := newHarness(t, 2)
	h.fetcher.serve(testCNPJ, "2024-05-10", 0, numberedDocs(1, 2)...)

	wr := h.service().IngestWindow(context.Background(), window("2024-05-10"))

	require.Len(t, h.fetcher.calls, 2)
	assert.Equal(t, 2, h.fetcher.calls[1].skip)
	assert.Equal(t, WindowDone, wr.State)
	assert.Equal(t, 2, wr.Counts.New)
}

func TestIngestWindow_EmptyOutcome(t *testing.T) {
	h := newHarness(t, 50)

	wr := h.service().IngestWindow(context.Background(), window("2024-05-10"))

	assert.Equal(t, WindowDone, wr.State)
	assert.Len(t, h.fetcher.calls, 1)
	assert.Equal(t, 1, h.pacer.waits)
	assert.Zero(t, wr.Counts.Received)
	assert.Empty(t, wr.Error)
}

func TestIngestWindow_SuccessWithNoDocuments(t *testing.T) {
	h := newHarness(t, 50)
	h.fetcher.serve(testCNPJ, "2024-05-10", 0)

	wr := h.service().IngestWindow(context.Background(), window("2024-05-10"))

	assert.Equal(t, WindowDone, wr.State)
	assert.Len(t, h.fetcher.calls, 1)
}

func TestRun_FailedWindowContinuesWithNext(t *testing.T) {
	h := newHarness(t, 50)
	h.fetcher.fail(testCNPJ, "2024-05-09", 0,
		apperrors.New(apperrors.CodeRetrievalFailed, "page retrieval failed"))
	h.fetcher.serve(testCNPJ, "2024-05-10", 0, numberedDocs(1, 1)...)

	report, err := h.service(WithDays(2)).Run(context.Background(), []string{testCNPJ})
	require.NoError(t, err)

	require.Len(t, report.Windows, 2)
	assert.Equal(t, WindowAborted, report.Windows[0].State)
	assert.Contains(t, report.Windows[0].Error, "page retrieval failed")
	assert.Equal(t, WindowDone, report.Windows[1].State)
	assert.Equal(t, 1, report.Aborted)
	assert.Equal(t, 1, report.Totals.New)
	assert.Equal(t, 1, h.metrics.windows[string(WindowAborted)])
}

func TestIngestWindow_AbortStopsPagination(t *testing.T) {
	h := newHarness(t, 2)
	h.fetcher.serve(testCNPJ, "2024-05-10", 0, numberedDocs(1, 2)...)
	h.fetcher.fail(testCNPJ, "2024-05-10", 2, apperrors.New(apperrors.CodePageMalformed, "bad body"))

	wr := h.service().IngestWindow(context.Background(), window("2024-05-10"))

	assert.Equal(t, WindowAborted, wr.State)
	assert.Len(t, h.fetcher.calls, 2)
	assert.Equal(t, 2, wr.Counts.New)
}

func TestIngestWindow_DocumentResults(t *testing.T) {
	h := newHarness(t, 50)
	good := testutil.NFeBase64("7", testCNPJ, "2024-05-10T10:00:00-03:00")
	h.fetcher.serve(testCNPJ, "2024-05-10", 0,
		good,
		"not base64 !!",
		good,
		testutil.NFeBase64("8", testCNPJ, ""),
	)

	wr := h.service().IngestWindow(context.Background(), window("2024-05-10"))

	assert.Equal(t, Counts{Received: 4, New: 2, AlreadyIngested: 1, DecodeFailed: 1}, wr.Counts)
	assert.Equal(t, 2, h.metrics.documents[string(ResultNew)])
	assert.Equal(t, 1, h.metrics.documents[string(ResultDecodeFailed)])
	assert.FileExists(t, filepath.Join(h.root, "0000", "00", testCNPJ, "8.xml"))
}

func TestIngestWindow_HostileEmitterStaysInsideRoot(t *testing.T) {
	h := newHarness(t, 50)
	h.fetcher.serve(testCNPJ, "2024-05-10", 0,
		testutil.NFeBase64("77", "../../../outside", "2024-05-10T10:00:00-03:00"))

	wr := h.service().IngestWindow(context.Background(), window("2024-05-10"))

	assert.Equal(t, 1, wr.Counts.New)
	assert.FileExists(t, filepath.Join(h.root, "2024", "Maio", invoice.UnknownEmitter, "77.xml"))
	_, err := os.Stat(filepath.Join(h.root, "..", "outside"))
	assert.True(t, os.IsNotExist(err))
}

type failingStore struct{ root string }

func (f failingStore) Store(context.Context, *invoice.DecodedDocument, int) (string, error) {
	return "", apperrors.New(apperrors.CodeStorage, "disk full")
}

func (f failingStore) Root() string { return f.root }

func TestIngestWindow_StoreFailureIsNotRecorded(t *testing.T) {
	h := newHarness(t, 50)
	h.fetcher.serve(testCNPJ, "2024-05-10", 0, numberedDocs(1, 1)...)
	svc := NewService(h.fetcher, invoice.NewDecoder(), failingStore{root: h.root}, h.ledger,
		logging.NewNopLogger(), WithPacer(h.pacer))

	wr := svc.IngestWindow(context.Background(), window("2024-05-10"))

	assert.Equal(t, 1, wr.Counts.StoreFailed)
	assert.Zero(t, h.ledger.Len())
}

type stubLedger struct {
	existsErr error
	recordErr error
	recordOK  bool
	records   int
}

func (l *stubLedger) Exists(context.Context, invoice.DedupKey) (bool, error) { return false, l.existsErr }

func (l *stubLedger) Record(context.Context, invoice.DedupKey, invoice.TaxpayerID) (bool, error) {
	l.records++
	return l.recordOK, l.recordErr
}

func (l *stubLedger) Close() error { return nil }

func TestIngestWindow_LedgerOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		ledger *stubLedger
		want   Counts
	}{
		{"lookup error", &stubLedger{existsErr: apperrors.New(apperrors.CodeLedger, "down")}, Counts{Received: 1, LedgerFailed: 1}},
		{"record error", &stubLedger{recordErr: apperrors.New(apperrors.CodeLedger, "down")}, Counts{Received: 1, LedgerFailed: 1}},
		{"claimed elsewhere", &stubLedger{recordOK: false}, Counts{Received: 1, AlreadyIngested: 1}},
		{"claimed", &stubLedger{recordOK: true}, Counts{Received: 1, New: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 50)
			h.fetcher.serve(testCNPJ, "2024-05-10", 0, numberedDocs(1, 1)...)
			sink := &recordingSink{name: "rec"}
			svc := NewService(h.fetcher, invoice.NewDecoder(), h.writer, tt.ledger,
				logging.NewNopLogger(), WithPacer(h.pacer), WithSinks(sink))

			wr := svc.IngestWindow(context.Background(), window("2024-05-10"))

			assert.Equal(t, tt.want, wr.Counts)
			assert.Len(t, sink.got, tt.want.New)
		})
	}
}

func TestRun_SinksSeeOnlyNewDocuments(t *testing.T) {
	h := newHarness(t, 50)
	h.fetcher.serve(testCNPJ, "2024-05-10", 0, testutil.NFeBase64("1234", testCNPJ, "2024-05-10T08:15:00-03:00"))
	ok := &recordingSink{name: "ok"}
	broken := &recordingSink{name: "broken", err: apperrors.New(apperrors.CodeMessaging, "no broker")}
	svc := h.service(WithSinks(ok, nil, broken))

	assert.Equal(t, []string{"ok", "broken"}, svc.Sinks())

	report, err := svc.Run(context.Background(), []string{testCNPJ})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals.New)

	require.Len(t, ok.got, 1)
	got := ok.got[0]
	assert.Equal(t, report.RunID, got.RunID)
	assert.Equal(t, invoice.FingerprintOf(testutil.NFeBase64("1234", testCNPJ, "2024-05-10T08:15:00-03:00")), got.Key)
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, filepath.Join("2024", "Maio", testCNPJ, "1234.xml"), got.RelativePath)
	assert.Equal(t, filepath.Join(h.root, got.RelativePath), got.Path)
	assert.Equal(t, "1234", got.Document.DocumentNumber)
	assert.Equal(t, runDay, got.IngestedAt)

	assert.Len(t, broken.got, 1)
	assert.Equal(t, 1, h.metrics.sinkFailures["broken"])

	_, err = svc.Run(context.Background(), []string{testCNPJ})
	require.NoError(t, err)
	assert.Len(t, ok.got, 1)
}

func TestRun_CanceledContext(t *testing.T) {
	h := newHarness(t, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.service(WithDays(3)).Run(ctx, []string{testCNPJ})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeCanceled))
	assert.True(t, report.Canceled)
	require.Len(t, report.Windows, 1)
	assert.Equal(t, WindowCanceled, report.Windows[0].State)
	assert.Empty(t, h.fetcher.calls)
}

func TestLastReport(t *testing.T) {
	h := newHarness(t, 50)
	svc := h.service()
	assert.Nil(t, svc.LastReport())

	report, err := svc.Run(context.Background(), []string{testCNPJ, "bad"})
	require.NoError(t, err)

	last := svc.LastReport()
	require.NotNil(t, last)
	assert.Equal(t, report.RunID, last.RunID)

	last.InvalidIdentifiers[0] = "mutated"
	assert.Equal(t, "bad", svc.LastReport().InvalidIdentifiers[0])
}

func TestRun_LogsInvalidIdentifiers(t *testing.T) {
	h := newHarness(t, 50)
	logger := testutil.NewMockLogger()
	svc := NewService(h.fetcher, invoice.NewDecoder(), h.writer, h.ledger, logger,
		WithDays(1), WithPacer(h.pacer), WithClock(func() time.Time { return runDay }))

	_, err := svc.Run(context.Background(), []string{"12.345"})
	require.NoError(t, err)

	var found bool
	for _, m := range logger.Messages {
		if m.Message == "Invalid taxpayer identifier skipped" {
			found = true
			raw, _ := m.Field("raw")
			assert.Equal(t, "12.345", raw)
		}
	}
	assert.True(t, found)
}
