package ingestion

import (
	"time"
)

// DocumentResult classifies what happened to one document.
type DocumentResult string

const (
	ResultNew             DocumentResult = "new"
	ResultAlreadyIngested DocumentResult = "already_ingested"
	ResultDecodeFailed    DocumentResult = "decode_failed"
	ResultStoreFailed     DocumentResult = "store_failed"
	ResultLedgerFailed    DocumentResult = "ledger_failed"
)

// WindowState is the terminal state of a query window.
type WindowState string

const (
	// WindowDone means pagination ended normally, possibly with no documents.
	WindowDone WindowState = "done"
	// WindowAborted means a page could not be retrieved; later pages were not
	// requested.
	WindowAborted WindowState = "aborted"
	// WindowCanceled means the run context ended mid-window.
	WindowCanceled WindowState = "canceled"
)

// Counts tallies document results.
type Counts struct {
	Received        int `json:"received"`
	New             int `json:"new"`
	AlreadyIngested int `json:"already_ingested"`
	DecodeFailed    int `json:"decode_failed"`
	StoreFailed     int `json:"store_failed"`
	LedgerFailed    int `json:"ledger_failed"`
}

func (c *Counts) add(r DocumentResult) {
	c.Received++
	switch r {
	case ResultNew:
		c.New++
	case ResultAlreadyIngested:
		c.AlreadyIngested++
	case ResultDecodeFailed:
		c.DecodeFailed++
	case ResultStoreFailed:
		c.StoreFailed++
	case ResultLedgerFailed:
		c.LedgerFailed++
	}
}

func (c *Counts) merge(o Counts) {
	c.Received += o.Received
	c.New += o.New
	c.AlreadyIngested += o.AlreadyIngested
	c.DecodeFailed += o.DecodeFailed
	c.StoreFailed += o.StoreFailed
	c.LedgerFailed += o.LedgerFailed
}

// WindowReport summarizes one (identifier, day) window.
type WindowReport struct {
	CNPJ     string        `json:"cnpj"`
	Date     string        `json:"date"`
	State    WindowState   `json:"state"`
	Pages    int           `json:"pages"`
	Counts   Counts        `json:"counts"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// RunReport summarizes a full run.
type RunReport struct {
	RunID              string         `json:"run_id"`
	RunDate            string         `json:"run_date"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
	Identifiers        int            `json:"identifiers"`
	InvalidIdentifiers []string       `json:"invalid_identifiers,omitempty"`
	Windows            []WindowReport `json:"windows"`
	Totals             Counts         `json:"totals"`
	Aborted            int            `json:"aborted_windows"`
	Canceled           bool           `json:"canceled"`
}

func (r *RunReport) addWindow(w WindowReport) {
	r.Windows = append(r.Windows, w)
	r.Totals.merge(w.Counts)
	if w.State == WindowAborted {
		r.Aborted++
	}
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) clone() *RunReport {
	cp := *r
	cp.InvalidIdentifiers = append([]string(nil), r.InvalidIdentifiers...)
	cp.Windows = append([]WindowReport(nil), r.Windows...)
	return &cp
}
