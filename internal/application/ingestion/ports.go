// Package ingestion drives the NF-e retrieval run: identifiers are expanded
// into daily query windows, each window is paged through the document API, and
// every returned document goes through the dedup gate, the decoder, the storage
// writer and the ledger before optional sinks are notified.
package ingestion

import (
	"context"
	"time"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/pkg/client"
)

// Fetcher retrieves one classified page of documents. *client.Client
// satisfies it.
type Fetcher interface {
	FetchPage(ctx context.Context, cnpj, date string, skip int) (*client.Page, error)
	PageSize() int
}

// Decoder extracts routing fields from a raw payload.
type Decoder interface {
	Decode(raw string) (*invoice.DecodedDocument, error)
}

// Store persists decoded documents and returns the path written.
type Store interface {
	Store(ctx context.Context, doc *invoice.DecodedDocument, index int) (string, error)
	Root() string
}

// Sink is notified after a document has been stored and recorded as new.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, doc invoice.IngestedDocument) error
}

// Metrics receives run, window and document observations.
type Metrics interface {
	ObserveDocument(result string)
	ObserveWindow(state string)
	ObserveSinkFailure(sink string)
	RunStarted()
	RunFinished(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDocument(string)    {}
func (noopMetrics) ObserveWindow(string)      {}
func (noopMetrics) ObserveSinkFailure(string) {}
func (noopMetrics) RunStarted()               {}
func (noopMetrics) RunFinished(time.Duration) {}
