package invoice

import "context"

// Ledger is the persisted record of document fingerprints already ingested.
// It is the single authority on "already ingested"; the presence of a file on
// disk means nothing to the pipeline.
type Ledger interface {
	// Exists reports whether key has been recorded.
	Exists(ctx context.Context, key DedupKey) (bool, error)

	// Record claims key for id. It returns true only when this call created
	// the record; false means the key was already present. Implementations
	// make the claim atomic so concurrent callers cannot both see true.
	Record(ctx context.Context, key DedupKey, id TaxpayerID) (bool, error)

	// Close releases the underlying connection.
	Close() error
}

// Counter is implemented by ledgers that can report their size. An empty id
// counts every taxpayer.
type Counter interface {
	Count(ctx context.Context, id TaxpayerID) (int64, error)
}
