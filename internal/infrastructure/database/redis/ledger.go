package redis

import (
	"context"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/errors"
)

// DefaultKeyPrefix namespaces ledger keys.
const DefaultKeyPrefix = "nfe:ledger:"

// Ledger is an invoice.Ledger where each fingerprint is a key holding the
// taxpayer id. SETNX makes Record an atomic claim across processes; keys
// never expire.
type Ledger struct {
	client *Client
	prefix string
	log    logging.Logger
}

type LedgerOption func(*Ledger)

func WithKeyPrefix(prefix string) LedgerOption {
	return func(l *Ledger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

func NewLedger(client *Client, log logging.Logger, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		client: client,
		prefix: DefaultKeyPrefix,
		log:    logging.OrDefault(log).Named("ledger.redis"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) key(k invoice.DedupKey) string {
	return l.prefix + k.String()
}

func (l *Ledger) Exists(ctx context.Context, key invoice.DedupKey) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(key)).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeLedger, "failed to look up fingerprint")
	}
	return n > 0, nil
}

func (l *Ledger) Record(ctx context.Context, key invoice.DedupKey, id invoice.TaxpayerID) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(key), id.String(), 0).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeLedger, "failed to record fingerprint")
	}
	if !ok {
		l.log.Debug("fingerprint already recorded", logging.Fingerprint(key.String()))
	}
	return ok, nil
}

func (l *Ledger) Close() error {
	return l.client.Close()
}

var _ invoice.Ledger = (*Ledger)(nil)
