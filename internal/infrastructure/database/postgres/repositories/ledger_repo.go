package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/postgres"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/errors"
)

const (
	existsSQL = `SELECT 1 FROM ingested_documents WHERE fingerprint = $1`
	recordSQL = `INSERT INTO ingested_documents (fingerprint, cnpj) VALUES ($1, $2) ON CONFLICT (fingerprint) DO NOTHING`
	countSQL  = `SELECT COUNT(*) FROM ingested_documents`
	countCNPJ = `SELECT COUNT(*) FROM ingested_documents WHERE cnpj = $1`
)

// PostgresLedger is an invoice.Ledger on the ingested_documents table. The
// insert with ON CONFLICT DO NOTHING is the atomic claim.
type PostgresLedger struct {
	conn     *postgres.Connection
	executor queryExecutor
	log      logging.Logger
}

// NewPostgresLedger builds a ledger over conn. Close closes conn.
func NewPostgresLedger(conn *postgres.Connection, log logging.Logger) *PostgresLedger {
	return &PostgresLedger{
		conn:     conn,
		executor: conn.DB(),
		log:      logging.OrDefault(log).Named("ledger.postgres"),
	}
}

func (r *PostgresLedger) Exists(ctx context.Context, key invoice.DedupKey) (bool, error) {
	var one int
	err := r.executor.QueryRowContext(ctx, existsSQL, key.String()).Scan(&one)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.CodeLedger, "failed to look up fingerprint")
	}
	return true, nil
}

func (r *PostgresLedger) Record(ctx context.Context, key invoice.DedupKey, id invoice.TaxpayerID) (bool, error) {
	res, err := r.executor.ExecContext(ctx, recordSQL, key.String(), id.String())
	if err != nil {
		return false, errors.Wrap(err, errors.CodeLedger, "failed to record fingerprint")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeLedger, "failed to read affected rows")
	}
	if n == 0 {
		r.log.Debug("fingerprint already recorded", logging.Fingerprint(key.String()))
	}
	return n == 1, nil
}

// Count returns the number of recorded fingerprints, optionally for one taxpayer.
func (r *PostgresLedger) Count(ctx context.Context, id invoice.TaxpayerID) (int64, error) {
	query, args := countSQL, []interface{}{}
	if id != "" {
		query, args = countCNPJ, []interface{}{id.String()}
	}
	var n int64
	if err := r.executor.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.CodeLedger, "failed to count fingerprints")
	}
	return n, nil
}

func (r *PostgresLedger) Close() error {
	return r.conn.Close()
}

var (
	_ invoice.Ledger  = (*PostgresLedger)(nil)
	_ invoice.Counter = (*PostgresLedger)(nil)
)
