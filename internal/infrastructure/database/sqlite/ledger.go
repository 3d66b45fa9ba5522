// Package sqlite implements the dedup ledger on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// Ledger is an invoice.Ledger backed by SQLite.
type Ledger struct {
	db     *sql.DB
	logger logging.Logger
}

// Open creates the parent directory and schema if needed and returns a Ledger.
func Open(path string, log logging.Logger) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeLedger, "failed to create ledger directory")
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLedger, "failed to open ledger database")
	}
	// SQLite allows one writer; a single connection keeps claims serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeLedger, "failed to initialize ledger schema")
	}

	l := &Ledger{db: db, logger: logging.OrDefault(log).Named("ledger.sqlite")}
	l.logger.Info("sqlite ledger opened", logging.String("path", path))
	return l, nil
}

func (l *Ledger) Exists(ctx context.Context, key invoice.DedupKey) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM ingested_documents WHERE fingerprint = ?`, key.String()).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, apperrors.Wrap(err, apperrors.CodeLedger, "failed to look up fingerprint")
	}
	return true, nil
}

func (l *Ledger) Record(ctx context.Context, key invoice.DedupKey, id invoice.TaxpayerID) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ingested_documents (fingerprint, cnpj) VALUES (?, ?)`,
		key.String(), id.String())
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeLedger, "failed to record fingerprint")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeLedger, "failed to read affected rows")
	}
	return n == 1, nil
}

// Count returns the number of recorded fingerprints, optionally for one taxpayer.
func (l *Ledger) Count(ctx context.Context, id invoice.TaxpayerID) (int64, error) {
	query, args := `SELECT COUNT(*) FROM ingested_documents`, []interface{}{}
	if id != "" {
		query += ` WHERE cnpj = ?`
		args = append(args, id.String())
	}
	var n int64
	if err := l.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeLedger, "failed to count fingerprints")
	}
	return n, nil
}

// Ping checks the database handle.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

var (
	_ invoice.Ledger  = (*Ledger)(nil)
	_ invoice.Counter = (*Ledger)(nil)
)
