package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

type LedgerTestSuite struct {
	suite.Suite
	mock   redismock.ClientMock
	ledger *Ledger
	key    invoice.DedupKey
}

func (s *LedgerTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.ledger = NewLedger(NewClientWithUniversal(db, logging.NewNopLogger()), logging.NewNopLogger(), WithKeyPrefix("test:"))
	s.key = invoice.FingerprintOf("PG5mZT4=")
}

func (s *LedgerTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *LedgerTestSuite) TestExists_Hit() {
	s.mock.ExpectExists("test:" + s.key.String()).SetVal(1)

	ok, err := s.ledger.Exists(context.Background(), s.key)
	s.NoError(err)
	s.True(ok)
}

func (s *LedgerTestSuite) TestExists_Miss() {
	s.mock.ExpectExists("test:" + s.key.String()).SetVal(0)

	ok, err := s.ledger.Exists(context.Background(), s.key)
	s.NoError(err)
	s.False(ok)
}

func (s *LedgerTestSuite) TestExists_Error() {
	s.mock.ExpectExists("test:" + s.key.String()).SetErr(errors.New("conn reset"))

	_, err := s.ledger.Exists(context.Background(), s.key)
	s.True(pkgerrors.IsCode(err, pkgerrors.CodeLedger))
}

func (s *LedgerTestSuite) TestRecord_NewAndDuplicate() {
	k := "test:" + s.key.String()
	s.mock.ExpectSetNX(k, "11222333000144", 0).SetVal(true)
	s.mock.ExpectSetNX(k, "11222333000144", 0).SetVal(false)

	created, err := s.ledger.Record(context.Background(), s.key, "11222333000144")
	s.NoError(err)
	s.True(created)

	created, err = s.ledger.Record(context.Background(), s.key, "11222333000144")
	s.NoError(err)
	s.False(created)
}

func (s *LedgerTestSuite) TestRecord_Error() {
	s.mock.ExpectSetNX("test:"+s.key.String(), "11222333000144", 0).SetErr(errors.New("readonly"))

	created, err := s.ledger.Record(context.Background(), s.key, "11222333000144")
	s.False(created)
	s.True(pkgerrors.IsCode(err, pkgerrors.CodeLedger))
}

func (s *LedgerTestSuite) TestRecord_DefaultPrefixNeverExpires() {
	db, mock := redismock.NewClientMock()
	ledger := NewLedger(NewClientWithUniversal(db, nil), nil)
	mock.ExpectSetNX(DefaultKeyPrefix+s.key.String(), "11222333000144", 0).SetVal(true)

	created, err := ledger.Record(context.Background(), s.key, "11222333000144")
	s.NoError(err)
	s.True(created)
	s.NoError(mock.ExpectationsWereMet())
}

func TestLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}
