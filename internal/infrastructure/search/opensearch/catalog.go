package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/errors"
)

// DefaultIndex is the catalog index name.
const DefaultIndex = "nfe-documents"

const indexMapping = `{
  "settings": {"number_of_shards": 1, "number_of_replicas": 0},
  "mappings": {
    "properties": {
      "fingerprint":     {"type": "keyword"},
      "run_id":          {"type": "keyword"},
      "queried_cnpj":    {"type": "keyword"},
      "query_date":      {"type": "date", "format": "yyyy-MM-dd"},
      "emitter_cnpj":    {"type": "keyword"},
      "document_number": {"type": "keyword"},
      "issued_on":       {"type": "keyword"},
      "path":            {"type": "keyword"},
      "size_bytes":      {"type": "integer"},
      "ingested_at":     {"type": "date"}
    }
  }
}`

var ErrDocumentIndexFailed = errors.New(errors.CodeSearchIndex, "document index failed")

// CatalogEntry is the indexed view of one ingested document.
type CatalogEntry struct {
	Fingerprint    string    `json:"fingerprint"`
	RunID          string    `json:"run_id"`
	QueriedCNPJ    string    `json:"queried_cnpj"`
	QueryDate      string    `json:"query_date"`
	EmitterCNPJ    string    `json:"emitter_cnpj"`
	DocumentNumber string    `json:"document_number,omitempty"`
	IssuedOn       string    `json:"issued_on,omitempty"`
	Path           string    `json:"path"`
	SizeBytes      int       `json:"size_bytes"`
	IngestedAt     time.Time `json:"ingested_at"`
}

// EntryFor builds the catalog entry for doc.
func EntryFor(doc invoice.IngestedDocument) CatalogEntry {
	e := CatalogEntry{
		Fingerprint: doc.Key.String(),
		RunID:       doc.RunID,
		QueriedCNPJ: doc.Window.TaxpayerID.String(),
		QueryDate:   doc.Window.Day(),
		Path:        filepath.ToSlash(doc.RelativePath),
		IngestedAt:  doc.IngestedAt.UTC(),
	}
	if d := doc.Document; d != nil {
		e.EmitterCNPJ = d.EmitterID
		e.DocumentNumber = d.DocumentNumber
		e.IssuedOn = d.IssuedOn
		e.SizeBytes = len(d.Content)
	}
	return e
}

// Catalog indexes one entry per new document, with the fingerprint as the
// document ID so re-delivery overwrites instead of duplicating.
type Catalog struct {
	client  *Client
	index   string
	refresh string
	logger  logging.Logger
}

func NewCatalog(client *Client, index string, logger logging.Logger) *Catalog {
	if index == "" {
		index = DefaultIndex
	}
	return &Catalog{client: client, index: index, refresh: "false", logger: logging.OrDefault(logger).Named("sink.opensearch")}
}

func (c *Catalog) Name() string { return "opensearch" }

func (c *Catalog) Index() string { return c.index }

// IndexExists checks if the catalog index exists.
func (c *Catalog) IndexExists(ctx context.Context) (bool, error) {
	resp, err := c.client.GetClient().Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{c.index}})
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusOK:
			return true, nil
		case http.StatusNotFound:
			return false, nil
		}
	}
	if err == nil {
		err = errors.New(errors.CodeSearchIndex, "unexpected response")
	}
	return false, errors.Wrap(err, errors.CodeSearchIndex, "failed to check index existence")
}

// EnsureIndex creates the catalog index with its mapping when missing.
func (c *Catalog) EnsureIndex(ctx context.Context) error {
	exists, err := c.IndexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := c.client.GetClient().Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: c.index,
		Body:  strings.NewReader(indexMapping),
	}); err != nil {
		return errors.Wrap(err, errors.CodeSearchIndex, "index creation failed").WithDetail("index=" + c.index)
	}
	c.logger.Info("Index created", logging.String("index", c.index))
	return nil
}

func (c *Catalog) Deliver(ctx context.Context, doc invoice.IngestedDocument) error {
	body, err := json.Marshal(EntryFor(doc))
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to marshal catalog entry")
	}

	resp, err := c.client.GetClient().Index(ctx, opensearchapi.IndexReq{
		Index:      c.index,
		DocumentID: doc.Key.String(),
		Body:       bytes.NewReader(body),
		Params:     opensearchapi.IndexParams{Refresh: c.refresh},
	})
	if err != nil {
		return ErrDocumentIndexFailed.WithCause(err).WithDetail("id=" + doc.Key.String())
	}

	c.logger.Debug("document cataloged",
		logging.Fingerprint(doc.Key.String()),
		logging.String("result", resp.Result),
	)
	return nil
}
