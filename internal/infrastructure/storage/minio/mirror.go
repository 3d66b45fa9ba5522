package minio

import (
	"bytes"
	"context"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/errors"
)

const xmlContentType = "application/xml"

// Mirror copies each newly ingested document to the configured bucket, keyed
// by the same relative path used on disk.
type Mirror struct {
	client *MinIOClient
	log    logging.Logger
}

func NewMirror(client *MinIOClient, log logging.Logger) *Mirror {
	return &Mirror{client: client, log: logging.OrDefault(log).Named("sink.minio")}
}

func (m *Mirror) Name() string { return "minio" }

// ObjectKey returns the object name for doc.
func (m *Mirror) ObjectKey(doc invoice.IngestedDocument) string {
	return path.Join(m.client.Prefix(), filepath.ToSlash(doc.RelativePath))
}

func (m *Mirror) Deliver(ctx context.Context, doc invoice.IngestedDocument) error {
	if m.client.isClosed() {
		return ErrMinIOClientClosed
	}
	if doc.Document == nil || doc.RelativePath == "" {
		return errors.New(errors.CodeValidation, "document has no content or path")
	}

	key := m.ObjectKey(doc)
	content := doc.Document.Content
	opts := minio.PutObjectOptions{
		ContentType: xmlContentType,
		UserMetadata: map[string]string{
			"fingerprint": doc.Key.String(),
			"cnpj":        doc.Window.TaxpayerID.String(),
			"run-id":      doc.RunID,
		},
	}

	info, err := m.client.GetClient().PutObject(ctx, m.client.Bucket(), key, bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		return errors.Wrap(err, errors.CodeObjectStorage, "upload failed").WithDetail("key=" + key)
	}

	m.log.Debug("document mirrored",
		logging.String("bucket", info.Bucket),
		logging.String("key", info.Key),
		logging.String("etag", info.ETag),
	)
	return nil
}
