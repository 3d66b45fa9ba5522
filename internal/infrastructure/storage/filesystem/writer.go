// Package filesystem places decoded NF-e documents under a dated directory
// tree rooted at a configurable base directory.
package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/nfe-ingest/pkg/errors"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

var segmentReplacer = strings.NewReplacer("/", "_", `\`, "_", "..", "_")

// Writer stores documents at <root>/<year>/<monthName>/<emitter>/<name>.xml.
// Existing files are overwritten.
type Writer struct {
	root string
	log  logging.Logger
}

func NewWriter(root string, log logging.Logger) *Writer {
	return &Writer{root: root, log: logging.OrDefault(log).Named("storage.filesystem")}
}

// Root returns the base directory.
func (w *Writer) Root() string { return w.root }

// RelativePath returns the path of doc below the root. index is the 1-based
// position of the document in its page and names the file when the document
// has no number.
func RelativePath(doc *invoice.DecodedDocument, index int) string {
	return filepath.Join(
		segment(doc.IssueYear, invoice.UnknownYear),
		segment(invoice.MonthName(doc.IssueMonth), invoice.UnknownMonth),
		segment(doc.EmitterID, invoice.UnknownEmitter),
		segment(doc.DocumentNumber, strconv.Itoa(index))+".xml",
	)
}

// segment makes v safe as a single path element, falling back to def when
// nothing usable is left.
func segment(v, def string) string {
	v = segmentReplacer.Replace(strings.TrimSpace(v))
	if v == "" || v == "." {
		return def
	}
	return v
}

// Store writes doc and returns the full path written.
func (w *Writer) Store(ctx context.Context, doc *invoice.DecodedDocument, index int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.CodeCanceled, "store canceled")
	}
	if doc == nil {
		return "", errors.New(errors.CodeValidation, "nil document")
	}

	path := filepath.Join(w.root, RelativePath(doc, index))
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return "", errors.Wrap(err, errors.CodeStorage, "failed to create directory").
			WithDetail("path=" + filepath.Dir(path))
	}
	if err := os.WriteFile(path, doc.Content, filePerm); err != nil {
		return "", errors.Wrap(err, errors.CodeStorage, "failed to write document").
			WithDetail("path=" + path)
	}

	w.log.Debug("document stored", logging.String("path", path), logging.Int("bytes", len(doc.Content)))
	return path, nil
}
