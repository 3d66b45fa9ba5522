package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

func sampleDoc(number string) *invoice.DecodedDocument {
	return &invoice.DecodedDocument{
		IssuedOn:       "2024-05-10",
		IssueYear:      "2024",
		IssueMonth:     "05",
		EmitterID:      "11222333000144",
		DocumentNumber: number,
		Content:        []byte("<nfeProc/>"),
	}
}

func TestStore_UsesDocumentNumber(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, logging.NewNopLogger())

	path, err := w.Store(context.Background(), sampleDoc("123"), 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2024", "Maio", "11222333000144", "123.xml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<nfeProc/>", string(data))
}

func TestStore_FallsBackToIndex(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	path, err := w.Store(context.Background(), sampleDoc(""), 7)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2024", "Maio", "11222333000144", "7.xml"), path)
}

func TestStore_UnknownDateSentinel(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	doc := sampleDoc("9")
	doc.IssueYear, doc.IssueMonth = invoice.UnknownYear, invoice.UnknownMonth
	doc.EmitterID = invoice.UnknownEmitter

	path, err := w.Store(context.Background(), doc, 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "0000", "00", "00000000000000", "9.xml"), path)
}

func TestStore_OverwritesExisting(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	_, err := w.Store(context.Background(), sampleDoc("1"), 1)
	require.NoError(t, err)

	doc := sampleDoc("1")
	doc.Content = []byte("<second/>")
	path, err := w.Store(context.Background(), doc, 1)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<second/>", string(data))
}

func TestStore_NumberCannotEscapeDirectory(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	for _, number := range []string{"../../etc/passwd", `a\b`, "x/y", ".."} {
		path, err := w.Store(context.Background(), sampleDoc(number), 3)
		require.NoError(t, err, number)
		assert.Equal(t, filepath.Join(root, "2024", "Maio", "11222333000144"), filepath.Dir(path), number)
	}
}

func TestStore_EmitterCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	for _, emitter := range []string{"../../../outside", "..", `..\x`, "a/b", " "} {
		doc := sampleDoc("7")
		doc.EmitterID = emitter
		path, err := w.Store(context.Background(), doc, 1)
		require.NoError(t, err, emitter)

		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		parts := strings.Split(rel, string(filepath.Separator))
		require.Len(t, parts, 4, emitter)
		assert.Equal(t, []string{"2024", "Maio"}, parts[:2], emitter)
		assert.NotContains(t, parts[2], "..", emitter)
		assert.NotEmpty(t, strings.TrimSpace(parts[2]), emitter)
		assert.Equal(t, "7.xml", parts[3], emitter)
	}
}

func TestStore_Errors(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := NewWriter(blocker, nil)
	_, err := w.Store(context.Background(), sampleDoc("1"), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))

	_, err = NewWriter(root, nil).Store(context.Background(), nil, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewWriter(root, nil).Store(ctx, sampleDoc("1"), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCanceled))
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, filepath.Join("2024", "Maio", "11222333000144", "42.xml"), RelativePath(sampleDoc(" 42 "), 1))

	doc := sampleDoc("")
	doc.EmitterID = ""
	assert.Equal(t, filepath.Join("2024", "Maio", invoice.UnknownEmitter, "5.xml"), RelativePath(doc, 5))
}
