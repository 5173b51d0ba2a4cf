package documents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPDFEmptyInput(t *testing.T) {
	text, err := NewExtractor(nil).ExtractPDF(nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	_, err := NewExtractor(nil).ExtractPDF([]byte("definitely not a pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreadable))
}

func TestResolvePrefersDocumentBytes(t *testing.T) {
	e := NewExtractor(nil)

	text, err := e.Resolve(Source{Text: "  5 years building Go microservices on AWS \n"})
	require.NoError(t, err)
	assert.Equal(t, "5 years building Go microservices on AWS", text)

	_, err = e.Resolve(Source{PDF: []byte("garbage"), Text: "fallback"})
	assert.Error(t, err)

	text, err = e.Resolve(Source{})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestLoadSource(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "resume.txt")
	require.NoError(t, os.WriteFile(txt, []byte("Go developer"), 0o600))
	src, err := LoadSource(txt)
	require.NoError(t, err)
	assert.Equal(t, "Go developer", src.Text)
	assert.Nil(t, src.PDF)

	pdfPath := filepath.Join(dir, "resume.PDF")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o600))
	src, err = LoadSource(pdfPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), src.PDF)
	assert.Empty(t, src.Text)

	_, err = LoadSource(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
