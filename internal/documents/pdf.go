// Package documents extracts plain text from résumé documents.
package documents

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ErrUnreadable is returned when the bytes are not a readable PDF.
var ErrUnreadable = errors.New("document is not a readable pdf")

// Extractor turns PDF bytes into text. Pages that cannot be read yield an
// empty string so one bad page does not lose the rest of the document.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// ExtractPDF returns the per-page text joined by newlines, trimmed.
func (e *Extractor) ExtractPDF(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", nil
	}

	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("pdf reader panicked", zap.Any("panic", r))
			text, err = "", errors.Wrapf(ErrUnreadable, "%v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(errors.Mark(err, ErrUnreadable), "open pdf")
	}

	pages := reader.NumPage()
	chunks := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		chunks = append(chunks, e.pageText(reader, i))
	}

	text = strings.TrimSpace(strings.Join(chunks, "\n"))
	e.logger.Debug("extracted pdf text", zap.Int("pages", pages), zap.Int("length", len(text)))
	return text, nil
}

func (e *Extractor) pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("skipping unreadable pdf page", zap.Int("page", num), zap.Any("panic", r))
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		e.logger.Warn("skipping unreadable pdf page", zap.Int("page", num), zap.Error(err))
		return ""
	}
	return content
}

// Source is a résumé given either as document bytes or as plain text.
type Source struct {
	PDF  []byte
	Text string
}

// LoadSource reads a résumé file. PDFs are returned as bytes, anything else as text.
func LoadSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, errors.Wrapf(err, "read resume %q", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") || bytes.HasPrefix(data, []byte("%PDF-")) {
		return Source{PDF: data}, nil
	}
	return Source{Text: string(data)}, nil
}

// Resolve returns the résumé text: extracted PDF text when bytes are present,
// otherwise the trimmed fallback text.
func (e *Extractor) Resolve(src Source) (string, error) {
	if len(src.PDF) > 0 {
		return e.ExtractPDF(src.PDF)
	}
	return strings.TrimSpace(src.Text), nil
}
