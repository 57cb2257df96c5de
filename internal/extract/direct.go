package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/ledongthuc/pdf"
)

const mimePDF = "application/pdf"

// textMimes lists non text/* types that are still plain text on the wire.
var textMimes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/x-yaml":     true,
	"application/yaml":       true,
	"application/javascript": true,
	"application/x-ndjson":   true,
}

// DirectAdapter passes through text-bearing formats and reads the embedded text layer of PDFs.
type DirectAdapter struct{}

// NewDirectAdapter returns the pass-through adapter.
func NewDirectAdapter() *DirectAdapter {
	return &DirectAdapter{}
}

// Name implements Adapter.
func (d *DirectAdapter) Name() string { return "direct" }

// Method implements Adapter.
func (d *DirectAdapter) Method() models.ExtractionMethod { return models.MethodDirect }

// Supports implements Adapter.
func (d *DirectAdapter) Supports(mimeHint string) bool {
	return isTextMime(mimeHint) || mimeHint == mimePDF
}

// Attempt implements Adapter. Plain text always scores 1.0. A PDF scores 1.0 when its text
// layer has printable content and 0 otherwise, so scanned PDFs fall through to recognition.
func (d *DirectAdapter) Attempt(ctx context.Context, content []byte, mimeHint string) models.ExtractionAttempt {
	if err := ctx.Err(); err != nil {
		return models.ExtractionAttempt{Err: err}
	}
	if mimeHint == mimePDF {
		text, err := pdfTextLayer(ctx, content)
		if err != nil {
			return models.ExtractionAttempt{Err: engineErr(d.Name(), "%v", err)}
		}
		if !hasPrintable(text) {
			return models.ExtractionAttempt{Text: "", Confidence: 0}
		}
		return models.ExtractionAttempt{Text: text, Confidence: 1}
	}
	return models.ExtractionAttempt{Text: plainText(content), Confidence: 1}
}

func isTextMime(m string) bool {
	if m == "text/rtf" {
		return false
	}
	return strings.HasPrefix(m, "text/") || textMimes[m]
}

// plainText returns content as a string with invalid UTF-8 sequences replaced.
func plainText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "\ufffd")
}

// pdfTextLayer concatenates the plain text of every page, one page per line block.
func pdfTextLayer(ctx context.Context, content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf strings.Builder
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
	}
	return strings.TrimSpace(buf.String()), nil
}

func hasPrintable(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
