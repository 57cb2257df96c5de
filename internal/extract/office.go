package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"
)

// Office document MIME types handled by OfficeAdapter.
const (
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeODT  = "application/vnd.oasis.opendocument.text"
	MimeODP  = "application/vnd.oasis.opendocument.presentation"
	MimeODS  = "application/vnd.oasis.opendocument.spreadsheet"
	MimeRTF  = "application/rtf"
)

type unpackFunc func(content []byte) (string, error)

// OfficeAdapter unpacks office containers (OOXML, OpenDocument, RTF). A parse that
// succeeds scores 1.0; a structural failure scores 0.
type OfficeAdapter struct {
	unpackers map[string]unpackFunc
}

// NewOfficeAdapter returns the office unpack adapter.
func NewOfficeAdapter() *OfficeAdapter {
	return &OfficeAdapter{
		unpackers: map[string]unpackFunc{
			MimeDOCX:   unpackDOCX,
			MimePPTX:   unpackPPTX,
			MimeXLSX:   unpackXLSX,
			MimeODP:    unpackODP,
			MimeODS:    unpackODS,
			MimeODT:    unpackWithCat,
			MimeRTF:    unpackWithCat,
			"text/rtf": unpackWithCat,
		},
	}
}

// Name implements Adapter.
func (o *OfficeAdapter) Name() string { return "office" }

// Method implements Adapter.
func (o *OfficeAdapter) Method() models.ExtractionMethod { return models.MethodDirect }

// Supports implements Adapter.
func (o *OfficeAdapter) Supports(mimeHint string) bool {
	_, ok := o.unpackers[mimeHint]
	return ok
}

// Attempt implements Adapter.
func (o *OfficeAdapter) Attempt(ctx context.Context, content []byte, mimeHint string) models.ExtractionAttempt {
	if err := ctx.Err(); err != nil {
		return models.ExtractionAttempt{Err: err}
	}
	unpack, ok := o.unpackers[mimeHint]
	if !ok {
		return models.ExtractionAttempt{Err: engineErr(o.Name(), "unsupported type %q", mimeHint)}
	}
	text, err := unpack(content)
	if err != nil {
		return models.ExtractionAttempt{Err: engineErr(o.Name(), "%v", err)}
	}
	return models.ExtractionAttempt{Text: text, Confidence: 1}
}

// zipEntries opens content as a zip archive and returns the entries accepted by match,
// in archive order, keyed by name.
func zipEntries(content []byte, match func(name string) bool) ([]string, map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, nil, fmt.Errorf("not a zip: %w", err)
	}
	var names []string
	entries := make(map[string][]byte)
	for _, f := range zr.File {
		if !match(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		names = append(names, f.Name)
		entries[f.Name] = data
	}
	return names, entries, nil
}

// joinElementText collects the inner text captured by each pattern, space separated.
func joinElementText(xml []byte, patterns ...*regexp.Regexp) string {
	var b strings.Builder
	s := string(xml)
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			t := strings.TrimSpace(m[1])
			if t == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(t)
		}
	}
	return b.String()
}

func unpackXLSX(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("rows of sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

// unpackWithCat handles RTF and ODT, whose paragraph markup lu4p/cat parses reliably.
func unpackWithCat(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("cat: %w", err)
	}
	return strings.TrimSpace(text), nil
}
