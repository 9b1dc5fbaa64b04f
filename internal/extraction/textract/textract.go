// Package textract is a rule-based extractor for documents that carry a text layer:
// PDF receipts and payslips and plain-text e-receipts. Scanned images need an OCR service.
package textract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/extraction"
)

type Extractor struct {
	now func() time.Time
}

func New() *Extractor {
	return &Extractor{now: time.Now}
}

func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string, kind document.Kind) (*document.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := readText(data, mimeType)
	if err != nil {
		return nil, err
	}

	lines := normalizeLines(text)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: document contains no text", extraction.ErrMalformed)
	}

	p := detectProfile(lines)

	result := &document.ExtractionResult{
		Kind:        kind,
		RawText:     strings.Join(lines, "\n"),
		ExtractedAt: e.now().UTC(),
	}

	switch kind {
	case document.KindReceipt:
		result.Receipt = parseReceipt(lines, p)
	case document.KindPayslip:
		result.Payslip = parsePayslip(lines, p)
	default:
		return nil, fmt.Errorf("%w: document kind %q", extraction.ErrUnsupportedFormat, kind)
	}

	return result, nil
}

func readText(data []byte, mimeType string) (string, error) {
	switch {
	case strings.HasPrefix(mimeType, "text/plain"):
		text, err := decodeText(data)
		if err != nil {
			return "", fmt.Errorf("%w: %w", extraction.ErrMalformed, err)
		}

		return text, nil
	case mimeType == "application/pdf":
		return pdfText(data)
	}

	return "", fmt.Errorf("%w: %s has no text layer", extraction.ErrUnsupportedFormat, mimeType)
}

func pdfText(data []byte) (text string, err error) {
	// The pdf package panics on some broken cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", extraction.ErrMalformed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", extraction.ErrMalformed, err)
	}

	var sb strings.Builder

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		sb.WriteString(pageText)
		sb.WriteByte('\n')
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: pdf has no text layer", extraction.ErrUnsupportedFormat)
	}

	return sb.String(), nil
}
