package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable marks a document the extractor cannot pull text from:
// corrupt bytes, a non-PDF payload, or a PDF with no extractable text.
var ErrUnreadable = errors.New("document unreadable")

// Extractor pulls plain text out of PDF documents.
// Library used: github.com/ledongthuc/pdf.
type Extractor struct{}

// Extract reads the whole document and returns its text with blank-line
// runs collapsed to single newlines.
func (Extractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: read document: %v", ErrUnreadable, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrUnreadable)
	}
	text, err := extractPDF(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	text = collapseBlankLines(text)
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text", ErrUnreadable)
	}
	return text, nil
}

// extractPDF parses under recover: the pdf package panics on some
// malformed files.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return strings.TrimSpace(s)
}
