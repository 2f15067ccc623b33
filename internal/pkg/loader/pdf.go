// Package loader extracts text from uploaded documents for ingestion.
package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/synaptiq/knowledged/internal/model"
)

// PageSection is the text of a single document page together with its page
// label. Page is a string so the unknown-page sentinel stays representable
// end to end.
type PageSection struct {
	Page    string
	Content string
}

// LoadPDF reads the PDF at path and returns one section per non-empty page.
// Pages that cannot be parsed are skipped; a fully unparseable document
// returns an empty slice, not an error.
func LoadPDF(path string) ([]PageSection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	// Read into memory so the parser never races the file handle.
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	return LoadPDFBytes(data, stat.Size())
}

// LoadPDFBytes parses an in-memory PDF and returns its per-page sections.
func LoadPDFBytes(data []byte, size int64) ([]PageSection, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), size)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	pageCount := reader.NumPage()
	sections := make([]PageSection, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages the extractor cannot handle; the rest of the
			// document is still worth indexing.
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sections = append(sections, PageSection{
			Page:    strconv.Itoa(i),
			Content: text,
		})
	}

	return sections, nil
}

// SectionFromText wraps free text that has no page structure into a single
// section labeled with the unknown-page sentinel.
func SectionFromText(text string) []PageSection {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []PageSection{{Page: model.PageUnknown, Content: text}}
}
