package ingest

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the extracted plain text of one PDF page.
type Page struct {
	Number int
	Text   string
}

// ExtractPages reads the PDF at path and returns per-page plain text. Pages
// that yield no text are kept empty so numbering stays aligned with the
// source document.
func ExtractPages(path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// Extraction quality varies wildly across PDF producers; a
			// single unreadable page should not sink the whole document.
			pages = append(pages, Page{Number: i})
			continue
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}
