package ingest

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LoadPDF extracts the text of every page, joined by newlines. Pages
// without extractable text contribute an empty line.
func LoadPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, txt)
	}
	return strings.Join(pages, "\n"), nil
}
