package extraction

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// NativePDFReader implements PDFReader using ledongthuc/pdf, reading pages
// in document order and concatenating their plain text.
type NativePDFReader struct{}

func NewNativePDFReader() *NativePDFReader { return &NativePDFReader{} }

func (r *NativePDFReader) ExtractText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// a single unreadable page does not fail the whole document;
			// quality_ratio on the partial result decides the fallback.
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
