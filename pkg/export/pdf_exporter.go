package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidthLandscape = 277.0
	pdfRowHeight          = 7.0
)

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with the dataset title, generation stamp and table.
// The header row is repeated on every page.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	colWidth := pdfPageWidthLandscape / float64(len(data.Headers))
	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range data.Headers {
			pdf.CellFormat(colWidth, pdfRowHeight+1, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("%s  |  %d", tr(data.generatedLabel()), pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range data.Rows {
		if pdf.GetY()+pdfRowHeight > pageHeight-bottom-10 {
			pdf.AddPage()
			header()
		}
		for _, value := range row {
			pdf.CellFormat(colWidth, pdfRowHeight, tr(value), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
