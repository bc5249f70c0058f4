package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth = 277.0
	pdfLineH     = 5.0
)

// A4 landscape height minus the bottom margin and footer.
const pdfBodyBottom = 198.0

// PDFExporter renders tables into a landscape PDF with wrapped cells.
type PDFExporter struct {
	now func() time.Time
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

// ContentType reports the MIME type of rendered documents.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension reports the file extension of rendered documents.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates a PDF document with the table title, header row and body.
func (e *PDFExporter) Render(table Table) ([]byte, error) {
	if err := table.validate("pdf"); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	generated := e.now().UTC().Format(time.RFC3339)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s - page %d", generated, pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	if table.Title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 9, tr(table.Title), "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	colWidth := pdfPageWidth / float64(len(table.Headers))
	writeRow := func(cells []string, style string, fill bool) {
		pdf.SetFont("Arial", style, 8)
		lines := 1
		split := make([][][]byte, len(cells))
		for i, cell := range cells {
			split[i] = pdf.SplitLines([]byte(tr(cell)), colWidth-2)
			if len(split[i]) > lines {
				lines = len(split[i])
			}
		}
		height := float64(lines) * pdfLineH
		if pdf.GetY()+height > pdfBodyBottom {
			pdf.AddPage()
			pdf.SetFont("Arial", style, 8)
		}
		rectStyle := "D"
		if fill {
			rectStyle = "FD"
		}
		x, y := pdf.GetX(), pdf.GetY()
		for i := range cells {
			pdf.Rect(x+float64(i)*colWidth, y, colWidth, height, rectStyle)
			for j, line := range split[i] {
				pdf.SetXY(x+float64(i)*colWidth+1, y+float64(j)*pdfLineH)
				pdf.CellFormat(colWidth-2, pdfLineH, string(line), "", 0, "L", false, 0, "")
			}
		}
		pdf.SetXY(x, y+height)
	}

	pdf.SetFillColor(235, 235, 235)
	writeRow(table.Headers, "B", true)
	for _, row := range table.Rows {
		writeRow(row, "", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
