package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Dataset is a header-keyed table.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Field is one label/value line rendered above the table.
type Field struct {
	Label string
	Value string
}

// Table is a captioned dataset.
type Table struct {
	Caption string
	Data    Dataset
}

// Document is a titled summary block followed by any number of tables.
type Document struct {
	Title    string
	Subtitle string
	Summary  []Field
	Tables   []Table
	Footer   string
}

// PDFExporter renders documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with a summary block and table body.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Summary) == 0 && len(doc.Tables) == 0 {
		return nil, fmt.Errorf("pdf requires a summary or a table")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetTitle(doc.Title, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(doc.Title)), "", 1, "C", false, 0, "")
	}
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	if len(doc.Summary) > 0 {
		for _, f := range doc.Summary {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(45, 7, tr(f.Label), "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			pdf.MultiCell(0, 7, tr(f.Value), "", "", false)
		}
		pdf.Ln(4)
	}

	for _, table := range doc.Tables {
		if len(table.Data.Headers) == 0 {
			continue
		}
		if table.Caption != "" {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, tr(table.Caption), "", 1, "", false, 0, "")
		}
		pdf.SetFont("Arial", "B", 10)
		colWidth := 190.0 / float64(len(table.Data.Headers))
		for _, header := range table.Data.Headers {
			pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range table.Data.Rows {
			for _, header := range table.Data.Headers {
				pdf.CellFormat(colWidth, 7, tr(truncate(row[header], colWidth)), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	if doc.Footer != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, tr(doc.Footer), "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// truncate keeps a cell on one line; roughly two characters fit per millimetre at 9pt.
func truncate(value string, width float64) string {
	limit := int(width * 0.55)
	r := []rune(value)
	if limit <= 3 || len(r) <= limit {
		return value
	}
	return string(r[:limit-3]) + "..."
}
